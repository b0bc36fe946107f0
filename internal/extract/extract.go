// Package extract turns OCR page text into structured problems and theory
// blocks. An AI extractor is tried first; a deterministic rule-based
// extractor is the fallback.
package extract

import (
	"context"
	"errors"
	"fmt"
)

// Source identifies which extractor produced a result.
type Source string

const (
	SourceAI        Source = "ai"
	SourceRuleBased Source = "rulebased"
)

// ReasonEmpty is the reason code of EmptyError.
const ReasonEmpty = "extraction_empty"

// SubProblem is a lettered part of a problem, such as "а)" or "b)".
type SubProblem struct {
	Letter  string `json:"letter"`
	Content string `json:"content"`
}

// Problem is one numbered exercise.
type Problem struct {
	ID                string       `json:"id"`
	Number            string       `json:"number"`
	Content           string       `json:"content"`
	SubProblems       []SubProblem `json:"sub_problems,omitempty"`
	Formulas          []string     `json:"formulas,omitempty"`
	PageNumber        int          `json:"page_number,omitempty"`
	ContinuesFromPrev bool         `json:"continues_from_prev"`
	ContinuesToNext   bool         `json:"continues_to_next"`
	// ContinuedFrom and PrevTail are filled on read by LinkPages, never
	// stored.
	ContinuedFrom string `json:"continued_from,omitempty"`
	PrevTail      string `json:"prev_tail,omitempty"`
}

// FullContent is the problem text with the tail carried over from the
// previous page, if any, in front.
func (p Problem) FullContent() string {
	if p.PrevTail == "" {
		return p.Content
	}
	return p.PrevTail + "\n\n" + p.Content
}

// TheoryType classifies a theory block.
type TheoryType string

const (
	TheoryTheorem    TheoryType = "theorem"
	TheoryDefinition TheoryType = "definition"
	TheoryProperty   TheoryType = "property"
	TheoryFormula    TheoryType = "formula"
	TheoryProof      TheoryType = "proof"
	TheoryOther      TheoryType = "other"
)

// TheoryBlock is a theorem, definition or similar passage.
type TheoryBlock struct {
	ID         string     `json:"id"`
	Type       TheoryType `json:"type"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content"`
	Formulas   []string   `json:"formulas,omitempty"`
	PageNumber int        `json:"page_number,omitempty"`
}

// Result is the structured output for one page.
type Result struct {
	Problems     []Problem     `json:"problems"`
	TheoryBlocks []TheoryBlock `json:"theory_blocks"`
	Source       Source        `json:"source"`
	Confidence   *float64      `json:"confidence,omitempty"`
}

// Empty reports whether the result has no blocks at all.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Problems) == 0 && len(r.TheoryBlocks) == 0)
}

// Clone returns a deep copy, so shared results can be adjusted safely.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := &Result{Source: r.Source}
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	out.Problems = make([]Problem, len(r.Problems))
	for i, p := range r.Problems {
		p.SubProblems = append([]SubProblem(nil), p.SubProblems...)
		p.Formulas = append([]string(nil), p.Formulas...)
		out.Problems[i] = p
	}
	out.TheoryBlocks = make([]TheoryBlock, len(r.TheoryBlocks))
	for i, t := range r.TheoryBlocks {
		t.Formulas = append([]string(nil), t.Formulas...)
		out.TheoryBlocks[i] = t
	}
	return out
}

// Input is one page of OCR text plus the context used to build IDs.
type Input struct {
	BookID  string
	Chapter int
	Page    int
	Text    string
}

// Extractor produces a Result from page text.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, in Input) (*Result, error)
}

// EmptyError reports that no extractor produced any block.
type EmptyError struct {
	BookID string
	Page   int
	// AIErr is the AI failure that led to the fallback, if any.
	AIErr error
}

func (e *EmptyError) Error() string {
	msg := fmt.Sprintf("no problems or theory blocks extracted from %s page %d", e.BookID, e.Page)
	if e.AIErr != nil {
		msg += fmt.Sprintf(" (ai: %v)", e.AIErr)
	}
	return msg
}

// ReasonCode returns the stable machine-readable failure reason.
func (e *EmptyError) ReasonCode() string { return ReasonEmpty }

// IsEmpty reports whether err is an EmptyError.
func IsEmpty(err error) bool {
	var ee *EmptyError
	return errors.As(err, &ee)
}
