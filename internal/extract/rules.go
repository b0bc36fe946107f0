package extract

import (
	"context"
	"regexp"
	"strings"
)

var problemPatterns = []*regexp.Regexp{
	// Задача 1.1: / Задача №1.
	regexp.MustCompile(`(?i)^\s*#*\s*Задача\s*[№#]?\s*(\d+[\.\d\pL]*)[:.\s)]+`),
	// Упражнение 5:
	regexp.MustCompile(`(?i)^\s*#*\s*Упражнение\s*[№#]?\s*(\d+)[:.\s)]+`),
	// Example 1: / Problem 1. / Exercise 1)
	regexp.MustCompile(`(?i)^\s*#*\s*(?:Example|Problem|Exercise)\s*[№#]?\s*(\d+)[:.\s)]+`),
	// 289. Докажите / 1) $x$
	regexp.MustCompile(`^\s*(\d+[\.\d]*)\s*[\.)\]]\s*(?:\$|[А-ЯЁA-Z])`),
	// №125 / #125
	regexp.MustCompile(`^\s*[№#]\s*(\d+)[:.\s)]+`),
}

var theoryPattern = regexp.MustCompile(`(?i)^\s*#*\s*(теорема|определение|свойство|формула|доказательство|theorem|definition|property|formula|proof)\s*(\d*)\s*[:.\s]*(.*)$`)

var subProblemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*([а-яё])\s*[\.\)\]]`),
	regexp.MustCompile(`(?i)^\s*([a-z])\s*[\.\)\]]`),
	regexp.MustCompile(`(?i)^\s*\(([а-яёa-z])\)`),
}

var theoryTypes = map[string]TheoryType{
	"теорема":        TheoryTheorem,
	"theorem":        TheoryTheorem,
	"определение":    TheoryDefinition,
	"definition":     TheoryDefinition,
	"свойство":       TheoryProperty,
	"property":       TheoryProperty,
	"формула":        TheoryFormula,
	"formula":        TheoryFormula,
	"доказательство": TheoryProof,
	"proof":          TheoryProof,
}

// RuleExtractor finds problems and theory blocks by matching known
// markers in Russian and English. It never fails and never calls out.
type RuleExtractor struct{}

// NewRuleExtractor creates a rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

// Name returns the extractor identifier.
func (e *RuleExtractor) Name() string {
	return string(SourceRuleBased)
}

// Extract parses page text line by line. Text before the first marker
// becomes an unnumbered problem continued from the previous page.
func (e *RuleExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := Parse(in.Text)
	finalize(r, in)
	return r, nil
}

type problemBuilder struct {
	number string
	lines  []string
	subs   []SubProblem
	inSub  bool
}

type theoryBuilder struct {
	typ   TheoryType
	title string
	lines []string
}

// Parse runs the rule grammar over text without assigning IDs.
func Parse(text string) *Result {
	r := &Result{Source: SourceRuleBased}
	var (
		curProblem *problemBuilder
		curTheory  *theoryBuilder
	)

	flush := func() {
		if curProblem != nil {
			content := strings.Join(curProblem.lines, "\n")
			r.Problems = append(r.Problems, Problem{
				Number:      curProblem.number,
				Content:     content,
				SubProblems: curProblem.subs,
				Formulas:    Formulas(content),
			})
			curProblem = nil
		}
		if curTheory != nil {
			content := strings.Join(curTheory.lines, "\n")
			r.TheoryBlocks = append(r.TheoryBlocks, TheoryBlock{
				Type:     curTheory.typ,
				Title:    curTheory.title,
				Content:  content,
				Formulas: Formulas(content),
			})
			curTheory = nil
		}
	}

	var lead []string
	started := false
	flushLead := func() {
		started = true
		if len(lead) == 0 {
			return
		}
		content := strings.Join(lead, "\n")
		r.Problems = append(r.Problems, Problem{
			Content:           content,
			Formulas:          Formulas(content),
			ContinuesFromPrev: true,
		})
		lead = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if IsChapterHeading(trimmed) {
			flush()
			flushLead()
			continue
		}

		if num, ok := detectProblemStart(trimmed); ok {
			flush()
			flushLead()
			curProblem = &problemBuilder{number: num, lines: []string{trimmed}}
			continue
		}
		if typ, title, ok := detectTheoryStart(trimmed); ok {
			flush()
			flushLead()
			curTheory = &theoryBuilder{typ: typ, title: title}
			continue
		}

		switch {
		case curProblem != nil:
			curProblem.lines = append(curProblem.lines, trimmed)
			if letter, ok := detectSubProblem(trimmed); ok {
				curProblem.subs = append(curProblem.subs, SubProblem{Letter: letter, Content: trimmed})
				curProblem.inSub = true
			} else if curProblem.inSub {
				last := &curProblem.subs[len(curProblem.subs)-1]
				last.Content += "\n" + trimmed
			}
		case curTheory != nil:
			curTheory.lines = append(curTheory.lines, trimmed)
		case !started && !strings.HasPrefix(trimmed, "#"):
			lead = append(lead, trimmed)
		}
	}
	flush()
	return r
}

func detectProblemStart(line string) (string, bool) {
	for _, re := range problemPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

func detectTheoryStart(line string) (TheoryType, string, bool) {
	m := theoryPattern.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	typ, ok := theoryTypes[strings.ToLower(m[1])]
	if !ok {
		typ = TheoryOther
	}
	num := strings.TrimSpace(m[2])
	rest := strings.TrimSpace(m[3])
	title := strings.TrimSpace(num + " " + rest)
	return typ, title, true
}

func detectSubProblem(line string) (string, bool) {
	for _, re := range subProblemPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return strings.ToLower(m[1]), true
		}
	}
	return "", false
}
