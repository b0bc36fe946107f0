package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errEmptyResult = errors.New("result has no problems or theory blocks")

type invalidError struct {
	block  string
	reason string
}

func (e *invalidError) Error() string {
	return fmt.Sprintf("block %s: %s", e.block, e.reason)
}

var (
	displayMathRe = regexp.MustCompile(`\$\$([^$]+)\$\$`)
	inlineMathRe  = regexp.MustCompile(`\$([^$]+)\$`)
	bracketMathRe = regexp.MustCompile(`\\\[((?s:.+?))\\\]`)
)

// Formulas returns the LaTeX formulas in text: display math first, then
// inline math, then \[...\] blocks.
func Formulas(text string) []string {
	var out []string
	for _, m := range displayMathRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	rest := displayMathRe.ReplaceAllString(text, " ")
	for _, m := range inlineMathRe.FindAllStringSubmatch(rest, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	for _, m := range bracketMathRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// BalancedBraces reports whether every "{" has a matching "}". Escaped
// braces (\{ and \}) are literal and ignored.
func BalancedBraces(text string) bool {
	depth := 0
	escaped := false
	for _, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Validate checks that r is structurally usable: at least one block, and
// balanced LaTeX braces in every block.
func Validate(r *Result) error {
	if r.Empty() {
		return errEmptyResult
	}
	for _, p := range r.Problems {
		if !BalancedBraces(p.Content) {
			return &invalidError{block: p.Number, reason: "unbalanced braces"}
		}
		for _, s := range p.SubProblems {
			if !BalancedBraces(s.Content) {
				return &invalidError{block: p.Number + s.Letter, reason: "unbalanced braces"}
			}
		}
	}
	for _, t := range r.TheoryBlocks {
		if !BalancedBraces(t.Content) {
			return &invalidError{block: string(t.Type), reason: "unbalanced braces"}
		}
	}
	return nil
}
