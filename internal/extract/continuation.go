package extract

import (
	"strings"
)

const terminators = ".;)!?"

// endsComplete reports whether content ends with a sentence terminator.
func endsComplete(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return true
	}
	return strings.ContainsRune(terminators, rune(content[len(content)-1]))
}

// ApplyContinuation sets the cross-page flags on r. The last problem
// continues to the next page when its text lacks a terminator. The first
// problem continues from the previous page when it has no number of its
// own. Flags already set by the extractor are kept.
func ApplyContinuation(r *Result) {
	if len(r.Problems) == 0 {
		return
	}
	first := &r.Problems[0]
	if first.Number == "" {
		first.ContinuesFromPrev = true
	}
	last := &r.Problems[len(r.Problems)-1]
	body := last.Content
	if n := len(last.SubProblems); n > 0 {
		body = last.SubProblems[n-1].Content
	}
	if !endsComplete(body) {
		last.ContinuesToNext = true
	}
}

// finalize applies the steps shared by every extractor once blocks are
// found: continuation flags first, since they look at raw numbers, then IDs.
func finalize(r *Result, in Input) {
	ApplyContinuation(r)
	AssignIDs(r, in)
}

// ContinuationTail returns the part of p that runs onto the next page: every
// line after the first, when p is flagged as continuing and its last line
// has no terminator. It returns "" otherwise.
func ContinuationTail(p Problem) string {
	if !p.ContinuesToNext {
		return ""
	}
	return continuationTail(p.Content)
}

func continuationTail(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return ""
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" || strings.ContainsRune(".;!?", rune(last[len(last)-1])) {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:], "\n"))
}

// LinkPages joins the first problem of cur to the last problem of prev when
// one continues into the other: both carry the continuation flags, or both
// have the same number. The first problem of cur gets ContinuedFrom and
// PrevTail set. Links are recomputed from scratch, so calling LinkPages
// again or in any page order gives the same result. It reports whether a
// link was made.
func LinkPages(prev, cur *Result) bool {
	if cur == nil || len(cur.Problems) == 0 {
		return false
	}
	first := &cur.Problems[0]
	first.ContinuedFrom = ""
	first.PrevTail = ""
	if prev == nil || len(prev.Problems) == 0 {
		return false
	}
	last := prev.Problems[len(prev.Problems)-1]

	sameNumber := first.Number != "" && first.Number == last.Number
	if !sameNumber && !(first.ContinuesFromPrev && last.ContinuesToNext) {
		return false
	}
	first.ContinuesFromPrev = true
	first.ContinuedFrom = last.ID
	first.PrevTail = continuationTail(last.Content)
	return true
}
