package extract

import (
	"strings"
	"unicode"
)

var romanValues = map[rune]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000}

// chapterToken returns the number token of a chapter heading line such as
// "Глава 5. Разложение" or "Chapter IV", or false for any other line.
func chapterToken(line string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(line))
	var rest string
	switch {
	case strings.HasPrefix(lower, "глава"):
		rest = strings.TrimPrefix(lower, "глава")
	case strings.HasPrefix(lower, "chapter"):
		rest = strings.TrimPrefix(lower, "chapter")
	default:
		return "", false
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	end := strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ':'
	})
	if end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	digits, roman := true, true
	for _, r := range rest {
		if r < '0' || r > '9' {
			digits = false
		}
		if _, ok := romanValues[r]; !ok {
			roman = false
		}
	}
	if !digits && !roman {
		return "", false
	}
	return rest, true
}

// IsChapterHeading reports whether line is a chapter heading.
func IsChapterHeading(line string) bool {
	_, ok := chapterToken(line)
	return ok
}

// ChapterNumber parses the chapter number out of a heading line. It returns
// 0 when line is not a heading.
func ChapterNumber(line string) int {
	tok, ok := chapterToken(line)
	if !ok {
		return 0
	}
	if tok[0] >= '0' && tok[0] <= '9' {
		n := 0
		for _, r := range tok {
			n = n*10 + int(r-'0')
		}
		return n
	}
	total, prev := 0, 0
	runes := []rune(tok)
	for i := len(runes) - 1; i >= 0; i-- {
		v := romanValues[runes[i]]
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}

// SplitTrailingChapterHeading detaches a chapter heading that is the last
// non-empty line of a page, so it can be carried over to the next page.
func SplitTrailingChapterHeading(text string) (body, heading string) {
	lines := strings.Split(text, "\n")
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			last = i
			break
		}
	}
	if last < 0 {
		return "", ""
	}
	if !IsChapterHeading(lines[last]) {
		return strings.TrimSpace(text), ""
	}
	body = strings.TrimSpace(strings.Join(lines[:last], "\n"))
	heading = strings.TrimSpace(lines[last])
	return body, heading
}

// LeadingChapterHeading returns the chapter heading that opens text. Blank
// lines are skipped; the scan stops at the first other line.
func LeadingChapterHeading(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if IsChapterHeading(line) {
			return strings.TrimSpace(line)
		}
		return ""
	}
	return ""
}

// LastChapterHeading returns the last chapter heading anywhere in text.
func LastChapterHeading(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if IsChapterHeading(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
