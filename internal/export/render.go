package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"
)

const noSolution = "(Решение не добавлено)"

// Render writes book in format f. chapter is the scope the book was
// collected for and only changes titles.
func Render(book *Book, chapter int, f Format) ([]byte, error) {
	switch f {
	case Markdown:
		return []byte(renderMarkdown(book, chapter)), nil
	case LaTeX:
		return []byte(renderLaTeX(book, chapter)), nil
	case JSON:
		return json.MarshalIndent(book, "", "  ")
	case HTML:
		return renderHTML(book, chapter)
	case Anki:
		return []byte(renderAnki(book)), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownFormat, f)
}

func title(book *Book, chapter int) string {
	if chapter == AllChapters {
		return book.ID
	}
	return fmt.Sprintf("%s - Глава %d", book.ID, chapter)
}

func renderMarkdown(book *Book, chapter int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title(book, chapter))
	for _, ch := range book.Chapters {
		fmt.Fprintf(&b, "## Глава %d\n\n", ch.Number)
		for _, p := range ch.Problems {
			fmt.Fprintf(&b, "#### Задача %s\n\n", p.Number)
			b.WriteString(p.Content)
			b.WriteString("\n\n")
			for _, sub := range p.SubProblems {
				fmt.Fprintf(&b, "**%s).** %s\n\n", sub.Letter, sub.Content)
			}
			if p.Solution != nil {
				b.WriteString("**Решение:**\n\n")
				b.WriteString(p.Solution.Content)
				b.WriteString("\n\n")
			}
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

const latexPreamble = `\documentclass{article}
\usepackage[utf8]{inputenc}
\usepackage[russian]{babel}
\usepackage{amsmath,amssymb,amsthm}
\usepackage{enumitem}
\usepackage{geometry}
\geometry{a4paper,margin=2cm}

`

var latexSpecial = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`, `%`, `\%`, `$`, `\$`, `#`, `\#`,
	`_`, `\_`, `{`, `\{`, `}`, `\}`,
	`~`, `\textasciitilde{}`, `^`, `\textasciicircum{}`,
)

func renderLaTeX(book *Book, chapter int) string {
	var b strings.Builder
	b.WriteString(latexPreamble)
	fmt.Fprintf(&b, "\\title{%s}\n\\date{\\today}\n\n\\begin{document}\n\\maketitle\n\n", latexSpecial.Replace(title(book, chapter)))
	for _, ch := range book.Chapters {
		fmt.Fprintf(&b, "\\section*{Глава %d}\n\n", ch.Number)
		for _, p := range ch.Problems {
			fmt.Fprintf(&b, "\\textbf{Задача %s.} ", latexSpecial.Replace(p.Number))
			b.WriteString(displayMath(p.Content))
			b.WriteString("\n\n")
			if len(p.SubProblems) > 0 {
				b.WriteString("\\begin{enumerate}[label=\\alph*)]\n")
				for _, sub := range p.SubProblems {
					fmt.Fprintf(&b, "\\item %s\n", displayMath(sub.Content))
				}
				b.WriteString("\\end{enumerate}\n\n")
			}
			if p.Solution != nil {
				b.WriteString("\\paragraph{Решение.} ")
				b.WriteString(displayMath(p.Solution.Content))
				b.WriteString("\n\n")
			}
		}
	}
	b.WriteString("\\end{document}\n")
	return b.String()
}

// displayMath turns $$...$$ pairs into \[...\]. Inline $...$ is valid LaTeX
// already. An unpaired $$ is left as written.
func displayMath(s string) string {
	parts := strings.Split(s, "$$")
	if len(parts)%2 == 0 {
		return s
	}
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			if i%2 == 1 {
				b.WriteString(`\[`)
			} else {
				b.WriteString(`\]`)
			}
		}
		b.WriteString(part)
	}
	return b.String()
}

var mathRe = regexp.MustCompile(`\$\$[\s\S]+?\$\$|\$[^$\n]+\$`)

// renderHTML converts the Markdown export with goldmark. Math spans are
// swapped for placeholders first so emphasis and escapes inside formulas
// survive for a client-side renderer such as MathJax.
func renderHTML(book *Book, chapter int) ([]byte, error) {
	var spans []string
	src := mathRe.ReplaceAllStringFunc(renderMarkdown(book, chapter), func(m string) string {
		spans = append(spans, m)
		return fmt.Sprintf("MATHSPAN%dX", len(spans)-1)
	})

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldhtml.WithHardWraps()),
	)
	var body bytes.Buffer
	if err := md.Convert([]byte(src), &body); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}

	out := body.String()
	for i := len(spans) - 1; i >= 0; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("MATHSPAN%dX", i), html.EscapeString(spans[i]))
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(title(book, chapter)))
	b.WriteString(out)
	b.WriteString("</body>\n</html>\n")
	return b.Bytes(), nil
}

var ankiCell = strings.NewReplacer("\t", " ", "\r\n", "<br>", "\n", "<br>", "$", "&#36;")

// renderAnki writes a tab-separated note list for Anki's text importer:
// deck, front, back, tags.
func renderAnki(book *Book) string {
	var b strings.Builder
	b.WriteString("#separator:tab\n#html:true\n#deck column:1\n#tags column:4\n")
	tag := strings.ReplaceAll(book.ID, "-", "_")
	for _, ch := range book.Chapters {
		deck := fmt.Sprintf("%s::Глава %d", book.ID, ch.Number)
		for _, p := range ch.Problems {
			front := fmt.Sprintf("<b>%s - Задача %s</b><br><br>%s", html.EscapeString(book.ID), html.EscapeString(p.Number), ankiCell.Replace(p.Content))
			back := noSolution
			if p.Solution != nil {
				back = ankiCell.Replace(p.Solution.Content)
			}
			fmt.Fprintf(&b, "%s\t%s\t%s\t%s::chapter_%d\n", deck, front, back, tag, ch.Number)
		}
	}
	return b.String()
}
