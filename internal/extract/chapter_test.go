package extract

import "testing"

func TestSplitTrailingChapterHeading(t *testing.T) {
	t.Run("splits trailing heading", func(t *testing.T) {
		body, heading := SplitTrailingChapterHeading("702. Последняя задача.\nГлава 5. Разложение многочленов на множители\n\n")
		if body != "702. Последняя задача." {
			t.Errorf("body = %q", body)
		}
		if heading != "Глава 5. Разложение многочленов на множители" {
			t.Errorf("heading = %q", heading)
		}
	})

	t.Run("leaves text intact", func(t *testing.T) {
		text := "701. Обычная задача без заголовка главы."
		body, heading := SplitTrailingChapterHeading(text)
		if body != text || heading != "" {
			t.Errorf("got %q, %q", body, heading)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		body, heading := SplitTrailingChapterHeading("  \n ")
		if body != "" || heading != "" {
			t.Errorf("got %q, %q", body, heading)
		}
	})
}

func TestChapterNumber(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"Глава 5. Разложение", 5},
		{"ГЛАВА 12", 12},
		{"Chapter IV: Functions", 4},
		{"глава xiv", 14},
		{"Главная мысль", 0},
		{"Глава", 0},
		{"289. Задача", 0},
	}
	for _, tt := range tests {
		if got := ChapterNumber(tt.line); got != tt.want {
			t.Errorf("ChapterNumber(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestLeadingChapterHeading(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"\n\nГлава 2. Функции\n1. Задача", "Глава 2. Функции"},
		{"1. Задача", ""},
		// A heading after body text belongs to a later part of the page.
		{"текст\nГлава 2. Функции\n1. Задача", ""},
		{"1. Найдите $x$.\n\nГлава 3", ""},
	}
	for _, tt := range tests {
		if got := LeadingChapterHeading(tt.text); got != tt.want {
			t.Errorf("LeadingChapterHeading(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLastChapterHeading(t *testing.T) {
	if got := LastChapterHeading("Глава 2\n1. Задача\nГлава 3. Дроби\n2. Задача"); got != "Глава 3. Дроби" {
		t.Errorf("LastChapterHeading() = %q", got)
	}
	if got := LastChapterHeading("1. Задача"); got != "" {
		t.Errorf("LastChapterHeading() = %q, want empty", got)
	}
}
