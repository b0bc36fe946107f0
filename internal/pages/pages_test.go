package pages

import (
	"errors"
	"reflect"
	"testing"

	"github.com/jackzampolin/problembook/internal/home"
)

func newTestSource(t *testing.T) *Source {
	t.Helper()
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	return NewSource(h)
}

func TestSource_Text(t *testing.T) {
	s := newTestSource(t)

	if _, err := s.Text("book", 1); !errors.Is(err, ErrNoText) {
		t.Fatalf("Text() error = %v, want ErrNoText", err)
	}
	if s.HasText("book", 1) {
		t.Error("HasText() = true before save")
	}

	if err := s.SaveText("book", 1, "1. Задача."); err != nil {
		t.Fatalf("SaveText() error = %v", err)
	}
	got, err := s.Text("book", 1)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "1. Задача." {
		t.Errorf("Text() = %q", got)
	}
	if !s.HasText("book", 1) {
		t.Error("HasText() = false after save")
	}
}

func TestSource_RejectsUnsafeBookID(t *testing.T) {
	s := newTestSource(t)
	for _, id := range []string{"../../../escaped", "a/b", "", ".."} {
		if err := s.SaveText(id, 1, "x"); !errors.Is(err, home.ErrInvalidBookID) {
			t.Errorf("SaveText(%q) error = %v, want ErrInvalidBookID", id, err)
		}
		if _, err := s.Text(id, 1); !errors.Is(err, home.ErrInvalidBookID) {
			t.Errorf("Text(%q) error = %v, want ErrInvalidBookID", id, err)
		}
		if s.HasText(id, 1) {
			t.Errorf("HasText(%q) = true", id)
		}
	}
}

func TestSource_NoPDF(t *testing.T) {
	s := newTestSource(t)
	if _, err := s.PageCount("book"); !errors.Is(err, ErrNoPDF) {
		t.Errorf("PageCount() error = %v, want ErrNoPDF", err)
	}
}

func TestSortPDFsByNumber(t *testing.T) {
	got := sortPDFsByNumber([]string{"/a/book-10.pdf", "/a/book-2.pdf", "/a/book-1.pdf"})
	want := []string{"/a/book-1.pdf", "/a/book-2.pdf", "/a/book-10.pdf"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortPDFsByNumber() = %v, want %v", got, want)
	}
}
