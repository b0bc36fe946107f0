package extract

import (
	"context"
	"reflect"
	"testing"
)

const samplePage = `окончание предыдущей задачи без точки
Теорема 1. О сумме углов
Сумма углов треугольника равна $180^\circ$.
289. Докажите, что:
а) $a^2 - b^2 = (a-b)(a+b)$;
б) $\frac{1}{2} + \frac{1}{2} = 1$.
290) Найдите значение выражения
a) $2 + 2$
b) $3 \cdot 3$
Задача 291: Решите уравнение $x^2 = 4$ и`

func TestParse(t *testing.T) {
	r := Parse(samplePage)

	if len(r.Problems) != 4 {
		t.Fatalf("got %d problems, want 4: %+v", len(r.Problems), r.Problems)
	}
	lead := r.Problems[0]
	if lead.Number != "" || !lead.ContinuesFromPrev {
		t.Errorf("lead problem = %+v, want unnumbered continuation", lead)
	}

	wantNumbers := []string{"289", "290", "291"}
	for i, want := range wantNumbers {
		if got := r.Problems[i+1].Number; got != want {
			t.Errorf("problem %d number = %q, want %q", i+1, got, want)
		}
	}

	p289 := r.Problems[1]
	if len(p289.SubProblems) != 2 || p289.SubProblems[0].Letter != "а" || p289.SubProblems[1].Letter != "б" {
		t.Errorf("289 sub-problems = %+v", p289.SubProblems)
	}
	if len(p289.Formulas) != 2 {
		t.Errorf("289 formulas = %v, want 2", p289.Formulas)
	}

	p290 := r.Problems[2]
	if len(p290.SubProblems) != 2 || p290.SubProblems[1].Letter != "b" {
		t.Errorf("290 sub-problems = %+v", p290.SubProblems)
	}

	if len(r.TheoryBlocks) != 1 {
		t.Fatalf("got %d theory blocks, want 1", len(r.TheoryBlocks))
	}
	th := r.TheoryBlocks[0]
	if th.Type != TheoryTheorem || th.Title != "1 О сумме углов" {
		t.Errorf("theory = %+v", th)
	}
	if len(th.Formulas) != 1 || th.Formulas[0] != `180^\circ` {
		t.Errorf("theory formulas = %v", th.Formulas)
	}
}

func TestParse_NoMarkers(t *testing.T) {
	r := Parse("Просто текст введения\nбез задач")
	if !r.Empty() {
		t.Errorf("expected empty result, got %+v", r)
	}
}

func TestRuleExtractor_StableIDs(t *testing.T) {
	e := NewRuleExtractor()
	in := Input{BookID: "algebra-7", Chapter: 3, Page: 12, Text: samplePage}

	first, err := e.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := e.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("re-running extraction changed the result")
	}

	wantIDs := []string{"algebra-7:3:p12-1", "algebra-7:3:289", "algebra-7:3:290", "algebra-7:3:291"}
	for i, want := range wantIDs {
		if got := first.Problems[i].ID; got != want {
			t.Errorf("problem %d ID = %q, want %q", i, got, want)
		}
	}
	if got := first.TheoryBlocks[0].ID; got != "algebra-7:3:T:12.1" {
		t.Errorf("theory ID = %q", got)
	}
	if first.Source != SourceRuleBased {
		t.Errorf("Source = %s, want %s", first.Source, SourceRuleBased)
	}

	// The last problem ends without a terminator.
	last := first.Problems[len(first.Problems)-1]
	if !last.ContinuesToNext {
		t.Error("last problem should continue to next page")
	}
	if first.Problems[1].ContinuesToNext {
		t.Error("problem 289 ends with a period and should not continue")
	}
}

func TestAssignIDs_Duplicates(t *testing.T) {
	r := &Result{Problems: []Problem{{Number: "1."}, {Number: "1"}, {Number: "№2"}}}
	AssignIDs(r, Input{BookID: "b", Chapter: 1})

	want := []string{"b:1:1", "b:1:1~2", "b:1:2"}
	for i, w := range want {
		if r.Problems[i].ID != w {
			t.Errorf("ID[%d] = %q, want %q", i, r.Problems[i].ID, w)
		}
	}
	if ChapterOf(r.Problems[0].ID) != "b:1" {
		t.Errorf("ChapterOf() = %q", ChapterOf(r.Problems[0].ID))
	}
}

func TestDetectSubProblem(t *testing.T) {
	tests := []struct {
		line   string
		letter string
		ok     bool
	}{
		{"а) текст", "а", true},
		{"Б. текст", "б", true},
		{"c] text", "c", true},
		{"(в) текст", "в", true},
		{"просто строка", "", false},
		{"12) not a letter", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			letter, ok := detectSubProblem(tt.line)
			if ok != tt.ok || letter != tt.letter {
				t.Errorf("detectSubProblem(%q) = %q, %v; want %q, %v", tt.line, letter, ok, tt.letter, tt.ok)
			}
		})
	}
}
