package extract

import (
	"reflect"
	"testing"
)

func TestFormulas(t *testing.T) {
	got := Formulas(`Найдите $x$ если $$x^2 = 4$$ и \[y = 2x\] где $y > 0$`)
	want := []string{"x^2 = 4", "x", "y > 0", "y = 2x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Formulas() = %q, want %q", got, want)
	}
	if got := Formulas("без формул"); got != nil {
		t.Errorf("Formulas() = %q, want nil", got)
	}
}

func TestBalancedBraces(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{`\frac{1}{2}`, true},
		{`\frac{1}{2`, false},
		{`}{`, false},
		{`\{ a \}`, true},
		{`\{ {a} \}`, true},
		{`\\{a}`, true},
		{"plain text", true},
	}
	for _, tt := range tests {
		if got := BalancedBraces(tt.text); got != tt.want {
			t.Errorf("BalancedBraces(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(&Result{}); err == nil {
		t.Error("empty result should be invalid")
	}
	if err := Validate(&Result{Problems: []Problem{{Content: `$\frac{1}{2$`}}}); err == nil {
		t.Error("unbalanced braces should be invalid")
	}
	if err := Validate(&Result{TheoryBlocks: []TheoryBlock{{Content: "ok"}}}); err != nil {
		t.Errorf("valid result rejected: %v", err)
	}
}
