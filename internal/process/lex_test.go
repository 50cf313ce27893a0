package process

import (
	"reflect"
	"testing"
)

func TestLex(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`echo hello`, []string{"echo", "hello"}},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo 'hello world'`, []string{"echo", "hello world"}},
		{`python -c "print('hi')"`, []string{"python", "-c", "print('hi')"}},
		{`cmd arg\ with\ space`, []string{"cmd", "arg with space"}},
	}

	for _, tc := range cases {
		got, err := Lex(tc.in)
		if err != nil {
			t.Fatalf("Lex(%q) error: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Lex(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLexUnterminatedQuote(t *testing.T) {
	if _, err := Lex(`echo "unterminated`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
}

func TestLexEmpty(t *testing.T) {
	if _, err := Lex("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}
