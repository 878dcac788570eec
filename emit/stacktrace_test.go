package emit

import (
	"reflect"
	"testing"

	"github.com/chazu/flatprog/schema"
)

func TestParseStackTrace(t *testing.T) {
	text := `Traceback (most recent call last):
  File "train.py", line 40, in main
    model(x)
  File "model.py", line 12, in forward
  File "layers.py", line 3, in __call__
    return self.fn(x)
`
	want := []schema.Frame{
		{Filename: "train.py", Lineno: 40, Name: "main", Context: "model(x)"},
		{Filename: "model.py", Lineno: 12, Name: "forward"},
		{Filename: "layers.py", Lineno: 3, Name: "__call__", Context: "return self.fn(x)"},
	}
	if got := parseStackTrace(text).Items; !reflect.DeepEqual(got, want) {
		t.Errorf("frames = %+v, want %+v", got, want)
	}
}

func TestParseStackTraceLineOverflow(t *testing.T) {
	text := `  File "a.py", line 99999999999999999999999999, in f
  File "b.py", line 7, in g
`
	want := []schema.Frame{{Filename: "b.py", Lineno: 7, Name: "g"}}
	if got := parseStackTrace(text).Items; !reflect.DeepEqual(got, want) {
		t.Errorf("frames = %+v, want %+v", got, want)
	}
}

func TestParseStackTraceEmpty(t *testing.T) {
	if got := parseStackTrace("").Items; len(got) != 0 {
		t.Errorf("frames = %+v, want none", got)
	}
	if got := parseStackTrace("no frames here").Items; len(got) != 0 {
		t.Errorf("frames = %+v, want none", got)
	}
}
