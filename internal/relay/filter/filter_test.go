package filter

import (
	"testing"
)

func TestTriggered(t *testing.T) {
	f := New("badword", "Heck")

	tests := []struct {
		content string
		want    string
		ok      bool
	}{
		{content: "hello", ok: false},
		{content: "this is BADWORD!", want: "badword", ok: true},
		{content: "xxbadwordxx", want: "badword", ok: true},
		{content: "oh heck", want: "heck", ok: true},
		{content: "bad word", ok: false},
	}
	for _, tt := range tests {
		got, ok := f.Triggered(tt.content)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Triggered(%q) = %q, %v, want %q, %v", tt.content, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTriggeredEmptyList(t *testing.T) {
	f := New()
	if _, ok := f.Triggered("anything"); ok {
		t.Error("empty list should never trigger")
	}
	if got := f.CensorContent("anything"); got != "anything" {
		t.Errorf("CensorContent() = %q, want unchanged", got)
	}
}

func TestCensor(t *testing.T) {
	f := New("heck", "darn")

	tests := []struct {
		name string
		in   string
		fn   func(string) string
		want string
	}{
		{name: "content mask", in: "what the heck", fn: f.CensorContent, want: "what the ****"},
		{name: "name mask", in: "HeckBoy", fn: f.CensorName, want: "####Boy"},
		{name: "multiple", in: "darn heck darn", fn: f.CensorContent, want: "**** **** ****"},
		{name: "overlap", in: "heckheck", fn: f.CensorContent, want: "********"},
		{name: "accent folded then masked", in: "hëck", fn: f.CensorContent, want: "****"},
		{name: "non-ascii dropped", in: "hi 👋 there", fn: f.CensorContent, want: "hi  there"},
		{name: "clean", in: "hello", fn: f.CensorName, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("censor(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"plain":  "plain",
		"café":   "cafe",
		"ｆｕｌｌ":   "full",
		"naïve ✓": "naive ",
		"":       "",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSetTermsReplacesList(t *testing.T) {
	f := New("old")
	f.SetTerms([]string{"New", ""})

	if f.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.Len())
	}
	if _, ok := f.Triggered("old news"); ok {
		t.Error("replaced term should not trigger")
	}
	if _, ok := f.Triggered("brand new"); !ok {
		t.Error("new term should trigger case-insensitively")
	}
}
