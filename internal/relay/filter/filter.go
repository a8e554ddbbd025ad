// Package filter applies the filtered word list to chat traffic. The same list drives
// two behaviours: a term anywhere in a message's content triggers a ban, and terms
// in otherwise accepted names and content are masked before relaying.
package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ItsCrafted/blooket-hacks/internal/syncx"
)

// Mask characters.
const (
	ContentMask = '*'
	NameMask    = '#'
)

type compiled struct {
	terms  []string // lowercase, as listed
	folded []string // ASCII-folded, for masking folded text
}

// Filter holds the current term list. It is safe for concurrent use; the list is
// replaced wholesale through SetTerms.
type Filter struct {
	list *syncx.RWGuard[compiled]
}

// New creates a filter with the given terms.
func New(terms ...string) *Filter {
	f := &Filter{list: syncx.NewGuard(compiled{})}
	f.SetTerms(terms)
	return f
}

// SetTerms replaces the term list. Matching is case-insensitive; empty terms are ignored.
func (f *Filter) SetTerms(terms []string) {
	c := compiled{
		terms:  make([]string, 0, len(terms)),
		folded: make([]string, 0, len(terms)),
	}
	for _, t := range terms {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		c.terms = append(c.terms, t)
		if ft := strings.ToLower(Fold(t)); ft != "" {
			c.folded = append(c.folded, ft)
		}
	}
	f.list.Set(c)
}

// Len returns the number of active terms.
func (f *Filter) Len() int {
	return syncx.Read(f.list, func(c compiled) int { return len(c.terms) })
}

// Triggered reports the first term found in content, compared case-insensitively
// against the raw text.
func (f *Filter) Triggered(content string) (string, bool) {
	lower := strings.ToLower(content)
	term := syncx.Read(f.list, func(c compiled) string {
		for _, t := range c.terms {
			if strings.Contains(lower, t) {
				return t
			}
		}
		return ""
	})
	return term, term != ""
}

// CensorContent folds s to ASCII and masks every listed term with ContentMask.
func (f *Filter) CensorContent(s string) string {
	return f.censor(s, ContentMask)
}

// CensorName folds s to ASCII and masks every listed term with NameMask.
func (f *Filter) CensorName(s string) string {
	return f.censor(s, NameMask)
}

func (f *Filter) censor(s string, mask byte) string {
	folded := Fold(s)
	terms := syncx.Read(f.list, func(c compiled) []string { return c.folded })
	if len(terms) == 0 || folded == "" {
		return folded
	}

	// folded is ASCII, so byte offsets in the lowercased copy line up with folded.
	lower := strings.ToLower(folded)
	masked := make([]bool, len(folded))
	hit := false
	for _, t := range terms {
		for off := 0; off < len(lower); {
			i := strings.Index(lower[off:], t)
			if i < 0 {
				break
			}
			start := off + i
			for j := start; j < start+len(t); j++ {
				masked[j] = true
			}
			hit = true
			off = start + 1
		}
	}
	if !hit {
		return folded
	}

	b := []byte(folded)
	for i := range b {
		if masked[i] {
			b[i] = mask
		}
	}
	return string(b)
}

// Fold reduces s to ASCII: compatibility decomposition, combining marks dropped, and
// whatever is still outside ASCII removed.
func Fold(s string) string {
	if isASCII(s) {
		return s
	}
	// Chains carry state and are built per call.
	chain := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r >= utf8.RuneSelf })),
	)
	out, _, err := transform.String(chain, s)
	if err != nil {
		return strings.Map(func(r rune) rune {
			if r >= utf8.RuneSelf {
				return -1
			}
			return r
		}, s)
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
