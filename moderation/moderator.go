// Package moderation masks banned words in group messages before they are
// persisted or fanned out, so the log and every recipient see the same text.
package moderation

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// Result is the outcome of one censoring pass.
type Result struct {
	Content  string   // content with matched spans masked
	Censored []string // the banned words that matched, lowercased
	Lang     string   // ISO 639-1 code of the detected language, "" if unknown
}

// Moderator censors banned words with an Aho-Corasick automaton so a single
// pass handles arbitrarily large wordlists. Matching is case-insensitive;
// masking replaces exactly the matched runes, never changing the rune length
// of the message. A nil Moderator (empty wordlist) passes content through.
type Moderator struct {
	machine     *goahocorasick.Machine
	replacement rune
}

func NewModerator(words []string, replacement rune) (*Moderator, error) {
	if len(words) == 0 {
		return nil, nil
	}
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		patterns = append(patterns, lower([]rune(word)))
	}
	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{machine: machine, replacement: replacement}, nil
}

// Censor masks every banned word occurring in content and tags the detected
// language for logging.
func (m *Moderator) Censor(content string) Result {
	if m == nil {
		return Result{Content: content}
	}

	runes := []rune(content)
	spans := m.machine.MultiPatternSearch(lower(runes), false)
	if len(spans) == 0 {
		return Result{Content: content, Lang: detectLang(content)}
	}

	censored := make([]string, 0, len(spans))
	for _, span := range spans {
		censored = append(censored, string(span.Word))
		for i := span.Pos; i < span.Pos+len(span.Word) && i < len(runes); i++ {
			runes[i] = m.replacement
		}
	}
	return Result{
		Content:  string(runes),
		Censored: censored,
		Lang:     detectLang(content),
	}
}

func detectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

func lower(in []rune) []rune {
	out := make([]rune, len(in))
	for i, r := range in {
		out[i] = unicode.ToLower(r)
	}
	return out
}
