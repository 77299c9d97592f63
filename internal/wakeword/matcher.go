package wakeword

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the outcome of testing a transcript against the wake lists.
type Verdict int

const (
	// VerdictIrrelevant means speech was heard but it was not a wake phrase.
	VerdictIrrelevant Verdict = iota
	// VerdictMatch means the transcript contains a wake phrase or word.
	VerdictMatch
	// VerdictReject means the transcript was short-circuited by the reject list.
	VerdictReject
)

func (v Verdict) String() string {
	switch v {
	case VerdictMatch:
		return "match"
	case VerdictReject:
		return "reject"
	default:
		return "irrelevant"
	}
}

// Lists holds the configurable wake and reject vocabularies.
type Lists struct {
	Phrases    []string `mapstructure:"phrases" yaml:"phrases"`
	Words      []string `mapstructure:"words" yaml:"words"`
	Fillers    []string `mapstructure:"fillers" yaml:"fillers"`
	MediaTerms []string `mapstructure:"media_terms" yaml:"media_terms"`
	MaxLength  int      `mapstructure:"max_length" yaml:"max_length"`
	DigitRun   int      `mapstructure:"digit_run" yaml:"digit_run"`
}

// DefaultLists returns the tuned vocabularies. "hey mom" is a deliberate
// alias: it is the most common mis-hearing of "hey nom".
func DefaultLists() Lists {
	return Lists{
		Phrases:    []string{"hey nom", "okay nom", "ok nom", "hi nom", "hey nomvoice", "hey mom"},
		Words:      []string{"nom", "nomvoice", "nomnom"},
		Fillers:    []string{"uh", "um", "umm", "hmm", "mm", "ah", "oh", "er", "yeah", "okay", "ok", "so", "like"},
		MediaTerms: []string{"subscribe", "thanks for watching", "thank you for watching", "music", "applause", "laughter", "subtitles"},
		MaxLength:  48,
		DigitRun:   4,
	}
}

// Matcher tests transcripts against a phrase tier (plain containment) and a
// standalone word tier (word boundaries), then the reject list.
type Matcher struct {
	phrases []string
	words   []*regexp.Regexp
	fillers map[string]struct{}
	media   []string
	digits  *regexp.Regexp
	maxLen  int
}

func NewMatcher(lists Lists) (*Matcher, error) {
	defaults := DefaultLists()
	if lists.MaxLength <= 0 {
		lists.MaxLength = defaults.MaxLength
	}
	if lists.DigitRun <= 0 {
		lists.DigitRun = defaults.DigitRun
	}

	m := &Matcher{
		fillers: make(map[string]struct{}, len(lists.Fillers)),
		digits:  regexp.MustCompile(fmt.Sprintf(`\d{%d,}`, lists.DigitRun)),
		maxLen:  lists.MaxLength,
	}
	for _, phrase := range lists.Phrases {
		if p := normalize(phrase); p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	for _, word := range lists.Words {
		w := normalize(word)
		if w == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(w) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("invalid wake word %q: %w", word, err)
		}
		m.words = append(m.words, re)
	}
	for _, filler := range lists.Fillers {
		if f := normalize(filler); f != "" {
			m.fillers[f] = struct{}{}
		}
	}
	for _, term := range lists.MediaTerms {
		if t := normalize(term); t != "" {
			m.media = append(m.media, t)
		}
	}
	if len(m.phrases) == 0 && len(m.words) == 0 {
		return nil, fmt.Errorf("no wake phrases or words configured")
	}
	return m, nil
}

// Match classifies transcript. Wake matches win over the reject list so a
// long sentence that starts with the wake phrase still activates.
func (m *Matcher) Match(transcript string) Verdict {
	text := normalize(transcript)
	if text == "" {
		return VerdictReject
	}
	for _, phrase := range m.phrases {
		if strings.Contains(text, phrase) {
			return VerdictMatch
		}
	}
	for _, word := range m.words {
		if word.MatchString(text) {
			return VerdictMatch
		}
	}
	if m.rejected(text) {
		return VerdictReject
	}
	return VerdictIrrelevant
}

func (m *Matcher) rejected(text string) bool {
	if len(text) > m.maxLen {
		return true
	}
	if m.digits.MatchString(text) {
		return true
	}
	for _, term := range m.media {
		if strings.Contains(text, term) {
			return true
		}
	}
	for _, word := range strings.Fields(text) {
		if _, ok := m.fillers[word]; !ok {
			return false
		}
	}
	return true
}

var nonWord = regexp.MustCompile(`[^a-z0-9' ]+`)

func normalize(text string) string {
	text = strings.ToLower(text)
	text = nonWord.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
