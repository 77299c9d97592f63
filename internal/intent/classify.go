// Package intent maps command transcripts onto cooking intents.
package intent

import (
	"regexp"
	"slices"
	"strings"

	"nomvoice/internal/domain"
)

type rule struct {
	intent     domain.VoiceIntent
	priority   int
	confidence float64
	patterns   []*regexp.Regexp
	extract    func(normalized string) domain.IntentParams
}

func (r rule) matches(text string) bool {
	for _, re := range r.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// rules is sorted by descending priority at init; equal priorities keep
// declaration order.
var rules = []rule{
	{
		intent:     domain.IntentTimerStop,
		priority:   110,
		confidence: 0.95,
		patterns: patterns(
			`\b(stop|cancel|clear|kill|dismiss|turn off|shut off|end)\b.*\btimers?\b`,
			`\btimers?\b.*\b(off|stop|cancel)\b`,
		),
	},
	{
		intent:     domain.IntentTimerSet,
		priority:   105,
		confidence: 0.9,
		patterns: patterns(
			`\b(set|start|create|make|add|put on)\b.*\btimer\b`,
			`\btimer\b.*\bfor\b`,
			`\bremind me in\b`,
			`\b(count|countdown) (down )?(from )?\d`,
		),
		extract: func(text string) domain.IntentParams {
			return domain.IntentParams{Duration: ParseDuration(text)}
		},
	},
	{
		intent:     domain.IntentTimerCheck,
		priority:   100,
		confidence: 0.9,
		patterns: patterns(
			`\bhow (much|long)\b.*\b(left|remaining|to go)\b`,
			`\b(check|status of|what's|whats|what is)\b.*\btimer\b`,
			`\btime (left|remaining)\b`,
			`\bis the timer\b`,
			`\b(how long|how much longer)\b.*\btimer\b`,
		),
	},
	{
		intent:     domain.IntentStopSpeaking,
		priority:   100,
		confidence: 0.9,
		patterns: patterns(
			`^(stop|quiet|silence|enough|shush|hush|cancel)$`,
			`\b(stop|quit) (talking|speaking|reading)\b`,
			`\b(be quiet|shut up|that's enough|thats enough)\b`,
		),
	},
	{
		intent:     domain.IntentTemperatureQuery,
		priority:   90,
		confidence: 0.85,
		patterns: patterns(
			`\b(temperature|temp|degrees|how hot|preheat|what heat)\b`,
			`\boven\b.*\b(set|at|to)\b`,
		),
	},
	{
		intent:     domain.IntentReadIngredients,
		priority:   85,
		confidence: 0.85,
		patterns: patterns(
			`\b(read|list|tell me|what are|go over|give me)\b.*\bingredients\b`,
			`^(the )?ingredients( list)?$`,
			`\bwhat do i need\b$`,
			`\bingredient list\b`,
		),
	},
	{
		intent:     domain.IntentIngredientQuery,
		priority:   80,
		confidence: 0.8,
		patterns: patterns(
			`\bhow (much|many)\b\s+\w+`,
			`\b(amount|quantity) of\b\s+\w+`,
			`\bdo i need\b\s+\w+`,
			`\bdo i (use|add)\b.*\b(how much|how many)\b`,
		),
		extract: func(text string) domain.IntentParams {
			return domain.IntentParams{Subject: ingredientSubject(text)}
		},
	},
	{
		intent:     domain.IntentRestart,
		priority:   75,
		confidence: 0.85,
		patterns: patterns(
			`\b(start over|restart|start again|from the (beginning|top|start))\b`,
			`\bgo back to the (beginning|start|first step)\b`,
			`\bfirst step\b`,
		),
	},
	{
		intent:     domain.IntentNextStep,
		priority:   70,
		confidence: 0.85,
		patterns: patterns(
			`\bnext\b`,
			`\b(continue|go on|move on|keep going|carry on|proceed)\b`,
			`^(done|finished|ready|ok done|okay done|got it)$`,
			`\bi'?m (done|finished|ready)\b`,
			`\bwhat now\b`,
		),
	},
	{
		intent:     domain.IntentPreviousStep,
		priority:   70,
		confidence: 0.85,
		patterns: patterns(
			`\b(previous|go back|back up|step back|last step|before that)\b`,
		),
	},
	{
		intent:     domain.IntentRepeatStep,
		priority:   70,
		confidence: 0.85,
		patterns: patterns(
			`\b(repeat|again|say that|what was that|pardon|come again|didn't catch|didnt catch)\b`,
			`\b(current|this) step\b`,
			`\bwhere (am i|was i|are we|were we)\b`,
			`\bwhat step\b`,
		),
	},
	{
		intent:     domain.IntentPause,
		priority:   60,
		confidence: 0.8,
		patterns: patterns(
			`\b(pause|hold on|hang on|wait|stop listening)\b`,
			`\bgive me (a|one) (minute|moment|second|sec)\b`,
			`^(one|just a) (moment|second|sec|minute)$`,
		),
	},
	{
		intent:     domain.IntentHelp,
		priority:   50,
		confidence: 0.8,
		patterns: patterns(
			`\bhelp\b`,
			`\bwhat can (i|you) (say|do|ask)\b`,
			`\b(commands|options)\b`,
		),
	},
}

func init() {
	slices.SortStableFunc(rules, func(a, b rule) int {
		return b.priority - a.priority
	})
}

// Classify maps a transcript to an intent. It never fails; unmatched
// transcripts yield IntentUnknown.
func Classify(transcript string) domain.IntentResult {
	result := domain.IntentResult{Intent: domain.IntentUnknown, RawTranscript: transcript}
	text := Normalize(transcript)
	if text == "" {
		return result
	}

	for _, r := range rules {
		if !r.matches(text) {
			continue
		}
		result.Intent = r.intent
		result.Confidence = r.confidence
		if r.extract != nil {
			result.Params = r.extract(text)
		}
		return result
	}
	return result
}

var (
	punctuation = regexp.MustCompile(`[^a-z0-9'.\s]+`)
	sentenceDot = regexp.MustCompile(`\.(\s|$)`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, straightens apostrophes and strips punctuation
// apart from apostrophes and decimal points.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("’", "'", "‘", "'", "-", " ").Replace(text)
	text = sentenceDot.ReplaceAllString(text, " ")
	text = punctuation.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhow (?:much|many)\s+(.+?)(?:\s+(?:do|does|did|should|will|would|is|are|was|were|goes|go|for|in|to|i|we|you)\b.*)?$`),
	regexp.MustCompile(`\b(?:amount|quantity) of\s+(.+?)(?:\s+(?:do|does|is|are|for|in)\b.*)?$`),
	regexp.MustCompile(`\bdo i need\s+(.+)$`),
}

var leadingFiller = regexp.MustCompile(`^(?:of\s+|the\s+|some\s+|any\s+)+`)

func ingredientSubject(text string) string {
	for _, re := range subjectPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		subject := strings.TrimSpace(leadingFiller.ReplaceAllString(m[1], ""))
		if subject != "" {
			return subject
		}
	}
	return ""
}
