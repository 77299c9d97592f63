package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nomvoice/internal/domain"
)

func TestClassifyIntents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		transcript string
		want       domain.VoiceIntent
	}{
		{"Next step", domain.IntentNextStep},
		{"what's next?", domain.IntentNextStep},
		{"OK, I'm done.", domain.IntentNextStep},
		{"go back", domain.IntentPreviousStep},
		{"what was the previous step", domain.IntentPreviousStep},
		{"can you repeat that", domain.IntentRepeatStep},
		{"where am I", domain.IntentRepeatStep},
		{"start over", domain.IntentRestart},
		{"go back to the beginning", domain.IntentRestart},
		{"Set a timer for 5 minutes", domain.IntentTimerSet},
		{"timer for ten minutes please", domain.IntentTimerSet},
		{"how much time is left", domain.IntentTimerCheck},
		{"how long on the timer", domain.IntentTimerCheck},
		{"stop the timer", domain.IntentTimerStop},
		{"cancel my timer", domain.IntentTimerStop},
		{"stop", domain.IntentStopSpeaking},
		{"stop talking", domain.IntentStopSpeaking},
		{"what temperature should the oven be", domain.IntentTemperatureQuery},
		{"read me the ingredients", domain.IntentReadIngredients},
		{"what do I need", domain.IntentReadIngredients},
		{"how much flour", domain.IntentIngredientQuery},
		{"how many eggs do I need", domain.IntentIngredientQuery},
		{"hold on", domain.IntentPause},
		{"give me a minute", domain.IntentPause},
		{"help", domain.IntentHelp},
		{"what can I say", domain.IntentHelp},
		{"tell me a joke", domain.IntentUnknown},
		{"", domain.IntentUnknown},
		{"   ?!  ", domain.IntentUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.transcript, func(t *testing.T) {
			got := Classify(tc.transcript)
			assert.Equal(t, tc.want, got.Intent)
			assert.Equal(t, tc.transcript, got.RawTranscript)
			if tc.want == domain.IntentUnknown {
				assert.Zero(t, got.Confidence)
			} else {
				assert.Greater(t, got.Confidence, 0.0)
			}
		})
	}
}

func TestClassifyPriorityBeatsDeclarationOrder(t *testing.T) {
	t.Parallel()

	// Matches both timer-stop and stop-speaking; timer-stop has higher priority.
	assert.Equal(t, domain.IntentTimerStop, Classify("stop the timer and stop talking").Intent)
	// Matches temperature and next-step; temperature has higher priority.
	assert.Equal(t, domain.IntentTemperatureQuery, Classify("next what temperature").Intent)
}

func TestRulesSortedByDescendingPriority(t *testing.T) {
	t.Parallel()

	for i := 1; i < len(rules); i++ {
		assert.GreaterOrEqual(t, rules[i-1].priority, rules[i].priority)
	}
	assert.Equal(t, domain.IntentTimerCheck, rules[2].intent, "ties keep declaration order")
	assert.Equal(t, domain.IntentStopSpeaking, rules[3].intent)
}

func TestClassifyExtractsParams(t *testing.T) {
	t.Parallel()

	result := Classify("set a timer for one minute thirty seconds")
	assert.Equal(t, 90*time.Second, result.Params.Duration)

	assert.Equal(t, "flour", Classify("How much flour?").Params.Subject)
	assert.Equal(t, "eggs", Classify("how many eggs do I need").Params.Subject)
	assert.Equal(t, "brown sugar", Classify("how much of the brown sugar goes in").Params.Subject)
	assert.Equal(t, "butter", Classify("what amount of butter").Params.Subject)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Duration{
		"5 minutes":                        5 * time.Minute,
		"ten minutes":                      10 * time.Minute,
		"twenty five minutes":              25 * time.Minute,
		"one minute thirty seconds":        90 * time.Second,
		"90 seconds":                       90 * time.Second,
		"an hour":                          time.Hour,
		"half an hour":                     30 * time.Minute,
		"two and a half minutes":           150 * time.Second,
		"a minute and a half":              90 * time.Second,
		"1 hour and 15 minutes":            75 * time.Minute,
		"1.5 hours":                        90 * time.Minute,
		"set a timer for 12":               12 * time.Minute,
		"set a timer":                      0,
		"set a timer for a few minutes":    3 * time.Minute,
		"set a timer for 3074457345 hours": MaxDuration,
		"200000000000 minutes":             MaxDuration,
		"24 hours":                         MaxDuration,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseDuration(input), input)
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1 minute 30 seconds", FormatDuration(90*time.Second))
	assert.Equal(t, "2 hours", FormatDuration(2*time.Hour))
	assert.Equal(t, "0 seconds", FormatDuration(0))
}

func TestClassifierAppliesSubstitutions(t *testing.T) {
	t.Parallel()

	subs, err := ParseSubstitutions(BuiltinSubstitutions, 10, nil)
	if err != nil {
		t.Fatalf("parse builtin substitutions: %v", err)
	}
	result := NewClassifier(subs).Classify("set a timer for 5 mins")
	assert.Equal(t, domain.IntentTimerSet, result.Intent)
	assert.Equal(t, 5*time.Minute, result.Params.Duration)
	assert.Equal(t, "set a timer for 5 mins", result.RawTranscript)
}
