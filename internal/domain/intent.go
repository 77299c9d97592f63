package domain

import "time"

// VoiceIntent is the classified meaning of a spoken command.
type VoiceIntent string

const (
	IntentTimerSet         VoiceIntent = "TIMER_SET"
	IntentTimerCheck       VoiceIntent = "TIMER_CHECK"
	IntentTimerStop        VoiceIntent = "TIMER_STOP"
	IntentNextStep         VoiceIntent = "NEXT_STEP"
	IntentPreviousStep     VoiceIntent = "PREVIOUS_STEP"
	IntentRepeatStep       VoiceIntent = "REPEAT_STEP"
	IntentRestart          VoiceIntent = "RESTART"
	IntentIngredientQuery  VoiceIntent = "INGREDIENT_QUERY"
	IntentTemperatureQuery VoiceIntent = "TEMPERATURE_QUERY"
	IntentReadIngredients  VoiceIntent = "READ_INGREDIENTS"
	IntentStopSpeaking     VoiceIntent = "STOP_SPEAKING"
	IntentPause            VoiceIntent = "PAUSE"
	IntentHelp             VoiceIntent = "HELP"
	IntentUnknown          VoiceIntent = "UNKNOWN"
)

// IntentParams carries values extracted from the transcript.
type IntentParams struct {
	Duration time.Duration `json:"duration,omitempty"`
	Subject  string        `json:"subject,omitempty"`
}

// IntentResult is produced once per command and never persisted.
type IntentResult struct {
	Intent        VoiceIntent  `json:"intent"`
	Confidence    float64      `json:"confidence"`
	Params        IntentParams `json:"params"`
	RawTranscript string       `json:"rawTranscript"`
}

// Recipe is the read-only projection supplied by the hosting screen.
type Recipe struct {
	Title        string   `json:"title" yaml:"title"`
	Ingredients  []string `json:"ingredients" yaml:"ingredients"`
	Instructions []string `json:"instructions" yaml:"instructions"`
}
