package usecase

import (
	"errors"
	"strings"
	"unicode/utf8"

	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
	"nomvoice/internal/ports"
)

var errNoise = errors.New("transcript too short")

// transcriptFinalizer turns a raw transcript into an intent and the guide's
// spoken answer.
type transcriptFinalizer struct {
	classifier    *intent.Classifier
	guide         *cooking.Guide
	events        ports.EventSink
	minTranscript int
}

func newTranscriptFinalizer(classifier *intent.Classifier, guide *cooking.Guide, events ports.EventSink, minTranscript int) transcriptFinalizer {
	if minTranscript <= 0 {
		minTranscript = 2
	}
	return transcriptFinalizer{classifier: classifier, guide: guide, events: events, minTranscript: minTranscript}
}

// Finalize returns errNoise for transcripts shorter than the minimum; the
// guide is left untouched in that case.
func (f transcriptFinalizer) Finalize(raw string) (domain.IntentResult, string, error) {
	text := strings.TrimSpace(raw)
	f.events.Transcript(text)
	if utf8.RuneCountInString(text) < f.minTranscript {
		return domain.IntentResult{RawTranscript: text}, "", errNoise
	}

	result := f.classifier.Classify(text)
	response := f.guide.Respond(result)
	f.events.Response(result, response)
	return result, response, nil
}
