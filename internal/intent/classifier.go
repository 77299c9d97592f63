package intent

import "nomvoice/internal/domain"

// Classifier repairs transcripts with substitutions, then classifies them.
// RawTranscript keeps the original text.
type Classifier struct {
	subs *Substitutions
}

func NewClassifier(subs *Substitutions) *Classifier {
	return &Classifier{subs: subs}
}

func (c *Classifier) Classify(transcript string) domain.IntentResult {
	result := Classify(c.subs.Apply(transcript))
	result.RawTranscript = transcript
	return result
}
