package usecase

import (
	"errors"
	"testing"

	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
)

func TestTranscriptFinalizerRejectsNoise(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	guide := cooking.NewGuide(nil)
	guide.SetRecipe(testRecipe)
	f := newTranscriptFinalizer(intent.NewClassifier(nil), guide, events, 2)

	_, response, err := f.Finalize("  k ")
	if !errors.Is(err, errNoise) {
		t.Fatalf("expected noise, got %v", err)
	}
	if response != "" {
		t.Fatalf("noise must not produce a response: %q", response)
	}
	if guide.Step() != 0 {
		t.Fatalf("noise moved the cursor")
	}
	if len(events.snapshotResponses()) != 0 {
		t.Fatalf("noise must not emit a response")
	}
}

func TestTranscriptFinalizerAdvancesGuide(t *testing.T) {
	t.Parallel()

	events := &fakeEventSink{}
	guide := cooking.NewGuide(nil)
	guide.SetRecipe(testRecipe)
	f := newTranscriptFinalizer(intent.NewClassifier(nil), guide, events, 2)

	result, response, err := f.Finalize("what's next")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != domain.IntentNextStep {
		t.Fatalf("unexpected intent: %s", result.Intent)
	}
	if response != "Step 2. Add eggs and milk." {
		t.Fatalf("unexpected response: %q", response)
	}
	if transcripts := events.snapshotTranscripts(); len(transcripts) != 1 || transcripts[0] != "what's next" {
		t.Fatalf("unexpected transcripts: %q", transcripts)
	}
}
