// Package cooking tracks progress through a recipe and phrases spoken answers.
package cooking

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
)

// Phrases spoken back to the cook.
const (
	NoRecipeResponse    = "I don't have a recipe loaded yet."
	UnknownResponse     = "Sorry, I didn't catch that. Say help to hear what I can do."
	HelpResponse        = "You can say next step, go back, repeat, start over, read the ingredients, how much of an ingredient, what temperature, set a timer, or stop."
	PauseResponse       = "Okay, I'll wait. Say the wake word when you're ready."
	TimerNeedsDuration  = "How long should the timer be?"
	NoTimerResponse     = "There's no timer running."
	LastStepResponse    = "That was the last step. Enjoy your meal!"
	FirstStepResponse   = "You're already on the first step."
	NoTemperatureResult = "The recipe doesn't mention a temperature."
)

// Guide holds the step cursor and the single kitchen timer. The recipe itself
// is read-only.
type Guide struct {
	mu     sync.Mutex
	recipe domain.Recipe
	step   int

	timer       *time.Timer
	timerEnds   time.Time
	timerLength time.Duration
	onTimerDone func(time.Duration)
	now         func() time.Time
}

func NewGuide(onTimerDone func(time.Duration)) *Guide {
	return &Guide{onTimerDone: onTimerDone, now: time.Now}
}

// SetRecipe replaces the recipe and resets the cursor.
func (g *Guide) SetRecipe(recipe domain.Recipe) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recipe = recipe
	g.step = 0
}

// Recipe returns the current recipe projection.
func (g *Guide) Recipe() domain.Recipe {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recipe
}

// Step returns the zero-based cursor.
func (g *Guide) Step() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.step
}

// Respond applies result to the guide and returns the text to speak. Empty
// text means nothing should be spoken.
func (g *Guide) Respond(result domain.IntentResult) string {
	switch result.Intent {
	case domain.IntentNextStep:
		return g.move(1)
	case domain.IntentPreviousStep:
		return g.move(-1)
	case domain.IntentRepeatStep:
		return g.move(0)
	case domain.IntentRestart:
		g.mu.Lock()
		g.step = 0
		g.mu.Unlock()
		return g.move(0)
	case domain.IntentReadIngredients:
		return g.readIngredients()
	case domain.IntentIngredientQuery:
		return g.ingredientAnswer(result.Params.Subject)
	case domain.IntentTemperatureQuery:
		return g.temperatureAnswer()
	case domain.IntentTimerSet:
		return g.StartTimer(result.Params.Duration)
	case domain.IntentTimerCheck:
		return g.timerStatus()
	case domain.IntentTimerStop:
		return g.StopTimer()
	case domain.IntentPause:
		return PauseResponse
	case domain.IntentHelp:
		return HelpResponse
	case domain.IntentStopSpeaking:
		return ""
	default:
		return UnknownResponse
	}
}

// StepTexts returns every phrase the guide may speak for the recipe's steps,
// for cache warming.
func (g *Guide) StepTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	texts := make([]string, 0, len(g.recipe.Instructions))
	for i := range g.recipe.Instructions {
		texts = append(texts, g.stepTextLocked(i))
	}
	return texts
}

func (g *Guide) move(delta int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	total := len(g.recipe.Instructions)
	if total == 0 {
		return NoRecipeResponse
	}
	next := g.step + delta
	switch {
	case next >= total:
		return LastStepResponse
	case next < 0:
		return FirstStepResponse + " " + g.stepTextLocked(0)
	}
	g.step = next
	return g.stepTextLocked(next)
}

func (g *Guide) stepTextLocked(index int) string {
	total := len(g.recipe.Instructions)
	text := strings.TrimSpace(g.recipe.Instructions[index])
	if index == total-1 && total > 1 {
		return fmt.Sprintf("Last step. %s", text)
	}
	return fmt.Sprintf("Step %d. %s", index+1, text)
}

func (g *Guide) readIngredients() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.recipe.Ingredients) == 0 {
		if len(g.recipe.Instructions) == 0 {
			return NoRecipeResponse
		}
		return "This recipe doesn't list any ingredients."
	}
	return "You'll need " + joinList(g.recipe.Ingredients) + "."
}

func (g *Guide) ingredientAnswer(subject string) string {
	g.mu.Lock()
	ingredients := g.recipe.Ingredients
	g.mu.Unlock()

	if strings.TrimSpace(subject) == "" {
		return "Which ingredient do you want to know about?"
	}
	matches := FindIngredients(ingredients, subject)
	switch len(matches) {
	case 0:
		return fmt.Sprintf("I couldn't find %s in the ingredients.", subject)
	case 1:
		return fmt.Sprintf("You need %s.", matches[0])
	default:
		return fmt.Sprintf("I found %d matches: %s.", len(matches), joinList(matches))
	}
}

func (g *Guide) temperatureAnswer() string {
	g.mu.Lock()
	instructions := g.recipe.Instructions
	step := g.step
	g.mu.Unlock()

	if len(instructions) == 0 {
		return NoRecipeResponse
	}
	if temp, ok := FindTemperature(instructions, step); ok {
		return fmt.Sprintf("The recipe says %s.", temp)
	}
	return NoTemperatureResult
}

// StartTimer replaces any running timer.
func (g *Guide) StartTimer(d time.Duration) string {
	if d <= 0 {
		return TimerNeedsDuration
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.timerLength = d
	g.timerEnds = g.now().Add(d)
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		g.mu.Lock()
		if g.timer != timer {
			g.mu.Unlock()
			return
		}
		g.timer = nil
		g.mu.Unlock()
		if g.onTimerDone != nil {
			g.onTimerDone(d)
		}
	})
	g.timer = timer
	return fmt.Sprintf("Timer set for %s.", intent.FormatDuration(d))
}

// StopTimer cancels the running timer.
func (g *Guide) StopTimer() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer == nil {
		return NoTimerResponse
	}
	g.timer.Stop()
	g.timer = nil
	return "Timer cancelled."
}

// TimerRemaining reports the time left on the running timer.
func (g *Guide) TimerRemaining() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer == nil {
		return 0, false
	}
	return max(g.timerEnds.Sub(g.now()), 0), true
}

func (g *Guide) timerStatus() string {
	remaining, ok := g.TimerRemaining()
	if !ok {
		return NoTimerResponse
	}
	return fmt.Sprintf("%s left on the timer.", intent.FormatDuration(remaining.Round(time.Second)))
}

// Close stops the timer without firing it.
func (g *Guide) Close() {
	g.StopTimer()
}

// TimerDoneText is spoken when a timer fires.
func TimerDoneText(d time.Duration) string {
	return fmt.Sprintf("Your %s timer is done.", intent.FormatDuration(d))
}

func joinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	switch len(clean) {
	case 0:
		return ""
	case 1:
		return clean[0]
	case 2:
		return clean[0] + " and " + clean[1]
	default:
		return strings.Join(clean[:len(clean)-1], ", ") + ", and " + clean[len(clean)-1]
	}
}
