package cooking

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomvoice/internal/domain"
)

func pancakes() domain.Recipe {
	return domain.Recipe{
		Title: "Pancakes",
		Ingredients: []string{
			"2 cups all-purpose flour",
			"2 large eggs",
			"1 cup milk",
			"1 tablespoon brown sugar",
			"1 teaspoon white sugar",
		},
		Instructions: []string{
			"Whisk the flour and sugar.",
			"Add eggs and milk.",
			"Cook on medium heat until golden.",
		},
	}
}

func TestGuideStepNavigation(t *testing.T) {
	t.Parallel()

	g := NewGuide(nil)
	assert.Equal(t, NoRecipeResponse, g.Respond(domain.IntentResult{Intent: domain.IntentNextStep}))

	g.SetRecipe(pancakes())
	assert.Equal(t, "Step 2. Add eggs and milk.", g.Respond(domain.IntentResult{Intent: domain.IntentNextStep}))
	assert.Equal(t, 1, g.Step())
	assert.Equal(t, "Step 2. Add eggs and milk.", g.Respond(domain.IntentResult{Intent: domain.IntentRepeatStep}))
	assert.Equal(t, "Last step. Cook on medium heat until golden.", g.Respond(domain.IntentResult{Intent: domain.IntentNextStep}))
	assert.Equal(t, LastStepResponse, g.Respond(domain.IntentResult{Intent: domain.IntentNextStep}))
	assert.Equal(t, 2, g.Step())
	assert.Equal(t, "Step 2. Add eggs and milk.", g.Respond(domain.IntentResult{Intent: domain.IntentPreviousStep}))
	assert.Equal(t, "Step 1. Whisk the flour and sugar.", g.Respond(domain.IntentResult{Intent: domain.IntentRestart}))
	assert.Contains(t, g.Respond(domain.IntentResult{Intent: domain.IntentPreviousStep}), FirstStepResponse)
}

func TestIngredientLookupShapes(t *testing.T) {
	t.Parallel()

	g := NewGuide(nil)
	g.SetRecipe(pancakes())

	ask := func(subject string) string {
		return g.Respond(domain.IntentResult{Intent: domain.IntentIngredientQuery, Params: domain.IntentParams{Subject: subject}})
	}

	assert.Equal(t, "You need 2 cups all-purpose flour.", ask("flour"))
	assert.Equal(t, "I found 2 matches: 1 tablespoon brown sugar and 1 teaspoon white sugar.", ask("sugar"))
	assert.Equal(t, "I couldn't find butter in the ingredients.", ask("butter"))
	assert.Equal(t, "You need 2 large eggs.", ask("egg"))
}

func TestFindIngredientsWordOverlapFallback(t *testing.T) {
	t.Parallel()

	ingredients := pancakes().Ingredients
	assert.Equal(t, []string{"1 cup milk"}, FindIngredients(ingredients, "whole milk"))
	assert.Equal(t, []string{"2 large eggs"}, FindIngredients(ingredients, "the eggs"))
	assert.Empty(t, FindIngredients(ingredients, "cups of"))
	assert.Equal(t, []string{"1 tablespoon brown sugar", "1 teaspoon white sugar"}, FindIngredients(ingredients, "brown sugars"))
}

func TestFindTemperaturePrefersCurrentStep(t *testing.T) {
	t.Parallel()

	steps := []string{"Preheat the oven to 350°F.", "Mix.", "Bake at 180 degrees C for 20 minutes."}
	got, ok := FindTemperature(steps, 2)
	require.True(t, ok)
	assert.Equal(t, "180 degrees Celsius", got)

	got, ok = FindTemperature(steps, 1)
	require.True(t, ok)
	assert.Equal(t, "350 degrees Fahrenheit", got)

	got, ok = FindTemperature([]string{"Cook on medium-high heat."}, 0)
	require.True(t, ok)
	assert.Equal(t, "medium-high heat", got)

	_, ok = FindTemperature([]string{"Serve."}, 0)
	assert.False(t, ok)
}

func TestGuideTimerLifecycle(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var fired []time.Duration
	g := NewGuide(func(d time.Duration) {
		mu.Lock()
		fired = append(fired, d)
		mu.Unlock()
	})

	assert.Equal(t, TimerNeedsDuration, g.Respond(domain.IntentResult{Intent: domain.IntentTimerSet}))
	assert.Equal(t, NoTimerResponse, g.Respond(domain.IntentResult{Intent: domain.IntentTimerCheck}))

	assert.Equal(t, "Timer set for 5 minutes.", g.StartTimer(5*time.Minute))
	remaining, ok := g.TimerRemaining()
	require.True(t, ok)
	assert.InDelta(t, (5 * time.Minute).Seconds(), remaining.Seconds(), 1)
	assert.Contains(t, g.Respond(domain.IntentResult{Intent: domain.IntentTimerCheck}), "left on the timer")
	assert.Equal(t, "Timer cancelled.", g.Respond(domain.IntentResult{Intent: domain.IntentTimerStop}))

	g.StartTimer(10 * time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	_, ok = g.TimerRemaining()
	assert.False(t, ok)
	assert.Equal(t, "Your 10 seconds timer is done.", TimerDoneText(10*time.Second))
}

func TestGuideFixedResponses(t *testing.T) {
	t.Parallel()

	g := NewGuide(nil)
	g.SetRecipe(pancakes())
	assert.Equal(t, HelpResponse, g.Respond(domain.IntentResult{Intent: domain.IntentHelp}))
	assert.Equal(t, PauseResponse, g.Respond(domain.IntentResult{Intent: domain.IntentPause}))
	assert.Equal(t, UnknownResponse, g.Respond(domain.IntentResult{Intent: domain.IntentUnknown}))
	assert.Empty(t, g.Respond(domain.IntentResult{Intent: domain.IntentStopSpeaking}))
	assert.Equal(t, "The recipe says medium heat.", g.Respond(domain.IntentResult{Intent: domain.IntentTemperatureQuery}))
	assert.Contains(t, g.Respond(domain.IntentResult{Intent: domain.IntentReadIngredients}), "You'll need 2 cups all-purpose flour, 2 large eggs")
	assert.Len(t, g.StepTexts(), 3)
}

func TestLoadRecipeAcceptsStringsAndObjects(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "soup.yaml")
	contents := `
title: Tomato Soup
ingredients:
  - 4 tomatoes
  - raw_text: 1 onion, diced
    name: onion
  - name: salt
    quantity: "1"
    unit: pinch
instructions:
  - Chop everything.
  - text: Simmer for 20 minutes.
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	recipe, err := LoadRecipe(path)
	require.NoError(t, err)
	assert.Equal(t, "Tomato Soup", recipe.Title)
	assert.Equal(t, []string{"4 tomatoes", "1 onion, diced", "1 pinch salt"}, recipe.Ingredients)
	assert.Equal(t, []string{"Chop everything.", "Simmer for 20 minutes."}, recipe.Instructions)
}

func TestParseRecipeAcceptsJSON(t *testing.T) {
	t.Parallel()

	recipe, err := ParseRecipe([]byte(`{"title":"Toast","ingredients":["bread"],"instructions":["Toast the bread."]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Toast the bread."}, recipe.Instructions)

	_, err = ParseRecipe([]byte(`{"title":"Empty"}`))
	assert.Error(t, err)
}
