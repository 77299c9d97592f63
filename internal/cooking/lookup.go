package cooking

import (
	"regexp"
	"strings"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "and": {}, "or": {}, "to": {}, "for": {},
	"cup": {}, "cups": {}, "tablespoon": {}, "tablespoons": {}, "teaspoon": {}, "teaspoons": {},
	"gram": {}, "grams": {}, "ounce": {}, "ounces": {}, "pound": {}, "pounds": {},
	"some": {}, "any": {}, "fresh": {}, "large": {}, "small": {}, "medium": {},
}

// FindIngredients returns ingredient lines matching subject. An exact
// substring pass runs first; a word-overlap pass runs only when it finds
// nothing.
func FindIngredients(ingredients []string, subject string) []string {
	needle := strings.ToLower(strings.TrimSpace(subject))
	if needle == "" {
		return nil
	}

	var matches []string
	for _, line := range ingredients {
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, strings.TrimSpace(line))
		}
	}
	if len(matches) > 0 {
		return matches
	}

	words := contentWords(needle)
	if len(words) == 0 {
		return nil
	}
	for _, line := range ingredients {
		lineWords := contentWords(strings.ToLower(line))
		for word := range words {
			if _, ok := lineWords[word]; ok {
				matches = append(matches, strings.TrimSpace(line))
				break
			}
		}
	}
	return matches
}

var wordPattern = regexp.MustCompile(`[a-z]+`)

func contentWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(text, -1) {
		if _, skip := stopWords[word]; skip || len(word) < 3 {
			continue
		}
		out[word] = struct{}{}
		out[singular(word)] = struct{}{}
	}
	return out
}

func singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "oes") && len(word) > 4:
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && len(word) > 3:
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}

var temperaturePattern = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:°|º|degrees?\b|deg\b)\s*(c\b|f\b|celsius|fahrenheit)?|\b(low|medium[- ]low|medium[- ]high|medium|high) heat\b`)

// FindTemperature scans the current step, then every step, for a temperature.
func FindTemperature(instructions []string, current int) (string, bool) {
	order := make([]int, 0, len(instructions)+1)
	if current >= 0 && current < len(instructions) {
		order = append(order, current)
	}
	for i := range instructions {
		if i != current {
			order = append(order, i)
		}
	}
	for _, i := range order {
		if m := temperaturePattern.FindStringSubmatch(instructions[i]); m != nil {
			return describeTemperature(m), true
		}
	}
	return "", false
}

func describeTemperature(m []string) string {
	if m[1] == "" {
		return strings.ToLower(m[3]) + " heat"
	}
	unit := strings.ToLower(m[2])
	switch unit {
	case "c", "celsius":
		return m[1] + " degrees Celsius"
	case "f", "fahrenheit":
		return m[1] + " degrees Fahrenheit"
	default:
		return m[1] + " degrees"
	}
}
