package intent

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var unitSeconds = map[string]float64{
	"hour": 3600, "hours": 3600, "hr": 3600, "hrs": 3600,
	"minute": 60, "minutes": 60, "min": 60, "mins": 60,
	"second": 1, "seconds": 1, "sec": 1, "secs": 1,
}

var smallNumbers = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"couple": 2, "few": 3,
}

// MaxDuration caps spoken timer lengths.
const MaxDuration = 24 * time.Hour

var tens = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// ParseDuration extracts a spoken duration such as "one minute thirty
// seconds", "half an hour" or "2 and a half minutes". A bare number is read
// as minutes. It returns zero when no duration is present.
func ParseDuration(text string) time.Duration {
	tokens := strings.Fields(Normalize(text))

	var total, lastUnit float64
	value := -1.0
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if unit, ok := unitSeconds[tok]; ok {
			if value >= 0 {
				total += value * unit
				lastUnit = unit
				value = -1
			}
			continue
		}

		if tok == "half" && i+2 < len(tokens) && isArticle(tokens[i+1]) {
			if unit, ok := unitSeconds[tokens[i+2]]; ok {
				total += 0.5 * unit
				lastUnit = unit
				value = -1
				i += 2
				continue
			}
		}

		if tok == "and" && i+2 < len(tokens) && isArticle(tokens[i+1]) && tokens[i+2] == "half" {
			switch {
			case value >= 0:
				value += 0.5
			case lastUnit > 0:
				total += 0.5 * lastUnit
			}
			i += 2
			continue
		}

		if n, consumed, ok := parseNumber(tokens[i:]); ok {
			value = n
			i += consumed - 1
		}
	}

	if total == 0 && value > 0 {
		total = value * 60
	}
	if total >= MaxDuration.Seconds() {
		return MaxDuration
	}
	return time.Duration(math.Round(total)) * time.Second
}

func parseNumber(tokens []string) (float64, int, bool) {
	tok := tokens[0]
	if v, err := strconv.ParseFloat(tok, 64); err == nil && v >= 0 {
		return v, 1, true
	}
	if isArticle(tok) {
		if len(tokens) > 1 {
			if _, ok := unitSeconds[tokens[1]]; ok {
				return 1, 1, true
			}
		}
		return 0, 0, false
	}
	if v, ok := smallNumbers[tok]; ok {
		return v, 1, true
	}
	if v, ok := tens[tok]; ok {
		if len(tokens) > 1 {
			if ones, ok := smallNumbers[tokens[1]]; ok && ones > 0 && ones < 10 {
				return v + ones, 2, true
			}
		}
		return v, 1, true
	}
	return 0, 0, false
}

func isArticle(tok string) bool {
	return tok == "a" || tok == "an"
}

// FormatDuration renders d the way it is spoken back to the cook.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	parts := make([]string, 0, 3)
	if h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	if s > 0 {
		parts = append(parts, plural(s, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
