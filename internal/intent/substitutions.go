package intent

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// BuiltinSubstitutions repair recurring speech-to-text slips in kitchen commands.
const BuiltinSubstitutions = `
# literal repairs are whole-word and case-insensitive
next stab => next step
next up => next step
previous stab => previous step
tbsp => tablespoon
tsp => teaspoon
s/\bmin(s)?\b/minutes/g
s/\bsec(s)?\b/seconds/g
s/\bhr(s)?\b/hours/g
`

type substitution interface {
	Apply(input string) (output string, changed bool)
}

// SubstitutionParser parses one line into a substitution.
type SubstitutionParser interface {
	CanParse(line string) bool
	Parse(line string) (substitution, error)
}

// Substitutions rewrites transcripts before classification.
type Substitutions struct {
	rules     []substitution
	loopLimit int
}

// LoadSubstitutions compiles the builtin repairs followed by the rules in path.
// A missing file is not an error.
func LoadSubstitutions(path string, loopLimit int) (*Substitutions, error) {
	contents := BuiltinSubstitutions
	if strings.TrimSpace(path) != "" {
		extra, err := os.ReadFile(path)
		switch {
		case err == nil:
			contents += "\n" + string(extra)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read substitutions file %q: %w", path, err)
		}
	}

	subs, err := ParseSubstitutions(contents, loopLimit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse substitutions %q: %w", path, err)
	}
	return subs, nil
}

// ParseSubstitutions compiles rules from text. Parsers extend the defaults.
func ParseSubstitutions(contents string, loopLimit int, parsers []SubstitutionParser) (*Substitutions, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	parsers = append(parsers, defaultParsers()...)

	rules, err := parseLines(contents, parsers)
	if err != nil {
		return nil, err
	}
	return &Substitutions{rules: rules, loopLimit: loopLimit}, nil
}

// Apply rewrites text until no rule changes it or the loop limit is hit.
func (s *Substitutions) Apply(text string) string {
	if s == nil || len(s.rules) == 0 {
		return text
	}

	result := text
	for i := 0; i < s.loopLimit; i++ {
		changed := false
		for _, rule := range s.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

// Len returns the number of compiled rules.
func (s *Substitutions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

func parseLines(contents string, parsers []SubstitutionParser) ([]substitution, error) {
	lines := strings.Split(contents, "\n")
	rules := make([]substitution, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rule substitution
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			parsed, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rule = parsed
			break
		}
		if rule == nil {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func defaultParsers() []SubstitutionParser {
	return []SubstitutionParser{regexParser{}, wordParser{}}
}

type wordParser struct{}

func (wordParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (wordParser) Parse(line string) (substitution, error) {
	return parseWordRule(line)
}

type regexParser struct{}

func (regexParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}

func (regexParser) Parse(line string) (substitution, error) {
	return parseRegexRule(line)
}

type wordRule struct {
	replacement string
	re          *regexp.Regexp
}

func parseWordRule(line string) (substitution, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid word rule")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("word rule source cannot be empty")
	}

	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid word rule source: %w", err)
	}
	return wordRule{replacement: to, re: re}, nil
}

func (r wordRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (substitution, error) {
	delim := line[1]
	pattern, pos, err := readDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := readDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	flags := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			flags += string(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + flags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func readDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			escaped = false
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		default:
			builder.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t' || char == '_'
}
