package cooking

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nomvoice/internal/domain"
)

type recipeFile struct {
	Title        string           `yaml:"title"`
	Ingredients  []ingredientLine `yaml:"ingredients"`
	Instructions []instruction    `yaml:"instructions"`
}

// ingredientLine accepts a plain string or {raw_text, name, quantity, unit}.
type ingredientLine struct {
	text string
}

func (l *ingredientLine) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		l.text = strings.TrimSpace(node.Value)
		return nil
	}
	var obj struct {
		RawText  string `yaml:"raw_text"`
		Name     string `yaml:"name"`
		Quantity string `yaml:"quantity"`
		Unit     string `yaml:"unit"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	if text := strings.TrimSpace(obj.RawText); text != "" {
		l.text = text
		return nil
	}
	l.text = strings.Join(strings.Fields(strings.Join([]string{obj.Quantity, obj.Unit, obj.Name}, " ")), " ")
	return nil
}

// instruction accepts a plain string or {text} / {step, text}.
type instruction struct {
	text string
}

func (i *instruction) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		i.text = strings.TrimSpace(node.Value)
		return nil
	}
	var obj struct {
		Text        string `yaml:"text"`
		Instruction string `yaml:"instruction"`
	}
	if err := node.Decode(&obj); err != nil {
		return err
	}
	i.text = strings.TrimSpace(obj.Text)
	if i.text == "" {
		i.text = strings.TrimSpace(obj.Instruction)
	}
	return nil
}

// LoadRecipe reads a recipe projection from a YAML or JSON file.
func LoadRecipe(path string) (domain.Recipe, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to read recipe %q: %w", path, err)
	}
	recipe, err := ParseRecipe(contents)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("failed to parse recipe %q: %w", path, err)
	}
	return recipe, nil
}

// ParseRecipe decodes a recipe projection; JSON is accepted as YAML.
func ParseRecipe(contents []byte) (domain.Recipe, error) {
	var file recipeFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return domain.Recipe{}, err
	}

	recipe := domain.Recipe{Title: strings.TrimSpace(file.Title)}
	for _, line := range file.Ingredients {
		if line.text != "" {
			recipe.Ingredients = append(recipe.Ingredients, line.text)
		}
	}
	for _, step := range file.Instructions {
		if step.text != "" {
			recipe.Instructions = append(recipe.Instructions, step.text)
		}
	}
	if len(recipe.Instructions) == 0 {
		return domain.Recipe{}, errors.New("recipe has no instructions")
	}
	return recipe, nil
}
