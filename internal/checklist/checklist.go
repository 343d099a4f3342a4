// Package checklist loads the static, ordered list of inspection questions.
package checklist

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed checklist.yaml
var defaultYAML []byte

// ErrEmpty is returned when a definition has no questions.
var ErrEmpty = errors.New("checklist has no questions")

// Definition is the ordered set of question texts every inspection is seeded from.
type Definition struct {
	Title     string   `yaml:"title"`
	Questions []string `yaml:"questions"`
}

// Default returns the built-in foundation inspection checklist.
func Default() Definition {
	def, err := Parse(defaultYAML)
	if err != nil {
		panic("checklist: invalid embedded definition: " + err.Error())
	}
	return def
}

// Load reads a definition from a YAML file. An empty path yields Default().
func Load(path string) (Definition, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("decode checklist: %w", err)
	}
	def.Title = strings.TrimSpace(def.Title)
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks that the definition has at least one non-blank question.
func (d Definition) Validate() error {
	if len(d.Questions) == 0 {
		return ErrEmpty
	}
	for i, q := range d.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("question %d is blank", i+1)
		}
	}
	return nil
}

// Len returns the number of questions.
func (d Definition) Len() int {
	return len(d.Questions)
}
