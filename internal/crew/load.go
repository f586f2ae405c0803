package crew

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed world_economics.yaml
var defaultCrewYAML []byte

// Default returns the embedded world-economics crew. It panics if the
// embedded file is invalid, which a package test guards against.
func Default() *Crew {
	c, err := Parse(defaultCrewYAML)
	if err != nil {
		panic(fmt.Sprintf("crew: embedded config invalid: %v", err))
	}
	return c
}

// Load reads and validates a crew YAML file. knownTools, when non-empty,
// restricts the tool names agents may reference.
func Load(path string, knownTools ...string) (*Crew, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("crew: empty config path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crew: read %s: %w", path, err)
	}
	c, err := Parse(raw, knownTools...)
	if err != nil {
		return nil, fmt.Errorf("crew: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML strictly (unknown keys are errors), trims the folded
// text blocks and validates the result.
func Parse(raw []byte, knownTools ...string) (*Crew, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var c Crew
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	normalize(&c)
	if err := Validate(&c, knownTools...); err != nil {
		return nil, err
	}
	return &c, nil
}

func normalize(c *Crew) {
	c.Name = strings.TrimSpace(c.Name)
	for i := range c.Inputs {
		c.Inputs[i] = strings.TrimSpace(c.Inputs[i])
	}
	for i := range c.Agents {
		a := &c.Agents[i]
		a.Name = strings.TrimSpace(a.Name)
		a.Role = strings.TrimSpace(a.Role)
		a.Goal = strings.TrimSpace(a.Goal)
		a.Backstory = strings.TrimSpace(a.Backstory)
		for j := range a.Tools {
			a.Tools[j] = strings.TrimSpace(a.Tools[j])
		}
	}
	for i := range c.Tasks {
		t := &c.Tasks[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Description = strings.TrimSpace(t.Description)
		t.ExpectedOutput = strings.TrimSpace(t.ExpectedOutput)
		t.Agent = strings.TrimSpace(t.Agent)
		t.OutputFile = strings.TrimSpace(t.OutputFile)
		for j := range t.Context {
			t.Context[j] = strings.TrimSpace(t.Context[j])
		}
	}
}
