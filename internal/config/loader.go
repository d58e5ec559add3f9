// Package config loads and validates pipeline definitions from YAML.
//
// The document is parsed once, at trigger time. Any malformation is a
// domain.ConfigError: fatal, pre-flight, and guaranteed to abort before any
// job starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// document mirrors the YAML surface. Matrix is kept as a raw node because
// axis declaration order is significant and Go maps would lose it.
type document struct {
	Name   string            `yaml:"name"`
	On     onEvents          `yaml:"on"`
	Matrix yaml.Node         `yaml:"matrix"`
	Env    map[string]string `yaml:"env"`
	Stages []stageDoc        `yaml:"stages"`
}

type stageDoc struct {
	Name    string            `yaml:"name"`
	Run     string            `yaml:"run"`
	Setup   string            `yaml:"setup"`
	Env     map[string]string `yaml:"env"`
	Secrets []string          `yaml:"secrets"`
}

// onEvents accepts both "on: push" and "on: [push, tag]".
type onEvents []string

func (o *onEvents) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*o = []string{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*o = list
		return nil
	default:
		return fmt.Errorf("'on' must be a string or a list of strings")
	}
}

// Load reads and validates a pipeline file.
func Load(path string) (*domain.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Msg: "cannot read pipeline file", Err: err}
	}

	def, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// Parse decodes and validates YAML content into a Definition.
func Parse(data []byte) (*domain.Definition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ConfigError{Msg: "cannot parse YAML", Err: err}
	}

	axes, err := parseMatrix(&doc.Matrix)
	if err != nil {
		return nil, err
	}

	def := &domain.Definition{
		Name: doc.Name,
		On:   doc.On,
		Axes: axes,
		Env:  doc.Env,
	}
	for _, s := range doc.Stages {
		def.Stages = append(def.Stages, domain.Stage{
			Name:    s.Name,
			Run:     s.Run,
			Setup:   s.Setup,
			Env:     s.Env,
			Secrets: s.Secrets,
		})
	}

	if err := validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func parseMatrix(node *yaml.Node) ([]domain.Axis, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &domain.ConfigError{Msg: "'matrix' must be a mapping of axis names to value lists"}
	}

	var axes []domain.Axis
	// Mapping nodes hold alternating key/value children, in declaration
	// order. That order decides job expansion order.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		axis := domain.Axis{Name: key.Value}
		if val.Kind != yaml.SequenceNode {
			return nil, &domain.ConfigError{Msg: fmt.Sprintf("axis %q has no value list", axis.Name)}
		}
		for _, item := range val.Content {
			av, err := parseAxisValue(item)
			if err != nil {
				return nil, &domain.ConfigError{Msg: fmt.Sprintf("axis %q has an invalid value", axis.Name), Err: err}
			}
			axis.Values = append(axis.Values, av)
		}
		axes = append(axes, axis)
	}
	return axes, nil
}

func parseAxisValue(node *yaml.Node) (domain.AxisValue, error) {
	if node.Kind != yaml.ScalarNode {
		return domain.AxisValue{}, fmt.Errorf("axis values must be scalars")
	}
	switch node.Tag {
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return domain.AxisValue{}, err
		}
		return domain.IntValue(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return domain.AxisValue{}, err
		}
		return domain.FloatValue(f), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return domain.AxisValue{}, err
		}
		return domain.BoolValue(b), nil
	default:
		return domain.StringValue(node.Value), nil
	}
}

func validate(def *domain.Definition) error {
	if len(def.On) == 0 {
		return &domain.ConfigError{Msg: "'on' must list at least one trigger event"}
	}
	if len(def.Stages) == 0 {
		return &domain.ConfigError{Msg: "'stages' must list at least one stage"}
	}

	seen := make(map[string]bool, len(def.Stages))
	for i, s := range def.Stages {
		if s.Name == "" {
			return &domain.ConfigError{Msg: fmt.Sprintf("stage %d has no name", i)}
		}
		if seen[s.Name] {
			return &domain.ConfigError{Msg: fmt.Sprintf("duplicate stage name %q", s.Name)}
		}
		seen[s.Name] = true

		hasRun := s.Run != ""
		hasSetup := s.Setup != ""
		if hasRun == hasSetup {
			return &domain.ConfigError{Msg: fmt.Sprintf("stage %q must set exactly one of 'run' or 'setup'", s.Name)}
		}
	}

	axes := make(map[string]bool, len(def.Axes))
	for _, a := range def.Axes {
		if axes[a.Name] {
			return &domain.ConfigError{Msg: fmt.Sprintf("duplicate axis %q", a.Name)}
		}
		axes[a.Name] = true
	}
	return nil
}
