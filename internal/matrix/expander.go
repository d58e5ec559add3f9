// Package matrix expands a pipeline's axis declarations into concrete job
// specifications, one per combination, and resolves matrix placeholders in
// stage definitions.
package matrix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// placeholderRe matches ${{ matrix.<axis> }} references in stage strings.
var placeholderRe = regexp.MustCompile(`\$\{\{\s*matrix\.([A-Za-z0-9_.-]+)\s*\}\}`)

// Expand produces the Cartesian product of the definition's axes as an
// ordered sequence of JobSpecs. Declared axis order is preserved and the
// last axis varies fastest, so expansion is deterministic. Any axis with an
// empty value list yields zero jobs; a definition with no axes yields a
// single "default" job.
func Expand(def *domain.Definition) ([]domain.JobSpec, error) {
	declared := make(map[string]bool, len(def.Axes))
	for _, axis := range def.Axes {
		if axis.Name == "" {
			return nil, &domain.ConfigError{Msg: "matrix axis with empty name"}
		}
		declared[axis.Name] = true
	}

	// Dangling references are pre-flight errors even when an empty axis
	// collapses the product to zero jobs.
	if err := checkReferences(def, declared); err != nil {
		return nil, err
	}

	for _, axis := range def.Axes {
		if len(axis.Values) == 0 {
			// Documented edge case: an empty axis collapses the whole
			// product to nothing. Not an error.
			return []domain.JobSpec{}, nil
		}
	}

	bindings := make([]domain.Binding, len(def.Axes))
	var specs []domain.JobSpec

	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(def.Axes) {
			spec, err := specialize(def, bindings)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
			return nil
		}
		axis := def.Axes[depth]
		for _, v := range axis.Values {
			bindings[depth] = domain.Binding{Axis: axis.Name, Value: v}
			if err := walk(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(0); err != nil {
		return nil, err
	}
	return specs, nil
}

// checkReferences verifies that every ${{ matrix.* }} placeholder in stage
// commands, setup directives, and env values names a declared axis.
func checkReferences(def *domain.Definition, declared map[string]bool) error {
	check := func(text string) error {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if !declared[m[1]] {
				return &domain.ConfigError{Msg: fmt.Sprintf("reference to undeclared matrix axis %q", m[1])}
			}
		}
		return nil
	}
	for _, s := range def.Stages {
		if err := check(s.Run); err != nil {
			return err
		}
		if err := check(s.Setup); err != nil {
			return err
		}
		for _, v := range s.Env {
			if err := check(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// specialize builds one JobSpec for a fixed set of bindings, resolving
// ${{ matrix.* }} placeholders in stage commands, setup directives, and
// stage env values.
func specialize(def *domain.Definition, bindings []domain.Binding) (domain.JobSpec, error) {
	bound := make([]domain.Binding, len(bindings))
	copy(bound, bindings)

	lookup := make(map[string]string, len(bound))
	for _, b := range bound {
		lookup[b.Axis] = b.Value.String()
	}

	stages := make([]domain.Stage, len(def.Stages))
	for i, s := range def.Stages {
		resolved := s

		var err error
		if resolved.Run, err = interpolate(s.Run, lookup); err != nil {
			return domain.JobSpec{}, err
		}
		if resolved.Setup, err = interpolate(s.Setup, lookup); err != nil {
			return domain.JobSpec{}, err
		}
		if len(s.Env) > 0 {
			resolved.Env = make(map[string]string, len(s.Env))
			for k, v := range s.Env {
				if resolved.Env[k], err = interpolate(v, lookup); err != nil {
					return domain.JobSpec{}, err
				}
			}
		}
		stages[i] = resolved
	}

	return domain.JobSpec{
		ID:       domain.JobID(bound),
		Bindings: bound,
		Stages:   stages,
	}, nil
}

func interpolate(s string, lookup map[string]string) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		axis := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := lookup[axis]
		if !ok {
			if missing == "" {
				missing = axis
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", &domain.ConfigError{Msg: fmt.Sprintf("reference to undeclared matrix axis %q", missing)}
	}
	return out, nil
}
