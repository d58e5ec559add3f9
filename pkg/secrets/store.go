// Package secrets holds the process-wide secret store and log redaction.
//
// The store is populated once at trigger time, from the process environment
// or an explicit map, and is read-only for the rest of the run. Secrets are
// injected into stage environments strictly per declared name; they never
// appear in the pipeline definition or in durable logs.
package secrets

import (
	"os"
	"strings"

	"github.com/gantry-ci/gantry/pkg/domain"
)

// Store is a read-only mapping of secret names to values.
type Store struct {
	values map[string]string
}

// FromEnv builds a store from the named process environment variables.
// Names absent from the environment are simply not present in the store;
// a stage referencing them later fails with MissingSecretError.
func FromEnv(names ...string) *Store {
	values := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			values[name] = v
		}
	}
	return &Store{values: values}
}

// FromMap builds a store from an explicit name/value mapping.
func FromMap(m map[string]string) *Store {
	values := make(map[string]string, len(m))
	for k, v := range m {
		values[k] = v
	}
	return &Store{values: values}
}

// Get returns the value for a secret name.
func (s *Store) Get(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[name]
	return v, ok
}

// Inject merges the declared secrets into env. It fails with
// MissingSecretError on the first declared name the store does not hold,
// before any value is copied.
func (s *Store) Inject(env map[string]string, declared []string) error {
	for _, name := range declared {
		if _, ok := s.Get(name); !ok {
			return &domain.MissingSecretError{Name: name}
		}
	}
	for _, name := range declared {
		v, _ := s.Get(name)
		env[name] = v
	}
	return nil
}

// Redact replaces every secret value occurring in text with a placeholder.
// Anything destined for logs or stored output goes through here first.
func (s *Store) Redact(text string) string {
	if s == nil || text == "" {
		return text
	}
	for _, v := range s.values {
		if v == "" {
			continue
		}
		text = strings.ReplaceAll(text, v, "***")
	}
	return text
}
