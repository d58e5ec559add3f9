package domain

// Definition is the parsed pipeline document. It is loaded once at trigger
// time and never mutated afterwards; every job shares the same instance.
type Definition struct {
	// Name identifies the pipeline (defaults to the file base name).
	Name string

	// On lists the event types that trigger a run (e.g. "push").
	On []string

	// Axes holds the matrix dimensions in declaration order.
	Axes []Axis

	// Env holds plain pipeline-level environment variables. Secrets never
	// live here; they come from the process-wide secret store instead.
	Env map[string]string

	// Stages is the ordered stage list. Order is significant: later stages
	// assume the side effects of earlier ones.
	Stages []Stage
}

// Stage is one named unit of pipeline work. Exactly one of Run or Setup is
// set: Run is a literal shell command line, Setup is a provisioner directive
// of the form "tool@version".
type Stage struct {
	Name string

	Run   string
	Setup string

	// Env holds stage-scoped environment variables layered over the
	// pipeline-level Env.
	Env map[string]string

	// Secrets names the secrets injected into this stage's subprocess
	// environment. Stages that declare nothing see nothing.
	Secrets []string
}

// SecretNames returns the union of secret names declared by any stage, in
// first-declaration order. The trigger uses it to know what to pull from
// the process environment.
func (d *Definition) SecretNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range d.Stages {
		for _, name := range s.Secrets {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Triggers reports whether the definition reacts to the given event type.
func (d *Definition) Triggers(eventType string) bool {
	for _, on := range d.On {
		if on == eventType {
			return true
		}
	}
	return false
}

// Event is the external notification that starts a run. The payload is
// opaque to the core: it is carried along for reporting but never parsed.
type Event struct {
	Type    string         `json:"type" mapstructure:"type"`
	Ref     string         `json:"ref,omitempty" mapstructure:"ref"`
	Repo    string         `json:"repo,omitempty" mapstructure:"repo"`
	Payload map[string]any `json:"payload,omitempty" mapstructure:",remain"`
}
