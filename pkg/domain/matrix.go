package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AxisKind tags the scalar type of a matrix axis value.
type AxisKind int

const (
	KindString AxisKind = iota
	KindInt
	KindFloat
	KindBool
)

// AxisValue is one scalar value of a matrix axis. Axes are heterogeneous in
// YAML (3.8 vs "3.8" vs true), so values carry their kind alongside a
// canonical string form used for interpolation and job IDs.
type AxisValue struct {
	Kind AxisKind

	Str   string
	Int   int64
	Float float64
	Bool  bool
}

// StringValue builds a string-kinded axis value.
func StringValue(s string) AxisValue {
	return AxisValue{Kind: KindString, Str: s}
}

// IntValue builds an int-kinded axis value.
func IntValue(i int64) AxisValue {
	return AxisValue{Kind: KindInt, Int: i}
}

// FloatValue builds a float-kinded axis value.
func FloatValue(f float64) AxisValue {
	return AxisValue{Kind: KindFloat, Float: f}
}

// BoolValue builds a bool-kinded axis value.
func BoolValue(b bool) AxisValue {
	return AxisValue{Kind: KindBool, Bool: b}
}

// String returns the canonical textual form of the value. Floats keep the
// shortest representation that round-trips, so a YAML "3.8" stays "3.8".
func (v AxisValue) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Axis is one named matrix dimension with its ordered values.
type Axis struct {
	Name   string
	Values []AxisValue
}

// Binding pins a single axis to one concrete value inside a JobSpec.
type Binding struct {
	Axis  string
	Value AxisValue
}

// JobSpec is one concrete cell of the expanded matrix. It is immutable and
// owned exclusively by the job run that consumes it; stage command lines
// already have their matrix placeholders resolved.
type JobSpec struct {
	ID       string
	Bindings []Binding
	Stages   []Stage
}

// JobID derives a stable identifier from ordered bindings, e.g.
// "python-version=3.8". A job with no bindings is called "default".
func JobID(bindings []Binding) string {
	if len(bindings) == 0 {
		return "default"
	}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s=%s", b.Axis, b.Value.String()))
	}
	return strings.Join(parts, ",")
}
