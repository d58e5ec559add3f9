package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantry-ci/gantry/pkg/domain"
)

func axis(name string, values ...string) domain.Axis {
	a := domain.Axis{Name: name}
	for _, v := range values {
		a.Values = append(a.Values, domain.StringValue(v))
	}
	return a
}

func TestExpand(t *testing.T) {
	t.Run("Single Axis Single Value", func(t *testing.T) {
		def := &domain.Definition{
			Axes:   []domain.Axis{axis("python-version", "3.8")},
			Stages: []domain.Stage{{Name: "test", Run: "pytest"}},
		}

		specs, err := Expand(def)
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, "python-version=3.8", specs[0].ID)
	})

	t.Run("Product Size", func(t *testing.T) {
		def := &domain.Definition{
			Axes: []domain.Axis{
				axis("os", "linux", "darwin"),
				axis("version", "3.7", "3.8", "3.9"),
			},
			Stages: []domain.Stage{{Name: "test", Run: "pytest"}},
		}

		specs, err := Expand(def)
		require.NoError(t, err)
		assert.Len(t, specs, 6)
	})

	t.Run("Deterministic Order Last Axis Fastest", func(t *testing.T) {
		def := &domain.Definition{
			Axes: []domain.Axis{
				axis("os", "linux", "darwin"),
				axis("version", "3.7", "3.8"),
			},
			Stages: []domain.Stage{{Name: "test", Run: "pytest"}},
		}

		specs, err := Expand(def)
		require.NoError(t, err)

		ids := make([]string, len(specs))
		for i, s := range specs {
			ids[i] = s.ID
		}
		assert.Equal(t, []string{
			"os=linux,version=3.7",
			"os=linux,version=3.8",
			"os=darwin,version=3.7",
			"os=darwin,version=3.8",
		}, ids)
	})

	t.Run("Empty Axis Yields Zero Jobs", func(t *testing.T) {
		def := &domain.Definition{
			Axes: []domain.Axis{
				axis("os", "linux"),
				{Name: "version"},
			},
			Stages: []domain.Stage{{Name: "test", Run: "pytest"}},
		}

		specs, err := Expand(def)
		require.NoError(t, err)
		assert.Empty(t, specs)
	})

	t.Run("No Axes Yields Default Job", func(t *testing.T) {
		def := &domain.Definition{
			Stages: []domain.Stage{{Name: "test", Run: "pytest"}},
		}

		specs, err := Expand(def)
		require.NoError(t, err)
		require.Len(t, specs, 1)
		assert.Equal(t, "default", specs[0].ID)
	})
}

func TestExpand_Interpolation(t *testing.T) {
	def := &domain.Definition{
		Axes: []domain.Axis{axis("python-version", "3.8")},
		Stages: []domain.Stage{
			{Name: "init", Setup: "python@${{ matrix.python-version }}"},
			{Name: "report", Run: "echo done", Env: map[string]string{
				"PY": "${{ matrix.python-version }}",
			}},
		},
	}

	specs, err := Expand(def)
	require.NoError(t, err)
	require.Len(t, specs, 1)

	assert.Equal(t, "python@3.8", specs[0].Stages[0].Setup)
	assert.Equal(t, "3.8", specs[0].Stages[1].Env["PY"])

	// The definition itself must stay untouched; jobs own their copies.
	assert.Equal(t, "python@${{ matrix.python-version }}", def.Stages[0].Setup)
}

func TestExpand_UndeclaredAxis(t *testing.T) {
	def := &domain.Definition{
		Axes: []domain.Axis{axis("python-version", "3.8")},
		Stages: []domain.Stage{
			{Name: "init", Setup: "python@${{ matrix.node-version }}"},
		},
	}

	_, err := Expand(def)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "node-version")
}

func TestExpand_UndeclaredAxisWithEmptyAxis(t *testing.T) {
	// An empty axis collapses the product to zero jobs, but a dangling
	// reference is still rejected pre-flight rather than silently passing.
	def := &domain.Definition{
		Axes: []domain.Axis{{Name: "python-version"}},
		Stages: []domain.Stage{
			{Name: "test", Run: "pytest-${{ matrix.node-version }}"},
		},
	}

	_, err := Expand(def)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "node-version")
}
