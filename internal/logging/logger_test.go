package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gantry-ci/gantry/pkg/secrets"
)

func TestWithRedaction(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	store := secrets.FromMap(map[string]string{"CODECOV_TOKEN": "cc-secret"})

	logger := WithRedaction(base, store)
	logger.Info("stage output", "output", "uploading with cc-secret", "stage", "codecov-upload")

	out := buf.String()
	assert.NotContains(t, out, "cc-secret")
	assert.Contains(t, out, "***")
	assert.Contains(t, out, "codecov-upload")
}

func TestWithRedaction_NilStore(t *testing.T) {
	logger := NewNop()
	assert.Same(t, logger, WithRedaction(logger, nil))
}
