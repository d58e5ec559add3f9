package memory_test

import (
	"testing"

	"github.com/gantry-ci/gantry/internal/adapters/memory"
	"github.com/gantry-ci/gantry/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, memory.NewStore())
}
