package volume

import (
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	usage, err := Of(t.TempDir())
	if errors.Is(err, ErrUnsupported) {
		t.Skipf("statfs not available on %s", runtime.GOOS)
	}
	require.NoError(t, err)
	assert.Positive(t, usage.Total)
	assert.LessOrEqual(t, usage.Used, usage.Total)
	assert.LessOrEqual(t, usage.Free, usage.Total)
	assert.InDelta(t, 50, usage.Percent(), 50)
}

func TestOfMissingPath(t *testing.T) {
	_, err := Of(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Zero(t, Usage{}.Percent())
	assert.InDelta(t, 25.0, Usage{Total: 400, Used: 100}.Percent(), 0.001)
}
