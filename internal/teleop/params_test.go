package teleop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeParamsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teleop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	assert.Equal(t, 0, p.EnableButton)
	assert.Equal(t, -1, p.IncrementButton)
	assert.Equal(t, -1, p.DecrementButton)
	assert.Empty(t, p.AxisPositionMap)
	assert.Empty(t, p.AxisOrientationMap)
	assert.Equal(t, 0.0, p.MaxScale)
	assert.Equal(t, 0.1, p.MinScale)
	assert.Equal(t, 500*time.Millisecond, p.ReactionDelay)
}

func TestLoadParams(t *testing.T) {
	t.Run("full file", func(t *testing.T) {
		path := writeParamsFile(t, `
enable_mov: 4
increment_velocity: 6
decrement_velocity: 7
max_displacement_in_a_second: 1.5
axis_position_map:
  x: 1
  y: 0
axis_orientation_map:
  z: 3
`)

		p, err := LoadParams(path)
		require.NoError(t, err)

		assert.Equal(t, 4, p.EnableButton)
		assert.Equal(t, 6, p.IncrementButton)
		assert.Equal(t, 7, p.DecrementButton)
		assert.Equal(t, 1.5, p.MaxScale)
		assert.Equal(t, map[string]int{"x": 1, "y": 0}, p.AxisPositionMap)
		assert.Equal(t, map[string]int{"z": 3}, p.AxisOrientationMap)
	})

	t.Run("missing keys resolve to defaults", func(t *testing.T) {
		path := writeParamsFile(t, "max_displacement_in_a_second: 2.0\n")

		p, err := LoadParams(path)
		require.NoError(t, err)

		assert.Equal(t, 0, p.EnableButton)
		assert.Equal(t, -1, p.IncrementButton)
		assert.Equal(t, -1, p.DecrementButton)
		assert.Empty(t, p.AxisPositionMap)
		assert.Equal(t, 2.0, p.MaxScale)
	})

	t.Run("explicit zero button index is kept", func(t *testing.T) {
		path := writeParamsFile(t, "increment_velocity: 0\n")

		p, err := LoadParams(path)
		require.NoError(t, err)

		assert.Equal(t, 0, p.IncrementButton)
	})

	t.Run("empty file resolves to defaults", func(t *testing.T) {
		path := writeParamsFile(t, "")

		p, err := LoadParams(path)
		require.NoError(t, err)

		assert.Equal(t, DefaultParams(), p)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadParams(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml errors", func(t *testing.T) {
		path := writeParamsFile(t, "axis_position_map: [not, a, map\n")

		_, err := LoadParams(path)
		assert.Error(t, err)
	})
}
