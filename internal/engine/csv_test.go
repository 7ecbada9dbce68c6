package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorBlocks counts x and carries v forward so both columns are updated.
func vectorBlocks() []Block {
	blocks := counterBlocks()
	blocks[0].Variables = append(blocks[0].Variables, StateUpdate{
		Key: "v",
		Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
			return prev.Vector("v"), nil
		},
	})
	return blocks
}

func TestEncodeTrajectoryCSV(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0)
	cfg := Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      1,
		Timesteps: 2,
		Blocks:    vectorBlocks(),
		Initial:   mustState(t, Var{"x", 0.0}, Var{"v", []float64{1, 2.5}}),
		Template:  set,
	}
	res, err := quietEngine(1).Run(context.Background(), cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeTrajectoryCSV(&buf, res))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "subset,run,timestep,substep,x,v", lines[0])
	assert.Equal(t, "0,1,0,0,0.000000,1.000000|2.500000", lines[1])
	assert.Equal(t, "0,1,2,1,2.000000,1.000000|2.500000", lines[3])

	path := filepath.Join(t.TempDir(), "raw.csv")
	require.NoError(t, WriteTrajectoryCSV(path, res))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(raw))
}
