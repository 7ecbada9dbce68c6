package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietEngine(workers int) *Engine {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(WithWorkers(workers), WithLogger(logrus.NewEntry(l)))
}

func mustState(t *testing.T, vars ...Var) State {
	t.Helper()
	s, err := NewState(vars...)
	require.NoError(t, err)
	return s
}

func mustExpand(t *testing.T, set *ParameterSet, mode SweepMode) []Subset {
	t.Helper()
	subsets, err := Expand(set, mode)
	require.NoError(t, err)
	return subsets
}

func counterBlocks() []Block {
	return []Block{{
		Label: "count",
		Variables: []StateUpdate{{
			Key:   "x",
			Reads: []string{"inc"},
			Fn: func(p Params, _ int, _ History, prev State, _ Signals) (any, error) {
				return prev.Float("x") + p.Float("inc"), nil
			},
		}},
	}}
}

func TestRunRowCountAndOrder(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0, 2.0, 3.0)
	cfg := Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      4,
		Timesteps: 5,
		Blocks:    counterBlocks(),
		Initial:   mustState(t, Var{"x", 0.0}),
		Template:  set,
	}

	res, err := quietEngine(8).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, res.Healthy())
	require.NoError(t, res.Err())
	require.Len(t, res.Rows, 3*4*6)

	i := 0
	for s := 0; s < 3; s++ {
		for r := 1; r <= 4; r++ {
			for ts := 0; ts <= 5; ts++ {
				row := res.Rows[i]
				assert.Equal(t, s, row.Subset)
				assert.Equal(t, r, row.Run)
				assert.Equal(t, ts, row.Timestep)
				assert.Equal(t, float64(ts)*float64(s+1), row.Float("x"))
				i++
			}
		}
	}

	final, ok := res.Final(2, 4)
	require.True(t, ok)
	assert.Equal(t, 15.0, final.Float("x"))
	assert.Len(t, res.Filter(1), 4*6)
}

func TestRunZeroTimesteps(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0)
	res, err := quietEngine(1).Run(context.Background(), Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      2,
		Timesteps: 0,
		Blocks:    counterBlocks(),
		Initial:   mustState(t, Var{"x", 5.0}),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 5.0, res.Rows[1].Float("x"))
}

func TestBlockSnapshotIsolation(t *testing.T) {
	blocks := []Block{
		{
			Label: "first",
			Variables: []StateUpdate{
				{Key: "a", Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
					return prev.Float("a") + 1, nil
				}},
				// Must observe the pre-block a, not the value written above.
				{Key: "b", Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
					return prev.Float("a"), nil
				}},
			},
		},
		{
			Label: "second",
			Variables: []StateUpdate{
				{Key: "c", Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
					return prev.Float("a") * 10, nil
				}},
			},
		},
	}
	res, err := quietEngine(1).Run(context.Background(), Config{
		Subsets:   mustExpand(t, NewParameterSet().Declare("unused", 0), Cartesian),
		Runs:      1,
		Timesteps: 2,
		Blocks:    blocks,
		Initial:   mustState(t, Var{"a", 1.0}, Var{"b", 0.0}, Var{"c", 0.0}),
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	r1 := res.Rows[1]
	assert.Equal(t, 2.0, r1.Float("a"))
	assert.Equal(t, 1.0, r1.Float("b"))
	assert.Equal(t, 20.0, r1.Float("c"))
	assert.Equal(t, 2, r1.Substep)

	r2 := res.Rows[2]
	assert.Equal(t, 3.0, r2.Float("a"))
	assert.Equal(t, 2.0, r2.Float("b"))
	assert.Equal(t, 30.0, r2.Float("c"))
}

func TestPolicySignalsAreSummed(t *testing.T) {
	emit := func(v float64, vec []float64) PolicyFunc {
		return func(Params, int, History, State) (Signals, error) {
			return Signals{"reward": v, "costs": vec}, nil
		}
	}
	blocks := []Block{{
		Label: "merge",
		Policies: []Policy{
			{Name: "p1", Fn: emit(1.5, []float64{1, 2})},
			{Name: "p2", Fn: emit(2.5, []float64{10, 20})},
		},
		Variables: []StateUpdate{
			{Key: "total", Fn: func(_ Params, _ int, _ History, prev State, s Signals) (any, error) {
				return prev.Float("total") + s.Float("reward"), nil
			}},
			{Key: "costs", Fn: func(_ Params, _ int, _ History, _ State, s Signals) (any, error) {
				return s.Vector("costs"), nil
			}},
		},
	}}
	res, err := quietEngine(2).Run(context.Background(), Config{
		Subsets:   mustExpand(t, NewParameterSet().Declare("k", 0), Cartesian),
		Runs:      1,
		Timesteps: 3,
		Blocks:    blocks,
		Initial:   mustState(t, Var{"total", 0.0}, Var{"costs", []float64{0, 0}}),
	})
	require.NoError(t, err)
	last := res.Rows[len(res.Rows)-1]
	assert.Equal(t, 12.0, last.Float("total"))
	assert.Equal(t, []float64{11, 22}, last.Vector("costs"))
}

func TestSignalMergeMismatch(t *testing.T) {
	s := Signals{"x": []float64{1, 2}}
	err := s.Merge(Signals{"x": 1.0})
	var me *SignalMergeError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "x", me.Key)

	err = s.Merge(Signals{"x": []float64{1, 2, 3}})
	assert.ErrorAs(t, err, &me)
}

func TestStateIsNotAliasedAcrossRuns(t *testing.T) {
	// An update that mutates its input vector in place still cannot leak
	// into other runs or into the caller's initial state.
	blocks := []Block{{
		Label: "mutate",
		Variables: []StateUpdate{{
			Key: "v",
			Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
				v := prev.Vector("v")
				v[0]++
				return v, nil
			},
		}},
	}}
	initial := mustState(t, Var{"v", []float64{0}})
	res, err := quietEngine(4).Run(context.Background(), Config{
		Subsets:   mustExpand(t, NewParameterSet().Declare("k", 1, 2), Cartesian),
		Runs:      3,
		Timesteps: 3,
		Blocks:    blocks,
		Initial:   initial,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, initial.Vector("v"))

	for s := 0; s < 2; s++ {
		for r := 1; r <= 3; r++ {
			traj := res.Trajectory(s, r)
			require.Len(t, traj, 4)
			for ts, row := range traj {
				assert.Equal(t, []float64{float64(ts)}, row.Vector("v"))
			}
		}
	}
}

func TestRunFailureIsIsolated(t *testing.T) {
	boom := errors.New("gas used exceeds limit")
	blocks := []Block{{
		Label: "fragile",
		Variables: []StateUpdate{{
			Key:   "x",
			Reads: []string{"fail"},
			Fn: func(p Params, _ int, _ History, prev State, _ Signals) (any, error) {
				if p.Bool("fail") && prev.Run == 2 && prev.Timestep == 1 {
					return nil, boom
				}
				return prev.Float("x") + 1, nil
			},
		}},
	}}
	set := NewParameterSet().Declare("fail", false, true)
	res, err := quietEngine(3).Run(context.Background(), Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      3,
		Timesteps: 4,
		Blocks:    blocks,
		Initial:   mustState(t, Var{"x", 0.0}),
		Template:  set,
	})
	require.NoError(t, err)
	assert.False(t, res.Healthy())
	require.Len(t, res.Failures, 1)

	f := res.Failures[0]
	assert.Equal(t, 1, f.Subset)
	assert.Equal(t, 2, f.Run)
	assert.Equal(t, 2, f.Timestep)
	assert.Equal(t, "fragile", f.Block)
	assert.ErrorIs(t, res.Err(), boom)
	assert.True(t, res.Failed(1, 2))

	// The failed run keeps timesteps 0 and 1; everything else is complete.
	assert.Len(t, res.Trajectory(1, 2), 2)
	assert.Len(t, res.Trajectory(1, 3), 5)
	assert.Len(t, res.Trajectory(0, 2), 5)
	assert.Len(t, res.Rows, 6*5-3)
}

func TestPanicIsRecoveredPerRun(t *testing.T) {
	blocks := []Block{{
		Label: "reads missing parameter",
		Variables: []StateUpdate{{
			Key: "x",
			Fn: func(p Params, _ int, _ History, prev State, _ Signals) (any, error) {
				if prev.Run == 1 {
					return p.Float("not_bound"), nil
				}
				return 1.0, nil
			},
		}},
	}}
	res, err := quietEngine(2).Run(context.Background(), Config{
		Subsets:   mustExpand(t, NewParameterSet().Declare("k", 1), Cartesian),
		Runs:      2,
		Timesteps: 2,
		Blocks:    blocks,
		Initial:   mustState(t, Var{"x", 0.0}),
	})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)

	var pe *ParameterError
	require.ErrorAs(t, res.Failures[0], &pe)
	assert.Equal(t, "not_bound", pe.Parameter)
	var panicErr *PanicError
	assert.ErrorAs(t, res.Failures[0], &panicErr)
	assert.Len(t, res.Trajectory(0, 1), 1)
	assert.Len(t, res.Trajectory(0, 2), 3)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocks := []Block{{
		Label: "cancel",
		Variables: []StateUpdate{{
			Key: "x",
			Fn: func(_ Params, _ int, _ History, prev State, _ Signals) (any, error) {
				if prev.Run == 1 && prev.Timestep == 2 {
					cancel()
				}
				return prev.Float("x") + 1, nil
			},
		}},
	}}
	res, err := quietEngine(1).Run(ctx, Config{
		Subsets:   mustExpand(t, NewParameterSet().Declare("k", 1), Cartesian),
		Runs:      5,
		Timesteps: 10,
		Blocks:    blocks,
		Initial:   mustState(t, Var{"x", 0.0}),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Failures)
	assert.Less(t, len(res.Rows), 5*11)

	// The block in flight finishes, so timestep 3 is recorded.
	traj := res.Trajectory(0, 1)
	require.Len(t, traj, 4)
	assert.Equal(t, 3.0, traj[3].Float("x"))
}

func TestSetupErrors(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0)
	subsets := mustExpand(t, set, Cartesian)
	e := quietEngine(1)

	t.Run("unregistered parameter", func(t *testing.T) {
		blocks := []Block{{
			Label: "b",
			Policies: []Policy{{
				Name:  "p",
				Reads: []string{"missing"},
				Fn:    func(Params, int, History, State) (Signals, error) { return nil, nil },
			}},
			Variables: counterBlocks()[0].Variables,
		}}
		_, err := e.Run(context.Background(), Config{
			Subsets: subsets, Runs: 1, Timesteps: 1, Blocks: blocks,
			Initial: mustState(t, Var{"x", 0.0}), Template: set,
		})
		var ue *UnregisteredParameterError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, "missing", ue.Parameter)
	})

	t.Run("schema not closed", func(t *testing.T) {
		_, err := e.Run(context.Background(), Config{
			Subsets: subsets, Runs: 1, Timesteps: 1, Blocks: counterBlocks(),
			Initial: mustState(t, Var{"x", 0.0}, Var{"y", 0.0}),
		})
		var ce *SchemaClosureError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"y"}, ce.Missing)
		assert.Empty(t, ce.Extra)
	})

	t.Run("extra key", func(t *testing.T) {
		blocks := append(counterBlocks(), Block{
			Label: "extra",
			Variables: []StateUpdate{{Key: "z", Fn: func(Params, int, History, State, Signals) (any, error) {
				return 0.0, nil
			}}},
		})
		err := CheckClosure(blocks, mustState(t, Var{"x", 0.0}).Schema())
		var ce *SchemaClosureError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"z"}, ce.Extra)
	})

	t.Run("bad runs", func(t *testing.T) {
		_, err := e.Run(context.Background(), Config{
			Subsets: subsets, Runs: 0, Timesteps: 1, Blocks: counterBlocks(),
			Initial: mustState(t, Var{"x", 0.0}),
		})
		assert.Error(t, err)
	})

	t.Run("duplicate key in block", func(t *testing.T) {
		b := counterBlocks()
		b[0].Variables = append(b[0].Variables, b[0].Variables[0])
		err := ValidateBlocks(b, mustState(t, Var{"x", 0.0}).Schema(), nil)
		assert.Error(t, err)
	})
}

func TestStateWithRejectsUnknownKey(t *testing.T) {
	s := mustState(t, Var{"a", 1.0})
	_, err := s.With(map[string]any{"b": 2.0})
	var ke *StateKeyError
	require.ErrorAs(t, err, &ke)

	_, err = NewState(Var{"a", 1}, Var{"a", 2})
	assert.ErrorAs(t, err, &ke)
}

func TestSeedAdjustsInitialStatePerSubset(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0, 2.0)
	cfg := Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      2,
		Timesteps: 1,
		Blocks:    counterBlocks(),
		Initial:   mustState(t, Var{"x", 0.0}),
		Template:  set,
		Seed: func(sub Subset, initial State) (State, error) {
			return initial.With(map[string]any{"x": 10 * sub.Params.Float("inc")})
		},
	}
	res, err := quietEngine(4).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, res.Healthy())

	for _, row := range res.Rows {
		inc := float64(row.Subset + 1)
		assert.Equal(t, 10*inc+float64(row.Timestep)*inc, row.Float("x"))
	}
	assert.Equal(t, 0.0, cfg.Initial.Float("x"))
}

func TestSeedFailureIsARunFailure(t *testing.T) {
	set := NewParameterSet().Declare("inc", 1.0)
	cfg := Config{
		Subsets:   mustExpand(t, set, Cartesian),
		Runs:      2,
		Timesteps: 3,
		Blocks:    counterBlocks(),
		Initial:   mustState(t, Var{"x", 0.0}),
		Template:  set,
		Seed: func(Subset, State) (State, error) {
			return State{}, errors.New("bad seed")
		},
	}
	res, err := quietEngine(1).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "initial state", res.Failures[0].Block)
	assert.ErrorContains(t, res.Err(), "bad seed")
	assert.Empty(t, res.Rows)
}
