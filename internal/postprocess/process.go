package postprocess

import (
	"fmt"
	"time"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

// Options controls how a result is flattened.
type Options struct {
	// Label names a subset. Defaults to "subset N".
	Label func(subset int) string
	// Environments names vector entries. Defaults to model.EnvironmentNames().
	Environments []string
}

// Gwei-denominated keys that get an *_eth companion column.
var gweiKeys = []string{
	model.KeyBaseReward,
	model.KeySourceReward,
	model.KeyTargetReward,
	model.KeyHeadReward,
	model.KeySyncReward,
	model.KeyBlockProposerReward,
	model.KeyAttestationPenalties,
	model.KeySyncCommitteePenalties,
	model.KeyAmountSlashed,
	model.KeyWhistleblowerRewards,
	model.KeyTotalBasefee,
	model.KeyTotalTips,
	model.KeyTotalRealizedMEV,
	model.KeyValidatingRewards,
	model.KeyValidatingPenalties,
	model.KeyOnlineRewards,
	model.KeyPoWIssuance,
	model.KeyNetworkIssuance,
}

// Per-timestep flows, summed per trajectory into cumulative_* columns.
var cumulativeETH = []string{
	model.KeyValidatingRewards,
	model.KeyValidatingPenalties,
	model.KeyOnlineRewards,
	model.KeyAmountSlashed,
	model.KeyTotalBasefee,
	model.KeyTotalTips,
	model.KeyTotalRealizedMEV,
	model.KeyPoWIssuance,
	model.KeyNetworkIssuance,
}

var cumulativeUSD = []string{
	model.KeyTotalRevenue,
	model.KeyTotalCosts,
	model.KeyTotalProfit,
}

var usdKeys = []string{
	model.KeyOnlineRewards,
	model.KeyNetworkIssuance,
	model.KeyTotalBasefee,
	model.KeyTotalTips,
	model.KeyTotalRealizedMEV,
}

var pctKeys = []string{
	model.KeySupplyInflation,
	model.KeyValidatorUptime,
	model.KeyTotalRevenueYields,
	model.KeyTotalProfitYields,
}

var pctVectorKeys = []string{
	model.KeyValidatorRevenueYields,
	model.KeyValidatorProfitYields,
}

// Process converts result rows into a Table. Rows keep the result order.
func Process(res *engine.Result, opts Options) (*Table, error) {
	if res == nil {
		return nil, fmt.Errorf("result is nil")
	}
	if opts.Label == nil {
		opts.Label = func(i int) string { return fmt.Sprintf("subset %d", i) }
	}
	if opts.Environments == nil {
		opts.Environments = model.EnvironmentNames()
	}
	rows := res.Rows
	n := len(rows)
	t := NewTable()
	p := &proc{t: t, rows: rows, opts: opts}

	subset, run, timestep, substep := make([]int64, n), make([]int64, n), make([]int64, n), make([]int64, n)
	labels := make([]string, n)
	for i, r := range rows {
		subset[i], run[i] = int64(r.Subset), int64(r.Run)
		timestep[i], substep[i] = int64(r.Timestep), int64(r.Substep)
		labels[i] = opts.Label(r.Subset)
	}
	p.ints("subset", subset)
	p.ints("run", run)
	p.ints("timestep", timestep)
	p.ints("substep", substep)
	p.strings("subset_label", labels)

	if n == 0 {
		return t, p.err
	}
	for _, key := range res.Schema.Keys() {
		p.raw(key)
	}
	if p.err != nil {
		return nil, p.err
	}
	p.derived()
	if p.err != nil {
		return nil, p.err
	}
	return t, nil
}

type proc struct {
	t    *Table
	rows []engine.State
	opts Options
	err  error
}

func (p *proc) add(c *Column) {
	if p.err != nil {
		return
	}
	p.err = p.t.Add(c)
}

func (p *proc) ints(name string, v []int64) { p.add(&Column{Name: name, Kind: Int, Ints: v}) }

func (p *proc) floats(name string, v []float64) { p.add(&Column{Name: name, Kind: Float, Floats: v}) }

func (p *proc) strings(name string, v []string) { p.add(&Column{Name: name, Kind: String, Strings: v}) }

func (p *proc) column(key string) []float64 {
	out := make([]float64, len(p.rows))
	for i, r := range p.rows {
		out[i] = r.Float(key)
	}
	return out
}

// raw emits the state variable itself, dispatching on the value type.
func (p *proc) raw(key string) {
	switch v := p.rows[0].Get(key).(type) {
	case float64:
		p.floats(key, p.column(key))
	case int:
		out := make([]int64, len(p.rows))
		for i, r := range p.rows {
			out[i] = int64(r.Int(key))
		}
		p.ints(key, out)
	case []float64:
		p.vector(key, key, 1)
	case time.Time:
		out := make([]string, len(p.rows))
		for i, r := range p.rows {
			out[i] = r.Time(key).UTC().Format(time.RFC3339)
		}
		p.strings(key, out)
	case fmt.Stringer:
		out := make([]string, len(p.rows))
		for i, r := range p.rows {
			out[i] = r.Get(key).(fmt.Stringer).String()
		}
		p.strings(key, out)
	default:
		p.err = fmt.Errorf("state variable %q: unsupported type %T", key, v)
	}
}

// vector flattens one []float64 variable into a column per environment.
func (p *proc) vector(key, prefix string, factor float64) {
	envs := p.opts.Environments
	cols := make([][]float64, len(envs))
	for j := range cols {
		cols[j] = make([]float64, len(p.rows))
	}
	for i, r := range p.rows {
		v := r.Vector(key)
		if len(v) != len(envs) {
			p.err = fmt.Errorf("state variable %q has %d entries, want %d", key, len(v), len(envs))
			return
		}
		for j, x := range v {
			cols[j][i] = x * factor
		}
	}
	for j, env := range envs {
		p.floats(prefix+"_"+env, cols[j])
	}
}

// derived adds conversions for the domain variables present in the schema.
func (p *proc) derived() {
	has := p.rows[0].Has
	for _, key := range gweiKeys {
		if has(key) {
			p.floats(key+"_eth", scaled(p.column(key), 1/model.GweiPerETH))
		}
	}
	if has(model.KeyETHPrice) {
		price := p.column(model.KeyETHPrice)
		for _, key := range usdKeys {
			if !has(key) {
				continue
			}
			eth := scaled(p.column(key), 1/model.GweiPerETH)
			for i := range eth {
				eth[i] *= price[i]
			}
			p.floats(key+"_usd", eth)
		}
	}
	for _, key := range cumulativeETH {
		if has(key) {
			p.floats("cumulative_"+key+"_eth", p.cumulative(scaled(p.column(key), 1/model.GweiPerETH)))
		}
	}
	for _, key := range cumulativeUSD {
		if has(key) {
			p.floats("cumulative_"+key, p.cumulative(p.column(key)))
		}
	}
	for _, key := range pctKeys {
		if has(key) {
			p.floats(key+"_pct", scaled(p.column(key), 100))
		}
	}
	for _, key := range pctVectorKeys {
		if has(key) {
			p.vector(key, key+"_pct", 100)
		}
	}

	if has(model.KeyETHStaked) && has(model.KeyETHSupply) {
		staked, supply := p.column(model.KeyETHStaked), p.column(model.KeyETHSupply)
		pct := make([]float64, len(p.rows))
		for i := range pct {
			if supply[i] != 0 {
				pct[i] = staked[i] / supply[i] * 100
			}
		}
		p.floats("eth_staked_pct", pct)
	}
}

// cumulative sums v within each (subset, run) trajectory.
func (p *proc) cumulative(v []float64) []float64 {
	out := make([]float64, len(v))
	acc := 0.0
	for i, r := range p.rows {
		if i == 0 || r.Subset != p.rows[i-1].Subset || r.Run != p.rows[i-1].Run {
			acc = 0
		}
		acc += v[i]
		out[i] = acc
	}
	return out
}

func scaled(v []float64, k float64) []float64 {
	for i := range v {
		v[i] *= k
	}
	return v
}
