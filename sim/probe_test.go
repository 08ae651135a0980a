package sim

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clegans/clegans/sim/device"
	"github.com/clegans/clegans/sim/internal/testutil"
)

func TestRange_CountAndContains(t *testing.T) {
	tests := []struct {
		r     Range
		count int
		in    []int
		out   []int
	}{
		{Range{0, 10, 1}, 10, []int{0, 9}, []int{10, -1}},
		{Range{0, 10, 3}, 4, []int{0, 3, 9}, []int{1, 10}},
		{Range{5, 6, 2}, 1, []int{5}, []int{6, 7}},
		{Range{4, 4, 1}, 0, nil, []int{4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.count, tt.r.Count(), "Count(%v)", tt.r)
		for _, v := range tt.in {
			assert.True(t, tt.r.Contains(v), "%v contains %d", tt.r, v)
		}
		for _, v := range tt.out {
			assert.False(t, tt.r.Contains(v), "%v excludes %d", tt.r, v)
		}
	}
}

func TestPerElementProbe_FiresWhenBufferFills(t *testing.T) {
	// GIVEN a 200-timestep run and a probe buffering 50 timepoints
	cfg := testConfig()
	cfg.NTimesteps = 200
	s, _, _ := newTestSim(t, cfg)
	m := addModels(s, 3)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.BufferTimepoints = 50
	var elapsed, timesteps []int
	NewNode(p, "watch").OnBufferFull(func(ti *TimestepInfo, n int) error {
		elapsed = append(elapsed, n)
		timesteps = append(timesteps, ti.Timestep)
		return nil
	})

	// WHEN run
	require.NoError(t, s.Run())

	// THEN the probe fired four times
	assert.Equal(t, []int{50, 100, 150, 200}, elapsed)
	assert.Equal(t, []int{49, 99, 149, 199}, timesteps)
	assert.Equal(t, device.Shape{50, 1, 3}, p.Shape())
}

func TestPerElementProbe_StridedWindowCountsMatchingTimesteps(t *testing.T) {
	// GIVEN a window [10, 100) with stride 2 buffering 15 timepoints
	cfg := testConfig()
	cfg.NTimesteps = 200
	s, _, _ := newTestSim(t, cfg)
	m := addModels(s, 1)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.TRange = Range{Start: 10, Stop: 100, Step: 2}
	p.BufferTimepoints = 15
	var elapsed []int
	NewNode(p, "watch").OnBufferFull(func(_ *TimestepInfo, n int) error {
		elapsed = append(elapsed, n)
		return nil
	})

	require.NoError(t, s.Run())

	// 45 matching timesteps, flushed every 15
	assert.Equal(t, 45, p.TotalNTimesteps())
	assert.Equal(t, []int{15, 30, 45}, elapsed)
	assert.Equal(t, 0, p.TimestepsElapsed(11), "off-stride timesteps never count")
	assert.Equal(t, 1, p.TimestepsElapsed(10))
	assert.Equal(t, []string{
		"timestep >= t_start",
		"timestep < t_stop",
		"(timestep - t_start) % t_step == 0",
	}, p.Conditions())
}

func TestPerElementProbe_BufferMustDivideWindow(t *testing.T) {
	cfg := testConfig()
	cfg.NTimesteps = 200
	s, _, _ := newTestSim(t, cfg)
	m := addModels(s, 1)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.BufferTimepoints = 7

	err := s.Finalize()
	assert.True(t, errors.Is(err, ErrInvariant))
}

func TestConstrainedProbe_RejectsUnknownIndex(t *testing.T) {
	s, _, _ := newTestSim(t, testConfig())
	m := addModels(s, 1)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.Idx = "idx_nowhere"

	assert.True(t, errors.Is(s.Finalize(), ErrInvariant))
}

func TestConstrainedProbe_IndexWindowDefaultsToModel(t *testing.T) {
	s, _, _ := newTestSim(t, testConfig())
	m := addModels(s, 8)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.IdxRange = Range{Start: 2, Stop: Open, Step: 3}

	require.NoError(t, s.Finalize())

	assert.Equal(t, 8, p.IdxRange.Stop)
	assert.Equal(t, 2, p.NElms(), "ceil((8-2)/3)")
	assert.Equal(t, []string{"idx >= idx_start", "(idx - idx_start) % idx_step == 0"}, p.Conditions())
}

func TestExpressionProbe_GeneratesGuardedStore(t *testing.T) {
	// GIVEN a probe recording v from timestep 5 on
	s, _, _ := newTestSim(t, testConfig())
	m := NewModel(s, "LIF", 3)
	m.Set("v", "LIF_v")
	p := NewExpressionProbe(m, "v_probe", "v", Post(HookModelIdxCalculations))
	p.TRange.Start = 5

	// WHEN generated
	src, err := s.Generate()
	require.NoError(t, err)

	// THEN the store is nested under the window guard
	testutil.AssertLinesInOrder(t, src, "idx_model = idx_realization - 0", "if timestep >= 5:")
	var store string
	for _, l := range testutil.SourceLines(src) {
		if strings.Contains(l, "LIF_v_probe_buffer[") {
			store = strings.TrimSpace(l)
		}
	}
	require.NotEmpty(t, store, "store line missing in:\n%s", src)
	assert.True(t, strings.HasSuffix(store, "] = LIF_v"), store)
	assert.Contains(t, store, "realization_num - realization_start")
	assert.Equal(t,
		testutil.Indent(src, "if timestep >= 5:", "    ")+1,
		testutil.Indent(src, store, "    "))
}

func TestExpressionProbe_RequiresExpressionAndHook(t *testing.T) {
	s, _, _ := newTestSim(t, testConfig())
	m := addModels(s, 1)[0]
	NewExpressionProbe(m, "empty", "", In(HookModelCode))
	assert.True(t, errors.Is(s.Finalize(), ErrInvariant))
}

// fillOnLaunch makes every launch write a recognizable value into the probe
// buffer slot of its timestep: timestep*10 + realization_start*100 + element.
func fillOnLaunch(t *testing.T, s *Simulation, dev *device.Host, rc *device.RecordingCompiler, p *PerElementProbe) {
	t.Helper()
	rc.LaunchErr = func(l device.Launch) error {
		b, err := p.Allocation().Buffer()
		if err != nil {
			return err
		}
		arr, err := dev.Contents(b)
		if err != nil {
			return err
		}
		slot := int(l.Timestep) % p.BufferTimepoints
		for e := 0; e < p.NElms(); e++ {
			arr.SetFloat(arr.Index(slot, 0, e), float64(int(l.Timestep)*10+int(l.RealizationStart)*100+e))
		}
		return nil
	}
}

func TestAccumulateOnHost_PlacesEveryFlush(t *testing.T) {
	// GIVEN 2 realizations, one per division, 4 timesteps buffered 2 at a time
	cfg := testConfig()
	cfg.NTimesteps = 4
	cfg.NRealizations = 2
	s, dev, rc := newTestSim(t, cfg)
	m := addModels(s, 2)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.BufferTimepoints = 2
	acc := NewAccumulateOnHost(p, "acc")
	fillOnLaunch(t, s, dev, rc, p)
	flushes := 0
	NewListener(p, "listener", func(data *device.HostArray, source Node) error {
		flushes++
		assert.Same(t, acc, source)
		return nil
	})

	// WHEN run
	require.NoError(t, s.Run())

	// THEN every (timestep, realization, element) landed in place
	data := acc.Data()
	require.Equal(t, device.Shape{4, 2, 2}, data.Shape())
	for ts := 0; ts < 4; ts++ {
		for r := 0; r < 2; r++ {
			for e := 0; e < 2; e++ {
				want := float64(ts*10 + r*100 + e)
				assert.Equal(t, want, data.Float(data.Index(ts, r, e)), "t=%d r=%d e=%d", ts, r, e)
			}
		}
	}
	assert.Equal(t, 4, flushes)
}

func TestProcessOnHost_DeliversLatestBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.NTimesteps = 4
	s, dev, rc := newTestSim(t, cfg)
	m := addModels(s, 1)[0]
	p := NewPerElementProbe(m, "probe", device.Float32)
	p.BufferTimepoints = 2
	h := NewProcessOnHost(p, "host")
	fillOnLaunch(t, s, dev, rc, p)
	var seen []float64
	NewListener(p, "listener", func(data *device.HostArray, _ Node) error {
		seen = append(seen, data.Floats()...)
		return nil
	})

	require.NoError(t, s.Run())

	// two flushes of (t, t+1) for the single element
	assert.Equal(t, []float64{0, 10, 20, 30}, seen)
	assert.Equal(t, []float64{20, 30}, h.Data().Floats())
}
