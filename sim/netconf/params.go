package netconf

import (
	"fmt"
	"math"
	"sort"

	"github.com/clegans/clegans/sim"
	"github.com/clegans/clegans/sim/device"
)

// WindowParams are the probe window parameters read by ApplyWindow.
var WindowParams = []string{"t_start", "t_stop", "t_step", "idx", "idx_start", "idx_stop", "idx_step"}

// Basename returns the spec's name, or def when it has none.
func (s NodeSpec) Basename(def string) string {
	if s.Name != "" {
		return s.Name
	}
	return def
}

// Has reports whether the param is present.
func (s NodeSpec) Has(key string) bool {
	_, ok := s.Params[key]
	return ok
}

// CheckParams rejects params outside allowed.
func (s NodeSpec) CheckParams(allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	var unknown []string
	for k := range s.Params {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown params %v for kind %q; valid: %v", unknown, s.Kind, allowed)
	}
	return nil
}

// Float returns a numeric param, or def if absent.
func (s NodeSpec) Float(key string, def float64) (float64, error) {
	v, ok := s.Params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("param %q: want a number, got %T", key, v)
	}
}

// Int returns an integer param, or def if absent. Whole floats are
// accepted, since HCL numbers decode as floats.
func (s NodeSpec) Int(key string, def int) (int, error) {
	v, ok := s.Params[key]
	if !ok {
		return def, nil
	}
	return toInt(key, v)
}

func toInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("param %q: want an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("param %q: want an integer, got %T", key, v)
	}
}

// String returns a string param, or def if absent.
func (s NodeSpec) String(key, def string) (string, error) {
	v, ok := s.Params[key]
	if !ok {
		return def, nil
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q: want a string, got %T", key, v)
	}
	return str, nil
}

// DType returns a dtype param given by its kernel-language name.
func (s NodeSpec) DType(key string, def device.DType) (device.DType, error) {
	name, err := s.String(key, "")
	if err != nil || name == "" {
		return def, err
	}
	dt, err := device.ParseDType(name)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return dt, nil
}

// Floats returns a list-of-numbers param.
func (s NodeSpec) Floats(key string) ([]float64, error) {
	v, ok := s.Params[key]
	if !ok {
		return nil, fmt.Errorf("param %q is required", key)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q: want a list, got %T", key, v)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case int:
			out[i] = float64(n)
		case float64:
			out[i] = n
		default:
			return nil, fmt.Errorf("param %q[%d]: want a number, got %T", key, i, item)
		}
	}
	return out, nil
}

// IntLists returns a list-of-integer-lists param.
func (s NodeSpec) IntLists(key string) ([][]int, error) {
	v, ok := s.Params[key]
	if !ok {
		return nil, fmt.Errorf("param %q is required", key)
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("param %q: want a list of lists, got %T", key, v)
	}
	out := make([][]int, len(rows))
	for i, row := range rows {
		items, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("param %q[%d]: want a list, got %T", key, i, row)
		}
		for j, item := range items {
			n, err := toInt(fmt.Sprintf("%s[%d][%d]", key, i, j), item)
			if err != nil {
				return nil, err
			}
			out[i] = append(out[i], n)
		}
	}
	return out, nil
}

// ApplyWindow copies the window params onto a probe. Absent params keep the
// probe's defaults; a negative stop means open.
func ApplyWindow(p *sim.ConstrainedProbe, s NodeSpec) error {
	var err error
	set := func(dst *int, key string) {
		if err == nil {
			*dst, err = s.Int(key, *dst)
		}
	}
	set(&p.TRange.Start, "t_start")
	set(&p.TRange.Stop, "t_stop")
	set(&p.TRange.Step, "t_step")
	set(&p.IdxRange.Start, "idx_start")
	set(&p.IdxRange.Stop, "idx_stop")
	set(&p.IdxRange.Step, "idx_step")
	if err != nil {
		return err
	}
	if p.TRange.Stop < 0 {
		p.TRange.Stop = sim.Open
	}
	if p.IdxRange.Stop < 0 {
		p.IdxRange.Stop = sim.Open
	}
	p.Idx, err = s.String("idx", p.Idx)
	return err
}

// ApplyBuffer copies the window params and buffer_timepoints onto a
// per-element probe.
func ApplyBuffer(p *sim.PerElementProbe, s NodeSpec) error {
	if err := ApplyWindow(&p.ConstrainedProbe, s); err != nil {
		return err
	}
	var err error
	p.BufferTimepoints, err = s.Int("buffer_timepoints", p.BufferTimepoints)
	return err
}
