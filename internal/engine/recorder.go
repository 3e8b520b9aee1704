package engine

import "simplane/internal/sim"

type site struct {
	gid     int
	section int
	name    string
	samples []float64
}

// recorder buffers samples until they are taken by diff. Each diff hands
// over the buffered samples and starts new buffers, so consecutive diffs
// never overlap and never skip a sample.
type recorder struct {
	time    []float64
	voltage []*site
	current []*site
}

func (r *recorder) sample(t float64, voltage func(*site) float64, current func(int) float64) {
	// samples before t=0 belong to the forward skip and are never reported
	if t <= 0 {
		return
	}
	r.time = append(r.time, t)
	for _, s := range r.voltage {
		s.samples = append(s.samples, voltage(s))
	}
	for i, s := range r.current {
		s.samples = append(s.samples, current(i))
	}
}

func (r *recorder) pending() int {
	return len(r.time)
}

func (r *recorder) diff() *sim.ProgressPayload {
	p := &sim.ProgressPayload{
		Time:    r.time,
		Voltage: make(map[int]map[string][]float64),
		Current: make(map[int]map[string][]float64),
	}
	if p.Time == nil {
		p.Time = []float64{}
	}
	r.time = nil

	take := func(dst map[int]map[string][]float64, sites []*site) {
		for _, s := range sites {
			if dst[s.gid] == nil {
				dst[s.gid] = make(map[string][]float64)
			}
			samples := s.samples
			if samples == nil {
				samples = []float64{}
			}
			dst[s.gid][s.name] = samples
			s.samples = nil
		}
	}
	take(p.Voltage, r.voltage)
	take(p.Current, r.current)
	return p
}
