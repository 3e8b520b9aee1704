package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"simplane/internal/sim"
)

// LIF is the built-in engine. Every section of a cell is a leaky
// compartment coupled to the soma; the soma fires and resets when it
// crosses threshold.
type LIF struct {
	models *Registry
}

// NewLIF creates the built-in engine backed by the given model registry.
// A nil registry uses the built-in models only.
func NewLIF(models *Registry) *LIF {
	if models == nil {
		models = NewRegistry()
	}
	return &LIF{models: models}
}

// Initialize implements Engine.
func (e *LIF) Initialize(ctx context.Context, circuit sim.CircuitConfig, raw json.RawMessage) (Handle, error) {
	model, err := e.models.Lookup(circuit.SimModel)
	if err != nil {
		return nil, &InitError{Err: err}
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &InitError{Err: fmt.Errorf("invalid simulation config: %w", err)}
	}
	cfg.applyDefaults()
	if err := cfg.validate(model); err != nil {
		return nil, &InitError{Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &InitError{Err: err}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := &simulation{
		model: model,
		cfg:   cfg,
		cells: make(map[int]*cell, len(cfg.Gids)),
		rec:   &recorder{},
	}

	for _, gid := range cfg.Gids {
		n := len(model.Sections)
		c := &cell{
			v:      make([]float64, n),
			isyn:   make([]float64, n),
			inject: make([]float64, n),
			next:   make([]float64, n),
		}
		for i := range c.v {
			c.v[i] = model.RestingPotential
		}
		s.cells[gid] = c
	}

	for _, r := range cfg.Recordings {
		idx, _ := model.sectionIndex(r.SectionName)
		s.rec.voltage = append(s.rec.voltage, &site{gid: r.Gid, section: idx, name: r.SectionName})
	}

	for _, st := range cfg.Stimuli {
		idx, _ := model.sectionIndex(st.SectionName)
		b := &boundStimulus{Stimulus: st, section: idx}
		c := s.cells[st.Gid]
		c.stimuli = append(c.stimuli, b)
		if st.Type == StimulusVClamp {
			s.clamps = append(s.clamps, b)
			s.rec.current = append(s.rec.current, &site{gid: st.Gid, section: idx, name: st.SectionName})
		}
	}

	pres := make([]int, 0, len(cfg.Synapses))
	for pre := range cfg.Synapses {
		pres = append(pres, pre)
	}
	sort.Ints(pres)
	for _, pre := range pres {
		in := cfg.Synapses[pre]
		drive := &synapticDrive{
			train:  spikeTrain(rng, in),
			weight: in.WeightScalar * model.SynapseWeight,
		}
		for _, target := range in.Synapses {
			drive.targets = append(drive.targets, synapseRef{
				gid:     target.PostGid,
				section: target.Index % len(model.Sections),
			})
		}
		s.drives = append(s.drives, drive)
	}

	return s, nil
}

type cell struct {
	v       []float64
	isyn    []float64
	stimuli []*boundStimulus

	// per-step scratch
	inject []float64
	next   []float64
}

type synapseRef struct {
	gid     int
	section int
}

type synapticDrive struct {
	train   []float64
	next    int
	weight  float64
	targets []synapseRef
}

type simulation struct {
	model  Model
	cfg    Config
	cells  map[int]*cell
	clamps []*boundStimulus
	drives []*synapticDrive
	rec    *recorder
	hook   func()
}

func (s *simulation) SetProgressHook(hook func()) {
	s.hook = hook
}

func (s *simulation) TraceDiff() *sim.ProgressPayload {
	return s.rec.diff()
}

func (s *simulation) Run(ctx context.Context) error {
	dt := s.cfg.TimeStep
	skip := int(math.Round(s.cfg.ForwardSkip / dt))
	steps := skip + int(math.Ceil(s.cfg.TStop/dt-1e-9))
	nextProgress := s.cfg.ProgressInterval
	decay := math.Exp(-dt / s.model.SynapseTau)

	for i := 0; i < steps; i++ {
		t := float64(i-skip) * dt
		s.deliverSpikes(t)
		if err := s.step(t, dt, decay); err != nil {
			return &RunError{Err: err}
		}

		now := float64(i+1-skip) * dt
		s.rec.sample(now,
			func(st *site) float64 { return s.cells[st.gid].v[st.section] },
			func(idx int) float64 { return s.clamps[idx].clampCurrent },
		)

		if now >= nextProgress {
			for nextProgress <= now {
				nextProgress += s.cfg.ProgressInterval
			}
			if err := s.progress(ctx); err != nil {
				return err
			}
		}
	}

	if s.rec.pending() > 0 {
		return s.progress(ctx)
	}
	return nil
}

func (s *simulation) progress(ctx context.Context) error {
	if s.hook != nil {
		s.hook()
	}
	return ctx.Err()
}

func (s *simulation) deliverSpikes(t float64) {
	for _, d := range s.drives {
		for d.next < len(d.train) && d.train[d.next] <= t {
			for _, ref := range d.targets {
				s.cells[ref.gid].isyn[ref.section] += d.weight
			}
			d.next++
		}
	}
}

func (s *simulation) step(t, dt, decay float64) error {
	m := s.model
	for _, gid := range s.cfg.Gids {
		c := s.cells[gid]

		inject, next := c.inject, c.next
		clear(inject)
		for _, st := range c.stimuli {
			inject[st.section] += st.current(t, c.v[st.section])
		}

		for i, v := range c.v {
			current := -m.LeakConductance*(v-m.RestingPotential) + inject[i] + c.isyn[i]
			if i == 0 {
				for j := 1; j < len(c.v); j++ {
					current += m.Coupling * (c.v[j] - v)
				}
			} else {
				current += m.Coupling * (c.v[0] - v)
			}
			next[i] = v + dt*current/m.Capacitance
			if math.IsNaN(next[i]) || math.IsInf(next[i], 0) {
				return fmt.Errorf("numerical instability in cell %d section %s at t=%.3f ms", gid, m.Sections[i], t)
			}
		}

		if next[0] >= m.Threshold {
			next[0] = m.ResetPotential
		}
		copy(c.v, next)
		for i := range c.isyn {
			c.isyn[i] *= decay
		}
	}
	return nil
}
