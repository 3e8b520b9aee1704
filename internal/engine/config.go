package engine

import (
	"fmt"
	"slices"
)

const (
	defaultTimeStep         = 0.025
	defaultProgressInterval = 10.0
)

// Config is the client-supplied simulation configuration.
type Config struct {
	Gids             []int                `json:"gids"`
	TStop            float64              `json:"tStop"`
	TimeStep         float64              `json:"timeStep"`
	ForwardSkip      float64              `json:"forwardSkip"`
	ProgressInterval float64              `json:"progressInterval"`
	Seed             int64                `json:"seed"`
	Recordings       []Recording          `json:"recordings"`
	Stimuli          []Stimulus           `json:"stimuli"`
	Synapses         map[int]SynapseInput `json:"synapses"`
}

// Recording selects a section whose membrane voltage is traced.
type Recording struct {
	Gid         int    `json:"gid"`
	SectionName string `json:"sectionName"`
}

// Stimulus types.
const (
	StimulusStep   = "step"
	StimulusRamp   = "ramp"
	StimulusPulse  = "pulse"
	StimulusVClamp = "vclamp"
)

// Stimulus is a current injection or voltage clamp on one section.
type Stimulus struct {
	Gid              int     `json:"gid"`
	SectionName      string  `json:"sectionName"`
	Type             string  `json:"type"`
	Delay            float64 `json:"delay"`
	Duration         float64 `json:"duration"`
	Current          float64 `json:"current"`
	StopCurrent      float64 `json:"stopCurrent"`
	Frequency        float64 `json:"frequency"`
	Width            float64 `json:"width"`
	Voltage          float64 `json:"voltage"`
	SeriesResistance float64 `json:"seriesResistance"`
}

// SynapseInput drives synapses with a Poisson spike train from a virtual
// presynaptic cell.
type SynapseInput struct {
	SpikeFrequency float64         `json:"spikeFrequency"`
	Duration       float64         `json:"duration"`
	Delay          float64         `json:"delay"`
	WeightScalar   float64         `json:"weightScalar"`
	Synapses       []SynapseTarget `json:"synapses"`
}

// SynapseTarget addresses a synapse by postsynaptic gid and synapse index.
type SynapseTarget struct {
	PostGid int `json:"postGid"`
	Index   int `json:"index"`
}

func (c *Config) applyDefaults() {
	if c.TimeStep == 0 {
		c.TimeStep = defaultTimeStep
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	slices.Sort(c.Gids)
	c.Gids = slices.Compact(c.Gids)
}

func (c *Config) validate(m Model) error {
	if len(c.Gids) == 0 {
		return fmt.Errorf("gids must not be empty")
	}
	if c.TStop <= 0 {
		return fmt.Errorf("tStop must be positive, got %v", c.TStop)
	}
	if c.TimeStep <= 0 {
		return fmt.Errorf("timeStep must be positive, got %v", c.TimeStep)
	}
	if c.ProgressInterval <= 0 {
		return fmt.Errorf("progressInterval must be positive, got %v", c.ProgressInterval)
	}
	if c.ForwardSkip < 0 {
		return fmt.Errorf("forwardSkip must not be negative, got %v", c.ForwardSkip)
	}

	gids := make(map[int]bool, len(c.Gids))
	for _, gid := range c.Gids {
		gids[gid] = true
	}
	section := func(gid int, name string) error {
		if !gids[gid] {
			return fmt.Errorf("gid %d is not instantiated", gid)
		}
		if _, ok := m.sectionIndex(name); !ok {
			return fmt.Errorf("cell %d has no section %q", gid, name)
		}
		return nil
	}

	for _, r := range c.Recordings {
		if err := section(r.Gid, r.SectionName); err != nil {
			return fmt.Errorf("recording: %w", err)
		}
	}

	for _, s := range c.Stimuli {
		if err := section(s.Gid, s.SectionName); err != nil {
			return fmt.Errorf("stimulus: %w", err)
		}
		if s.Duration < 0 || s.Delay < 0 {
			return fmt.Errorf("stimulus: delay and duration must not be negative")
		}
		switch s.Type {
		case StimulusStep, StimulusRamp:
		case StimulusPulse:
			if s.Frequency <= 0 || s.Width <= 0 {
				return fmt.Errorf("pulse stimulus: frequency and width must be positive")
			}
		case StimulusVClamp:
			if s.SeriesResistance <= 0 {
				return fmt.Errorf("vclamp stimulus: seriesResistance must be positive")
			}
		default:
			return fmt.Errorf("unknown stimulus type %q", s.Type)
		}
	}

	for pre, in := range c.Synapses {
		if in.SpikeFrequency <= 0 {
			return fmt.Errorf("synapse input %d: spikeFrequency must be positive", pre)
		}
		for _, target := range in.Synapses {
			if !gids[target.PostGid] {
				return fmt.Errorf("synapse input %d: gid %d is not instantiated", pre, target.PostGid)
			}
			if target.Index < 0 {
				return fmt.Errorf("synapse input %d: negative synapse index", pre)
			}
		}
	}
	return nil
}
