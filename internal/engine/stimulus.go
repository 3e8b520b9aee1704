package engine

import (
	"math"
	"math/rand"
)

// boundStimulus is a Stimulus resolved to a cell and section index.
type boundStimulus struct {
	Stimulus
	section int

	// last clamp current, recorded for vclamp stimuli
	clampCurrent float64
}

func (s *boundStimulus) active(t float64) bool {
	return t >= s.Delay && t < s.Delay+s.Duration
}

// current returns the injected current at time t for a section at
// potential v.
func (s *boundStimulus) current(t, v float64) float64 {
	if !s.active(t) {
		if s.Type == StimulusVClamp {
			s.clampCurrent = 0
		}
		return 0
	}

	switch s.Type {
	case StimulusStep:
		return s.Current
	case StimulusRamp:
		if s.Duration == 0 {
			return s.Current
		}
		frac := (t - s.Delay) / s.Duration
		return s.Current + frac*(s.StopCurrent-s.Current)
	case StimulusPulse:
		period := 1000 / s.Frequency
		if math.Mod(t-s.Delay, period) < s.Width {
			return s.Current
		}
		return 0
	case StimulusVClamp:
		s.clampCurrent = (s.Voltage - v) / s.SeriesResistance
		return s.clampCurrent
	}
	return 0
}

// spikeTrain generates presynaptic spike times: the first spike at Delay,
// then Poisson distributed inter-spike intervals with mean 1000/frequency ms.
func spikeTrain(rng *rand.Rand, in SynapseInput) []float64 {
	size := int(math.Round(in.Duration / 1000 * in.SpikeFrequency))
	if size <= 0 {
		return nil
	}
	interval := 1000 / in.SpikeFrequency

	train := make([]float64, size)
	t := in.Delay
	train[0] = t
	for i := 1; i < size; i++ {
		t += float64(poisson(rng, interval))
		train[i] = t
	}
	return train
}

func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda >= 30 {
		k := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		return int(math.Max(k, 0))
	}

	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
