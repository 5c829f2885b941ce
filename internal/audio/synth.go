// SPDX-License-Identifier: MIT

// Package audio synthesises the short door cues procedurally (oscillator
// plus gain envelope) so the engine ships without bundled media.
package audio

import (
	"math"
	"time"
)

// Kind selects a cue.
type Kind string

const (
	KindSuccess Kind = "SUCCESS"
	KindError   Kind = "ERROR"
	KindWarning Kind = "WARNING"
)

// DefaultSampleRate is used when a non-positive rate is requested.
const DefaultSampleRate = 22050

type waveform int

const (
	waveSine waveform = iota
	waveSquare
	waveSilence
)

// segment is one oscillator run. Frequency sweeps linearly from f0 to f1.
type segment struct {
	dur    time.Duration
	f0, f1 float64
	wave   waveform
	gain   float64
}

// Rising two-step tone, descending harsh sweep, double pulse.
var cues = map[Kind][]segment{
	KindSuccess: {
		{dur: 110 * time.Millisecond, f0: 880, f1: 880, wave: waveSine, gain: 0.55},
		{dur: 160 * time.Millisecond, f0: 1320, f1: 1320, wave: waveSine, gain: 0.55},
	},
	KindError: {
		{dur: 350 * time.Millisecond, f0: 440, f1: 220, wave: waveSquare, gain: 0.35},
	},
	KindWarning: {
		{dur: 110 * time.Millisecond, f0: 660, f1: 660, wave: waveSine, gain: 0.6},
		{dur: 70 * time.Millisecond, wave: waveSilence},
		{dur: 110 * time.Millisecond, f0: 660, f1: 660, wave: waveSine, gain: 0.6},
	},
}

// Duration returns the length of the cue for kind, or 0 if unknown.
func Duration(kind Kind) time.Duration {
	var total time.Duration
	for _, s := range cues[kind] {
		total += s.dur
	}
	return total
}

// Synthesize renders kind as signed 16-bit mono PCM. Unknown kinds
// render nothing.
func Synthesize(kind Kind, sampleRate int) []int16 {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	segs := cues[kind]
	var out []int16
	for _, s := range segs {
		out = append(out, render(s, sampleRate)...)
	}
	return out
}

func render(s segment, sampleRate int) []int16 {
	n := int(s.dur.Seconds() * float64(sampleRate))
	samples := make([]int16, n)
	if s.wave == waveSilence || n == 0 {
		return samples
	}

	attack := int(0.005 * float64(sampleRate))
	phase := 0.0
	for i := 0; i < n; i++ {
		progress := float64(i) / float64(n)
		freq := s.f0 + (s.f1-s.f0)*progress
		phase += 2 * math.Pi * freq / float64(sampleRate)

		var v float64
		switch s.wave {
		case waveSquare:
			if math.Sin(phase) >= 0 {
				v = 1
			} else {
				v = -1
			}
		default:
			v = math.Sin(phase)
		}

		// Linear attack, exponential release.
		env := math.Exp(-3 * progress)
		if i < attack {
			env *= float64(i) / float64(attack)
		}
		samples[i] = int16(v * env * s.gain * math.MaxInt16)
	}
	return samples
}
