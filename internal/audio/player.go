// SPDX-License-Identifier: MIT

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/turnstile/internal/metrics"
	"github.com/ManuGH/turnstile/internal/procgroup"
)

// Player plays a cue. Play never blocks on audio output and never fails
// observably.
type Player interface {
	Play(kind Kind)
}

// Sink is the actual audio output behind a Feedback player.
type Sink interface {
	Emit(ctx context.Context, wav []byte) error
}

// Discard is a Player that does nothing.
type Discard struct{}

func (Discard) Play(Kind) {}

// Feedback renders cues once and hands them to a Sink on a background
// goroutine. A cue requested while another one is still playing is
// dropped so tones never pile up behind each other.
type Feedback struct {
	sink    Sink
	timeout time.Duration
	logger  zerolog.Logger

	rendered map[Kind][]byte
	busy     chan struct{}
	wg       sync.WaitGroup
}

// NewFeedback pre-renders every cue at sampleRate.
func NewFeedback(sink Sink, sampleRate int, logger zerolog.Logger) *Feedback {
	f := &Feedback{
		sink:     sink,
		timeout:  3 * time.Second,
		logger:   logger,
		rendered: make(map[Kind][]byte, 3),
		busy:     make(chan struct{}, 1),
	}
	for _, k := range []Kind{KindSuccess, KindError, KindWarning} {
		wav, err := Render(k, sampleRate)
		if err != nil {
			logger.Warn().Err(err).Str("kind", string(k)).Msg("failed to render audio cue")
			continue
		}
		f.rendered[k] = wav
	}
	return f
}

// Play is fire-and-forget. Failures, including panics in the sink, are
// counted and logged at debug level only.
func (f *Feedback) Play(kind Kind) {
	wav, ok := f.rendered[kind]
	if !ok || f.sink == nil {
		metrics.IncAudioFailure(string(kind))
		return
	}
	select {
	case f.busy <- struct{}{}:
	default:
		return
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() { <-f.busy }()
		defer func() {
			if r := recover(); r != nil {
				metrics.IncAudioFailure(string(kind))
				f.logger.Debug().Interface("panic", r).Str("kind", string(kind)).Msg("audio sink panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.sink.Emit(ctx, wav); err != nil {
			metrics.IncAudioFailure(string(kind))
			f.logger.Debug().Err(err).Str("kind", string(kind)).Msg("audio cue not played")
		}
	}()
}

// Wait blocks until in-flight cues have finished.
func (f *Feedback) Wait() { f.wg.Wait() }

// CommandSink pipes the WAV stream into an external player such as
// "aplay -q -" or "paplay".
type CommandSink struct {
	Command []string
}

// ErrNoCommand is returned when CommandSink has nothing to run.
var ErrNoCommand = errors.New("audio: no player command configured")

// Emit runs the player with wav on stdin.
func (s CommandSink) Emit(ctx context.Context, wav []byte) error {
	if len(s.Command) == 0 {
		return ErrNoCommand
	}
	cmd := exec.Command(s.Command[0], s.Command[1:]...)
	cmd.Stdin = bytes.NewReader(wav)
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start audio player: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("audio player: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = procgroup.Terminate(cmd, waitCh, 200*time.Millisecond)
		return ctx.Err()
	}
}
