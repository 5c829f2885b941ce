// SPDX-License-Identifier: MIT

package fsm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func TestMachineFire(t *testing.T) {
	m, err := New[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "go", To: "busy"},
		{From: "busy", Event: "done", To: "idle"},
	})
	require.NoError(t, err)

	var seen []string
	m.Observe(func(from, to state, ev event) { seen = append(seen, string(from)+">"+string(to)) })

	got, err := m.Fire(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, state("busy"), got)
	assert.False(t, m.Can("go"))
	assert.True(t, m.Can("done"))

	got, err = m.Fire(context.Background(), "go")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, state("busy"), got)
	assert.Equal(t, state("busy"), m.State())

	_, err = m.Fire(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle>busy", "busy>idle"}, seen)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	assert.ErrorContains(t, err, "already leads to b")
	assert.Panics(t, func() {
		MustNew[state, event]("a", []Transition[state, event]{
			{From: "a", Event: "x", To: "b"},
			{From: "a", Event: "x", To: "b"},
		})
	})
}

func TestOnlyOneConcurrentFireWins(t *testing.T) {
	m := MustNew[state, event]("idle", []Transition[state, event]{
		{From: "idle", Event: "go", To: "busy"},
	})
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Fire(context.Background(), "go"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
