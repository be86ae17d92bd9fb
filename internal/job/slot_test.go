package job

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlot(t *testing.T) {
	s, err := NewSlot("wallet_hd.py --descriptors", 7, "/tmp/run")
	require.NoError(t, err)

	assert.Equal(t, "wallet_hd.py --descriptors", s.Name)
	assert.Equal(t, "wallet_hd.py", s.Script)
	assert.Equal(t, []string{"--descriptors"}, s.Args)
	assert.Equal(t, 7, s.PortSeed)
	assert.Equal(t, filepath.Join("/tmp/run", "wallet_hd_7"), s.TestDir)
	assert.Equal(t, StatePending, s.State)
	assert.Zero(t, s.Attempt)
}

func TestNewSlotEmpty(t *testing.T) {
	_, err := NewSlot("   ", 0, "/tmp")
	assert.Error(t, err)
}

func TestSlotLifecycleWithRetry(t *testing.T) {
	s, err := NewSlot("p2p_timeouts.py", 3, "/tmp/run")
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	require.NoError(t, s.Start(t0))
	assert.Equal(t, 1, s.Attempt)

	require.NoError(t, s.Transition(StateRetrying))
	t1 := t0.Add(10 * time.Second)
	require.NoError(t, s.Start(t1))
	assert.Equal(t, 2, s.Attempt)
	assert.Equal(t, t1, s.StartTime)

	res, err := s.Finish(StatePassed, 0, t1.Add(3500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, res.Status)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int64(3), res.Seconds())

	// Terminal: nothing may follow.
	assert.Error(t, s.Start(t1))
}

func TestSlotFinishRejectsNonTerminal(t *testing.T) {
	s, err := NewSlot("a.py", 0, "/tmp")
	require.NoError(t, err)
	require.NoError(t, s.Start(time.Now()))

	_, err = s.Finish(StateRetrying, 1, time.Now())
	assert.Error(t, err)
	assert.Equal(t, StateRunning, s.State)
}
