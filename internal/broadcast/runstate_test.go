package broadcast

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunState_InitiallyNotRunning(t *testing.T) {
	var s RunState
	assert.False(t, s.Running())

	called := false
	unsub := s.Subscribe(func(bool) { called = true })
	defer unsub()
	assert.False(t, called, "no value published yet, nothing to replay")
}

func TestRunState_PublishOrder(t *testing.T) {
	s := New()
	var got []string

	s.Subscribe(func(v bool) { got = append(got, "a:"+boolStr(v)) })
	s.Subscribe(func(v bool) { got = append(got, "b:"+boolStr(v)) })

	s.Publish(true)
	s.Publish(false)

	assert.Equal(t, []string{"a:true", "b:true", "a:false", "b:false"}, got)
	assert.False(t, s.Running())
}

func TestRunState_SubscribeReplaysCurrent(t *testing.T) {
	s := New()
	s.Publish(true)

	var seen []bool
	s.Subscribe(func(v bool) { seen = append(seen, v) })
	s.Publish(false)

	assert.Equal(t, []bool{true, false}, seen)
}

func TestRunState_Unsubscribe(t *testing.T) {
	s := New()
	count := 0
	unsub := s.Subscribe(func(bool) { count++ })
	other := s.Subscribe(func(bool) {})
	require.Equal(t, 2, s.Observers())

	s.Publish(true)
	unsub()
	unsub() // idempotent
	s.Publish(false)

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, s.Observers())
	other()
	assert.Zero(t, s.Observers())
}

// Every observer sees the same sequence even when publishers race.
func TestRunState_ConcurrentPublishersAgree(t *testing.T) {
	s := New()
	var mu sync.Mutex
	seqA, seqB := []bool{}, []bool{}
	s.Subscribe(func(v bool) { mu.Lock(); seqA = append(seqA, v); mu.Unlock() })
	s.Subscribe(func(v bool) { mu.Lock(); seqB = append(seqB, v); mu.Unlock() })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v bool) {
			defer wg.Done()
			s.Publish(v)
		}(i%2 == 0)
	}
	wg.Wait()

	require.Len(t, seqA, 50)
	assert.Equal(t, seqA, seqB)
	assert.Equal(t, seqA[len(seqA)-1], s.Running())
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
