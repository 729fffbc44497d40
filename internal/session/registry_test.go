package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ListSnapshot(t *testing.T) {
	r := NewRegistry()
	a, _ := newTestSession(t, 2)
	b, _ := newTestSession(t, 1)
	b.SetUserName("ops")

	r.Add(a)
	r.Add(b)

	list := r.List()
	require.Len(t, list, 2)
	assert.EqualValues(t, 1, list[0].ID)
	assert.Equal(t, "ops", list[0].UserName)
	assert.True(t, list[0].Connected)
	assert.NotEmpty(t, list[0].RemoteAddr)
	assert.EqualValues(t, 2, list[1].ID)
	assert.Equal(t, "", list[1].UserName)

	assert.Equal(t, 2, r.Live())
	assert.Same(t, a, r.Get(2))
}

func TestRegistry_ClosedSessionsStayListed(t *testing.T) {
	r := NewRegistry()
	s, _ := newTestSession(t, 1)
	r.Add(s)
	require.NoError(t, s.Close())

	list := r.List()
	require.Len(t, list, 1)
	assert.False(t, list[0].Connected)
	assert.Zero(t, r.Live())

	r.Remove(1)
	assert.Empty(t, r.List())
	assert.Nil(t, r.Get(1))
}

func TestRegistry_PrunesOldestClosed(t *testing.T) {
	r := &Registry{History: 2}
	for id := int64(1); id <= 4; id++ {
		s, _ := newTestSession(t, id)
		require.NoError(t, s.Close())
		r.Add(s)
	}
	live, _ := newTestSession(t, 5)
	r.Add(live)

	var ids []int64
	for _, info := range r.List() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []int64{3, 4, 5}, ids)
}

// Registration and listing race from many goroutines; run with -race.
func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	sessions := make([]*Session, 16)
	for i := range sessions {
		sessions[i], _ = newTestSession(t, int64(i))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(2)
		go func(s *Session) {
			defer wg.Done()
			r.Add(s)
			s.SetUserName("u")
			s.Close()
		}(s)
		go func() {
			defer wg.Done()
			_ = r.List()
			_ = r.Live()
		}()
	}
	wg.Wait()
	assert.Len(t, r.List(), 16)
}
