package index

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

func ptr(v int64) *int64 { return &v }

func fill(x *Index, n int) {
	for i := 1; i <= n; i++ {
		x.Add(&domain.Gathering{
			ID:         domain.GatheringID(fmt.Sprintf("g%d", i)),
			Definition: "arena",
			Seq:        uint64(i),
			Status:     domain.StatusOpen,
			Attributes: domain.Attributes{int64(i * 10)},
		})
	}
}

func TestIndexScan(t *testing.T) {
	t.Run("first match in creation order", func(t *testing.T) {
		x := New()
		fill(x, 5)
		pred := domain.Predicate{{Min: ptr(25)}}
		res := x.Scan("arena", 0, pred, Budget{}, time.Now)
		require.NotNil(t, res.Match)
		assert.Equal(t, domain.GatheringID("g3"), res.Match.ID)
		assert.Equal(t, 3, res.Visited)
		assert.False(t, res.Exhausted)
	})

	t.Run("visit budget bounds each call", func(t *testing.T) {
		x := New()
		fill(x, 5)
		pred := domain.Predicate{{Min: ptr(50), Max: ptr(50)}}

		cursor := uint64(0)
		for i := 1; i <= 4; i++ {
			res := x.Scan("arena", cursor, pred, Budget{MaxVisits: 1}, time.Now)
			assert.Nil(t, res.Match)
			assert.Equal(t, 1, res.Visited)
			assert.False(t, res.Exhausted)
			cursor = res.Cursor
		}
		res := x.Scan("arena", cursor, pred, Budget{MaxVisits: 1}, time.Now)
		require.NotNil(t, res.Match)
		assert.Equal(t, domain.GatheringID("g5"), res.Match.ID)
		assert.True(t, res.Exhausted)
	})

	t.Run("expired deadline still inspects one entry", func(t *testing.T) {
		x := New()
		fill(x, 3)
		res := x.Scan("arena", 0, domain.Predicate{{Min: ptr(1000)}}, Budget{Deadline: time.Unix(0, 0)}, time.Now)
		assert.Equal(t, 1, res.Visited)
		assert.Equal(t, uint64(1), res.Cursor)
	})

	t.Run("no match exhausts", func(t *testing.T) {
		x := New()
		fill(x, 3)
		res := x.Scan("arena", 0, domain.Predicate{{Max: ptr(0)}}, Budget{}, time.Now)
		assert.Nil(t, res.Match)
		assert.True(t, res.Exhausted)
		assert.Equal(t, 3, res.Visited)
	})

	t.Run("empty predicate matches anything", func(t *testing.T) {
		x := New()
		fill(x, 2)
		res := x.Scan("arena", 0, nil, Budget{}, time.Now)
		require.NotNil(t, res.Match)
		assert.Equal(t, domain.GatheringID("g1"), res.Match.ID)
	})

	t.Run("omitted axis matches any value", func(t *testing.T) {
		x := New()
		x.Add(&domain.Gathering{ID: "a", Definition: "arena", Seq: 1, Status: domain.StatusOpen, Attributes: domain.Attributes{7, 3}})
		res := x.Scan("arena", 0, domain.Predicate{{}, {Min: ptr(3), Max: ptr(3)}}, Budget{}, time.Now)
		require.NotNil(t, res.Match)
	})
}

func TestIndexMaintenance(t *testing.T) {
	t.Run("events remove entries", func(t *testing.T) {
		x := New()
		fill(x, 3)
		x.Publish(core.Event{GatheringID: "g2", Reason: core.ReasonFull})
		assert.Equal(t, 2, x.Len("arena"))

		res := x.Scan("arena", 1, nil, Budget{}, time.Now)
		require.NotNil(t, res.Match)
		assert.Equal(t, domain.GatheringID("g3"), res.Match.ID)
	})

	t.Run("late arrival keeps seq order", func(t *testing.T) {
		x := New()
		x.Add(&domain.Gathering{ID: "b", Definition: "arena", Seq: 2, Status: domain.StatusOpen})
		x.Add(&domain.Gathering{ID: "a", Definition: "arena", Seq: 1, Status: domain.StatusOpen})
		res := x.Scan("arena", 0, nil, Budget{}, time.Now)
		assert.Equal(t, domain.GatheringID("a"), res.Match.ID)
	})

	t.Run("closed gatherings are not indexed", func(t *testing.T) {
		x := New()
		x.Add(&domain.Gathering{ID: "a", Definition: "arena", Seq: 1, Status: domain.StatusFull})
		assert.Equal(t, 0, x.Len("arena"))
	})

	t.Run("drop forgets a definition", func(t *testing.T) {
		x := New()
		fill(x, 3)
		x.Drop("arena")
		assert.Equal(t, 0, x.Len("arena"))
		assert.False(t, x.HasAfter("arena", 0))
	})
}

func TestSearches(t *testing.T) {
	pred := domain.Predicate{{Min: ptr(1)}}

	t.Run("resume returns retained predicate", func(t *testing.T) {
		s := NewSearches(time.Minute)
		st := s.Begin("arena", "alice", pred, nil)
		pred[0].Min = ptr(99)

		got, err := s.Resume(st.ID, "arena", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), *got.Predicate[0].Min)

		s.Advance(st.ID, 7)
		got, _ = s.Resume(st.ID, "arena", "alice")
		assert.Equal(t, uint64(7), got.Cursor)
	})

	t.Run("foreign or finished contexts are not found", func(t *testing.T) {
		s := NewSearches(time.Minute)
		st := s.Begin("arena", "alice", nil, nil)
		_, err := s.Resume(st.ID, "arena", "bob")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Resume(st.ID, "other", "alice")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		s.Finish(st.ID)
		_, err = s.Resume(st.ID, "arena", "alice")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("expiry", func(t *testing.T) {
		s := NewSearches(time.Second)
		now := time.Unix(100, 0)
		s.now = func() time.Time { return now }
		a := s.Begin("arena", "alice", nil, nil)
		s.Begin("arena", "bob", nil, nil)

		now = now.Add(2 * time.Second)
		_, err := s.Resume(a.ID, "arena", "alice")
		assert.ErrorIs(t, err, domain.ErrContextNotFound)
		assert.Equal(t, 1, s.Sweep())
		assert.Equal(t, 0, s.Len())
	})
}
