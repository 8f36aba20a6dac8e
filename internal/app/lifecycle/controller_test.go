package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
	"github.com/dkeye/Gather/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Publish(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) byReason(reason core.Reason) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, ev := range r.events {
		if ev.Reason == reason {
			out = append(out, ev)
		}
	}
	return out
}

func setup(t *testing.T, maxPlayer int) (*Controller, *domain.Definition, *recorder) {
	t.Helper()
	store := storage.NewMemoryStore()
	def := &domain.Definition{
		Name:         "duel",
		OwnerID:      "owner",
		Type:         domain.StrategyRoom,
		MaxPlayer:    maxPlayer,
		ServiceClass: "small",
		Callback:     "http://example.test/done",
	}
	require.NoError(t, store.CreateDefinition(context.Background(), def))
	rec := &recorder{}
	return NewController(store, store, rec, nil), def, rec
}

func TestControllerJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("filling fires one FULL event", func(t *testing.T) {
		ctl, def, rec := setup(t, 3)
		g, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, g.Status)
		assert.Equal(t, domain.UserID("alice"), g.CreatorID)

		g, err = ctl.Join(ctx, g.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, g.Status)

		g, err = ctl.Join(ctx, g.ID, "carol")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusFull, g.Status)
		assert.Equal(t, []domain.UserID{"alice", "bob", "carol"}, g.Players)

		full := rec.byReason(core.ReasonFull)
		require.Len(t, full, 1)
		assert.Equal(t, g.ID, full[0].GatheringID)
		assert.Equal(t, "http://example.test/done", full[0].Callback)
		assert.Equal(t, g.Players, full[0].Players)

		_, err = ctl.Join(ctx, g.ID, "dave")
		assert.True(t, errors.Is(err, domain.ErrCapacityExceeded))
	})

	t.Run("rejoin is idempotent", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		again, err := ctl.Join(ctx, g.ID, "alice")
		require.NoError(t, err)
		assert.Len(t, again.Players, 1)
	})

	t.Run("unknown gathering", func(t *testing.T) {
		ctl, _, _ := setup(t, 3)
		_, err := ctl.Join(ctx, "missing", "bob")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("closed gathering is a conflict", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		_, err := ctl.Breakup(ctx, g.ID, "alice")
		require.NoError(t, err)

		_, err = ctl.Join(ctx, g.ID, "bob")
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	})

	t.Run("one open gathering per definition", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		a, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		b, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "bob"})
		_, err := ctl.Join(ctx, b.ID, "alice")
		assert.True(t, errors.Is(err, domain.ErrAlreadyJoined))

		_, err = ctl.Leave(ctx, a.ID, "alice")
		require.NoError(t, err)
		_, err = ctl.Join(ctx, b.ID, "alice")
		assert.NoError(t, err)
	})

	t.Run("invalid create arguments", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		_, err := ctl.Create(ctx, CreateParams{Definition: def})
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

		_, err = ctl.Create(ctx, CreateParams{Definition: def, Creator: "a", Attributes: make(domain.Attributes, 6)})
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

		meta := make([]byte, domain.MaxMetaBytes+1)
		_, err = ctl.Create(ctx, CreateParams{Definition: def, Creator: "a", Meta: string(meta)})
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	})

	t.Run("admission throttles by service class", func(t *testing.T) {
		store := storage.NewMemoryStore()
		def := &domain.Definition{Name: "duel", Type: domain.StrategyRoom, MaxPlayer: 4, ServiceClass: "tiny"}
		require.NoError(t, store.CreateDefinition(ctx, def))
		ctl := NewController(store, store, nil, NewQuota(map[domain.ServiceClass]int{"tiny": 2}, time.Minute))

		g, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		require.NoError(t, err)
		_, err = ctl.Join(ctx, g.ID, "bob")
		require.NoError(t, err)
		_, err = ctl.Join(ctx, g.ID, "carol")
		assert.True(t, errors.Is(err, domain.ErrUnavailable))
		assert.True(t, domain.Retryable(err))
	})

	t.Run("refused mutations keep their admission", func(t *testing.T) {
		store := storage.NewMemoryStore()
		def := &domain.Definition{Name: "duel", Type: domain.StrategyPasscode, MaxPlayer: 4, ServiceClass: "tiny"}
		require.NoError(t, store.CreateDefinition(ctx, def))
		ctl := NewController(store, store, nil, NewQuota(map[domain.ServiceClass]int{"tiny": 3}, time.Minute))

		g1, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice", Passcode: "11111111"})
		require.NoError(t, err)
		g2, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "bob"})
		require.NoError(t, err)

		_, err = ctl.Join(ctx, g2.ID, "alice")
		assert.True(t, errors.Is(err, domain.ErrAlreadyJoined))
		_, err = ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		assert.True(t, errors.Is(err, domain.ErrAlreadyJoined))
		_, err = ctl.Create(ctx, CreateParams{Definition: def, Creator: "carol", Passcode: "11111111"})
		assert.True(t, errors.Is(err, domain.ErrPasscodeInUse))

		_, err = ctl.Join(ctx, g1.ID, "dave")
		require.NoError(t, err)
		_, err = ctl.Join(ctx, g1.ID, "erin")
		assert.True(t, errors.Is(err, domain.ErrThrottled))
	})

	t.Run("created hook runs before any close", func(t *testing.T) {
		ctl, def, rec := setup(t, 3)
		done := make(chan struct{})
		var closeErr error
		p := CreateParams{Definition: def, Creator: "alice", OnCreated: func(g *domain.Gathering) {
			go func() {
				_, closeErr = ctl.Dissolve(ctx, g.ID)
				close(done)
			}()
			time.Sleep(20 * time.Millisecond)
			assert.Empty(t, rec.byReason(core.ReasonBrokenUp))
		}}

		g, err := ctl.Create(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, g.Status)

		<-done
		require.NoError(t, closeErr)
		assert.Len(t, rec.byReason(core.ReasonBrokenUp), 1)
	})

	t.Run("stale definition cannot create", func(t *testing.T) {
		store := storage.NewMemoryStore()
		def := &domain.Definition{ID: "first", Name: "duel", Type: domain.StrategyRoom, MaxPlayer: 2}
		require.NoError(t, store.CreateDefinition(ctx, def))
		require.NoError(t, store.DeleteDefinition(ctx, "duel"))
		require.NoError(t, store.CreateDefinition(ctx, &domain.Definition{ID: "second", Name: "duel", Type: domain.StrategyRoom, MaxPlayer: 4}))
		ctl := NewController(store, store, nil, nil)

		_, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		_, ok := store.MemberOf(ctx, "duel", "alice")
		assert.False(t, ok)
	})
}

func TestControllerConcurrentJoins(t *testing.T) {
	const capacity = 8
	const joiners = 64

	ctl, def, rec := setup(t, capacity)
	ctx := context.Background()
	g, err := ctl.Create(ctx, CreateParams{Definition: def, Creator: "creator"})
	require.NoError(t, err)

	var joined, exceeded atomic.Int32
	var eg errgroup.Group
	for i := 0; i < joiners; i++ {
		user := domain.UserID(fmt.Sprintf("p%d", i))
		eg.Go(func() error {
			_, err := ctl.Join(ctx, g.ID, user)
			switch {
			case err == nil:
				joined.Add(1)
			case errors.Is(err, domain.ErrCapacityExceeded):
				exceeded.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	final, err := ctl.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, final.Players, capacity)
	assert.Equal(t, domain.StatusFull, final.Status)
	assert.Equal(t, int32(capacity-1), joined.Load())
	assert.Equal(t, int32(joiners-capacity+1), exceeded.Load())
	assert.Len(t, rec.byReason(core.ReasonFull), 1)
}

func TestControllerLeave(t *testing.T) {
	ctx := context.Background()

	t.Run("twice is a no-op success", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		_, err := ctl.Join(ctx, g.ID, "bob")
		require.NoError(t, err)

		first, err := ctl.Leave(ctx, g.ID, "bob")
		require.NoError(t, err)
		second, err := ctl.Leave(ctx, g.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, first.Players, second.Players)
		assert.Equal(t, first.UpdateAt, second.UpdateAt)
	})

	t.Run("last player leaving keeps gathering open", func(t *testing.T) {
		ctl, def, _ := setup(t, 3)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		g, err := ctl.Leave(ctx, g.ID, "alice")
		require.NoError(t, err)
		assert.Empty(t, g.Players)
		assert.Equal(t, domain.StatusOpen, g.Status)

		// creator privilege survives leaving
		_, err = ctl.Breakup(ctx, g.ID, "alice")
		assert.NoError(t, err)
	})
}

func TestControllerCreatorPrivilege(t *testing.T) {
	ctx := context.Background()

	t.Run("non-creator is forbidden and state unchanged", func(t *testing.T) {
		ctl, def, rec := setup(t, 3)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		_, _ = ctl.Join(ctx, g.ID, "bob")

		_, err := ctl.Breakup(ctx, g.ID, "bob")
		assert.True(t, errors.Is(err, domain.ErrForbidden))
		_, err = ctl.EarlyComplete(ctx, g.ID, "bob")
		assert.True(t, errors.Is(err, domain.ErrForbidden))

		after, _ := ctl.Get(ctx, g.ID)
		assert.Equal(t, domain.StatusOpen, after.Status)
		assert.Len(t, after.Players, 2)
		assert.Empty(t, rec.events)
	})

	t.Run("early complete below capacity notifies once", func(t *testing.T) {
		ctl, def, rec := setup(t, 4)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		_, _ = ctl.Join(ctx, g.ID, "bob")

		g, err := ctl.EarlyComplete(ctx, g.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusEarlyCompleted, g.Status)

		_, err = ctl.EarlyComplete(ctx, g.ID, "alice")
		assert.True(t, errors.Is(err, domain.ErrConflict))

		early := rec.byReason(core.ReasonEarlyCompleted)
		require.Len(t, early, 1)
		assert.Equal(t, []domain.UserID{"alice", "bob"}, early[0].Players)
		assert.Equal(t, def.Callback, early[0].Callback)
	})

	t.Run("breakup suppresses completion", func(t *testing.T) {
		ctl, def, rec := setup(t, 4)
		g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})
		g, err := ctl.Breakup(ctx, g.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusBrokenUp, g.Status)
		assert.Empty(t, rec.byReason(core.ReasonFull))
		assert.Empty(t, rec.byReason(core.ReasonEarlyCompleted))
		broken := rec.byReason(core.ReasonBrokenUp)
		require.Len(t, broken, 1)
		assert.Empty(t, broken[0].Callback)
	})

	t.Run("breakup racing join has one winner", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			ctl, def, _ := setup(t, 2)
			g, _ := ctl.Create(ctx, CreateParams{Definition: def, Creator: "alice"})

			var joinErr, breakErr error
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); _, joinErr = ctl.Join(ctx, g.ID, "bob") }()
			go func() { defer wg.Done(); _, breakErr = ctl.Breakup(ctx, g.ID, "alice") }()
			wg.Wait()

			final, _ := ctl.Get(ctx, g.ID)
			if joinErr == nil {
				assert.Equal(t, domain.StatusFull, final.Status)
				assert.True(t, errors.Is(breakErr, domain.ErrConflict))
			} else {
				assert.NoError(t, breakErr)
				assert.Equal(t, domain.StatusBrokenUp, final.Status)
				assert.True(t, errors.Is(joinErr, domain.ErrConflict))
			}
		}
	})
}
