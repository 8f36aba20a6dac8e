package match

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Gather/internal/app/lifecycle"
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

func (r *recorder) count(reason core.Reason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Reason == reason {
			n++
		}
	}
	return n
}

type harness struct {
	store *storage.MemoryStore
	ctl   *lifecycle.Controller
	rec   *recorder
	def   *domain.Definition
}

func newHarness(t *testing.T, typ domain.StrategyType, maxPlayer int, extra ...core.Notifier) *harness {
	t.Helper()
	store := storage.NewMemoryStore()
	def := &domain.Definition{
		Name:         "pool",
		OwnerID:      "owner",
		Type:         typ,
		MaxPlayer:    maxPlayer,
		ServiceClass: "small",
	}
	require.NoError(t, store.CreateDefinition(context.Background(), def))
	rec := &recorder{}
	fanout := core.NotifierFunc(func(ev core.Event) {
		rec.Publish(ev)
		for _, n := range extra {
			n.Publish(ev)
		}
	})
	return &harness{
		store: store,
		ctl:   lifecycle.NewController(store, store, fanout, nil),
		rec:   rec,
		def:   def,
	}
}

func createParams(def *domain.Definition, user domain.UserID) lifecycle.CreateParams {
	return lifecycle.CreateParams{Definition: def, Creator: user}
}
