package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

const (
	writeWait         = 5 * time.Second
	defaultPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watch streams the lifecycle event that closes a gathering, then closes
// the socket. A gathering that is already closed yields its event at once.
func (h *handlers) watch(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := domain.GatheringID(c.Param("gatheringId"))

		// subscribe before reading state so no transition falls in between
		events, cancel := h.hub.Subscribe(id)
		g, err := h.orch.Gathering(c.Request.Context(), "", c.Param("name"), id)
		if err != nil {
			cancel()
			writeError(c, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			cancel()
			log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
			return
		}
		log.Info().
			Str("module", "adapters.http").
			Str("gathering", string(id)).
			Str("user", string(userOf(c))).
			Msg("watch opened")

		w := &watcher{
			conn:       ws,
			readLimit:  h.cfg.ReadLimit,
			pingPeriod: h.cfg.PingPeriod,
		}
		if g.Status.Terminal() {
			go w.run(ctx, id, closedEvent(g), nil, cancel)
			return
		}
		go w.run(ctx, id, core.Event{}, events, cancel)
	}
}

type watcher struct {
	conn       *websocket.Conn
	readLimit  int64
	pingPeriod time.Duration
}

// run writes one event, either ready or the first from events, and closes.
func (w *watcher) run(ctx context.Context, id domain.GatheringID, ready core.Event, events <-chan core.Event, unsubscribe func()) {
	defer func() {
		unsubscribe()
		_ = w.conn.Close()
		log.Info().Str("module", "adapters.http").Str("gathering", string(id)).Msg("watch closed")
	}()

	if events == nil {
		w.send(ready)
		return
	}

	gone := make(chan struct{})
	go w.readPump(gone)

	period := w.pingPeriod
	if period <= 0 {
		period = defaultPingPeriod
	}
	ping := time.NewTicker(period)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			w.closeWith(websocket.CloseGoingAway)
			return
		case <-gone:
			return
		case <-ping.C:
			if err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev := <-events:
			w.send(ev)
			return
		}
	}
}

func (w *watcher) send(ev core.Event) {
	data, err := json.Marshal(eventViewOf(ev))
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("watch marshal")
		return
	}
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("watch write")
		return
	}
	w.closeWith(websocket.CloseNormalClosure)
}

func (w *watcher) closeWith(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// readPump drains client frames so control messages are processed, and
// reports when the peer goes away.
func (w *watcher) readPump(gone chan<- struct{}) {
	defer close(gone)
	w.conn.SetReadLimit(w.readLimit)
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}
