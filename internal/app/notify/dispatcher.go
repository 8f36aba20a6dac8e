// Package notify delivers gathering lifecycle events: completion callbacks
// over HTTP and an in-process hub for live watchers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Gather/internal/core"
)

type Options struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

type delivery struct {
	ev      core.Event
	attempt int
}

// Dispatcher posts FULL and EARLY_COMPLETED events to the definition
// callback. Publish only enqueues; workers deliver and retry failures on
// their own schedule, so a failed delivery never affects the gathering.
type Dispatcher struct {
	opts   Options
	client *http.Client
	queue  chan delivery

	delivered atomic.Int64
	dropped   atomic.Int64
}

func NewDispatcher(opts Options, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Dispatcher{
		opts:   opts,
		client: client,
		queue:  make(chan delivery, opts.QueueSize),
	}
}

func (d *Dispatcher) Publish(ev core.Event) {
	if ev.Reason == core.ReasonBrokenUp || ev.Callback == "" {
		return
	}
	d.enqueue(delivery{ev: ev})
}

func (d *Dispatcher) enqueue(dl delivery) {
	select {
	case d.queue <- dl:
	default:
		d.dropped.Add(1)
		log.Error().
			Str("module", "app.notify").
			Str("gathering", string(dl.ev.GatheringID)).
			Msg("callback queue full, event dropped")
	}
}

// Run starts the workers and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.opts.Workers; i++ {
		g.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case dl := <-d.queue:
			d.deliver(ctx, dl)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dl delivery) {
	err := d.post(ctx, dl.ev)
	dl.attempt++
	logger := log.With().
		Str("module", "app.notify").
		Str("gathering", string(dl.ev.GatheringID)).
		Str("reason", string(dl.ev.Reason)).
		Int("attempt", dl.attempt).
		Logger()
	if err == nil {
		d.delivered.Add(1)
		logger.Info().Msg("callback delivered")
		return
	}
	if dl.attempt >= d.opts.MaxAttempts {
		d.dropped.Add(1)
		logger.Error().Err(err).Msg("callback failed, giving up")
		return
	}
	wait := d.backoff(dl.attempt)
	logger.Warn().Err(err).Dur("retry_in", wait).Msg("callback failed")
	time.AfterFunc(wait, func() { d.enqueue(dl) })
}

func (d *Dispatcher) post(ctx context.Context, ev core.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ev.Callback, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback status %d", resp.StatusCode)
	}
	return nil
}

// backoff doubles from InitialBackoff per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.opts.InitialBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if d.opts.MaxBackoff > 0 && wait >= d.opts.MaxBackoff {
			return d.opts.MaxBackoff
		}
	}
	return wait
}

func (d *Dispatcher) Delivered() int64 { return d.delivered.Load() }
func (d *Dispatcher) Dropped() int64   { return d.dropped.Load() }
