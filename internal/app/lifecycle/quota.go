package lifecycle

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Gather/internal/domain"
)

// ClassInfo describes one service class.
type ClassInfo struct {
	Name      domain.ServiceClass `json:"name"`
	PerSecond int                 `json:"perSecond"`
}

// Quota admits mutations per definition within its service class
// throughput. Windows are created on first use and dropped by Forget.
type Quota struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	classes  map[domain.ServiceClass]int
	interval time.Duration
	now      func() time.Time
}

func NewQuota(classes map[domain.ServiceClass]int, interval time.Duration) *Quota {
	return &Quota{
		history:  make(map[string][]time.Time),
		classes:  classes,
		interval: interval,
		now:      time.Now,
	}
}

func (q *Quota) Known(class domain.ServiceClass) bool {
	_, ok := q.classes[class]
	return ok
}

func (q *Quota) Classes() []ClassInfo {
	out := make([]ClassInfo, 0, len(q.classes))
	for name, limit := range q.classes {
		out = append(out, ClassInfo{Name: name, PerSecond: limit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PerSecond < out[j].PerSecond })
	return out
}

// Allow records an attempt for definition and reports whether it fits.
// A class without a positive limit is unthrottled.
func (q *Quota) Allow(definition string, class domain.ServiceClass) bool {
	limit := q.classes[class]
	if limit <= 0 {
		return true
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	windowStart := now.Add(-q.interval)

	attempts := q.history[definition]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= limit {
		q.history[definition] = fresh
		return false
	}
	q.history[definition] = append(fresh, now)
	return true
}

// Release takes back the latest admission recorded for definition.
func (q *Quota) Release(definition string, class domain.ServiceClass) {
	if q.classes[class] <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if attempts := q.history[definition]; len(attempts) > 0 {
		q.history[definition] = attempts[:len(attempts)-1]
	}
}

func (q *Quota) Forget(definition string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.history, definition)
}
