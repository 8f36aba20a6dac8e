// Package index keeps the attribute vectors of open CustomAuto gatherings
// and scans them in creation order under a caller-supplied budget.
//
// The index is read-mostly and trails the gathering store: entries are added
// after a gathering is created and dropped when a lifecycle event reports it
// closed. A scan may therefore return a gathering that has just filled; the
// join step settles that.
package index

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// chunk bounds how many entries a scan copies per read lock.
const chunk = 64

type Entry struct {
	ID         domain.GatheringID
	Seq        uint64
	Attributes domain.Attributes
}

type Index struct {
	mu           sync.RWMutex
	byDefinition map[string][]Entry
	where        map[domain.GatheringID]string
}

func New() *Index {
	return &Index{
		byDefinition: make(map[string][]Entry),
		where:        make(map[domain.GatheringID]string),
	}
}

// Add indexes an open gathering. Gatherings arrive in roughly increasing
// Seq order; late arrivals are inserted in place.
func (x *Index) Add(g *domain.Gathering) {
	if g.Status != domain.StatusOpen {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.where[g.ID]; ok {
		return
	}
	entries := x.byDefinition[g.Definition]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].Seq > g.Seq })
	entries = append(entries, Entry{})
	copy(entries[pos+1:], entries[pos:])
	entries[pos] = Entry{ID: g.ID, Seq: g.Seq, Attributes: g.Attributes}
	x.byDefinition[g.Definition] = entries
	x.where[g.ID] = g.Definition
}

func (x *Index) Remove(id domain.GatheringID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	def, ok := x.where[id]
	if !ok {
		return
	}
	delete(x.where, id)
	entries := x.byDefinition[def]
	for i, e := range entries {
		if e.ID == id {
			x.byDefinition[def] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(x.byDefinition[def]) == 0 {
		delete(x.byDefinition, def)
	}
}

// Drop forgets every entry of a definition.
func (x *Index) Drop(definition string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.byDefinition[definition] {
		delete(x.where, e.ID)
	}
	delete(x.byDefinition, definition)
}

// Publish lets the index follow lifecycle events.
func (x *Index) Publish(ev core.Event) {
	x.Remove(ev.GatheringID)
}

func (x *Index) Len(definition string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byDefinition[definition])
}

// Budget bounds one scan call. A zero field is unbounded.
type Budget struct {
	Deadline  time.Time
	MaxVisits int
}

func (b Budget) spent(visited int, now func() time.Time) bool {
	if b.MaxVisits > 0 && visited >= b.MaxVisits {
		return true
	}
	return !b.Deadline.IsZero() && !now().Before(b.Deadline)
}

type ScanResult struct {
	// Match is the first satisfying entry, if any.
	Match *Entry
	// Cursor is the Seq of the last entry inspected.
	Cursor uint64
	// Visited counts inspected entries.
	Visited int
	// Exhausted is set when no entry remains after Cursor.
	Exhausted bool
}

// Scan walks entries with Seq > after. It returns at the first match, when
// the budget runs out, or at the end of the index. At least one entry is
// inspected when any remains, so repeated calls always make progress.
func (x *Index) Scan(definition string, after uint64, pred domain.Predicate, b Budget, now func() time.Time) ScanResult {
	res := ScanResult{Cursor: after}
	for {
		batch := x.after(definition, res.Cursor, chunk)
		if len(batch) == 0 {
			res.Exhausted = true
			return res
		}
		for i := range batch {
			e := batch[i]
			res.Cursor = e.Seq
			res.Visited++
			if pred.Match(e.Attributes) {
				res.Match = &e
				res.Exhausted = !x.HasAfter(definition, res.Cursor)
				return res
			}
			if b.spent(res.Visited, now) {
				res.Exhausted = !x.HasAfter(definition, res.Cursor)
				log.Debug().
					Str("module", "app.index").
					Str("definition", definition).
					Int("visited", res.Visited).
					Bool("exhausted", res.Exhausted).
					Msg("scan budget spent")
				return res
			}
		}
	}
}

// HasAfter reports whether any entry follows seq.
func (x *Index) HasAfter(definition string, seq uint64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := x.byDefinition[definition]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].Seq > seq })
	return pos < len(entries)
}

func (x *Index) after(definition string, seq uint64, n int) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	entries := x.byDefinition[definition]
	pos := sort.Search(len(entries), func(i int) bool { return entries[i].Seq > seq })
	end := min(pos+n, len(entries))
	out := make([]Entry, end-pos)
	copy(out, entries[pos:end])
	return out
}
