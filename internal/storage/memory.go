// Package storage keeps matchmaking definitions and gatherings.
//
// MemoryStore is the in-process implementation. It maintains the primary
// tables plus the secondary indexes the engine queries:
//
//	definition → gatherings in creation order (status filtered on read)
//	(definition, passcode) → OPEN gathering
//	(definition, user) → non-terminal gathering the user belongs to
//
// All methods are safe for concurrent use and hand out copies, so callers can
// never mutate stored state except through PutGathering.
package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dkeye/Gather/internal/domain"
)

type seqEntry struct {
	seq uint64
	id  domain.GatheringID
}

// MemoryStore implements core.DefinitionStore and core.GatheringStore.
type MemoryStore struct {
	mu sync.RWMutex

	definitions map[string]*domain.Definition
	gatherings  map[domain.GatheringID]*domain.Gathering

	byDefinition map[string][]seqEntry
	passcodes    map[string]map[string]domain.GatheringID
	members      map[string]map[domain.UserID]domain.GatheringID

	seq uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions:  make(map[string]*domain.Definition),
		gatherings:   make(map[domain.GatheringID]*domain.Gathering),
		byDefinition: make(map[string][]seqEntry),
		passcodes:    make(map[string]map[string]domain.GatheringID),
		members:      make(map[string]map[domain.UserID]domain.GatheringID),
	}
}

func (m *MemoryStore) CreateDefinition(_ context.Context, def *domain.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[def.Name]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDefinitionExists, def.Name)
	}
	m.definitions[def.Name] = def.Clone()
	return nil
}

func (m *MemoryStore) GetDefinition(_ context.Context, name string) (*domain.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, name)
	}
	return def.Clone(), nil
}

func (m *MemoryStore) PutDefinition(_ context.Context, def *domain.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[def.Name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, def.Name)
	}
	m.definitions[def.Name] = def.Clone()
	return nil
}

func (m *MemoryStore) DeleteDefinition(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.definitions[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, name)
	}
	for _, e := range m.byDefinition[name] {
		if m.gatherings[e.id].Status == domain.StatusOpen {
			return fmt.Errorf("%w: %s", domain.ErrGatheringsOpen, name)
		}
	}
	delete(m.definitions, name)
	for _, e := range m.byDefinition[name] {
		delete(m.gatherings, e.id)
	}
	delete(m.byDefinition, name)
	delete(m.passcodes, name)
	delete(m.members, name)
	return nil
}

func (m *MemoryStore) ListDefinitions(_ context.Context, after string, limit int) ([]*domain.Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.definitions))
	for name := range m.definitions {
		if name > after {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	out := make([]*domain.Definition, 0, len(names))
	for _, name := range names {
		out = append(out, m.definitions[name].Clone())
	}
	return out, nil
}

// CreateGathering assigns g.Seq and stores a copy.
func (m *MemoryStore) CreateGathering(_ context.Context, g *domain.Gathering) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if def, ok := m.definitions[g.Definition]; !ok || def.ID != g.DefinitionID {
		return fmt.Errorf("%w: %s", domain.ErrDefinitionNotFound, g.Definition)
	}
	if _, ok := m.gatherings[g.ID]; ok {
		return fmt.Errorf("%w: gathering %s exists", domain.ErrConflict, g.ID)
	}
	if g.Passcode != "" {
		if _, taken := m.passcodes[g.Definition][g.Passcode]; taken {
			return fmt.Errorf("%w: %s", domain.ErrPasscodeInUse, g.Passcode)
		}
	}
	for _, u := range g.Players {
		if other, ok := m.members[g.Definition][u]; ok {
			return fmt.Errorf("%w: user %s is in %s", domain.ErrAlreadyJoined, u, other)
		}
	}

	m.seq++
	g.Seq = m.seq
	stored := g.Clone()
	m.gatherings[g.ID] = stored
	m.byDefinition[g.Definition] = append(m.byDefinition[g.Definition], seqEntry{seq: g.Seq, id: g.ID})
	if !stored.Status.Terminal() {
		if g.Passcode != "" {
			m.passcodeIndex(g.Definition)[g.Passcode] = g.ID
		}
		for _, u := range g.Players {
			m.memberIndex(g.Definition)[u] = g.ID
		}
	}
	return nil
}

func (m *MemoryStore) GetGathering(_ context.Context, id domain.GatheringID) (*domain.Gathering, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gatherings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatheringNotFound, id)
	}
	return g.Clone(), nil
}

func (m *MemoryStore) PutGathering(_ context.Context, g *domain.Gathering) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, ok := m.gatherings[g.ID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrGatheringNotFound, g.ID)
	}

	members := m.memberIndex(g.Definition)
	if !g.Status.Terminal() {
		for _, u := range g.Players {
			if other, ok := members[u]; ok && other != g.ID {
				return fmt.Errorf("%w: user %s is in %s", domain.ErrAlreadyJoined, u, other)
			}
		}
	}

	for _, u := range prev.Players {
		if members[u] == g.ID && (g.Status.Terminal() || !g.Has(u)) {
			delete(members, u)
		}
	}
	if g.Status.Terminal() {
		if prev.Passcode != "" && m.passcodes[g.Definition][prev.Passcode] == g.ID {
			delete(m.passcodes[g.Definition], prev.Passcode)
		}
	} else {
		for _, u := range g.Players {
			members[u] = g.ID
		}
	}

	stored := g.Clone()
	stored.Seq = prev.Seq
	m.gatherings[g.ID] = stored
	return nil
}

func (m *MemoryStore) ListGatherings(
	_ context.Context,
	definition string,
	status domain.Status,
	afterSeq uint64,
	limit int,
) ([]*domain.Gathering, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.byDefinition[definition]
	start, _ := slices.BinarySearchFunc(entries, afterSeq+1, func(e seqEntry, target uint64) int {
		switch {
		case e.seq < target:
			return -1
		case e.seq > target:
			return 1
		}
		return 0
	})

	out := make([]*domain.Gathering, 0)
	for _, e := range entries[start:] {
		g := m.gatherings[e.id]
		if status != "" && g.Status != status {
			continue
		}
		out = append(out, g.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) FindByPasscode(_ context.Context, definition, passcode string) (*domain.Gathering, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.passcodes[definition][passcode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPasscodeNotFound, passcode)
	}
	return m.gatherings[id].Clone(), nil
}

func (m *MemoryStore) MemberOf(_ context.Context, definition string, user domain.UserID) (domain.GatheringID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.members[definition][user]
	return id, ok
}

func (m *MemoryStore) CountByStatus(_ context.Context, definition string) (map[domain.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, e := range m.byDefinition[definition] {
		counts[m.gatherings[e.id].Status]++
	}
	return counts, nil
}

func (m *MemoryStore) passcodeIndex(definition string) map[string]domain.GatheringID {
	idx, ok := m.passcodes[definition]
	if !ok {
		idx = make(map[string]domain.GatheringID)
		m.passcodes[definition] = idx
	}
	return idx
}

func (m *MemoryStore) memberIndex(definition string) map[domain.UserID]domain.GatheringID {
	idx, ok := m.members[definition]
	if !ok {
		idx = make(map[domain.UserID]domain.GatheringID)
		m.members[definition] = idx
	}
	return idx
}
