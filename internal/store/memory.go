package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"climbs/api/internal/record"
)

// MemoryStore is an in-process Store. Row payloads are never modified after
// insertion; statuses live in a separate overlay so the pending check and the
// flip happen under one lock.
type MemoryStore struct {
	mu          sync.RWMutex
	athletes    []record.AthleteRow
	climbs      []record.ClimbRow
	ascents     []record.AscentRow
	status      map[record.Kind]map[string]record.Status
	transitions []Transition
	now         clock
}

func NewMemoryStore() *MemoryStore {
	status := make(map[record.Kind]map[string]record.Status, len(record.Kinds))
	for _, kind := range record.Kinds {
		status[kind] = make(map[string]record.Status)
	}
	return &MemoryStore{status: status, now: defaultClock}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	return s
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) InsertAthlete(_ context.Context, athlete record.Athlete) (record.AthleteRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.assign(athlete)
	if err != nil {
		return record.AthleteRow{}, err
	}
	row := record.AthleteRow{Meta: meta, Athlete: athlete}
	s.athletes = append(s.athletes, row)
	return row, nil
}

func (s *MemoryStore) InsertClimb(_ context.Context, climb record.Climb) (record.ClimbRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.assign(climb)
	if err != nil {
		return record.ClimbRow{}, err
	}
	row := record.ClimbRow{Meta: meta, Climb: climb}
	s.climbs = append(s.climbs, row)
	return row, nil
}

func (s *MemoryStore) InsertAscent(_ context.Context, ascent record.Ascent) (record.AscentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.assign(ascent)
	if err != nil {
		return record.AscentRow{}, err
	}
	row := record.AscentRow{Meta: meta, Ascent: ascent}
	s.ascents = append(s.ascents, row)
	return row, nil
}

// assign must be called with mu held.
func (s *MemoryStore) assign(entity record.Entity) (record.Meta, error) {
	created := s.now()
	statuses := s.status[entity.Kind()]
	for attempt := 1; ; attempt++ {
		hash, err := record.NewHash(entity, created)
		if err != nil {
			return record.Meta{}, err
		}
		if _, taken := statuses[hash]; taken && attempt < maxHashAttempts {
			continue
		} else if taken {
			return record.Meta{}, record.BadRequest("could not assign a unique hash")
		}
		statuses[hash] = record.StatusPending
		return record.Meta{Hash: hash, Status: record.StatusPending, RecordCreated: created}, nil
	}
}

func (s *MemoryStore) Athletes(_ context.Context, filter record.Filter, statuses ...record.Status) ([]record.AthleteRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]record.AthleteRow, 0)
	for _, row := range s.athletes {
		row.Status = s.status[record.KindAthlete][row.Hash]
		if filter.MatchAthlete(row) && hasStatus(row.Status, statuses) {
			items = append(items, row)
		}
	}
	sortByCreated(items)
	return items, nil
}

func (s *MemoryStore) Climbs(_ context.Context, filter record.Filter, statuses ...record.Status) ([]record.ClimbRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]record.ClimbRow, 0)
	for _, row := range s.climbs {
		row.Status = s.status[record.KindClimb][row.Hash]
		if filter.MatchClimb(row) && hasStatus(row.Status, statuses) {
			items = append(items, row)
		}
	}
	sortByCreated(items)
	return items, nil
}

func (s *MemoryStore) Ascents(_ context.Context, filter record.Filter, statuses ...record.Status) ([]record.AscentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]record.AscentRow, 0)
	for _, row := range s.ascents {
		row.Status = s.status[record.KindAscent][row.Hash]
		if filter.MatchAscent(row) && hasStatus(row.Status, statuses) {
			items = append(items, row)
		}
	}
	sortByCreated(items)
	return items, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, kind record.Kind, hash string, status record.Status) (Transition, error) {
	if _, err := tableFor(kind); err != nil {
		return Transition{}, err
	}
	if err := checkTarget(status); err != nil {
		return Transition{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.status[kind][hash]
	if !ok {
		return Transition{}, record.NotFound(kind, hash)
	}
	if current != record.StatusPending {
		return Transition{}, record.InvalidTransition(kind, hash, current)
	}

	s.status[kind][hash] = status
	transition := Transition{Kind: kind, Hash: hash, From: current, To: status, DecidedAt: s.now()}
	s.transitions = append(s.transitions, transition)
	return transition, nil
}

func (s *MemoryStore) Transitions(_ context.Context, kind record.Kind, hash string) ([]Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Transition, 0)
	for _, transition := range s.transitions {
		if transition.Kind == kind && transition.Hash == hash {
			items = append(items, transition)
		}
	}
	return items, nil
}

func sortByCreated[T record.Versioned](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].RowMeta(), items[j].RowMeta()
		if !a.RecordCreated.Equal(b.RecordCreated) {
			return a.RecordCreated.Before(b.RecordCreated)
		}
		return a.Hash < b.Hash
	})
}
