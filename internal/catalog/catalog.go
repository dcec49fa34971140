// Package catalog resolves the current version of every natural key and
// decides whether a pending ascent may be approved.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"climbs/api/internal/record"
)

const (
	ReasonClimbMissing   = "referenced climb has no approved record"
	ReasonAthleteMissing = "referenced athlete has no approved record"
)

// Reader is the read side of the record store.
type Reader interface {
	Athletes(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AthleteRow, error)
	Climbs(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.ClimbRow, error)
	Ascents(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AscentRow, error)
}

// Catalog is recomputed from the store on every call; it holds no cache.
type Catalog struct {
	store Reader
}

func New(store Reader) *Catalog {
	return &Catalog{store: store}
}

// Athletes returns the current row of every athlete matching filter, ordered
// by folded name.
func (c *Catalog) Athletes(ctx context.Context, filter record.Filter) ([]record.AthleteRow, error) {
	rows, err := c.store.Athletes(ctx, filter, record.StatusValid)
	if err != nil {
		return nil, fmt.Errorf("resolve athletes: %w", err)
	}
	return sortByKey(record.LatestRows(rows)), nil
}

// Climbs returns the current row of every (name, climb_type) key matching
// filter.
func (c *Catalog) Climbs(ctx context.Context, filter record.Filter) ([]record.ClimbRow, error) {
	rows, err := c.store.Climbs(ctx, filter, record.StatusValid)
	if err != nil {
		return nil, fmt.Errorf("resolve climbs: %w", err)
	}
	return sortByKey(record.LatestRows(rows)), nil
}

// Ascents returns the current row of every (climb, athlete) key matching
// filter. References are not checked here.
func (c *Catalog) Ascents(ctx context.Context, filter record.Filter) ([]record.AscentRow, error) {
	rows, err := c.store.Ascents(ctx, filter, record.StatusValid)
	if err != nil {
		return nil, fmt.Errorf("resolve ascents: %w", err)
	}
	return sortByKey(record.LatestRows(rows)), nil
}

// FindAthlete returns the current athlete for name, compared without case,
// diacritics or extra whitespace.
func (c *Catalog) FindAthlete(ctx context.Context, name string) (record.AthleteRow, error) {
	if record.Fold(name) == "" {
		return record.AthleteRow{}, record.BadRequest("athlete name is required")
	}
	rows, err := c.Athletes(ctx, record.Filter{Name: name})
	if err != nil {
		return record.AthleteRow{}, err
	}
	if len(rows) == 0 {
		return record.AthleteRow{}, &record.Error{
			Code:    record.CodeNotFound,
			Message: fmt.Sprintf("no approved athlete named %q", name),
			Details: map[string]any{"kind": record.KindAthlete, "name": name},
		}
	}
	return rows[0], nil
}

func sortByKey[T record.Versioned](rows []T) []T {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Key() < rows[j].Key()
	})
	return rows
}
