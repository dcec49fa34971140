package store

import (
	"context"
	"time"

	"climbs/api/internal/record"
)

// Transition is one entry of the append-only moderation log.
type Transition struct {
	Kind      record.Kind   `json:"kind"`
	Hash      string        `json:"hash"`
	From      record.Status `json:"from"`
	To        record.Status `json:"to"`
	DecidedAt time.Time     `json:"decided_at"`
}

// Store is the Record Store. Rows are only ever appended, and the single
// permitted mutation is SetStatus on a pending row.
//
// The list methods return every row matching filter whose status is in
// statuses (all statuses when none are given), ordered by record_created
// then hash. Resolution to current rows is done by the caller.
type Store interface {
	InsertAthlete(ctx context.Context, athlete record.Athlete) (record.AthleteRow, error)
	InsertClimb(ctx context.Context, climb record.Climb) (record.ClimbRow, error)
	InsertAscent(ctx context.Context, ascent record.Ascent) (record.AscentRow, error)

	Athletes(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AthleteRow, error)
	Climbs(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.ClimbRow, error)
	Ascents(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AscentRow, error)

	// SetStatus moves a pending row to a terminal status. It fails with
	// record.ErrNotFound when no row of kind has hash and with
	// record.ErrInvalidTransition when the row is no longer pending.
	SetStatus(ctx context.Context, kind record.Kind, hash string, status record.Status) (Transition, error)
	Transitions(ctx context.Context, kind record.Kind, hash string) ([]Transition, error)

	Ping(ctx context.Context) error
}

// maxHashAttempts bounds hash regeneration on a primary key collision.
const maxHashAttempts = 3

type clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func hasStatus(status record.Status, statuses []record.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func checkTarget(status record.Status) error {
	if !status.Terminal() {
		return record.BadRequest("status must be valid or rejected")
	}
	return nil
}
