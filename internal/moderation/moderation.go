// Package moderation applies approve and reject decisions to pending rows.
package moderation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"climbs/api/internal/catalog"
	"climbs/api/internal/record"
	"climbs/api/internal/store"
)

// Verifier compares the moderation credential supplied by the caller.
type Verifier interface {
	Verify(credential string) bool
}

// Records is the part of the record store moderation needs.
type Records interface {
	catalog.Reader
	SetStatus(ctx context.Context, kind record.Kind, hash string, status record.Status) (store.Transition, error)
}

// Gate decides whether a pending ascent may be approved.
type Gate interface {
	Check(ctx context.Context, ascent record.Ascent) (catalog.Verdict, error)
}

type Request struct {
	Kind       string
	Hash       string
	Decision   string
	Credential string
}

// Confirmation carries only what identifies the decided row.
type Confirmation struct {
	Kind     record.Kind     `json:"kind"`
	Hash     string          `json:"hash"`
	Decision record.Decision `json:"decision"`
}

type Service struct {
	records  Records
	gate     Gate
	verifier Verifier
}

func NewService(records Records, gate Gate, verifier Verifier) *Service {
	return &Service{records: records, gate: gate, verifier: verifier}
}

// Authorize fails with record.ErrUnauthorized unless credential matches.
func (s *Service) Authorize(credential string) error {
	if s.verifier == nil || !s.verifier.Verify(credential) {
		return record.Unauthorized()
	}
	return nil
}

// Decide checks the credential, then the request shape, then for ascent
// approvals the referential gate, and finally flips the row's status. A row
// that is no longer pending fails with ErrInvalidTransition before the gate
// is consulted.
func (s *Service) Decide(ctx context.Context, req Request) (Confirmation, error) {
	if err := s.Authorize(req.Credential); err != nil {
		return Confirmation{}, err
	}

	hash := strings.TrimSpace(req.Hash)
	if strings.TrimSpace(req.Kind) == "" || hash == "" {
		return Confirmation{}, record.BadRequest("table and hash are required")
	}
	kind, ok := record.ParseKind(req.Kind)
	if !ok {
		return Confirmation{}, record.BadRequest(fmt.Sprintf("unknown table %q", req.Kind))
	}
	decision, ok := record.ParseDecision(req.Decision)
	if !ok {
		return Confirmation{}, record.BadRequest("decision must be approve or reject")
	}

	if kind == record.KindAscent && decision == record.DecisionApprove {
		ascent, err := s.pendingAscent(ctx, hash)
		if err != nil {
			return Confirmation{}, err
		}
		verdict, err := s.gate.Check(ctx, ascent)
		if err != nil {
			return Confirmation{}, err
		}
		if !verdict.Allowed {
			return Confirmation{}, record.PreconditionFailed(verdict.Reason, verdict.Reasons)
		}
	}

	if _, err := s.records.SetStatus(ctx, kind, hash, decision.Status()); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{Kind: kind, Hash: hash, Decision: decision}, nil
}

func (s *Service) pendingAscent(ctx context.Context, hash string) (record.Ascent, error) {
	rows, err := s.records.Ascents(ctx, record.Filter{Hash: hash})
	if err != nil {
		return record.Ascent{}, fmt.Errorf("lookup ascent: %w", err)
	}
	if len(rows) == 0 {
		return record.Ascent{}, record.NotFound(record.KindAscent, hash)
	}
	if rows[0].Status != record.StatusPending {
		return record.Ascent{}, record.InvalidTransition(record.KindAscent, hash, rows[0].Status)
	}
	return rows[0].Ascent, nil
}

// PendingAscent pairs a pending ascent with its current gate verdict.
type PendingAscent struct {
	record.AscentRow
	Verdict catalog.Verdict `json:"verdict"`
}

type Queue struct {
	Athletes []record.AthleteRow `json:"athletes"`
	Climbs   []record.ClimbRow   `json:"climbs"`
	Ascents  []PendingAscent     `json:"ascents"`
}

// Len is the number of rows awaiting a decision.
func (q Queue) Len() int {
	return len(q.Athletes) + len(q.Climbs) + len(q.Ascents)
}

// Pending lists every pending row, oldest first.
func (s *Service) Pending(ctx context.Context) (Queue, error) {
	athletes, err := s.records.Athletes(ctx, record.Filter{}, record.StatusPending)
	if err != nil {
		return Queue{}, fmt.Errorf("list pending athletes: %w", err)
	}
	climbs, err := s.records.Climbs(ctx, record.Filter{}, record.StatusPending)
	if err != nil {
		return Queue{}, fmt.Errorf("list pending climbs: %w", err)
	}
	ascents, err := s.records.Ascents(ctx, record.Filter{}, record.StatusPending)
	if err != nil {
		return Queue{}, fmt.Errorf("list pending ascents: %w", err)
	}

	queue := Queue{
		Athletes: oldestFirst(athletes),
		Climbs:   oldestFirst(climbs),
		Ascents:  make([]PendingAscent, 0, len(ascents)),
	}
	for _, row := range oldestFirst(ascents) {
		verdict, err := s.gate.Check(ctx, row.Ascent)
		if err != nil {
			return Queue{}, err
		}
		queue.Ascents = append(queue.Ascents, PendingAscent{AscentRow: row, Verdict: verdict})
	}
	return queue, nil
}

func oldestFirst[T record.Versioned](rows []T) []T {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].RowMeta(), rows[j].RowMeta()
		if !a.RecordCreated.Equal(b.RecordCreated) {
			return a.RecordCreated.Before(b.RecordCreated)
		}
		return a.Hash < b.Hash
	})
	return rows
}

// Age is how long a row has been waiting at now.
func Age(meta record.Meta, now time.Time) time.Duration {
	return now.Sub(meta.RecordCreated)
}
