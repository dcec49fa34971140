package catalog

import (
	"context"
	"fmt"
	"strings"

	"climbs/api/internal/record"
)

// Verdict is the outcome of CanApprove. Reasons lists every missing
// reference; Reason joins them for display.
type Verdict struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// CanApprove reports whether the ascent with hash may be promoted: its climb
// and its athlete must each have a current valid row. The ascent may be in
// any status.
func (c *Catalog) CanApprove(ctx context.Context, hash string) (Verdict, error) {
	rows, err := c.store.Ascents(ctx, record.Filter{Hash: hash})
	if err != nil {
		return Verdict{}, fmt.Errorf("lookup ascent: %w", err)
	}
	if len(rows) == 0 {
		return Verdict{}, record.NotFound(record.KindAscent, hash)
	}
	return c.Check(ctx, rows[0].Ascent)
}

// Check evaluates the referential precondition for an ascent payload.
func (c *Catalog) Check(ctx context.Context, ascent record.Ascent) (Verdict, error) {
	climbs, err := c.Climbs(ctx, record.Filter{Name: ascent.ClimbName})
	if err != nil {
		return Verdict{}, err
	}
	athletes, err := c.Athletes(ctx, record.Filter{Name: ascent.AthleteName})
	if err != nil {
		return Verdict{}, err
	}

	var reasons []string
	if len(climbs) == 0 {
		reasons = append(reasons, ReasonClimbMissing)
	}
	if len(athletes) == 0 {
		reasons = append(reasons, ReasonAthleteMissing)
	}
	if len(reasons) > 0 {
		return Verdict{Allowed: false, Reason: strings.Join(reasons, "; "), Reasons: reasons}, nil
	}
	return Verdict{Allowed: true}, nil
}
