package aggregate

import (
	"context"
	"fmt"
	"time"

	"climbs/api/internal/record"
)

// Dataset is the public export: current rows only, without hashes or
// insertion times.
type Dataset struct {
	ExportedAt time.Time        `json:"exported_at"`
	Athletes   []record.Athlete `json:"athletes"`
	Climbs     []record.Climb   `json:"climbs"`
	Ascents    []record.Ascent  `json:"ascents"`
}

func (v *Views) Export(ctx context.Context) (Dataset, error) {
	athletes, err := v.resolver.Athletes(ctx, record.Filter{})
	if err != nil {
		return Dataset{}, fmt.Errorf("export athletes: %w", err)
	}
	climbs, err := v.resolver.Climbs(ctx, record.Filter{})
	if err != nil {
		return Dataset{}, fmt.Errorf("export climbs: %w", err)
	}
	ascents, err := v.resolver.Ascents(ctx, record.Filter{})
	if err != nil {
		return Dataset{}, fmt.Errorf("export ascents: %w", err)
	}

	dataset := Dataset{
		ExportedAt: v.now().UTC(),
		Athletes:   make([]record.Athlete, 0, len(athletes)),
		Climbs:     make([]record.Climb, 0, len(climbs)),
		Ascents:    make([]record.Ascent, 0, len(ascents)),
	}
	for _, row := range athletes {
		dataset.Athletes = append(dataset.Athletes, row.Athlete)
	}
	for _, row := range climbs {
		dataset.Climbs = append(dataset.Climbs, row.Climb)
	}
	for _, row := range ascents {
		dataset.Ascents = append(dataset.Ascents, row.Ascent)
	}
	return dataset, nil
}

// FileName is the object name a dataset is published under.
func (d Dataset) FileName() string {
	return fmt.Sprintf("climbs-dataset-%s.json", d.ExportedAt.UTC().Format("2006-01-02"))
}
