// Package aggregate joins the resolved athletes, climbs and ascents into the
// shapes the public pages render.
package aggregate

import (
	"context"
	"sort"
	"time"

	"climbs/api/internal/record"
)

// Resolver returns current rows only.
type Resolver interface {
	Athletes(ctx context.Context, filter record.Filter) ([]record.AthleteRow, error)
	Climbs(ctx context.Context, filter record.Filter) ([]record.ClimbRow, error)
	Ascents(ctx context.Context, filter record.Filter) ([]record.AscentRow, error)
}

type ClimbAscent struct {
	AthleteName  string `json:"athlete_name"`
	DateOfAscent string `json:"date_of_ascent"`
	WebLink      string `json:"web_link,omitempty"`
}

type ClimbView struct {
	Name            string           `json:"name"`
	ClimbType       record.ClimbType `json:"climb_type"`
	Grade           string           `json:"grade"`
	Location        record.Location  `json:"location"`
	FirstAscentDate string           `json:"first_ascent_date,omitempty"`
	Ascents         []ClimbAscent    `json:"ascents"`
}

type AthleteAscent struct {
	ClimbName       string           `json:"climb_name"`
	ClimbType       record.ClimbType `json:"climb_type"`
	Grade           string           `json:"grade"`
	LocationCountry string           `json:"location_country,omitempty"`
	LocationArea    string           `json:"location_area,omitempty"`
	DateOfAscent    string           `json:"date_of_ascent"`
	WebLink         string           `json:"web_link,omitempty"`
}

type AthleteView struct {
	Name            string          `json:"name"`
	Nationality     string          `json:"nationality,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	YearOfBirth     *int            `json:"year_of_birth,omitempty"`
	FirstAscentDate string          `json:"first_ascent_date,omitempty"`
	Total           int             `json:"total_ascent_count"`
	Sport           int             `json:"sport_ascent_count"`
	Boulder         int             `json:"boulder_ascent_count"`
	Ascents         []AthleteAscent `json:"ascents"`
}

type Views struct {
	resolver Resolver
	now      func() time.Time
}

func New(resolver Resolver) *Views {
	return &Views{resolver: resolver, now: time.Now}
}

func (v *Views) WithClock(now func() time.Time) *Views {
	v.now = now
	return v
}

// resolved is one consistent read of the three current sets.
type resolved struct {
	athletes map[string]record.AthleteRow
	climbs   []record.ClimbRow
	ascents  []record.AscentRow
}

func (v *Views) load(ctx context.Context, climbType record.ClimbType) (resolved, error) {
	athletes, err := v.resolver.Athletes(ctx, record.Filter{})
	if err != nil {
		return resolved{}, err
	}
	climbs, err := v.resolver.Climbs(ctx, record.Filter{ClimbType: climbType})
	if err != nil {
		return resolved{}, err
	}
	ascents, err := v.resolver.Ascents(ctx, record.Filter{})
	if err != nil {
		return resolved{}, err
	}

	byKey := make(map[string]record.AthleteRow, len(athletes))
	for _, athlete := range athletes {
		byKey[athlete.Key()] = athlete
	}
	return resolved{athletes: byKey, climbs: climbs, ascents: ascents}, nil
}

// ClimbsWithAscents lists every current climb of climbType with its current
// ascents. Climbs without ascents are kept; ascents whose athlete has no
// current row are dropped.
func (v *Views) ClimbsWithAscents(ctx context.Context, climbType record.ClimbType) ([]ClimbView, error) {
	parsed, ok := record.ParseClimbType(string(climbType))
	if !ok {
		return nil, record.BadRequest("climb type must be sport or boulder")
	}
	data, err := v.load(ctx, parsed)
	if err != nil {
		return nil, err
	}

	views := make([]ClimbView, 0, len(data.climbs))
	index := make(map[string]int, len(data.climbs))
	for _, climb := range data.climbs {
		index[record.Fold(climb.Name)] = len(views)
		views = append(views, ClimbView{
			Name:      climb.Name,
			ClimbType: climb.Type,
			Grade:     climb.Grade,
			Location:  climb.Location,
			Ascents:   make([]ClimbAscent, 0),
		})
	}

	for _, ascent := range data.ascents {
		i, ok := index[ascent.ClimbKey()]
		if !ok {
			continue
		}
		athlete, ok := data.athletes[ascent.AthleteKey()]
		if !ok {
			continue
		}
		views[i].Ascents = append(views[i].Ascents, ClimbAscent{
			AthleteName:  athlete.Name,
			DateOfAscent: ascent.DateOfAscent,
			WebLink:      ascent.WebLink,
		})
	}

	for i := range views {
		ascents := views[i].Ascents
		sort.SliceStable(ascents, func(a, b int) bool {
			if c := compareDates(ascents[a].DateOfAscent, ascents[b].DateOfAscent); c != 0 {
				return c < 0
			}
			return record.Fold(ascents[a].AthleteName) < record.Fold(ascents[b].AthleteName)
		})
		if len(ascents) > 0 {
			views[i].FirstAscentDate = ascents[0].DateOfAscent
		}
	}

	sort.SliceStable(views, func(a, b int) bool {
		if c := record.CompareGrades(views[a].Grade, views[b].Grade); c != 0 {
			return c > 0
		}
		if c := compareDates(views[a].FirstAscentDate, views[b].FirstAscentDate); c != 0 {
			return c < 0
		}
		return record.Fold(views[a].Name) < record.Fold(views[b].Name)
	})
	return views, nil
}

// AthletesWithAscents lists every current athlete with the current ascents
// whose climb also resolves. When a climb name exists as both sport and
// boulder, the most recently created current climb is used.
func (v *Views) AthletesWithAscents(ctx context.Context) ([]AthleteView, error) {
	data, err := v.load(ctx, "")
	if err != nil {
		return nil, err
	}

	climbs := make(map[string]record.ClimbRow, len(data.climbs))
	for _, climb := range data.climbs {
		key := record.Fold(climb.Name)
		if current, ok := climbs[key]; ok && !record.Newer(climb.Meta, current.Meta) {
			continue
		}
		climbs[key] = climb
	}

	byAthlete := make(map[string][]AthleteAscent, len(data.athletes))
	for _, ascent := range data.ascents {
		climb, ok := climbs[ascent.ClimbKey()]
		if !ok {
			continue
		}
		if _, ok := data.athletes[ascent.AthleteKey()]; !ok {
			continue
		}
		byAthlete[ascent.AthleteKey()] = append(byAthlete[ascent.AthleteKey()], AthleteAscent{
			ClimbName:       climb.Name,
			ClimbType:       climb.Type,
			Grade:           climb.Grade,
			LocationCountry: climb.Location.Country,
			LocationArea:    climb.Location.Area,
			DateOfAscent:    ascent.DateOfAscent,
			WebLink:         ascent.WebLink,
		})
	}

	views := make([]AthleteView, 0, len(data.athletes))
	for key, athlete := range data.athletes {
		ascents := byAthlete[key]
		if ascents == nil {
			ascents = make([]AthleteAscent, 0)
		}
		sort.SliceStable(ascents, func(a, b int) bool {
			if c := compareDates(ascents[a].DateOfAscent, ascents[b].DateOfAscent); c != 0 {
				return newestFirst(c, ascents[a].DateOfAscent, ascents[b].DateOfAscent)
			}
			return record.Fold(ascents[a].ClimbName) < record.Fold(ascents[b].ClimbName)
		})

		view := AthleteView{
			Name:        athlete.Name,
			Nationality: athlete.Nationality,
			Gender:      athlete.Gender,
			YearOfBirth: athlete.YearOfBirth,
			Total:       len(ascents),
			Ascents:     ascents,
		}
		for _, ascent := range ascents {
			switch ascent.ClimbType {
			case record.ClimbSport:
				view.Sport++
			case record.ClimbBoulder:
				view.Boulder++
			}
			if ascent.DateOfAscent != "" && (view.FirstAscentDate == "" || ascent.DateOfAscent < view.FirstAscentDate) {
				view.FirstAscentDate = ascent.DateOfAscent
			}
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(a, b int) bool {
		if views[a].Total != views[b].Total {
			return views[a].Total > views[b].Total
		}
		if c := compareDates(views[a].FirstAscentDate, views[b].FirstAscentDate); c != 0 {
			return c < 0
		}
		return record.Fold(views[a].Name) < record.Fold(views[b].Name)
	})
	return views, nil
}

// compareDates orders ISO dates ascending with empty dates last.
func compareDates(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}

// newestFirst flips an ascending comparison but still keeps empty dates last.
func newestFirst(c int, a, b string) bool {
	if a == "" || b == "" {
		return c < 0
	}
	return c > 0
}
