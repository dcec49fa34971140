// Package record defines the versioned entities of the registry: athletes,
// climbs and ascents, each stored as immutable hash-identified rows with a
// moderation status.
package record

import (
	"strings"
	"time"
)

type Kind string

const (
	KindAthlete Kind = "athletes"
	KindClimb   Kind = "climbs"
	KindAscent  Kind = "ascents"
)

var Kinds = []Kind{KindAthlete, KindClimb, KindAscent}

// ParseKind accepts the table name or its singular form, case-insensitively.
func ParseKind(value string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "athletes", "athlete":
		return KindAthlete, true
	case "climbs", "climb":
		return KindClimb, true
	case "ascents", "ascent":
		return KindAscent, true
	default:
		return "", false
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusValid    Status = "valid"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusValid || s == StatusRejected
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(value string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(value))) {
	case DecisionApprove:
		return DecisionApprove, true
	case DecisionReject:
		return DecisionReject, true
	default:
		return "", false
	}
}

// Status is the row status a decision moves a pending row to.
func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusValid
	}
	return StatusRejected
}

type ClimbType string

const (
	ClimbSport   ClimbType = "sport"
	ClimbBoulder ClimbType = "boulder"
)

func ParseClimbType(value string) (ClimbType, bool) {
	switch ClimbType(strings.ToLower(strings.TrimSpace(value))) {
	case ClimbSport:
		return ClimbSport, true
	case ClimbBoulder:
		return ClimbBoulder, true
	default:
		return "", false
	}
}

// Entity is the attribute payload of a row. Key returns the folded natural key
// rows are partitioned on.
type Entity interface {
	Kind() Kind
	Key() string
}

// Meta is assigned by the store at insertion. Only Status ever changes, and
// only once.
type Meta struct {
	Hash          string    `json:"hash"`
	Status        Status    `json:"status"`
	RecordCreated time.Time `json:"record_created"`
}

func (m Meta) RowMeta() Meta { return m }

type Athlete struct {
	Name        string `json:"name"`
	Nationality string `json:"nationality,omitempty"`
	Gender      string `json:"gender,omitempty"`
	YearOfBirth *int   `json:"year_of_birth,omitempty"`
}

func (a Athlete) Kind() Kind  { return KindAthlete }
func (a Athlete) Key() string { return Fold(a.Name) }

type Location struct {
	Country   string   `json:"country,omitempty"`
	Area      string   `json:"area,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

type Climb struct {
	Name     string    `json:"name"`
	Type     ClimbType `json:"climb_type"`
	Grade    string    `json:"grade"`
	Location Location  `json:"location"`
}

func (c Climb) Kind() Kind  { return KindClimb }
func (c Climb) Key() string { return Fold(c.Name) + "\x00" + string(c.Type) }

// Ascent references its climb and athlete by name only. The references are
// checked when the ascent is approved, not when it is inserted.
type Ascent struct {
	ClimbName    string `json:"climb_name"`
	AthleteName  string `json:"athlete_name"`
	DateOfAscent string `json:"date_of_ascent"`
	WebLink      string `json:"web_link,omitempty"`
}

func (a Ascent) Kind() Kind         { return KindAscent }
func (a Ascent) Key() string        { return a.ClimbKey() + "\x00" + a.AthleteKey() }
func (a Ascent) ClimbKey() string   { return Fold(a.ClimbName) }
func (a Ascent) AthleteKey() string { return Fold(a.AthleteName) }

type AthleteRow struct {
	Meta
	Athlete
}

type ClimbRow struct {
	Meta
	Climb
}

type AscentRow struct {
	Meta
	Ascent
}

// Versioned is satisfied by every row type.
type Versioned interface {
	Entity
	RowMeta() Meta
}

// Filter narrows rows by natural key. Empty fields match everything; names
// are compared after folding.
type Filter struct {
	Name      string
	ClimbType ClimbType
	Climb     string
	Athlete   string
	Hash      string
}

func (f Filter) MatchAthlete(row AthleteRow) bool {
	if f.Hash != "" && row.Hash != f.Hash {
		return false
	}
	return f.Name == "" || Fold(f.Name) == row.Key()
}

func (f Filter) MatchClimb(row ClimbRow) bool {
	if f.Hash != "" && row.Hash != f.Hash {
		return false
	}
	if f.ClimbType != "" && row.Type != f.ClimbType {
		return false
	}
	return f.Name == "" || Fold(f.Name) == Fold(row.Name)
}

func (f Filter) MatchAscent(row AscentRow) bool {
	if f.Hash != "" && row.Hash != f.Hash {
		return false
	}
	if f.Climb != "" && Fold(f.Climb) != row.ClimbKey() {
		return false
	}
	return f.Athlete == "" || Fold(f.Athlete) == row.AthleteKey()
}
