// Package submission turns untrusted public input into pending rows.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"climbs/api/internal/record"

	"github.com/go-playground/validator/v10"
)

const (
	MessageAscentRequired = "Athlete name, climb name, and date of ascent are required"
	MessageGradeRequired  = "Grade is required when climb type is specified"
)

// Inserter is the write side of the record store.
type Inserter interface {
	InsertAthlete(ctx context.Context, athlete record.Athlete) (record.AthleteRow, error)
	InsertClimb(ctx context.Context, climb record.Climb) (record.ClimbRow, error)
	InsertAscent(ctx context.Context, ascent record.Ascent) (record.AscentRow, error)
}

// AscentSubmission is the public submit form. Only the first three fields
// are mandatory; the athlete and climb fields describe entities that may be
// new to the registry.
type AscentSubmission struct {
	AthleteName  string `json:"athleteName" validate:"required"`
	ClimbName    string `json:"climbName" validate:"required"`
	DateOfAscent string `json:"dateOfAscent" validate:"required,datetime=2006-01-02"`
	WebLink      string `json:"webLink,omitempty" validate:"omitempty,url"`

	Nationality string `json:"nationality,omitempty" validate:"omitempty,max=64"`
	Gender      string `json:"gender,omitempty" validate:"omitempty,max=32"`
	YearOfBirth *int   `json:"yearOfBirth,omitempty" validate:"omitempty,gte=1900,lte=2100"`

	ClimbType         string   `json:"climbType,omitempty" validate:"omitempty,oneof=sport boulder"`
	Grade             string   `json:"grade,omitempty" validate:"required_with=ClimbType"`
	LocationCountry   string   `json:"locationCountry,omitempty"`
	LocationArea      string   `json:"locationArea,omitempty"`
	LocationLatitude  *float64 `json:"locationLatitude,omitempty" validate:"omitempty,latitude"`
	LocationLongitude *float64 `json:"locationLongitude,omitempty" validate:"omitempty,longitude"`
}

type AthleteSubmission struct {
	Name        string `json:"name" validate:"required"`
	Nationality string `json:"nationality,omitempty" validate:"omitempty,max=64"`
	Gender      string `json:"gender,omitempty" validate:"omitempty,max=32"`
	YearOfBirth *int   `json:"yearOfBirth,omitempty" validate:"omitempty,gte=1900,lte=2100"`
}

type ClimbSubmission struct {
	Name              string   `json:"name" validate:"required"`
	ClimbType         string   `json:"climbType" validate:"required,oneof=sport boulder"`
	Grade             string   `json:"grade" validate:"required"`
	LocationCountry   string   `json:"locationCountry,omitempty"`
	LocationArea      string   `json:"locationArea,omitempty"`
	LocationLatitude  *float64 `json:"locationLatitude,omitempty" validate:"omitempty,latitude"`
	LocationLongitude *float64 `json:"locationLongitude,omitempty" validate:"omitempty,longitude"`
}

// Receipt lists the hashes a bundle created, in insertion order.
type Receipt struct {
	Athlete string `json:"athlete,omitempty"`
	Climb   string `json:"climb,omitempty"`
	Ascent  string `json:"ascent,omitempty"`
}

type Ingestor struct {
	store    Inserter
	validate *validator.Validate
}

func New(store Inserter) *Ingestor {
	return &Ingestor{store: store, validate: validator.New()}
}

// SubmitAscent inserts exactly one pending ascent. It never looks up or
// inserts the referenced climb or athlete.
func (i *Ingestor) SubmitAscent(ctx context.Context, sub AscentSubmission) (record.AscentRow, error) {
	sub = sub.normalized()
	if err := i.check(sub, ascentMessage); err != nil {
		return record.AscentRow{}, err
	}
	return i.store.InsertAscent(ctx, sub.ascent())
}

func (i *Ingestor) SubmitAthlete(ctx context.Context, sub AthleteSubmission) (record.AthleteRow, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Nationality = strings.TrimSpace(sub.Nationality)
	sub.Gender = strings.TrimSpace(sub.Gender)
	if err := i.check(sub, athleteMessage); err != nil {
		return record.AthleteRow{}, err
	}
	return i.store.InsertAthlete(ctx, record.Athlete{
		Name:        sub.Name,
		Nationality: sub.Nationality,
		Gender:      sub.Gender,
		YearOfBirth: sub.YearOfBirth,
	})
}

func (i *Ingestor) SubmitClimb(ctx context.Context, sub ClimbSubmission) (record.ClimbRow, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.ClimbType = strings.ToLower(strings.TrimSpace(sub.ClimbType))
	sub.Grade = strings.TrimSpace(sub.Grade)
	if err := i.check(sub, climbMessage); err != nil {
		return record.ClimbRow{}, err
	}
	return i.store.InsertClimb(ctx, record.Climb{
		Name:  sub.Name,
		Type:  record.ClimbType(sub.ClimbType),
		Grade: sub.Grade,
		Location: record.Location{
			Country:   strings.TrimSpace(sub.LocationCountry),
			Area:      strings.TrimSpace(sub.LocationArea),
			Latitude:  sub.LocationLatitude,
			Longitude: sub.LocationLongitude,
		},
	})
}

// SubmitBundle validates the whole form, then runs independent ingestions:
// the athlete when any athlete detail is given, the climb when a climb type
// is given, and always the ascent. It is not atomic; on failure the receipt
// holds whatever was already inserted.
func (i *Ingestor) SubmitBundle(ctx context.Context, sub AscentSubmission) (Receipt, error) {
	sub = sub.normalized()
	if err := i.check(sub, ascentMessage); err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	if sub.hasAthleteDetails() {
		row, err := i.store.InsertAthlete(ctx, record.Athlete{
			Name:        sub.AthleteName,
			Nationality: sub.Nationality,
			Gender:      sub.Gender,
			YearOfBirth: sub.YearOfBirth,
		})
		if err != nil {
			return receipt, fmt.Errorf("submit athlete: %w", err)
		}
		receipt.Athlete = row.Hash
	}

	if sub.ClimbType != "" {
		row, err := i.store.InsertClimb(ctx, record.Climb{
			Name:  sub.ClimbName,
			Type:  record.ClimbType(sub.ClimbType),
			Grade: sub.Grade,
			Location: record.Location{
				Country:   sub.LocationCountry,
				Area:      sub.LocationArea,
				Latitude:  sub.LocationLatitude,
				Longitude: sub.LocationLongitude,
			},
		})
		if err != nil {
			return receipt, fmt.Errorf("submit climb: %w", err)
		}
		receipt.Climb = row.Hash
	}

	row, err := i.store.InsertAscent(ctx, sub.ascent())
	if err != nil {
		return receipt, fmt.Errorf("submit ascent: %w", err)
	}
	receipt.Ascent = row.Hash
	return receipt, nil
}

func (s AscentSubmission) normalized() AscentSubmission {
	s.AthleteName = strings.TrimSpace(s.AthleteName)
	s.ClimbName = strings.TrimSpace(s.ClimbName)
	s.DateOfAscent = strings.TrimSpace(s.DateOfAscent)
	s.WebLink = strings.TrimSpace(s.WebLink)
	s.Nationality = strings.TrimSpace(s.Nationality)
	s.Gender = strings.TrimSpace(s.Gender)
	s.ClimbType = strings.ToLower(strings.TrimSpace(s.ClimbType))
	s.Grade = strings.TrimSpace(s.Grade)
	s.LocationCountry = strings.TrimSpace(s.LocationCountry)
	s.LocationArea = strings.TrimSpace(s.LocationArea)
	return s
}

func (s AscentSubmission) hasAthleteDetails() bool {
	return s.Nationality != "" || s.Gender != "" || s.YearOfBirth != nil
}

func (s AscentSubmission) ascent() record.Ascent {
	return record.Ascent{
		ClimbName:    s.ClimbName,
		AthleteName:  s.AthleteName,
		DateOfAscent: s.DateOfAscent,
		WebLink:      s.WebLink,
	}
}

// check runs the struct tags and reports the first failure in the order
// given by messageFor.
func (i *Ingestor) check(value any, messageFor func(validator.FieldError) (int, string)) error {
	err := i.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate submission: %w", err)
	}

	best, message := -1, ""
	for _, fieldErr := range fieldErrs {
		rank, text := messageFor(fieldErr)
		if best == -1 || rank < best {
			best, message = rank, text
		}
	}
	return record.ValidationError(message)
}

func ascentMessage(fe validator.FieldError) (int, string) {
	switch {
	case fe.Tag() == "required":
		return 0, MessageAscentRequired
	case fe.Field() == "Grade":
		return 1, MessageGradeRequired
	}
	return 2, fieldMessage(fe)
}

func athleteMessage(fe validator.FieldError) (int, string) {
	if fe.Tag() == "required" {
		return 0, "Athlete name is required"
	}
	return 1, fieldMessage(fe)
}

func climbMessage(fe validator.FieldError) (int, string) {
	if fe.Tag() == "required" {
		return 0, "Climb name, climb type, and grade are required"
	}
	return 1, fieldMessage(fe)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "DateOfAscent":
		return "Date of ascent must be formatted as YYYY-MM-DD"
	case "WebLink":
		return "Web link must be a valid URL"
	case "ClimbType":
		return "Climb type must be sport or boulder"
	case "YearOfBirth":
		return "Year of birth must be between 1900 and 2100"
	case "LocationLatitude":
		return "Latitude must be between -90 and 90"
	case "LocationLongitude":
		return "Longitude must be between -180 and 180"
	case "Nationality", "Gender":
		return fmt.Sprintf("%s is too long", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
