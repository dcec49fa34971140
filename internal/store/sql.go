package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"climbs/api/internal/record"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLStore keeps rows in PostgreSQL or SQLite. Both dialects share one
// schema shape; see db/migrations.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     clock
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: defaultClock}
}

// WithClock replaces the insertion clock. Tests use it to force equal
// record_created values.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = func() time.Time { return now().UTC().Truncate(time.Microsecond) }
	return s
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertAthlete(ctx context.Context, athlete record.Athlete) (record.AthleteRow, error) {
	meta, err := s.insert(ctx, athlete, `
		INSERT INTO athletes (hash, name, name_key, nationality, gender, year_of_birth, status, record_created)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)
	`, athlete.Name, athlete.Key(), nullString(athlete.Nationality), nullString(athlete.Gender), nullInt(athlete.YearOfBirth))
	if err != nil {
		return record.AthleteRow{}, err
	}
	return record.AthleteRow{Meta: meta, Athlete: athlete}, nil
}

func (s *SQLStore) InsertClimb(ctx context.Context, climb record.Climb) (record.ClimbRow, error) {
	meta, err := s.insert(ctx, climb, `
		INSERT INTO climbs (hash, name, name_key, climb_type, grade, location_country, location_area, location_latitude, location_longitude, status, record_created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`,
		climb.Name,
		record.Fold(climb.Name),
		string(climb.Type),
		climb.Grade,
		nullString(climb.Location.Country),
		nullString(climb.Location.Area),
		nullFloat(climb.Location.Latitude),
		nullFloat(climb.Location.Longitude),
	)
	if err != nil {
		return record.ClimbRow{}, err
	}
	return record.ClimbRow{Meta: meta, Climb: climb}, nil
}

func (s *SQLStore) InsertAscent(ctx context.Context, ascent record.Ascent) (record.AscentRow, error) {
	meta, err := s.insert(ctx, ascent, `
		INSERT INTO ascents (hash, climb_name, climb_key, athlete_name, athlete_key, date_of_ascent, web_link, status, record_created)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)
	`, ascent.ClimbName, ascent.ClimbKey(), ascent.AthleteName, ascent.AthleteKey(), ascent.DateOfAscent, nullString(ascent.WebLink))
	if err != nil {
		return record.AscentRow{}, err
	}
	return record.AscentRow{Meta: meta, Ascent: ascent}, nil
}

// insert binds hash first and record_created last around the column values.
func (s *SQLStore) insert(ctx context.Context, entity record.Entity, query string, values ...any) (record.Meta, error) {
	created := s.now()
	query = s.dialect.rebind(query)

	for attempt := 1; ; attempt++ {
		hash, err := record.NewHash(entity, created)
		if err != nil {
			return record.Meta{}, err
		}
		args := make([]any, 0, len(values)+2)
		args = append(args, hash)
		args = append(args, values...)
		args = append(args, created)

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) && attempt < maxHashAttempts {
				continue
			}
			return record.Meta{}, fmt.Errorf("insert %s: %w", entity.Kind(), err)
		}
		return record.Meta{Hash: hash, Status: record.StatusPending, RecordCreated: created}, nil
	}
}

func (s *SQLStore) Athletes(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AthleteRow, error) {
	var w where
	if filter.Name != "" {
		w.add("name_key = ?", record.Fold(filter.Name))
	}
	if filter.Hash != "" {
		w.add("hash = ?", filter.Hash)
	}
	w.statuses(statuses)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT hash, name, nationality, gender, year_of_birth, status, record_created
		FROM athletes`+w.String()+`
		ORDER BY record_created ASC, hash ASC
	`), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	defer rows.Close()

	items := make([]record.AthleteRow, 0)
	for rows.Next() {
		var (
			item        record.AthleteRow
			nationality sql.NullString
			gender      sql.NullString
			yearOfBirth sql.NullInt64
			status      string
		)
		if err := rows.Scan(&item.Hash, &item.Name, &nationality, &gender, &yearOfBirth, &status, &item.RecordCreated); err != nil {
			return nil, fmt.Errorf("scan athlete: %w", err)
		}
		item.Nationality = nationality.String
		item.Gender = gender.String
		if yearOfBirth.Valid {
			year := int(yearOfBirth.Int64)
			item.YearOfBirth = &year
		}
		item.Status = record.Status(status)
		item.RecordCreated = item.RecordCreated.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate athletes: %w", err)
	}
	return items, nil
}

func (s *SQLStore) Climbs(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.ClimbRow, error) {
	var w where
	if filter.Name != "" {
		w.add("name_key = ?", record.Fold(filter.Name))
	}
	if filter.ClimbType != "" {
		w.add("climb_type = ?", string(filter.ClimbType))
	}
	if filter.Hash != "" {
		w.add("hash = ?", filter.Hash)
	}
	w.statuses(statuses)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT hash, name, climb_type, grade, location_country, location_area, location_latitude, location_longitude, status, record_created
		FROM climbs`+w.String()+`
		ORDER BY record_created ASC, hash ASC
	`), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list climbs: %w", err)
	}
	defer rows.Close()

	items := make([]record.ClimbRow, 0)
	for rows.Next() {
		var (
			item      record.ClimbRow
			climbType string
			country   sql.NullString
			area      sql.NullString
			latitude  sql.NullFloat64
			longitude sql.NullFloat64
			status    string
		)
		if err := rows.Scan(&item.Hash, &item.Name, &climbType, &item.Grade, &country, &area, &latitude, &longitude, &status, &item.RecordCreated); err != nil {
			return nil, fmt.Errorf("scan climb: %w", err)
		}
		item.Type = record.ClimbType(climbType)
		item.Location.Country = country.String
		item.Location.Area = area.String
		if latitude.Valid {
			value := latitude.Float64
			item.Location.Latitude = &value
		}
		if longitude.Valid {
			value := longitude.Float64
			item.Location.Longitude = &value
		}
		item.Status = record.Status(status)
		item.RecordCreated = item.RecordCreated.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate climbs: %w", err)
	}
	return items, nil
}

func (s *SQLStore) Ascents(ctx context.Context, filter record.Filter, statuses ...record.Status) ([]record.AscentRow, error) {
	var w where
	if filter.Climb != "" {
		w.add("climb_key = ?", record.Fold(filter.Climb))
	}
	if filter.Athlete != "" {
		w.add("athlete_key = ?", record.Fold(filter.Athlete))
	}
	if filter.Hash != "" {
		w.add("hash = ?", filter.Hash)
	}
	w.statuses(statuses)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT hash, climb_name, athlete_name, date_of_ascent, web_link, status, record_created
		FROM ascents`+w.String()+`
		ORDER BY record_created ASC, hash ASC
	`), w.args...)
	if err != nil {
		return nil, fmt.Errorf("list ascents: %w", err)
	}
	defer rows.Close()

	items := make([]record.AscentRow, 0)
	for rows.Next() {
		var (
			item    record.AscentRow
			webLink sql.NullString
			status  string
		)
		if err := rows.Scan(&item.Hash, &item.ClimbName, &item.AthleteName, &item.DateOfAscent, &webLink, &status, &item.RecordCreated); err != nil {
			return nil, fmt.Errorf("scan ascent: %w", err)
		}
		item.WebLink = webLink.String
		item.Status = record.Status(status)
		item.RecordCreated = item.RecordCreated.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ascents: %w", err)
	}
	return items, nil
}

func (s *SQLStore) SetStatus(ctx context.Context, kind record.Kind, hash string, status record.Status) (Transition, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Transition{}, err
	}
	if err := checkTarget(status); err != nil {
		return Transition{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Transition{}, fmt.Errorf("begin set status tx: %w", err)
	}

	result, err := tx.ExecContext(ctx, s.dialect.rebind(`
		UPDATE `+table+`
		SET status=?
		WHERE hash=? AND status='pending'
	`), string(status), hash)
	if err != nil {
		_ = tx.Rollback()
		return Transition{}, fmt.Errorf("set %s status: %w", kind, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return Transition{}, fmt.Errorf("set %s status rows: %w", kind, err)
	}

	if affected == 0 {
		var current string
		err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT status FROM `+table+` WHERE hash=?`), hash).Scan(&current)
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return Transition{}, record.NotFound(kind, hash)
		}
		if err != nil {
			return Transition{}, fmt.Errorf("lookup %s status: %w", kind, err)
		}
		return Transition{}, record.InvalidTransition(kind, hash, record.Status(current))
	}

	transition := Transition{Kind: kind, Hash: hash, From: record.StatusPending, To: status, DecidedAt: s.now()}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO record_transitions (kind, hash, from_status, to_status, decided_at)
		VALUES (?, ?, ?, ?, ?)
	`), string(kind), hash, string(transition.From), string(transition.To), transition.DecidedAt); err != nil {
		_ = tx.Rollback()
		return Transition{}, fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Transition{}, fmt.Errorf("commit set status: %w", err)
	}
	return transition, nil
}

func (s *SQLStore) Transitions(ctx context.Context, kind record.Kind, hash string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
		SELECT kind, hash, from_status, to_status, decided_at
		FROM record_transitions
		WHERE kind=? AND hash=?
		ORDER BY id ASC
	`), string(kind), hash)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	items := make([]Transition, 0)
	for rows.Next() {
		var (
			item     Transition
			itemKind string
			from, to string
		)
		if err := rows.Scan(&itemKind, &item.Hash, &from, &to, &item.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		item.Kind = record.Kind(itemKind)
		item.From = record.Status(from)
		item.To = record.Status(to)
		item.DecidedAt = item.DecidedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return items, nil
}

func tableFor(kind record.Kind) (string, error) {
	switch kind {
	case record.KindAthlete, record.KindClimb, record.KindAscent:
		return string(kind), nil
	default:
		return "", record.BadRequest(fmt.Sprintf("unknown record kind %q", kind))
	}
}

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, arg)
}

func (w *where) statuses(statuses []record.Status) {
	if len(statuses) == 0 {
		return
	}
	marks := make([]string, len(statuses))
	for i, status := range statuses {
		marks[i] = "?"
		w.args = append(w.args, string(status))
	}
	w.clauses = append(w.clauses, "status IN ("+strings.Join(marks, ", ")+")")
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(w.clauses, " AND ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullInt(value *int) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func nullFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}
