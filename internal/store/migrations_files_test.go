package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

	for _, dialect := range []Dialect{DialectPostgres, DialectSQLite} {
		migrationsDir := MigrationsPath(migrationsRoot, dialect)
		entries, err := os.ReadDir(migrationsDir)
		if err != nil {
			t.Fatalf("read %s migrations dir: %v", dialect, err)
		}

		byVersion := map[string]map[string]bool{}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				continue
			}
			version, direction := match[1], match[2]
			if byVersion[version] == nil {
				byVersion[version] = map[string]bool{}
			}
			if byVersion[version][direction] {
				t.Fatalf("duplicate %s %s migration file for version %s", dialect, direction, version)
			}
			byVersion[version][direction] = true
		}

		if len(byVersion) == 0 {
			t.Fatalf("no %s migrations discovered", dialect)
		}
		for version, dirs := range byVersion {
			if !dirs["up"] || !dirs["down"] {
				t.Fatalf("%s version %s must include both up and down files", dialect, version)
			}
		}
	}
}

func TestDialectsShipTheSameMigrationVersions(t *testing.T) {
	names := func(dialect Dialect) []string {
		entries, err := os.ReadDir(MigrationsPath(migrationsRoot, dialect))
		if err != nil {
			t.Fatalf("read %s migrations dir: %v", dialect, err)
		}
		var out []string
		for _, entry := range entries {
			out = append(out, entry.Name())
		}
		return out
	}

	postgres, sqlite := names(DialectPostgres), names(DialectSQLite)
	if strings.Join(postgres, ",") != strings.Join(sqlite, ",") {
		t.Fatalf("migration files differ between dialects:\npostgres: %v\nsqlite:   %v", postgres, sqlite)
	}
}

func TestImmutabilityMigrationUsesBlockingTriggers(t *testing.T) {
	cases := map[Dialect][]string{
		DialectPostgres: {
			"record_row_immutable_guard",
			"record_transitions_immutable_guard",
			"RAISE EXCEPTION",
			"CREATE TRIGGER trg_athletes_block_delete",
			"CREATE TRIGGER trg_climbs_guard_update",
			"CREATE TRIGGER trg_ascents_guard_update",
			"CREATE TRIGGER trg_record_transitions_block_update",
		},
		DialectSQLite: {
			"RAISE(ABORT",
			"trg_athletes_block_delete",
			"trg_climbs_guard_update",
			"trg_ascents_guard_update",
			"trg_record_transitions_block_delete",
		},
	}

	for dialect, expected := range cases {
		path := filepath.Join(MigrationsPath(migrationsRoot, dialect), "0003_record_immutability_trigger.up.sql")
		sqlBytes, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read migration: %v", err)
		}
		sqlText := string(sqlBytes)
		for _, snippet := range expected {
			if !strings.Contains(sqlText, snippet) {
				t.Fatalf("expected %s migration to contain %q", dialect, snippet)
			}
		}
		if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
			t.Fatalf("expected hard-fail immutability guard, found silent DO INSTEAD NOTHING rule")
		}
	}
}
