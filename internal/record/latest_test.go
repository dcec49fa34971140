package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func athleteRow(name, hash string, created time.Time) AthleteRow {
	return AthleteRow{
		Meta:    Meta{Hash: hash, Status: StatusValid, RecordCreated: created},
		Athlete: Athlete{Name: name},
	}
}

func TestLatestRowsPicksNewestPerKey(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []AthleteRow{
		athleteRow("Adam Ondra", "aaa", base),
		athleteRow("Janja Garnbret", "bbb", base),
		athleteRow("adam  ondra", "ccc", base.Add(time.Hour)),
		athleteRow("Adam Ondra", "ddd", base.Add(-time.Hour)),
	}

	got := LatestRows(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "ccc", got[0].Hash)
	assert.Equal(t, "bbb", got[1].Hash)
}

func TestLatestRowsBreaksTiesDeterministically(t *testing.T) {
	created := time.Date(2024, 5, 5, 12, 0, 0, 0, time.UTC)
	first := athleteRow("Alex Megos", "0f3a", created)
	second := athleteRow("Alex Megos", "9b11", created)

	forward := LatestRows([]AthleteRow{first, second})
	backward := LatestRows([]AthleteRow{second, first})

	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, forward[0].Hash, backward[0].Hash)
	for i := 0; i < 5; i++ {
		again := LatestRows([]AthleteRow{first, second})
		assert.Equal(t, forward[0].Hash, again[0].Hash)
	}
}

func TestLatestRowsCompoundKeys(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []ClimbRow{
		{Meta: Meta{Hash: "a", RecordCreated: created}, Climb: Climb{Name: "Burden of Dreams", Type: ClimbBoulder}},
		{Meta: Meta{Hash: "b", RecordCreated: created}, Climb: Climb{Name: "Burden of Dreams", Type: ClimbSport}},
	}
	assert.Len(t, LatestRows(rows), 2)

	ascents := []AscentRow{
		{Meta: Meta{Hash: "x", RecordCreated: created}, Ascent: Ascent{ClimbName: "Silence", AthleteName: "Adam Ondra"}},
		{Meta: Meta{Hash: "y", RecordCreated: created}, Ascent: Ascent{ClimbName: "Silence", AthleteName: "Jakob Schubert"}},
		{Meta: Meta{Hash: "z", RecordCreated: created.Add(time.Minute)}, Ascent: Ascent{ClimbName: "silence", AthleteName: "ADAM ONDRA"}},
	}
	latest := LatestRows(ascents)
	require.Len(t, latest, 2)
	assert.Equal(t, "z", latest[0].Hash)
	assert.Equal(t, "y", latest[1].Hash)
}

func TestLatestEmpty(t *testing.T) {
	assert.Empty(t, LatestRows[AthleteRow](nil))
}

func TestNewer(t *testing.T) {
	now := time.Now()
	assert.True(t, Newer(Meta{Hash: "a", RecordCreated: now.Add(time.Second)}, Meta{Hash: "b", RecordCreated: now}))
	assert.False(t, Newer(Meta{Hash: "z", RecordCreated: now}, Meta{Hash: "a", RecordCreated: now.Add(time.Second)}))
	assert.True(t, Newer(Meta{Hash: "b", RecordCreated: now}, Meta{Hash: "a", RecordCreated: now}))
	assert.False(t, Newer(Meta{Hash: "a", RecordCreated: now}, Meta{Hash: "a", RecordCreated: now}))
}
