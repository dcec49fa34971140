package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"climbs/api/internal/catalog"
	"climbs/api/internal/record"
	"climbs/api/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passwordVerifier string

func (p passwordVerifier) Verify(credential string) bool {
	return credential != "" && credential == string(p)
}

const secret = "belay-on"

func newService(t *testing.T) (*Service, *store.MemoryStore) {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var tick int
	s := store.NewMemoryStore().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return NewService(s, catalog.New(s), passwordVerifier(secret)), s
}

func TestDecideRequiresCredentialFirst(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Decide(context.Background(), Request{Kind: "", Hash: "", Decision: "approve", Credential: "wrong"})
	assert.True(t, errors.Is(err, record.ErrUnauthorized))

	noVerifier := NewService(store.NewMemoryStore(), nil, nil)
	_, err = noVerifier.Decide(context.Background(), Request{Kind: "athletes", Hash: "x", Decision: "approve", Credential: secret})
	assert.True(t, errors.Is(err, record.ErrUnauthorized))
}

func TestDecideRejectsMalformedRequests(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []Request{
		{Kind: "", Hash: "abc", Decision: "approve"},
		{Kind: "athletes", Hash: "  ", Decision: "approve"},
		{Kind: "routes", Hash: "abc", Decision: "approve"},
		{Kind: "athletes", Hash: "abc", Decision: "maybe"},
	}
	for _, req := range cases {
		req.Credential = secret
		_, err := svc.Decide(ctx, req)
		assert.True(t, errors.Is(err, record.ErrBadRequest), "%+v: %v", req, err)
	}
}

func TestDecideApprovesAndReturnsIdentity(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	row, err := s.InsertAthlete(ctx, record.Athlete{Name: "Adam Ondra"})
	require.NoError(t, err)

	confirmation, err := svc.Decide(ctx, Request{Kind: "athlete", Hash: row.Hash, Decision: "approve", Credential: secret})
	require.NoError(t, err)
	assert.Equal(t, Confirmation{Kind: record.KindAthlete, Hash: row.Hash, Decision: record.DecisionApprove}, confirmation)

	rows, err := s.Athletes(ctx, record.Filter{Hash: row.Hash})
	require.NoError(t, err)
	assert.Equal(t, record.StatusValid, rows[0].Status)
}

func TestDecideOnTerminalRowFails(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	row, err := s.InsertClimb(ctx, record.Climb{Name: "Silence", Type: record.ClimbSport, Grade: "9c"})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, Request{Kind: "climbs", Hash: row.Hash, Decision: "reject", Credential: secret})
	require.NoError(t, err)

	for _, decision := range []string{"approve", "reject"} {
		_, err = svc.Decide(ctx, Request{Kind: "climbs", Hash: row.Hash, Decision: decision, Credential: secret})
		assert.True(t, errors.Is(err, record.ErrInvalidTransition), decision)
	}

	_, err = svc.Decide(ctx, Request{Kind: "climbs", Hash: "unknown", Decision: "approve", Credential: secret})
	assert.True(t, errors.Is(err, record.ErrNotFound))
}

func TestDecideGateVetoLeavesAscentPending(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	row, err := s.InsertAscent(ctx, record.Ascent{ClimbName: "Y", AthleteName: "X", DateOfAscent: "2024-01-01"})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, Request{Kind: "ascents", Hash: row.Hash, Decision: "approve", Credential: secret})
	require.Error(t, err)
	assert.True(t, errors.Is(err, record.ErrPreconditionFailed))

	var typed *record.Error
	require.True(t, errors.As(err, &typed))
	assert.Contains(t, typed.Message, catalog.ReasonClimbMissing)
	assert.Contains(t, typed.Message, catalog.ReasonAthleteMissing)

	rows, err := s.Ascents(ctx, record.Filter{Hash: row.Hash})
	require.NoError(t, err)
	assert.Equal(t, record.StatusPending, rows[0].Status)
}

func TestDanglingAscentScenario(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	row, err := s.InsertAscent(ctx, record.Ascent{ClimbName: "Y", AthleteName: "X", DateOfAscent: "2024-01-01"})
	require.NoError(t, err)

	verdict, err := catalog.New(s).CanApprove(ctx, row.Hash)
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Len(t, verdict.Reasons, 2)
	assert.NotEqual(t, verdict.Reasons[0], verdict.Reasons[1])

	_, err = svc.Decide(ctx, Request{Kind: "ascents", Hash: row.Hash, Decision: "reject", Credential: secret})
	require.NoError(t, err, "rejecting skips the gate")

	for _, decision := range []string{"approve", "reject"} {
		_, err = svc.Decide(ctx, Request{Kind: "ascents", Hash: row.Hash, Decision: decision, Credential: secret})
		assert.True(t, errors.Is(err, record.ErrInvalidTransition), "%s after reject: %v", decision, err)
	}
}

func TestApproveUnknownAscentIsNotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Decide(context.Background(), Request{Kind: "ascents", Hash: "missing", Decision: "approve", Credential: secret})
	assert.True(t, errors.Is(err, record.ErrNotFound))
}

func TestDecideApprovesAscentOnceParentsAreValid(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	athlete, err := s.InsertAthlete(ctx, record.Athlete{Name: "Adam Ondra"})
	require.NoError(t, err)
	climb, err := s.InsertClimb(ctx, record.Climb{Name: "Silence", Type: record.ClimbSport, Grade: "9c"})
	require.NoError(t, err)
	ascent, err := s.InsertAscent(ctx, record.Ascent{ClimbName: "Silence", AthleteName: "Adam Ondra", DateOfAscent: "2017-09-03"})
	require.NoError(t, err)

	_, err = svc.Decide(ctx, Request{Kind: "ascents", Hash: ascent.Hash, Decision: "approve", Credential: secret})
	require.True(t, errors.Is(err, record.ErrPreconditionFailed))

	for _, step := range []struct {
		kind string
		hash string
	}{{"athletes", athlete.Hash}, {"climbs", climb.Hash}, {"ascents", ascent.Hash}} {
		_, err := svc.Decide(ctx, Request{Kind: step.kind, Hash: step.hash, Decision: "approve", Credential: secret})
		require.NoError(t, err, step.kind)
	}
}

func TestPendingListsEveryKindWithVerdicts(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	athlete, err := s.InsertAthlete(ctx, record.Athlete{Name: "Adam Ondra"})
	require.NoError(t, err)
	_, err = s.SetStatus(ctx, record.KindAthlete, athlete.Hash, record.StatusValid)
	require.NoError(t, err)
	_, err = s.InsertAthlete(ctx, record.Athlete{Name: "Janja Garnbret"})
	require.NoError(t, err)
	_, err = s.InsertClimb(ctx, record.Climb{Name: "Silence", Type: record.ClimbSport, Grade: "9c"})
	require.NoError(t, err)
	first, err := s.InsertAscent(ctx, record.Ascent{ClimbName: "Silence", AthleteName: "Adam Ondra", DateOfAscent: "2017-09-03"})
	require.NoError(t, err)
	second, err := s.InsertAscent(ctx, record.Ascent{ClimbName: "Silence", AthleteName: "Janja Garnbret", DateOfAscent: "2024-01-01"})
	require.NoError(t, err)

	queue, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, queue.Len())
	require.Len(t, queue.Athletes, 1)
	assert.Equal(t, "Janja Garnbret", queue.Athletes[0].Name)
	require.Len(t, queue.Ascents, 2)
	assert.Equal(t, first.Hash, queue.Ascents[0].Hash)
	assert.Equal(t, second.Hash, queue.Ascents[1].Hash)
	assert.Equal(t, []string{catalog.ReasonClimbMissing}, queue.Ascents[0].Verdict.Reasons)
	assert.Equal(t, []string{catalog.ReasonClimbMissing, catalog.ReasonAthleteMissing}, queue.Ascents[1].Verdict.Reasons)
}

func TestAge(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute, Age(record.Meta{RecordCreated: created}, created.Add(90*time.Minute)))
}
