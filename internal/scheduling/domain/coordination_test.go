package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroup(t *testing.T, quorum int, ids ...uuid.UUID) *domain.CoordinationGroup {
	t.Helper()
	members := make([]domain.GroupMember, len(ids))
	for i, id := range ids {
		members[i] = domain.GroupMember{ParticipantID: id, SlotID: uuid.New()}
	}
	g, err := domain.NewCoordinationGroup(uuid.New(), ids[0], members, quorum, at(9, 30))
	require.NoError(t, err)
	return g
}

func TestCoordinationGroup_ReachesQuorum(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := newGroup(t, 2, a, b)

	require.NoError(t, g.RecordHold(a, at(9, 10)))
	assert.Equal(t, domain.CoordinationPartiallyConfirmed, g.Status())
	assert.False(t, g.QuorumMet())
	assert.ErrorIs(t, g.Confirm(), domain.ErrQuorumNotMet)

	require.NoError(t, g.RecordHold(b, at(9, 20)))
	assert.True(t, g.QuorumMet())
	require.NoError(t, g.Confirm())
	assert.Equal(t, domain.CoordinationConfirmed, g.Status())

	assert.ErrorIs(t, g.RecordDecline(b, at(9, 25)), domain.ErrCoordinationClosed)
}

func TestCoordinationGroup_LeadRequired(t *testing.T) {
	lead, b, c := uuid.New(), uuid.New(), uuid.New()
	g := newGroup(t, 2, lead, b, c)

	require.NoError(t, g.RecordHold(b, at(9, 5)))
	require.NoError(t, g.RecordHold(c, at(9, 6)))
	assert.False(t, g.QuorumMet())

	require.NoError(t, g.RecordDecline(lead, at(9, 7)))
	assert.False(t, g.CanStillReachQuorum())
}

func TestCoordinationGroup_TimeOut(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := newGroup(t, 2, a, b)
	require.NoError(t, g.RecordHold(a, at(9, 10)))

	assert.ErrorIs(t, g.TimeOut(at(9, 29)), domain.ErrInvalidTransition)
	assert.False(t, g.IsExpired(at(9, 29)))
	assert.True(t, g.IsExpired(at(9, 30)))

	require.NoError(t, g.TimeOut(at(9, 30)))
	assert.Equal(t, domain.CoordinationQuorumTimeout, g.Status())
	assert.Equal(t, []uuid.UUID{a}, g.HeldParticipants())
	assert.Equal(t, []uuid.UUID{b}, g.PendingParticipants())

	require.NoError(t, g.MarkRescheduled())
	assert.Equal(t, domain.CoordinationRescheduled, g.Status())
}

func TestCoordinationGroup_Validation(t *testing.T) {
	a := uuid.New()
	members := []domain.GroupMember{{ParticipantID: a}}

	_, err := domain.NewCoordinationGroup(uuid.New(), a, members, 2, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = domain.NewCoordinationGroup(uuid.New(), uuid.New(), members, 1, time.Now())
	assert.ErrorIs(t, err, domain.ErrValidation)

	g := newGroup(t, 1, a)
	assert.ErrorIs(t, g.RecordHold(uuid.New(), time.Now()), domain.ErrNotGroupMember)
}
