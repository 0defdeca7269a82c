package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	windows []ImportedWindow
	blocks  []ImportedBlock
	err     error
}

func (s *stubSource) ListAvailability(context.Context, domain.TimeRange) ([]ImportedWindow, []ImportedBlock, error) {
	return s.windows, s.blocks, s.err
}

func TestImportAvailability(t *testing.T) {
	f := newFixture(t, services.DefaultCoordinatorConfig())
	tech := f.addParticipant(t, "Gale", "repair")
	upsert := NewUpsertSlotHandler(f.participants, f.store, f.registry, f.outbox, persistence.NoopUnitOfWork{}, nil)
	ctx := context.Background()

	source := &stubSource{
		windows: []ImportedWindow{
			{ExternalRef: "morning", ParticipantID: tech.ID(), Window: window(8, 12), Capacity: 2},
			{ExternalRef: "stranger", ParticipantID: uuid.New(), Window: window(8, 12)},
		},
		blocks: []ImportedBlock{
			{ParticipantID: tech.ID(), Window: window(11, 14)},
		},
	}
	handler := NewImportAvailabilityHandler(source, upsert, nil)

	first, err := handler.Handle(ctx, ImportAvailabilityCommand{Range: window(0, 24)})
	require.NoError(t, err)
	assert.Equal(t, &ImportAvailabilityResult{Created: 1, Skipped: 1}, first)

	slot, err := f.store.FindSlotByExternalRef(ctx, tech.ID(), "morning")
	require.NoError(t, err)
	assert.Equal(t, domain.SlotSourceCalDAV, slot.Source())
	assert.Equal(t, 2, slot.Capacity())
	require.Len(t, slot.Blocked(), 1)
	assert.Equal(t, window(11, 12), slot.Blocked()[0])

	second, err := handler.Handle(ctx, ImportAvailabilityCommand{Range: window(0, 24)})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Updated)
	assert.Zero(t, second.Created)
}

func TestImportAvailability_KeepsSlotsWithHeldReservations(t *testing.T) {
	f := newFixture(t, services.DefaultCoordinatorConfig())
	tech := f.addParticipant(t, "Gale", "repair")
	upsert := NewUpsertSlotHandler(f.participants, f.store, f.registry, f.outbox, persistence.NoopUnitOfWork{}, nil)
	ctx := context.Background()

	source := &stubSource{windows: []ImportedWindow{
		{ExternalRef: "day", ParticipantID: tech.ID(), Window: window(8, 12), Capacity: 1},
	}}
	handler := NewImportAvailabilityHandler(source, upsert, nil)
	_, err := handler.Handle(ctx, ImportAvailabilityCommand{Range: window(0, 24)})
	require.NoError(t, err)

	slot, err := f.store.FindSlotByExternalRef(ctx, tech.ID(), "day")
	require.NoError(t, err)
	f.occupy(t, tech, slot, window(10, 11))

	source.windows[0].Window = window(8, 10)
	result, err := handler.Handle(ctx, ImportAvailabilityCommand{Range: window(0, 24)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	unchanged, err := f.store.FindSlot(ctx, slot.ID())
	require.NoError(t, err)
	assert.Equal(t, window(8, 12), unchanged.Window())
}

func TestImportAvailability_Errors(t *testing.T) {
	f := newFixture(t, services.DefaultCoordinatorConfig())
	upsert := NewUpsertSlotHandler(f.participants, f.store, f.registry, f.outbox, persistence.NoopUnitOfWork{}, nil)

	_, err := NewImportAvailabilityHandler(&stubSource{}, upsert, nil).Handle(context.Background(), ImportAvailabilityCommand{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	down := errors.New("caldav unreachable")
	_, err = NewImportAvailabilityHandler(&stubSource{err: down}, upsert, nil).Handle(context.Background(), ImportAvailabilityCommand{Range: window(0, 24)})
	assert.ErrorIs(t, err, down)
}
