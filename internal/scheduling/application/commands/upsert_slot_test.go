package commands

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterParticipant(t *testing.T) {
	repo := persistence.NewMemoryParticipantRepository()
	handler := NewRegisterParticipantHandler(repo, nil)
	ctx := context.Background()

	created, err := handler.Handle(ctx, RegisterParticipantCommand{
		Name:     "Gale",
		Skills:   []string{"repair"},
		Home:     home,
		DailyCap: 4,
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive())

	updated, err := handler.Handle(ctx, RegisterParticipantCommand{
		ID:         created.ID(),
		Skills:     []string{"repair", "electrical"},
		Home:       home,
		DailyCap:   6,
		Deactivate: true,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID(), updated.ID())
	assert.False(t, updated.IsActive())

	stored, err := repo.FindByID(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, 6, stored.DailyCap())
	assert.ElementsMatch(t, []string{"repair", "electrical"}, stored.Skills())

	_, err = handler.Handle(ctx, RegisterParticipantCommand{Skills: []string{"repair"}, Home: home})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUpsertSlot(t *testing.T) {
	f := newFixture(t, services.DefaultCoordinatorConfig())
	tech := f.addParticipant(t, "Gale", "repair")
	handler := NewUpsertSlotHandler(f.participants, f.store, f.registry, f.outbox, persistence.NoopUnitOfWork{}, nil)
	ctx := context.Background()

	created, err := handler.Handle(ctx, UpsertSlotCommand{
		ParticipantID: tech.ID(),
		Window:        window(8, 12),
		Source:        domain.SlotSourceCalDAV,
		ExternalRef:   "evt-1@calendar",
	})
	require.NoError(t, err)
	assert.True(t, created.Created)
	assert.Equal(t, 1, created.Slot.Capacity())
	assert.Equal(t, domain.SlotSourceCalDAV, created.Slot.Source())

	moved, err := handler.Handle(ctx, UpsertSlotCommand{
		ParticipantID: tech.ID(),
		Window:        window(9, 13),
		Capacity:      2,
		Source:        domain.SlotSourceCalDAV,
		ExternalRef:   "evt-1@calendar",
	})
	require.NoError(t, err)
	assert.False(t, moved.Created)
	assert.Equal(t, created.Slot.ID(), moved.Slot.ID())
	assert.Equal(t, window(9, 13), moved.Slot.Window())

	assert.Equal(t, []string{domain.RoutingKeySlotChanged, domain.RoutingKeySlotChanged}, f.routingKeys(t))
}

func TestUpsertSlot_KeepsHeldReservations(t *testing.T) {
	f := newFixture(t, services.DefaultCoordinatorConfig())
	tech := f.addParticipant(t, "Gale", "repair")
	slot := f.addSlot(t, tech, window(8, 12), 2)
	f.occupy(t, tech, slot, window(10, 11))
	handler := NewUpsertSlotHandler(f.participants, f.store, f.registry, f.outbox, persistence.NoopUnitOfWork{}, nil)

	_, err := handler.Handle(context.Background(), UpsertSlotCommand{
		SlotID:        slot.ID(),
		ParticipantID: tech.ID(),
		Window:        window(8, 10),
		Capacity:      2,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = handler.Handle(context.Background(), UpsertSlotCommand{
		SlotID:        slot.ID(),
		ParticipantID: uuid.New(),
		Window:        window(8, 12),
	})
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
}
