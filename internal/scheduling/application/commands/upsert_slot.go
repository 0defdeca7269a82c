package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	sharedApplication "github.com/felixgeelhaar/crewplan/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/crewplan/internal/shared/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
)

// UpsertSlotCommand creates or updates an availability slot. Slots imported
// from an upstream calendar are matched by ExternalRef.
type UpsertSlotCommand struct {
	SlotID        uuid.UUID
	ParticipantID uuid.UUID
	Window        domain.TimeRange
	Capacity      int
	Blocked       []domain.TimeRange
	Source        domain.SlotSource
	ExternalRef   string
}

// UpsertSlotResult reports whether the slot was created.
type UpsertSlotResult struct {
	Slot    *domain.AvailabilitySlot
	Created bool
}

// UpsertSlotHandler handles the UpsertSlotCommand.
type UpsertSlotHandler struct {
	participants domain.ParticipantRepository
	store        domain.AvailabilityStore
	registry     *services.Registry
	outboxRepo   outbox.Repository
	uow          sharedApplication.UnitOfWork
	logger       *slog.Logger
}

// NewUpsertSlotHandler creates a new UpsertSlotHandler.
func NewUpsertSlotHandler(
	participants domain.ParticipantRepository,
	store domain.AvailabilityStore,
	registry *services.Registry,
	outboxRepo outbox.Repository,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *UpsertSlotHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpsertSlotHandler{
		participants: participants,
		store:        store,
		registry:     registry,
		outboxRepo:   outboxRepo,
		uow:          uow,
		logger:       logger,
	}
}

// Handle executes the UpsertSlotCommand. Shrinking a slot below the
// reservations it already holds is rejected.
func (h *UpsertSlotHandler) Handle(ctx context.Context, cmd UpsertSlotCommand) (*UpsertSlotResult, error) {
	if cmd.Capacity == 0 {
		cmd.Capacity = 1
	}
	if _, err := h.participants.FindByID(ctx, cmd.ParticipantID); err != nil {
		return nil, err
	}

	result := &UpsertSlotResult{}
	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		slot, err := h.find(txCtx, cmd)
		if err != nil {
			return err
		}
		if slot == nil {
			slot, err = domain.NewAvailabilitySlot(cmd.ParticipantID, cmd.Window, cmd.Capacity, cmd.Blocked)
			if err != nil {
				return err
			}
			result.Created = true
		} else {
			if slot.ParticipantID() != cmd.ParticipantID {
				return domain.NewValidationError("participant_id", "does not own the slot")
			}
			previous := slot.Window()
			if err := slot.Resize(cmd.Window, cmd.Capacity); err != nil {
				return err
			}
			if err := slot.ReplaceBlocked(cmd.Blocked); err != nil {
				return err
			}
			if err := h.checkHeld(txCtx, slot, previous); err != nil {
				return err
			}
		}
		if cmd.Source != "" && cmd.Source != domain.SlotSourceManual {
			slot.MarkImported(cmd.Source, cmd.ExternalRef)
		}
		if err := h.store.SaveSlot(txCtx, slot); err != nil {
			return err
		}
		result.Slot = slot
		return saveEvents(txCtx, h.outboxRepo, uuid.Nil, []sharedDomain.DomainEvent{domain.NewSlotUpdated(slot)})
	})
	if err != nil {
		return nil, err
	}

	h.registry.Notify(domain.NewSlotUpdated(result.Slot))
	h.logger.InfoContext(ctx, "availability slot saved",
		"slot_id", result.Slot.ID(),
		"participant_id", cmd.ParticipantID,
		"window", result.Slot.Window().String(),
		"created", result.Created,
	)
	return result, nil
}

func (h *UpsertSlotHandler) find(ctx context.Context, cmd UpsertSlotCommand) (*domain.AvailabilitySlot, error) {
	var (
		slot *domain.AvailabilitySlot
		err  error
	)
	switch {
	case cmd.SlotID != uuid.Nil:
		slot, err = h.store.FindSlot(ctx, cmd.SlotID)
	case cmd.ExternalRef != "":
		slot, err = h.store.FindSlotByExternalRef(ctx, cmd.ParticipantID, cmd.ExternalRef)
	default:
		return nil, nil
	}
	if errors.Is(err, domain.ErrSlotNotFound) {
		return nil, nil
	}
	return slot, err
}

// checkHeld keeps every existing reservation of the slot inside it and within capacity.
func (h *UpsertSlotHandler) checkHeld(ctx context.Context, slot *domain.AvailabilitySlot, previous domain.TimeRange) error {
	span, _ := domain.SpanOf([]domain.TimeRange{previous, slot.Window()})
	held, err := h.store.ReservationsInRange(ctx, []uuid.UUID{slot.ParticipantID()}, span)
	if err != nil {
		return err
	}
	count := 0
	for _, res := range held {
		if res.SlotID != slot.ID() {
			continue
		}
		if !slot.Fits(res.Window) {
			return domain.NewValidationError("window", fmt.Sprintf("would drop the reservation at %s", res.Window))
		}
		count++
	}
	if count > slot.Capacity() {
		return domain.NewValidationError("capacity", fmt.Sprintf("%d reservations already held", count))
	}
	return nil
}
