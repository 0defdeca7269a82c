package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

// ImportedWindow is one availability window published by an upstream calendar.
type ImportedWindow struct {
	ExternalRef   string
	ParticipantID uuid.UUID
	Window        domain.TimeRange
	Capacity      int
}

// ImportedBlock is a busy range that masks part of a participant's windows.
type ImportedBlock struct {
	ParticipantID uuid.UUID
	Window        domain.TimeRange
}

// AvailabilitySource lists published availability within a range.
type AvailabilitySource interface {
	ListAvailability(ctx context.Context, rng domain.TimeRange) ([]ImportedWindow, []ImportedBlock, error)
}

// ImportAvailabilityCommand pulls availability for Range from the source.
type ImportAvailabilityCommand struct {
	Range domain.TimeRange
}

// ImportAvailabilityResult counts what the import did.
type ImportAvailabilityResult struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// ImportAvailabilityHandler handles the ImportAvailabilityCommand.
type ImportAvailabilityHandler struct {
	source AvailabilitySource
	upsert *UpsertSlotHandler
	logger *slog.Logger
}

// NewImportAvailabilityHandler creates a new ImportAvailabilityHandler.
func NewImportAvailabilityHandler(source AvailabilitySource, upsert *UpsertSlotHandler, logger *slog.Logger) *ImportAvailabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportAvailabilityHandler{source: source, upsert: upsert, logger: logger}
}

// Handle upserts every imported window as a CalDAV slot keyed by its
// external reference. Unknown participants are skipped; a window that would
// drop a held reservation is counted as failed and left unchanged.
func (h *ImportAvailabilityHandler) Handle(ctx context.Context, cmd ImportAvailabilityCommand) (*ImportAvailabilityResult, error) {
	if cmd.Range.IsZero() || !cmd.Range.End.After(cmd.Range.Start) {
		return nil, domain.NewValidationError("range", "must be a non-empty time range")
	}

	windows, blocks, err := h.source.ListAvailability(ctx, cmd.Range)
	if err != nil {
		return nil, err
	}

	result := &ImportAvailabilityResult{}
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		saved, err := h.upsert.Handle(ctx, UpsertSlotCommand{
			ParticipantID: w.ParticipantID,
			Window:        w.Window,
			Capacity:      w.Capacity,
			Blocked:       blockedWithin(blocks, w),
			Source:        domain.SlotSourceCalDAV,
			ExternalRef:   w.ExternalRef,
		})
		switch {
		case errors.Is(err, domain.ErrParticipantNotFound):
			result.Skipped++
		case err != nil:
			h.logger.WarnContext(ctx, "availability import failed",
				"external_ref", w.ExternalRef,
				"participant_id", w.ParticipantID,
				"error", err,
			)
			result.Failed++
		case saved.Created:
			result.Created++
		default:
			result.Updated++
		}
	}

	h.logger.InfoContext(ctx, "availability imported",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func blockedWithin(blocks []ImportedBlock, w ImportedWindow) []domain.TimeRange {
	var out []domain.TimeRange
	for _, b := range blocks {
		if b.ParticipantID != w.ParticipantID {
			continue
		}
		if clipped, ok := w.Window.Intersect(b.Window); ok {
			out = append(out, clipped)
		}
	}
	return out
}
