package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/utils"
)

const DefaultPageSize = 10

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	return page, size
}

func slicePage(items []models.Proposal, page, size int) ([]models.Proposal, bool) {
	start := (page - 1) * size
	if start >= len(items) {
		return []models.Proposal{}, false
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], end < len(items)
}

func filterByRadius(items []models.Proposal, lat, lng, radiusKm float64) []models.Proposal {
	out := make([]models.Proposal, 0, len(items))
	for _, p := range items {
		if p.Lat == nil || p.Lng == nil {
			continue
		}
		if utils.HaversineKm(lat, lng, *p.Lat, *p.Lng) <= radiusKm {
			out = append(out, p)
		}
	}
	return out
}

func isParticipant(p *models.Proposal, userID uuid.UUID) bool {
	if p == nil {
		return false
	}
	if p.ContractorID == userID {
		return true
	}
	return p.ProfessionalID != nil && *p.ProfessionalID == userID
}

// nextScheduleStatus applies the one-way schedule sub-state rules.
// A nil next status with a nil error means "already there, no-op".
func nextScheduleStatus(payload *models.SchedulePayload, target models.ScheduleStatus) (*models.ScheduleStatus, string, error) {
	switch target {
	case models.ScheduleConfirmed, models.ScheduleRejected:
	default:
		return nil, "", fmt.Errorf("unknown schedule status %q: %w", target, ErrValidation)
	}

	if payload.Status == target {
		return nil, "", nil
	}
	if payload.Status != models.SchedulePending {
		return nil, "", fmt.Errorf("schedule already settled as %s: %w", payload.Status, ErrConflict)
	}

	next := target
	text := ""
	if target == models.ScheduleConfirmed {
		text = "Visit confirmed: " + payload.Date + " at " + payload.Time
	}
	return &next, text, nil
}

func checkReviewable(p *models.Proposal, r *models.Review) error {
	if p.Status != models.ProposalCompleted {
		return fmt.Errorf("proposal is not completed: %w", ErrConflict)
	}
	if p.ContractorID != r.ReviewerID {
		return fmt.Errorf("only the owning contractor can review: %w", ErrForbidden)
	}
	if p.ProfessionalID == nil || *p.ProfessionalID != r.ProfessionalID {
		return fmt.Errorf("review target is not the assigned professional: %w", ErrValidation)
	}
	return nil
}

func recomputeRating(oldAvg float64, oldCount, rating int) (float64, int) {
	count := oldCount + 1
	return (oldAvg*float64(oldCount) + float64(rating)) / float64(count), count
}
