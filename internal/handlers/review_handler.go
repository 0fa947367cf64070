package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/store"
)

type ReviewHandler struct {
	Store store.Store
}

func NewReviewHandler(st store.Store) *ReviewHandler {
	return &ReviewHandler{Store: st}
}

type CreateReviewRequest struct {
	ProposalID string `json:"proposal_id" validate:"required"`
	TargetID   string `json:"target_id" validate:"required"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Comment    string `json:"comment"`
}

// Create submits the contractor's rating for a completed proposal and
// folds it into the professional's running average.
func (h *ReviewHandler) Create(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req CreateReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "Rating must be between 1 and 5")
	}

	proposalID, err := uuid.Parse(req.ProposalID)
	if err != nil {
		return badRequest(c, "Invalid proposal ID")
	}
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return badRequest(c, "Invalid target ID")
	}

	review := models.Review{
		ProposalID:     proposalID,
		ReviewerID:     userUUID,
		ProfessionalID: targetID,
		Rating:         req.Rating,
		Comment:        req.Comment,
	}

	if err := h.Store.CreateReview(c.Context(), &review); err != nil {
		return respondStoreError(c, err)
	}

	return c.Status(201).JSON(fiber.Map{"success": true})
}
