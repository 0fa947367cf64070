package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/realtime"
	"github.com/chamadopro/backend/internal/store"
)

type ProposalHandler struct {
	Store store.Store
	Hub   *realtime.Hub
	RDB   *redis.Client
}

func NewProposalHandler(st store.Store, hub *realtime.Hub, rdb *redis.Client) *ProposalHandler {
	return &ProposalHandler{Store: st, Hub: hub, RDB: rdb}
}

type CreateProposalRequest struct {
	Title                string   `json:"title" validate:"required"`
	Description          string   `json:"description" validate:"required"`
	AreaTag              string   `json:"area_tag"`
	Location             string   `json:"location"`
	BudgetRange          string   `json:"budget_range"`
	TargetProfessionalID *string  `json:"target_professional_id"`
	Lat                  *float64 `json:"lat"`
	Lng                  *float64 `json:"lng"`
}

type ProposalResponse struct {
	ID                   string     `json:"id"`
	ContractorID         string     `json:"contractor_id"`
	ProfessionalID       *string    `json:"professional_id"`
	TargetProfessionalID *string    `json:"target_professional_id,omitempty"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	AreaTag              string     `json:"area_tag"`
	Location             string     `json:"location"`
	BudgetRange          string     `json:"budget_range"`
	Lat                  *float64   `json:"lat,omitempty"`
	Lng                  *float64   `json:"lng,omitempty"`
	Status               string     `json:"status"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toProposalResponse(p *models.Proposal) ProposalResponse {
	resp := ProposalResponse{
		ID:           p.ID.String(),
		ContractorID: p.ContractorID.String(),
		Title:        p.Title,
		Description:  p.Description,
		AreaTag:      p.AreaTag,
		Location:     p.Location,
		BudgetRange:  p.BudgetRange,
		Lat:          p.Lat,
		Lng:          p.Lng,
		Status:       string(p.Status),
		CompletedAt:  p.CompletedAt,
		CreatedAt:    p.CreatedAt,
	}
	if p.ProfessionalID != nil {
		s := p.ProfessionalID.String()
		resp.ProfessionalID = &s
	}
	if p.TargetProfessionalID != nil {
		s := p.TargetProfessionalID.String()
		resp.TargetProfessionalID = &s
	}
	return resp
}

// Create posts a new OPEN proposal owned by the calling contractor.
func (h *ProposalHandler) Create(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req CreateProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, "Title and description are required")
	}

	p := models.Proposal{
		ContractorID: userUUID,
		Title:        req.Title,
		Description:  req.Description,
		AreaTag:      req.AreaTag,
		Location:     req.Location,
		BudgetRange:  req.BudgetRange,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Status:       models.ProposalOpen,
	}
	if req.TargetProfessionalID != nil && *req.TargetProfessionalID != "" {
		target, err := uuid.Parse(*req.TargetProfessionalID)
		if err != nil {
			return badRequest(c, "Invalid target professional ID")
		}
		p.TargetProfessionalID = &target
	}

	if err := h.Store.CreateProposal(c.Context(), &p); err != nil {
		return respondStoreError(c, err)
	}

	// Direct-hire invitation: ping the invited professional.
	if p.TargetProfessionalID != nil {
		event := fiber.Map{
			"type":        "notification",
			"event":       "proposal_invitation",
			"proposal_id": p.ID.String(),
		}
		h.Hub.SendToUser(*p.TargetProfessionalID, event)
		realtime.PublishNotification(c.Context(), h.RDB, *p.TargetProfessionalID, event)
	}

	return c.Status(201).JSON(fiber.Map{
		"success": true,
		"data":    toProposalResponse(&p),
	})
}

// List serves both the open feed and "my proposals". Without a
// contractor_id filter only OPEN proposals are returned; professionals
// can narrow the feed by radius or their own specialty list.
func (h *ProposalHandler) List(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	f := store.ProposalFilter{
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("limit", store.DefaultPageSize),
		AreaTag:  c.Query("area"),
	}

	if cid := c.Query("contractor_id"); cid != "" {
		contractorUUID, err := uuid.Parse(cid)
		if err != nil {
			return badRequest(c, "Invalid contractor ID")
		}
		f.ContractorID = &contractorUUID
		if c.QueryBool("open_only", false) {
			f.Status = models.ProposalOpen
		}
	} else {
		// The public feed only shows jobs still up for grabs.
		f.Status = models.ProposalOpen
	}

	lat := c.QueryFloat("lat", 0)
	lng := c.QueryFloat("lng", 0)
	radius := c.QueryFloat("radius", 0)
	if radius > 0 && c.Query("lat") != "" && c.Query("lng") != "" {
		f.Lat = &lat
		f.Lng = &lng
		f.RadiusKm = radius
	}

	if c.QueryBool("match_specialties", false) {
		profile, err := h.Store.GetProfile(c.Context(), userUUID)
		if err != nil {
			return respondStoreError(c, err)
		}
		f.Specialties = profile.SpecialtyList()
	}

	items, hasMore, err := h.Store.ListProposals(c.Context(), f)
	if err != nil {
		return respondStoreError(c, err)
	}

	out := make([]ProposalResponse, 0, len(items))
	for i := range items {
		out = append(out, toProposalResponse(&items[i]))
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
		"meta": fiber.Map{
			"page":     f.Page,
			"has_more": hasMore,
		},
	})
}

func (h *ProposalHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid proposal ID")
	}

	p, err := h.Store.GetProposal(c.Context(), id)
	if err != nil {
		return respondStoreError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    toProposalResponse(p),
	})
}

// Accept moves an OPEN proposal to NEGOTIATING for the calling
// professional and bootstraps the negotiation session. A lost race
// surfaces as 409 so clients can explain the job was already taken.
func (h *ProposalHandler) Accept(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid proposal ID")
	}

	prop, sess, err := h.Store.AcceptProposal(c.Context(), id, userUUID)
	if err != nil {
		return respondStoreError(c, err)
	}

	// Tell the contractor their job was picked up.
	event := fiber.Map{
		"type":        "notification",
		"event":       "proposal_accepted",
		"proposal_id": prop.ID.String(),
		"session_id":  sess.ID.String(),
	}
	h.Hub.SendToUser(prop.ContractorID, event)
	realtime.PublishNotification(c.Context(), h.RDB, prop.ContractorID, event)

	return c.JSON(fiber.Map{
		"success":    true,
		"session_id": sess.ID.String(),
	})
}

// Complete moves a NEGOTIATING proposal owned by the caller to
// COMPLETED; the store awards the XP bonus and the ledger credit.
func (h *ProposalHandler) Complete(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid proposal ID")
	}

	prop, err := h.Store.CompleteProposal(c.Context(), id, userUUID)
	if err != nil {
		return respondStoreError(c, err)
	}

	if prop.ProfessionalID != nil {
		event := fiber.Map{
			"type":        "notification",
			"event":       "proposal_completed",
			"proposal_id": prop.ID.String(),
		}
		h.Hub.SendToUser(*prop.ProfessionalID, event)
		realtime.PublishNotification(c.Context(), h.RDB, *prop.ProfessionalID, event)
	}

	return c.JSON(fiber.Map{"success": true})
}
