// Package store defines the persistence capability behind the proposal
// lifecycle and chat. Two implementations exist: a durable gorm/postgres
// one and an in-memory one used when the database is unreachable and in
// tests. All state-machine rules live here so they hold on either path.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/chamadopro/backend/internal/models"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrConflict   = errors.New("state conflict")
	ErrForbidden  = errors.New("action not allowed for this principal")
	ErrValidation = errors.New("invalid input")
)

// ProposalFilter narrows a proposal listing. Zero values mean "no
// filter". Geo filtering requires both Lat and Lng plus RadiusKm > 0.
type ProposalFilter struct {
	Status       models.ProposalStatus
	ContractorID *uuid.UUID
	AreaTag      string
	Specialties  []string

	Lat      *float64
	Lng      *float64
	RadiusKm float64

	Page     int // 1-based
	PageSize int
}

type Store interface {
	// users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.ProfessionalProfile, error)

	// proposals
	CreateProposal(ctx context.Context, p *models.Proposal) error
	GetProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	// ListProposals returns one page plus whether more pages may exist
	// (inferred from the page being full, not an exact count).
	ListProposals(ctx context.Context, f ProposalFilter) ([]models.Proposal, bool, error)
	// AcceptProposal atomically moves an OPEN proposal to NEGOTIATING,
	// assigns the professional and looks up or creates the bound
	// session (with its system marker message). Losers of the race get
	// ErrConflict.
	AcceptProposal(ctx context.Context, proposalID, professionalID uuid.UUID) (*models.Proposal, *models.NegotiationSession, error)
	// CompleteProposal moves NEGOTIATING to COMPLETED, stamps the
	// completion time, awards the XP bonus and records the ledger
	// credit. Only the owning contractor may call it; repeating the
	// call on a completed proposal is a no-op.
	CompleteProposal(ctx context.Context, proposalID, contractorID uuid.UUID) (*models.Proposal, error)

	// sessions & messages
	GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error)
	ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.NegotiationSession, error)
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error)
	// LastUserMessage returns the newest participant-authored message,
	// skipping system entries, or nil when only system messages exist.
	LastUserMessage(ctx context.Context, sessionID uuid.UUID) (*models.Message, error)
	AppendMessage(ctx context.Context, m *models.Message) error
	// UpdateScheduleStatus drives a schedule message's sub-state. Only
	// the counter-party may move it away from PENDING; CONFIRMED and
	// REJECTED are terminal and repeating the current value is a no-op.
	// Confirmation returns the appended follow-up text message.
	UpdateScheduleStatus(ctx context.Context, messageID, actorID uuid.UUID, status models.ScheduleStatus) (*models.Message, *models.Message, error)

	// reviews
	// CreateReview validates the proposal is completed, the reviewer
	// owns it and the target is its professional, then recomputes the
	// professional's rating aggregate.
	CreateReview(ctx context.Context, r *models.Review) error

	// wallet
	ListWalletTransactions(ctx context.Context, userID uuid.UUID) ([]models.WalletTransaction, error)
	// Withdraw debits the professional's balance and records the
	// ledger entry. An amount the balance cannot cover is ErrConflict.
	Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (*models.WalletTransaction, error)
}
