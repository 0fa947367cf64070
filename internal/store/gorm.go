package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/services/wallet"
	"github.com/chamadopro/backend/internal/utils"
)

// GormStore is the durable Store over postgres.
type GormStore struct {
	DB     *gorm.DB
	Wallet *wallet.Service
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, Wallet: wallet.NewService(db)}
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	var existing models.User
	err := s.DB.WithContext(ctx).Where("email = ?", u.Email).First(&existing).Error
	if err == nil {
		return fmt.Errorf("email already registered: %w", ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.DB.WithContext(ctx).Create(u).Error
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).
		Preload("ProfessionalProfile").
		First(&u, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).
		Preload("ProfessionalProfile").
		Where("email = ?", email).First(&u).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &u, nil
}

func (s *GormStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.ProfessionalProfile, error) {
	var p models.ProfessionalProfile
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *GormStore) CreateProposal(ctx context.Context, p *models.Proposal) error {
	if p.Status == "" {
		p.Status = models.ProposalOpen
	}
	return s.DB.WithContext(ctx).Create(p).Error
}

func (s *GormStore) GetProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	var p models.Proposal
	if err := s.DB.WithContext(ctx).
		Preload("Contractor").
		Preload("Professional").
		First(&p, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &p, nil
}

func (s *GormStore) ListProposals(ctx context.Context, f ProposalFilter) ([]models.Proposal, bool, error) {
	page, size := normalizePage(f.Page, f.PageSize)

	q := s.DB.WithContext(ctx).Model(&models.Proposal{}).Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ContractorID != nil {
		q = q.Where("contractor_id = ?", *f.ContractorID)
	}
	if f.AreaTag != "" {
		q = q.Where("area_tag = ?", f.AreaTag)
	}
	if len(f.Specialties) > 0 {
		q = q.Where("area_tag IN ?", f.Specialties)
	}

	if f.Lat != nil && f.Lng != nil && f.RadiusKm > 0 {
		// Radius math runs in Go over the SQL-narrowed rows so the
		// durable and in-memory stores stay behaviorally identical.
		var all []models.Proposal
		if err := q.Find(&all).Error; err != nil {
			return nil, false, err
		}
		matched := filterByRadius(all, *f.Lat, *f.Lng, f.RadiusKm)
		items, hasMore := slicePage(matched, page, size)
		return items, hasMore, nil
	}

	// Fetch one extra row to infer has_more without a count query.
	var items []models.Proposal
	if err := q.Limit(size + 1).Offset((page - 1) * size).Find(&items).Error; err != nil {
		return nil, false, err
	}
	hasMore := len(items) > size
	if hasMore {
		items = items[:size]
	}
	return items, hasMore, nil
}

func (s *GormStore) AcceptProposal(ctx context.Context, proposalID, professionalID uuid.UUID) (*models.Proposal, *models.NegotiationSession, error) {
	var (
		prop models.Proposal
		sess models.NegotiationSession
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&prop, "id = ?", proposalID).Error; err != nil {
			return wrapNotFound(err)
		}

		if prop.Status != models.ProposalOpen {
			return fmt.Errorf("proposal is no longer open: %w", ErrConflict)
		}
		if prop.TargetProfessionalID != nil && *prop.TargetProfessionalID != professionalID {
			return fmt.Errorf("proposal is a direct-hire invitation: %w", ErrForbidden)
		}

		// Conditional update on the current state; the row lock makes
		// this the single winner of any accept race.
		res := tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", prop.ID, models.ProposalOpen).
			Updates(map[string]interface{}{
				"status":          models.ProposalNegotiating,
				"professional_id": professionalID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("proposal is no longer open: %w", ErrConflict)
		}
		prop.Status = models.ProposalNegotiating
		prop.ProfessionalID = &professionalID

		// Lookup-or-create keeps the session unique per proposal even
		// under repeated accepts; the unique index backs it up.
		err := tx.Where("proposal_id = ?", prop.ID).First(&sess).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			sess = models.NegotiationSession{
				ProposalID:    prop.ID,
				LastMessageAt: time.Now(),
			}
			if err := tx.Create(&sess).Error; err != nil {
				return err
			}
			marker := models.Message{
				ID:        uuid.New(),
				SessionID: sess.ID,
				SenderID:  models.SystemSenderID,
				Kind:      models.KindText,
				Text:      "Negotiation started",
			}
			if err := tx.Create(&marker).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &prop, &sess, nil
}

func (s *GormStore) CompleteProposal(ctx context.Context, proposalID, contractorID uuid.UUID) (*models.Proposal, error) {
	var prop models.Proposal

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&prop, "id = ?", proposalID).Error; err != nil {
			return wrapNotFound(err)
		}

		if prop.ContractorID != contractorID {
			return fmt.Errorf("only the owning contractor can complete: %w", ErrForbidden)
		}
		if prop.Status == models.ProposalCompleted {
			// Idempotent: a replayed complete changes nothing.
			return nil
		}
		if prop.Status != models.ProposalNegotiating {
			return fmt.Errorf("proposal is not in negotiation: %w", ErrConflict)
		}

		now := time.Now()
		res := tx.Model(&models.Proposal{}).
			Where("id = ? AND status = ?", prop.ID, models.ProposalNegotiating).
			Updates(map[string]interface{}{
				"status":       models.ProposalCompleted,
				"completed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("proposal is not in negotiation: %w", ErrConflict)
		}
		prop.Status = models.ProposalCompleted
		prop.CompletedAt = &now

		proID := *prop.ProfessionalID

		// Gamification bonus for the assigned professional.
		if err := tx.Model(&models.ProfessionalProfile{}).
			Where("user_id = ?", proID).
			Update("experience", gorm.Expr("experience + ?", models.CompletionXPBonus)).Error; err != nil {
			return err
		}

		amount := utils.ParseBudgetAmount(prop.BudgetRange, models.DefaultCompletionCredit)
		desc := "Payment for job \"" + prop.Title + "\""
		if err := s.Wallet.CreditProfessional(tx, proID, amount, prop.ID, desc); err != nil {
			return err
		}

		var sess models.NegotiationSession
		if err := tx.Where("proposal_id = ?", prop.ID).First(&sess).Error; err == nil {
			msg := models.Message{
				ID:        uuid.New(),
				SessionID: sess.ID,
				SenderID:  models.SystemSenderID,
				Kind:      models.KindText,
				Text:      "Job marked as completed by the contractor",
			}
			if err := tx.Create(&msg).Error; err != nil {
				return err
			}
			tx.Model(&models.NegotiationSession{}).
				Where("id = ?", sess.ID).
				Update("last_message_at", msg.CreatedAt)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return &prop, nil
}

func (s *GormStore) GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	var sess models.NegotiationSession
	if err := s.DB.WithContext(ctx).
		Preload("Proposal").
		Preload("Proposal.Contractor").
		Preload("Proposal.Professional").
		First(&sess, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &sess, nil
}

func (s *GormStore) ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.NegotiationSession, error) {
	var sessions []models.NegotiationSession
	err := s.DB.WithContext(ctx).
		Preload("Proposal").
		Preload("Proposal.Contractor").
		Preload("Proposal.Professional").
		Joins("JOIN proposals ON proposals.id = negotiation_sessions.proposal_id").
		Where("proposals.contractor_id = ? OR proposals.professional_id = ?", userID, userID).
		Order("negotiation_sessions.last_message_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *GormStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *GormStore) LastUserMessage(ctx context.Context, sessionID uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := s.DB.WithContext(ctx).
		Where("session_id = ? AND sender_id <> ?", sessionID, models.SystemSenderID).
		Order("seq DESC").
		Limit(1).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&models.NegotiationSession{}).
			Where("id = ?", m.SessionID).
			Update("last_message_at", m.CreatedAt).Error
	})
}

func (s *GormStore) UpdateScheduleStatus(ctx context.Context, messageID, actorID uuid.UUID, status models.ScheduleStatus) (*models.Message, *models.Message, error) {
	var (
		msg      models.Message
		followUp *models.Message
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&msg, "id = ?", messageID).Error; err != nil {
			return wrapNotFound(err)
		}
		if msg.Kind != models.KindSchedule {
			return fmt.Errorf("message is not a schedule proposal: %w", ErrValidation)
		}

		var sess models.NegotiationSession
		if err := tx.Preload("Proposal").First(&sess, "id = ?", msg.SessionID).Error; err != nil {
			return wrapNotFound(err)
		}
		if !isParticipant(sess.Proposal, actorID) {
			return fmt.Errorf("not a participant of this session: %w", ErrForbidden)
		}
		// A completed proposal freezes its session, schedule
		// sub-states included.
		if sess.Proposal != nil && sess.Proposal.Status == models.ProposalCompleted {
			return fmt.Errorf("negotiation is closed: %w", ErrConflict)
		}
		if msg.SenderID == actorID {
			return fmt.Errorf("the proposer cannot settle their own schedule: %w", ErrForbidden)
		}

		payload, err := msg.SchedulePayload()
		if err != nil {
			return err
		}
		next, fuText, err := nextScheduleStatus(payload, status)
		if err != nil || next == nil {
			return err // terminal repeat is a no-op, conflicts bubble up
		}

		payload.Status = *next
		if err := msg.SetPayload(payload); err != nil {
			return err
		}
		if err := tx.Model(&models.Message{}).
			Where("id = ?", msg.ID).
			Update("payload", msg.Payload).Error; err != nil {
			return err
		}

		if fuText != "" {
			fu := models.Message{
				ID:        uuid.New(),
				SessionID: msg.SessionID,
				SenderID:  actorID,
				Kind:      models.KindText,
				Text:      fuText,
			}
			if err := tx.Create(&fu).Error; err != nil {
				return err
			}
			tx.Model(&models.NegotiationSession{}).
				Where("id = ?", sess.ID).
				Update("last_message_at", fu.CreatedAt)
			followUp = &fu
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &msg, followUp, nil
}

func (s *GormStore) CreateReview(ctx context.Context, r *models.Review) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prop models.Proposal
		if err := tx.First(&prop, "id = ?", r.ProposalID).Error; err != nil {
			return wrapNotFound(err)
		}
		if err := checkReviewable(&prop, r); err != nil {
			return err
		}

		var existing models.Review
		if err := tx.Where("proposal_id = ?", r.ProposalID).First(&existing).Error; err == nil {
			return fmt.Errorf("proposal already reviewed: %w", ErrConflict)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(r).Error; err != nil {
			return err
		}

		var profile models.ProfessionalProfile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", r.ProfessionalID).
			First(&profile).Error; err != nil {
			return wrapNotFound(err)
		}
		avg, count := recomputeRating(profile.RatingAvg, profile.RatingCount, r.Rating)
		return tx.Model(&models.ProfessionalProfile{}).
			Where("user_id = ?", r.ProfessionalID).
			Updates(map[string]interface{}{
				"rating_avg":   avg,
				"rating_count": count,
			}).Error
	})
}

func (s *GormStore) ListWalletTransactions(ctx context.Context, userID uuid.UUID) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdraw amount must be positive: %w", ErrValidation)
	}

	var trx *models.WalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		trx, err = s.Wallet.Debit(tx, userID, amount, nil, "Withdrawal")
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			return fmt.Errorf("insufficient balance: %w", ErrConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return trx, nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
