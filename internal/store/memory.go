package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/utils"
)

// MemoryStore keeps everything behind one mutex. It backs the service
// when the database is unreachable and doubles as the test double; the
// lifecycle rules are the same ones the gorm store enforces.
type MemoryStore struct {
	mu sync.Mutex

	users     map[uuid.UUID]*models.User
	profiles  map[uuid.UUID]*models.ProfessionalProfile // by user id
	proposals map[uuid.UUID]*models.Proposal
	sessions  map[uuid.UUID]*models.NegotiationSession
	messages  map[uuid.UUID][]*models.Message // by session id
	reviews   map[uuid.UUID]*models.Review    // by proposal id
	ledger    []models.WalletTransaction

	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]*models.User),
		profiles:  make(map[uuid.UUID]*models.ProfessionalProfile),
		proposals: make(map[uuid.UUID]*models.Proposal),
		sessions:  make(map[uuid.UUID]*models.NegotiationSession),
		messages:  make(map[uuid.UUID][]*models.Message),
		reviews:   make(map[uuid.UUID]*models.Review),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email already registered: %w", ErrConflict)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt

	cp := *u
	if u.ProfessionalProfile != nil {
		profile := *u.ProfessionalProfile
		if profile.ID == uuid.Nil {
			profile.ID = uuid.New()
		}
		profile.UserID = u.ID
		s.profiles[u.ID] = &profile
		cp.ProfessionalProfile = nil
	}
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLocked(id)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Email == email {
			return s.userLocked(id)
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.ProfessionalProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) CreateProposal(ctx context.Context, p *models.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.ProposalOpen
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.proposals[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposalLocked(id)
}

func (s *MemoryStore) ListProposals(ctx context.Context, f ProposalFilter) ([]models.Proposal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, size := normalizePage(f.Page, f.PageSize)

	all := make([]models.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.ContractorID != nil && p.ContractorID != *f.ContractorID {
			continue
		}
		if f.AreaTag != "" && p.AreaTag != f.AreaTag {
			continue
		}
		if len(f.Specialties) > 0 && !containsFold(f.Specialties, p.AreaTag) {
			continue
		}
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if f.Lat != nil && f.Lng != nil && f.RadiusKm > 0 {
		all = filterByRadius(all, *f.Lat, *f.Lng, f.RadiusKm)
	}
	items, hasMore := slicePage(all, page, size)
	return items, hasMore, nil
}

func (s *MemoryStore) AcceptProposal(ctx context.Context, proposalID, professionalID uuid.UUID) (*models.Proposal, *models.NegotiationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if p.Status != models.ProposalOpen {
		return nil, nil, fmt.Errorf("proposal is no longer open: %w", ErrConflict)
	}
	if p.TargetProfessionalID != nil && *p.TargetProfessionalID != professionalID {
		return nil, nil, fmt.Errorf("proposal is a direct-hire invitation: %w", ErrForbidden)
	}

	proID := professionalID
	p.Status = models.ProposalNegotiating
	p.ProfessionalID = &proID
	p.UpdatedAt = time.Now()

	sess := s.sessionByProposalLocked(proposalID)
	if sess == nil {
		sess = &models.NegotiationSession{
			ID:            uuid.New(),
			ProposalID:    proposalID,
			LastMessageAt: time.Now(),
			CreatedAt:     time.Now(),
		}
		s.sessions[sess.ID] = sess
		s.appendLocked(&models.Message{
			SessionID: sess.ID,
			SenderID:  models.SystemSenderID,
			Kind:      models.KindText,
			Text:      "Negotiation started",
		})
	}

	propCp := *p
	sessCp := *sess
	return &propCp, &sessCp, nil
}

func (s *MemoryStore) CompleteProposal(ctx context.Context, proposalID, contractorID uuid.UUID) (*models.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[proposalID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.ContractorID != contractorID {
		return nil, fmt.Errorf("only the owning contractor can complete: %w", ErrForbidden)
	}
	if p.Status == models.ProposalCompleted {
		cp := *p
		return &cp, nil
	}
	if p.Status != models.ProposalNegotiating {
		return nil, fmt.Errorf("proposal is not in negotiation: %w", ErrConflict)
	}

	now := time.Now()
	p.Status = models.ProposalCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now

	proID := *p.ProfessionalID
	if profile, ok := s.profiles[proID]; ok {
		profile.Experience += models.CompletionXPBonus
		amount := utils.ParseBudgetAmount(p.BudgetRange, models.DefaultCompletionCredit)
		profile.Balance += amount
		refID := p.ID
		s.ledger = append(s.ledger, models.WalletTransaction{
			ID:          uuid.New(),
			UserID:      proID,
			Amount:      amount,
			Type:        models.WalletTrxCredit,
			Description: "Payment for job \"" + p.Title + "\"",
			ReferenceID: &refID,
			CreatedAt:   now,
		})
	}

	if sess := s.sessionByProposalLocked(p.ID); sess != nil {
		s.appendLocked(&models.Message{
			SessionID: sess.ID,
			SenderID:  models.SystemSenderID,
			Kind:      models.KindText,
			Text:      "Job marked as completed by the contractor",
		})
	}

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.sessionViewLocked(sess), nil
}

func (s *MemoryStore) ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.NegotiationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.NegotiationSession{}
	for _, sess := range s.sessions {
		p, ok := s.proposals[sess.ProposalID]
		if !ok || !isParticipant(p, userID) {
			continue
		}
		out = append(out, *s.sessionViewLocked(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[sessionID]
	out := make([]models.Message, 0, len(log))
	for _, m := range log {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) LastUserMessage(ctx context.Context, sessionID uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.messages[sessionID]
	for i := len(log) - 1; i >= 0; i-- {
		if !log[i].IsSystem() {
			cp := *log[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[m.SessionID]; !ok {
		return ErrNotFound
	}
	s.appendLocked(m)
	return nil
}

func (s *MemoryStore) UpdateScheduleStatus(ctx context.Context, messageID, actorID uuid.UUID, status models.ScheduleStatus) (*models.Message, *models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msg *models.Message
	for _, log := range s.messages {
		for _, m := range log {
			if m.ID == messageID {
				msg = m
				break
			}
		}
	}
	if msg == nil {
		return nil, nil, ErrNotFound
	}
	if msg.Kind != models.KindSchedule {
		return nil, nil, fmt.Errorf("message is not a schedule proposal: %w", ErrValidation)
	}

	sess := s.sessions[msg.SessionID]
	prop := s.proposals[sess.ProposalID]
	if !isParticipant(prop, actorID) {
		return nil, nil, fmt.Errorf("not a participant of this session: %w", ErrForbidden)
	}
	// A completed proposal freezes its session, schedule sub-states
	// included.
	if prop.Status == models.ProposalCompleted {
		return nil, nil, fmt.Errorf("negotiation is closed: %w", ErrConflict)
	}
	if msg.SenderID == actorID {
		return nil, nil, fmt.Errorf("the proposer cannot settle their own schedule: %w", ErrForbidden)
	}

	payload, err := msg.SchedulePayload()
	if err != nil {
		return nil, nil, err
	}
	next, fuText, err := nextScheduleStatus(payload, status)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		cp := *msg
		return &cp, nil, nil
	}

	payload.Status = *next
	if err := msg.SetPayload(payload); err != nil {
		return nil, nil, err
	}
	msg.UpdatedAt = time.Now()

	var followUp *models.Message
	if fuText != "" {
		fu := &models.Message{
			SessionID: msg.SessionID,
			SenderID:  actorID,
			Kind:      models.KindText,
			Text:      fuText,
		}
		s.appendLocked(fu)
		cp := *fu
		followUp = &cp
	}
	msgCp := *msg
	return &msgCp, followUp, nil
}

func (s *MemoryStore) CreateReview(ctx context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[r.ProposalID]
	if !ok {
		return ErrNotFound
	}
	if err := checkReviewable(p, r); err != nil {
		return err
	}
	if _, ok := s.reviews[r.ProposalID]; ok {
		return fmt.Errorf("proposal already reviewed: %w", ErrConflict)
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	cp := *r
	s.reviews[r.ProposalID] = &cp

	profile, ok := s.profiles[r.ProfessionalID]
	if !ok {
		return ErrNotFound
	}
	profile.RatingAvg, profile.RatingCount = recomputeRating(profile.RatingAvg, profile.RatingCount, r.Rating)
	return nil
}

func (s *MemoryStore) ListWalletTransactions(ctx context.Context, userID uuid.UUID) ([]models.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.WalletTransaction{}
	for _, t := range s.ledger {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	// newest first, matching the durable store's ordering
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Withdraw(ctx context.Context, userID uuid.UUID, amount int64) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdraw amount must be positive: %w", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if profile.Balance < amount {
		return nil, fmt.Errorf("insufficient balance: %w", ErrConflict)
	}
	profile.Balance -= amount

	trx := models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.WalletTrxDebit,
		Description: "Withdrawal",
		CreatedAt:   time.Now(),
	}
	s.ledger = append(s.ledger, trx)
	return &trx, nil
}

func (s *MemoryStore) appendLocked(m *models.Message) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.seq++
	m.Seq = s.seq
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	s.messages[m.SessionID] = append(s.messages[m.SessionID], &cp)
	if sess, ok := s.sessions[m.SessionID]; ok {
		sess.LastMessageAt = m.CreatedAt
	}
}

func (s *MemoryStore) sessionByProposalLocked(proposalID uuid.UUID) *models.NegotiationSession {
	for _, sess := range s.sessions {
		if sess.ProposalID == proposalID {
			return sess
		}
	}
	return nil
}

// sessionViewLocked returns a copy with the proposal and both
// participants attached, mirroring the gorm preloads.
func (s *MemoryStore) sessionViewLocked(sess *models.NegotiationSession) *models.NegotiationSession {
	cp := *sess
	if p, ok := s.proposals[sess.ProposalID]; ok {
		pCp := *p
		if u, ok := s.users[p.ContractorID]; ok {
			uCp := *u
			pCp.Contractor = &uCp
		}
		if p.ProfessionalID != nil {
			if u, ok := s.users[*p.ProfessionalID]; ok {
				uCp := *u
				pCp.Professional = &uCp
			}
		}
		cp.Proposal = &pCp
	}
	return &cp
}

func (s *MemoryStore) userLocked(id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	if p, ok := s.profiles[id]; ok {
		pCp := *p
		cp.ProfessionalProfile = &pCp
	}
	return &cp, nil
}

func (s *MemoryStore) proposalLocked(id uuid.UUID) (*models.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
