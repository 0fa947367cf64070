package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chamadopro/backend/internal/models"
	"github.com/chamadopro/backend/internal/store"
)

func seedUsers(t *testing.T, s *store.MemoryStore) (contractor, professional *models.User) {
	t.Helper()
	ctx := context.Background()

	contractor = &models.User{
		Name:  "Carla",
		Email: "carla@example.com",
		Role:  models.RoleContractor,
	}
	require.NoError(t, s.CreateUser(ctx, contractor))

	professional = &models.User{
		Name:  "Pedro",
		Email: "pedro@example.com",
		Role:  models.RoleProfessional,
		ProfessionalProfile: &models.ProfessionalProfile{
			Specialties: "Plumber,Electrician",
		},
	}
	require.NoError(t, s.CreateUser(ctx, professional))
	return contractor, professional
}

func seedProposal(t *testing.T, s *store.MemoryStore, contractorID uuid.UUID) *models.Proposal {
	t.Helper()
	p := &models.Proposal{
		ContractorID: contractorID,
		Title:        "Fix sink",
		Description:  "Leaking pipe",
		AreaTag:      "Plumber",
		Location:     "Downtown",
		BudgetRange:  "R$150-250",
	}
	require.NoError(t, s.CreateProposal(context.Background(), p))
	return p
}

func TestAcceptProposal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)

	require.Equal(t, models.ProposalOpen, p.Status)

	prop, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalNegotiating, prop.Status)
	require.NotNil(t, prop.ProfessionalID)
	require.Equal(t, professional.ID, *prop.ProfessionalID)

	// Session exists and opens with the system marker.
	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsSystem())
	require.Equal(t, "Negotiation started", msgs[0].Text)

	sessions, err := s.ListSessionsForUser(ctx, professional.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, sess.ID, sessions[0].ID)
}

func TestAcceptConflictOnSecondAccept(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)

	other := &models.User{
		Name: "Rita", Email: "rita@example.com", Role: models.RoleProfessional,
		ProfessionalProfile: &models.ProfessionalProfile{},
	}
	require.NoError(t, s.CreateUser(ctx, other))

	_, sess1, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	_, _, err = s.AcceptProposal(ctx, p.ID, other.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	// Assignment never changes once set.
	got, err := s.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, professional.ID, *got.ProfessionalID)

	// One session, even for the original winner retrying.
	_, sess2, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.ErrorIs(t, err, store.ErrConflict)
	require.Nil(t, sess2)

	sessions, err := s.ListSessionsForUser(ctx, contractor.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, sess1.ID, sessions[0].ID)
}

func TestAcceptRace(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)

	other := &models.User{
		Name: "Rita", Email: "rita@example.com", Role: models.RoleProfessional,
		ProfessionalProfile: &models.ProfessionalProfile{},
	}
	require.NoError(t, s.CreateUser(ctx, other))

	contenders := []uuid.UUID{professional.ID, other.ID}
	errs := make([]error, len(contenders))

	var wg sync.WaitGroup
	for i, id := range contenders {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, _, errs[i] = s.AcceptProposal(ctx, p.ID, id)
		}(i, id)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, store.ErrConflict)
		}
	}
	require.Equal(t, 1, winners)

	sessions, err := s.ListSessionsForUser(ctx, contractor.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestAcceptDirectHire(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)

	other := &models.User{
		Name: "Rita", Email: "rita@example.com", Role: models.RoleProfessional,
		ProfessionalProfile: &models.ProfessionalProfile{},
	}
	require.NoError(t, s.CreateUser(ctx, other))

	p := &models.Proposal{
		ContractorID:         contractor.ID,
		Title:                "Rewire kitchen",
		Description:          "Three new outlets",
		TargetProfessionalID: &professional.ID,
	}
	require.NoError(t, s.CreateProposal(ctx, p))

	_, _, err := s.AcceptProposal(ctx, p.ID, other.ID)
	require.ErrorIs(t, err, store.ErrForbidden)

	_, _, err = s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)
}

func TestCompleteProposal(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)

	// Cannot complete before acceptance.
	_, err := s.CompleteProposal(ctx, p.ID, contractor.ID)
	require.ErrorIs(t, err, store.ErrConflict)

	_, _, err = s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	// Only the owner completes.
	_, err = s.CompleteProposal(ctx, p.ID, professional.ID)
	require.ErrorIs(t, err, store.ErrForbidden)

	done, err := s.CompleteProposal(ctx, p.ID, contractor.ID)
	require.NoError(t, err)
	require.Equal(t, models.ProposalCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	profile, err := s.GetProfile(ctx, professional.ID)
	require.NoError(t, err)
	require.Equal(t, models.CompletionXPBonus, profile.Experience)
	require.Equal(t, int64(150), profile.Balance) // first number of "R$150-250"

	ledger, err := s.ListWalletTransactions(ctx, professional.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, models.WalletTrxCredit, ledger[0].Type)
	require.Equal(t, int64(150), ledger[0].Amount)
	require.Equal(t, p.ID, *ledger[0].ReferenceID)

	// Replaying complete is a no-op: no double credit.
	_, err = s.CompleteProposal(ctx, p.ID, contractor.ID)
	require.NoError(t, err)
	ledger, err = s.ListWalletTransactions(ctx, professional.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	completeJob(t, s, contractor.ID, professional.ID) // credits 150

	_, err := s.Withdraw(ctx, professional.ID, 200)
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Withdraw(ctx, professional.ID, 0)
	require.ErrorIs(t, err, store.ErrValidation)

	trx, err := s.Withdraw(ctx, professional.ID, 100)
	require.NoError(t, err)
	require.Equal(t, models.WalletTrxDebit, trx.Type)
	require.Equal(t, int64(100), trx.Amount)

	profile, err := s.GetProfile(ctx, professional.ID)
	require.NoError(t, err)
	require.Equal(t, int64(50), profile.Balance)

	ledger, err := s.ListWalletTransactions(ctx, professional.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
}

func TestMessageOrdering(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)
	_, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	senders := []uuid.UUID{contractor.ID, professional.ID, contractor.ID, professional.ID}
	for i, sender := range senders {
		require.NoError(t, s.AppendMessage(ctx, &models.Message{
			SessionID: sess.ID,
			SenderID:  sender,
			Kind:      models.KindText,
			Text:      string(rune('a' + i)),
		}))
	}

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 5) // system marker + 4

	for i := 1; i < len(msgs); i++ {
		require.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}

	// Re-fetching never reorders or drops.
	again, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, len(msgs), len(again))
	for i := range msgs {
		require.Equal(t, msgs[i].ID, again[i].ID)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)
	_, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	sched := &models.Message{
		SessionID: sess.ID,
		SenderID:  professional.ID,
		Kind:      models.KindSchedule,
		Text:      "Visit proposal: 2024-06-01 at 14:00",
	}
	require.NoError(t, sched.SetPayload(models.SchedulePayload{
		Date: "2024-06-01", Time: "14:00", Status: models.SchedulePending,
	}))
	require.NoError(t, s.AppendMessage(ctx, sched))

	// The proposer cannot settle their own schedule.
	_, _, err = s.UpdateScheduleStatus(ctx, sched.ID, professional.ID, models.ScheduleConfirmed)
	require.ErrorIs(t, err, store.ErrForbidden)

	// An outsider cannot either.
	_, _, err = s.UpdateScheduleStatus(ctx, sched.ID, uuid.New(), models.ScheduleConfirmed)
	require.ErrorIs(t, err, store.ErrForbidden)

	msg, followUp, err := s.UpdateScheduleStatus(ctx, sched.ID, contractor.ID, models.ScheduleConfirmed)
	require.NoError(t, err)
	payload, err := msg.SchedulePayload()
	require.NoError(t, err)
	require.Equal(t, models.ScheduleConfirmed, payload.Status)
	require.NotNil(t, followUp)
	require.Equal(t, models.KindText, followUp.Kind)
	require.Contains(t, followUp.Text, "2024-06-01")

	// Repeating the confirm is an idempotent no-op.
	_, followUp2, err := s.UpdateScheduleStatus(ctx, sched.ID, contractor.ID, models.ScheduleConfirmed)
	require.NoError(t, err)
	require.Nil(t, followUp2)

	// Confirmed never goes back.
	_, _, err = s.UpdateScheduleStatus(ctx, sched.ID, contractor.ID, models.ScheduleRejected)
	require.ErrorIs(t, err, store.ErrConflict)

	// Still exactly one follow-up in the log.
	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	confirmations := 0
	for _, m := range msgs {
		if m.Kind == models.KindText && m.SenderID == contractor.ID {
			confirmations++
		}
	}
	require.Equal(t, 1, confirmations)
}

func TestLastUserMessageSkipsSystemEntries(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)
	_, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	// Fresh session holds only the system marker.
	last, err := s.LastUserMessage(ctx, sess.ID)
	require.NoError(t, err)
	require.Nil(t, last)

	require.NoError(t, s.AppendMessage(ctx, &models.Message{
		SessionID: sess.ID,
		SenderID:  contractor.ID,
		Kind:      models.KindText,
		Text:      "Can you come tomorrow?",
	}))

	// Completion appends a system message after the participant's;
	// the participant's text still wins.
	_, err = s.CompleteProposal(ctx, p.ID, contractor.ID)
	require.NoError(t, err)

	last, err = s.LastUserMessage(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, "Can you come tomorrow?", last.Text)
}

func TestScheduleFrozenAfterCompletion(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)
	_, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	sched := &models.Message{
		SessionID: sess.ID,
		SenderID:  professional.ID,
		Kind:      models.KindSchedule,
	}
	require.NoError(t, sched.SetPayload(models.SchedulePayload{
		Date: "2024-06-01", Time: "14:00", Status: models.SchedulePending,
	}))
	require.NoError(t, s.AppendMessage(ctx, sched))

	_, err = s.CompleteProposal(ctx, p.ID, contractor.ID)
	require.NoError(t, err)

	before, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)

	// The closed session cannot be mutated, not even the sub-state.
	_, _, err = s.UpdateScheduleStatus(ctx, sched.ID, contractor.ID, models.ScheduleConfirmed)
	require.ErrorIs(t, err, store.ErrConflict)

	after, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))

	for _, m := range after {
		if m.ID == sched.ID {
			payload, err := m.SchedulePayload()
			require.NoError(t, err)
			require.Equal(t, models.SchedulePending, payload.Status)
		}
	}
}

func TestScheduleReject(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)
	p := seedProposal(t, s, contractor.ID)
	_, sess, err := s.AcceptProposal(ctx, p.ID, professional.ID)
	require.NoError(t, err)

	sched := &models.Message{
		SessionID: sess.ID,
		SenderID:  contractor.ID,
		Kind:      models.KindSchedule,
	}
	require.NoError(t, sched.SetPayload(models.SchedulePayload{
		Date: "2024-06-02", Time: "09:00", Status: models.SchedulePending,
	}))
	require.NoError(t, s.AppendMessage(ctx, sched))

	msg, followUp, err := s.UpdateScheduleStatus(ctx, sched.ID, professional.ID, models.ScheduleRejected)
	require.NoError(t, err)
	require.Nil(t, followUp)
	payload, err := msg.SchedulePayload()
	require.NoError(t, err)
	require.Equal(t, models.ScheduleRejected, payload.Status)

	// Rejected is terminal too.
	_, _, err = s.UpdateScheduleStatus(ctx, sched.ID, professional.ID, models.ScheduleConfirmed)
	require.ErrorIs(t, err, store.ErrConflict)
}

func completeJob(t *testing.T, s *store.MemoryStore, contractorID, professionalID uuid.UUID) *models.Proposal {
	t.Helper()
	ctx := context.Background()
	p := seedProposal(t, s, contractorID)
	_, _, err := s.AcceptProposal(ctx, p.ID, professionalID)
	require.NoError(t, err)
	done, err := s.CompleteProposal(ctx, p.ID, contractorID)
	require.NoError(t, err)
	return done
}

func TestCreateReview(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)

	first := completeJob(t, s, contractor.ID, professional.ID)

	// Not reviewable before completion.
	open := seedProposal(t, s, contractor.ID)
	err := s.CreateReview(ctx, &models.Review{
		ProposalID: open.ID, ReviewerID: contractor.ID,
		ProfessionalID: professional.ID, Rating: 5,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	// Only the owning contractor reviews.
	err = s.CreateReview(ctx, &models.Review{
		ProposalID: first.ID, ReviewerID: professional.ID,
		ProfessionalID: professional.ID, Rating: 5,
	})
	require.ErrorIs(t, err, store.ErrForbidden)

	err = s.CreateReview(ctx, &models.Review{
		ProposalID: first.ID, ReviewerID: contractor.ID,
		ProfessionalID: professional.ID, Rating: 5, Comment: "Great job",
	})
	require.NoError(t, err)

	profile, err := s.GetProfile(ctx, professional.ID)
	require.NoError(t, err)
	require.Equal(t, 5.0, profile.RatingAvg)
	require.Equal(t, 1, profile.RatingCount)

	// One review per proposal.
	err = s.CreateReview(ctx, &models.Review{
		ProposalID: first.ID, ReviewerID: contractor.ID,
		ProfessionalID: professional.ID, Rating: 4,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	// Running average over a second completed job.
	second := completeJob(t, s, contractor.ID, professional.ID)
	err = s.CreateReview(ctx, &models.Review{
		ProposalID: second.ID, ReviewerID: contractor.ID,
		ProfessionalID: professional.ID, Rating: 2,
	})
	require.NoError(t, err)

	profile, err = s.GetProfile(ctx, professional.ID)
	require.NoError(t, err)
	require.InDelta(t, 3.5, profile.RatingAvg, 1e-9)
	require.Equal(t, 2, profile.RatingCount)
}

func TestListProposals(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, professional := seedUsers(t, s)

	centerLat, centerLng := -23.5505, -46.6333 // São Paulo
	nearLat, nearLng := -23.5560, -46.6400     // ~1 km away
	farLat, farLng := -22.9068, -43.1729       // Rio, ~360 km away

	near := &models.Proposal{
		ContractorID: contractor.ID, Title: "Fix sink", Description: "d",
		AreaTag: "Plumber", Lat: &nearLat, Lng: &nearLng,
	}
	far := &models.Proposal{
		ContractorID: contractor.ID, Title: "Paint wall", Description: "d",
		AreaTag: "Painter", Lat: &farLat, Lng: &farLng,
	}
	require.NoError(t, s.CreateProposal(ctx, near))
	require.NoError(t, s.CreateProposal(ctx, far))

	// Accepted proposals drop out of the open feed.
	taken := seedProposal(t, s, contractor.ID)
	_, _, err := s.AcceptProposal(ctx, taken.ID, professional.ID)
	require.NoError(t, err)

	items, hasMore, err := s.ListProposals(ctx, store.ProposalFilter{
		Status: models.ProposalOpen, Page: 1, PageSize: 10,
	})
	require.NoError(t, err)
	require.False(t, hasMore)
	require.Len(t, items, 2)
	for _, p := range items {
		require.Equal(t, models.ProposalOpen, p.Status)
	}

	// Radius filter keeps only the nearby job.
	items, _, err = s.ListProposals(ctx, store.ProposalFilter{
		Status: models.ProposalOpen,
		Lat:    &centerLat, Lng: &centerLng, RadiusKm: 10,
		Page: 1, PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, near.ID, items[0].ID)

	// Specialty match against the professional's own list.
	items, _, err = s.ListProposals(ctx, store.ProposalFilter{
		Status:      models.ProposalOpen,
		Specialties: []string{"Plumber", "Electrician"},
		Page:        1, PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Plumber", items[0].AreaTag)

	// Owner listing sees every state.
	all, _, err := s.ListProposals(ctx, store.ProposalFilter{
		ContractorID: &contractor.ID, Page: 1, PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestListProposalsPagination(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	contractor, _ := seedUsers(t, s)

	for i := 0; i < 5; i++ {
		seedProposal(t, s, contractor.ID)
	}

	page1, hasMore, err := s.ListProposals(ctx, store.ProposalFilter{
		Status: models.ProposalOpen, Page: 1, PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.True(t, hasMore)

	page3, hasMore, err := s.ListProposals(ctx, store.ProposalFilter{
		Status: models.ProposalOpen, Page: 3, PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, page3, 1)
	require.False(t, hasMore)
}
