package wallet

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chamadopro/backend/internal/models"
)

// ErrInsufficientBalance is returned by Debit when the profile is
// missing or the balance cannot cover the amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// CreditProfessional adds funds to the professional's balance and
// creates a ledger entry. Must be called within a DB transaction.
func (s *Service) CreditProfessional(tx *gorm.DB, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	if amount <= 0 {
		return errors.New("amount to credit must be greater than zero")
	}

	result := tx.Model(&models.ProfessionalProfile{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("professional profile not found for user %s", userID)
	}

	ledger := models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.WalletTrxCredit,
		Description: description,
		ReferenceID: &referenceID,
	}

	return tx.Create(&ledger).Error
}

// Debit deducts funds from a professional's balance and returns the
// created ledger entry. Must be called within a DB transaction.
// Withdrawals have no reference entity and pass nil.
func (s *Service) Debit(tx *gorm.DB, userID uuid.UUID, amount int64, referenceID *uuid.UUID, description string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, errors.New("amount to debit must be greater than zero")
	}

	result := tx.Model(&models.ProfessionalProfile{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrInsufficientBalance
	}

	ledger := models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.WalletTrxDebit,
		Description: description,
		ReferenceID: referenceID,
	}
	if err := tx.Create(&ledger).Error; err != nil {
		return nil, err
	}
	return &ledger, nil
}
