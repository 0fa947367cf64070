package models

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalOpen        ProposalStatus = "OPEN"        // posted, nobody assigned
	ProposalNegotiating ProposalStatus = "NEGOTIATING" // accepted by a professional
	ProposalCompleted   ProposalStatus = "COMPLETED"   // terminal
)

// Experience points awarded to the assigned professional when the
// contractor marks the job completed.
const CompletionXPBonus = 50

// Ledger credit used when the free-text budget yields nothing numeric.
const DefaultCompletionCredit int64 = 100

// Proposal is a job request posted by a contractor. ProfessionalID is
// unset while OPEN, set exactly once on the OPEN -> NEGOTIATING
// transition and never changes afterwards.
type Proposal struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ContractorID uuid.UUID `gorm:"type:uuid;index;not null" json:"contractor_id"`

	ProfessionalID *uuid.UUID `gorm:"type:uuid;index" json:"professional_id,omitempty"`
	// Direct-hire invitation: only this professional may accept.
	TargetProfessionalID *uuid.UUID `gorm:"type:uuid;index" json:"target_professional_id,omitempty"`

	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text;not null" json:"description"`
	AreaTag     string `gorm:"type:varchar(80);index" json:"area_tag"`
	Location    string `gorm:"type:text" json:"location"`
	BudgetRange string `gorm:"type:varchar(120)" json:"budget_range"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	Status      ProposalStatus `gorm:"type:varchar(20);not null;default:'OPEN';index" json:"status"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Contractor   *User `gorm:"foreignKey:ContractorID" json:"contractor,omitempty"`
	Professional *User `gorm:"foreignKey:ProfessionalID" json:"professional,omitempty"`
}
