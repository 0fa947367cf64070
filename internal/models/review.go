package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Review is the contractor's feedback on a completed proposal. One
// review per proposal; inserting it recomputes the professional's
// running average and count.
type Review struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProposalID     uuid.UUID `gorm:"type:uuid;index;unique" json:"proposal_id"`
	ReviewerID     uuid.UUID `gorm:"type:uuid;index" json:"reviewer_id"`
	ProfessionalID uuid.UUID `gorm:"type:uuid;index" json:"professional_id"`

	Rating  int    `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment string `gorm:"type:text" json:"comment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Proposal     *Proposal `gorm:"foreignKey:ProposalID" json:"proposal,omitempty"`
	Reviewer     *User     `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	Professional *User     `gorm:"foreignKey:ProfessionalID" json:"professional,omitempty"`
}

func (r *Review) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}
