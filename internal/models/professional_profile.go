package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProfessionalProfile holds the service-provider side of a user: the
// specialties they advertise, gamification progress and the simulated
// wallet balance.
type ProfessionalProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	// Comma-separated list of area tags, e.g. "Plumber,Electrician"
	Specialties string `gorm:"type:text" json:"specialties"`
	Bio         string `gorm:"type:text" json:"bio"`

	Experience  int     `gorm:"not null;default:0" json:"experience"`
	RatingAvg   float64 `gorm:"not null;default:0" json:"rating_avg"`
	RatingCount int     `gorm:"not null;default:0" json:"rating_count"`
	Balance     int64   `gorm:"not null;default:0" json:"balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// SpecialtyList splits the stored CSV into trimmed tags.
func (p *ProfessionalProfile) SpecialtyList() []string {
	if strings.TrimSpace(p.Specialties) == "" {
		return nil
	}
	parts := strings.Split(p.Specialties, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// HasSpecialty reports whether the given area tag is one of the
// professional's specialties (case-insensitive).
func (p *ProfessionalProfile) HasSpecialty(area string) bool {
	for _, s := range p.SpecialtyList() {
		if strings.EqualFold(s, area) {
			return true
		}
	}
	return false
}
