package patient

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

func parseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case GenderFemale, GenderMale:
		return g, nil
	}
	return "", apperr.Validation("gender must be female or male")
}

const birthDateLayout = "2006-01-02"

// Patient is the root record that appointments and photos reference.
// NationalID is unique among the patients of one owner.
type Patient struct {
	ID             uuid.UUID `json:"id"`
	OwnerID        uuid.UUID `json:"createdBy"`
	Name           string    `json:"name"`
	NationalID     string    `json:"nationalId"`
	Phone          string    `json:"phone"`
	Email          *string   `json:"email,omitempty"`
	BirthDate      *string   `json:"birthDate,omitempty"`
	Gender         Gender    `json:"gender"`
	Address        *string   `json:"address,omitempty"`
	Treatments     []string  `json:"selectedTreatments"`
	Allergies      *string   `json:"allergies,omitempty"`
	Medications    *string   `json:"medications,omitempty"`
	MedicalHistory *string   `json:"medicalHistory,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	PhotoIDs       []string  `json:"photos"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Patch carries a partial update. Nil fields are left unchanged; an empty
// string clears an optional field.
type Patch struct {
	Name           *string   `json:"name"`
	NationalID     *string   `json:"nationalId"`
	Phone          *string   `json:"phone"`
	Email          *string   `json:"email"`
	BirthDate      *string   `json:"birthDate"`
	Gender         *string   `json:"gender"`
	Address        *string   `json:"address"`
	Treatments     *[]string `json:"selectedTreatments"`
	Allergies      *string   `json:"allergies"`
	Medications    *string   `json:"medications"`
	MedicalHistory *string   `json:"medicalHistory"`
	Notes          *string   `json:"notes"`
}

func (p *Patient) apply(patch Patch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.NationalID != nil {
		p.NationalID = *patch.NationalID
	}
	if patch.Phone != nil {
		p.Phone = *patch.Phone
	}
	if patch.Email != nil {
		p.Email = patch.Email
	}
	if patch.BirthDate != nil {
		p.BirthDate = patch.BirthDate
	}
	if patch.Gender != nil {
		p.Gender = Gender(*patch.Gender)
	}
	if patch.Address != nil {
		p.Address = patch.Address
	}
	if patch.Treatments != nil {
		p.Treatments = *patch.Treatments
	}
	if patch.Allergies != nil {
		p.Allergies = patch.Allergies
	}
	if patch.Medications != nil {
		p.Medications = patch.Medications
	}
	if patch.MedicalHistory != nil {
		p.MedicalHistory = patch.MedicalHistory
	}
	if patch.Notes != nil {
		p.Notes = patch.Notes
	}
}

// validate normalizes p in place.
func (p *Patient) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	p.NationalID = strings.TrimSpace(p.NationalID)
	if p.NationalID == "" {
		return apperr.Validation("nationalId is required")
	}
	p.Phone = strings.TrimSpace(p.Phone)
	if p.Phone == "" {
		return apperr.Validation("phone is required")
	}
	g, err := parseGender(string(p.Gender))
	if err != nil {
		return err
	}
	p.Gender = g

	p.Email = optional(p.Email)
	if p.Email != nil {
		if _, err := mail.ParseAddress(*p.Email); err != nil {
			return apperr.Validation("email is not a valid address")
		}
	}
	p.BirthDate = optional(p.BirthDate)
	if p.BirthDate != nil {
		d, err := time.Parse(birthDateLayout, *p.BirthDate)
		if err != nil {
			return apperr.Validation("birthDate must be in YYYY-MM-DD format")
		}
		s := d.Format(birthDateLayout)
		p.BirthDate = &s
	}
	p.Address = optional(p.Address)
	p.Allergies = optional(p.Allergies)
	p.Medications = optional(p.Medications)
	p.MedicalHistory = optional(p.MedicalHistory)
	p.Notes = optional(p.Notes)

	p.Treatments = dedupe(p.Treatments)
	if p.PhotoIDs == nil {
		p.PhotoIDs = []string{}
	}
	return nil
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// dedupe drops blank and repeated labels, keeping first-seen order.
func dedupe(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
