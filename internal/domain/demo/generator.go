// Package demo fills an account with synthetic, reproducible patients and
// appointments for UI demos and local development.
package demo

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
)

var (
	firstNamesFemale = []string{
		"Ana", "Beatriz", "Camila", "Daniela", "Fernanda", "Gabriela", "Helena",
		"Isabela", "Juliana", "Larissa", "Mariana", "Patricia", "Renata", "Sofia",
	}
	firstNamesMale = []string{
		"Bruno", "Carlos", "Diego", "Eduardo", "Felipe", "Gustavo", "Lucas",
		"Marcelo", "Pedro", "Rafael", "Thiago",
	}
	lastNames = []string{
		"Almeida", "Barbosa", "Costa", "Dias", "Ferreira", "Gomes", "Lima",
		"Martins", "Oliveira", "Pereira", "Ribeiro", "Rodrigues", "Santos", "Souza",
	}
	streets = []string{
		"Rua das Flores", "Avenida Paulista", "Rua Augusta", "Alameda Santos",
		"Rua Oscar Freire", "Avenida Brasil",
	}
	treatments = []string{
		"Botox", "Lip filler", "Chemical peel", "Microneedling", "Laser hair removal",
		"Skin cleansing", "Bioestimulator", "Thread lift",
	}
	allergyPool = []string{"Lidocaine", "Latex", "Penicillin", "Hyaluronidase"}
	durations   = []int{30, 45, 60, 90}
	notePool    = []string{
		"First session", "Follow-up", "Touch-up after two weeks", "Bring previous photos",
	}
)

// Generator produces synthetic records. The same seed yields the same data.
type Generator struct {
	rng     *rand.Rand
	counter int
}

// NewGenerator returns a generator seeded for reproducibility. If seed is 0
// a time-based seed is chosen.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *Generator) chance(pct int) bool {
	return g.rng.Intn(100) < pct
}

// nationalID is unique per generator; the counter occupies the last digits.
func (g *Generator) nationalID() string {
	g.counter++
	return fmt.Sprintf("%03d.%03d.%03d-%02d", g.rng.Intn(1000), g.rng.Intn(1000), g.counter/100%1000, g.counter%100)
}

func (g *Generator) phone() string {
	return fmt.Sprintf("+55 11 9%04d-%04d", g.rng.Intn(10000), g.rng.Intn(10000))
}

func (g *Generator) birthDate() string {
	y := 1960 + g.rng.Intn(45)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func (g *Generator) treatmentSet() []string {
	n := 1 + g.rng.Intn(3)
	set := make([]string, 0, n)
	for len(set) < n {
		t := g.pick(treatments)
		dup := false
		for _, s := range set {
			if s == t {
				dup = true
			}
		}
		if !dup {
			set = append(set, t)
		}
	}
	return set
}

// Patient generates a valid patient record.
func (g *Generator) Patient() *patient.Patient {
	gender := patient.GenderFemale
	first := g.pick(firstNamesFemale)
	if g.chance(25) {
		gender = patient.GenderMale
		first = g.pick(firstNamesMale)
	}
	last := g.pick(lastNames)
	email := fmt.Sprintf("%s.%s@example.com", strings.ToLower(first), strings.ToLower(last))
	birth := g.birthDate()
	address := fmt.Sprintf("%s, %d", g.pick(streets), 10+g.rng.Intn(2000))

	p := &patient.Patient{
		Name:       first + " " + last,
		NationalID: g.nationalID(),
		Phone:      g.phone(),
		Email:      &email,
		BirthDate:  &birth,
		Gender:     gender,
		Address:    &address,
		Treatments: g.treatmentSet(),
	}
	if g.chance(20) {
		allergy := g.pick(allergyPool)
		p.Allergies = &allergy
	}
	return p
}

// Appointment generates an appointment for p on the given day. Past
// appointments are completed or cancelled; future ones are scheduled or
// confirmed.
func (g *Generator) Appointment(patientID uuid.UUID, treatments []string, day time.Time, past bool) *scheduling.Appointment {
	hour := 8 + g.rng.Intn(10)
	minute := 30 * g.rng.Intn(2)

	treatment := g.pick(treatments)
	a := &scheduling.Appointment{
		PatientID: patientID,
		Date:      day.Format(scheduling.DateLayout),
		Time:      fmt.Sprintf("%02d:%02d", hour, minute),
		Duration:  durations[g.rng.Intn(len(durations))],
		Treatment: treatment,
	}

	switch {
	case past && g.chance(85):
		a.Status = scheduling.StatusCompleted
	case past:
		a.Status = scheduling.StatusCancelled
	case g.chance(50):
		a.Status = scheduling.StatusConfirmed
	default:
		a.Status = scheduling.StatusScheduled
	}
	if g.chance(30) {
		note := g.pick(notePool)
		a.Notes = &note
	}
	return a
}

// Day returns a random day within [-back, ahead] days of today, and whether
// it lies in the past.
func (g *Generator) Day(today time.Time, back, ahead int) (time.Time, bool) {
	offset := g.rng.Intn(back+ahead+1) - back
	if offset == 0 {
		offset = 1
		if ahead == 0 {
			offset = -1
		}
	}
	return today.AddDate(0, 0, offset), offset < 0
}
