package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// Measure is a predefined report. Its SQL takes the owner id as $1 and
// never sees other users' records.
type Measure struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SQL         string `json:"-"`
}

type MeasureReport struct {
	MeasureID   string                   `json:"measureId"`
	MeasureName string                   `json:"measureName"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Results     []map[string]interface{} `json:"results"`
}

var Measures = []Measure{
	{
		ID:          "appointments-by-status",
		Name:        "Appointments by Status",
		Description: "Number of appointments in each status",
		SQL:         `SELECT status, COUNT(*) AS total FROM appointments WHERE created_by = $1 GROUP BY status ORDER BY total DESC, status`,
	},
	{
		ID:          "treatment-volume",
		Name:        "Treatment Volume",
		Description: "Appointments and completed sessions per treatment",
		SQL: `SELECT treatment, COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed
			FROM appointments WHERE created_by = $1
			GROUP BY treatment ORDER BY total DESC, treatment`,
	},
	{
		ID:          "new-patients-by-month",
		Name:        "New Patients by Month",
		Description: "Patients registered per calendar month over the last year",
		SQL: `SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, COUNT(*) AS total
			FROM patients WHERE created_by = $1 AND created_at >= NOW() - INTERVAL '12 months'
			GROUP BY 1 ORDER BY 1`,
	},
	{
		ID:          "photos-by-type",
		Name:        "Photos by Type",
		Description: "Before and after photos on file",
		SQL:         `SELECT type, COUNT(*) AS total FROM photos WHERE uploaded_by = $1 GROUP BY type ORDER BY type`,
	},
}

func FindMeasure(id string) *Measure {
	for i := range Measures {
		if Measures[i].ID == id {
			return &Measures[i]
		}
	}
	return nil
}

// Evaluator runs a measure query for one owner.
type Evaluator interface {
	Evaluate(ctx context.Context, sql string, ownerID uuid.UUID) ([]map[string]interface{}, error)
}

type pgEvaluator struct{ pool *pgxpool.Pool }

func NewPGEvaluator(pool *pgxpool.Pool) Evaluator {
	return &pgEvaluator{pool: pool}
}

func (e *pgEvaluator) Evaluate(ctx context.Context, sql string, ownerID uuid.UUID) ([]map[string]interface{}, error) {
	rows, err := db.Conn(ctx, e.pool).Query(ctx, sql, ownerID)
	if err != nil {
		return nil, db.Translate(err, "measure", "evaluate measure")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	results := []map[string]interface{}{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, db.Translate(err, "measure", "evaluate measure")
		}
		row := make(map[string]interface{}, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "measure", "evaluate measure")
	}
	return results, nil
}
