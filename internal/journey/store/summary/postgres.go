package summary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
	txcontext "jornada/pkg/platform/tx"
)

// PostgresStore keeps one row per driver and work date, replaced on every
// recalculation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, summary *models.WorkdaySummary) error {
	query := `
		INSERT INTO workday_summaries (
			driver_id, work_date, total_worked_ms, total_rest_ms, total_meal_ms,
			total_disposal_ms, longest_continuous_ms, anomalies, calculated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (driver_id, work_date) DO UPDATE SET
			total_worked_ms = EXCLUDED.total_worked_ms,
			total_rest_ms = EXCLUDED.total_rest_ms,
			total_meal_ms = EXCLUDED.total_meal_ms,
			total_disposal_ms = EXCLUDED.total_disposal_ms,
			longest_continuous_ms = EXCLUDED.longest_continuous_ms,
			anomalies = EXCLUDED.anomalies,
			calculated_at = EXCLUDED.calculated_at
	`
	anomalies := summary.Anomalies
	if anomalies == nil {
		anomalies = []string{}
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(summary.DriverID),
		summary.Date,
		summary.TotalWorked.Milliseconds(),
		summary.TotalRest.Milliseconds(),
		summary.TotalMeal.Milliseconds(),
		summary.TotalDisposal.Milliseconds(),
		summary.LongestContinuousWork.Milliseconds(),
		pq.Array(anomalies),
		summary.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert workday summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, driverID domain.DriverID, date string) (*models.WorkdaySummary, error) {
	query := `
		SELECT to_char(work_date, 'YYYY-MM-DD'), total_worked_ms, total_rest_ms, total_meal_ms,
			   total_disposal_ms, longest_continuous_ms, anomalies, calculated_at
		FROM workday_summaries
		WHERE driver_id = $1 AND work_date = $2
	`
	var (
		summary                            models.WorkdaySummary
		worked, rest, meal, disposal, cont int64
		anomalies                          []string
	)
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(driverID), date).Scan(
		&summary.Date, &worked, &rest, &meal, &disposal, &cont, pq.Array(&anomalies), &summary.CalculatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workday summary: %w", err)
	}
	summary.DriverID = driverID
	summary.TotalWorked = ms(worked)
	summary.TotalRest = ms(rest)
	summary.TotalMeal = ms(meal)
	summary.TotalDisposal = ms(disposal)
	summary.LongestContinuousWork = ms(cont)
	if anomalies == nil {
		anomalies = []string{}
	}
	summary.Anomalies = anomalies
	return &summary, nil
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
