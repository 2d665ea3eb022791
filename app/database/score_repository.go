package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ScoreRepositoryImpl handles database operations for account
// sentiment scores, correlation runs and rendered reports.
type ScoreRepositoryImpl struct {
	db *DB
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *DB) *ScoreRepositoryImpl {
	return &ScoreRepositoryImpl{db: db}
}

// UpsertScore stores one account's aggregated sentiment for a day,
// replacing an earlier run of the same day.
func (r *ScoreRepositoryImpl) UpsertScore(s AccountScore) error {
	_, err := r.db.Exec(`
		INSERT INTO account_scores (
			account, score_date, avg_sentiment, total_posts,
			positive_count, negative_count, neutral_count, label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, score_date) DO UPDATE SET
			avg_sentiment = excluded.avg_sentiment,
			total_posts = excluded.total_posts,
			positive_count = excluded.positive_count,
			negative_count = excluded.negative_count,
			neutral_count = excluded.neutral_count,
			label = excluded.label,
			created_at = excluded.created_at
	`, s.Account, s.ScoreDate, s.AvgSentiment, s.TotalPosts,
		s.PositiveCount, s.NegativeCount, s.NeutralCount, s.Label, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}

	return nil
}

// GetScores returns every account's score for one day
func (r *ScoreRepositoryImpl) GetScores(scoreDate string) ([]AccountScore, error) {
	rows, err := r.db.Query(`
		SELECT id, account, score_date, avg_sentiment, total_posts,
		       positive_count, negative_count, neutral_count, label, created_at
		FROM account_scores
		WHERE score_date = ?
		ORDER BY account
	`, scoreDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get scores: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// GetScoreHistory returns an account's most recent daily scores in
// date order.
func (r *ScoreRepositoryImpl) GetScoreHistory(account string, days int) ([]AccountScore, error) {
	rows, err := r.db.Query(`
		SELECT id, account, score_date, avg_sentiment, total_posts,
		       positive_count, negative_count, neutral_count, label, created_at
		FROM (
			SELECT id, account, score_date, avg_sentiment, total_posts,
			       positive_count, negative_count, neutral_count, label, created_at
			FROM account_scores
			WHERE account = ?
			ORDER BY score_date DESC
			LIMIT ?
		)
		ORDER BY score_date ASC
	`, account, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get score history: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// GetDailyAverages returns the all-accounts average sentiment per day
// over the most recent days, keyed by score date.
func (r *ScoreRepositoryImpl) GetDailyAverages(days int) (map[string]float64, error) {
	rows, err := r.db.Query(`
		SELECT score_date, AVG(avg_sentiment)
		FROM account_scores
		GROUP BY score_date
		ORDER BY score_date DESC
		LIMIT ?
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily averages: %w", err)
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var date string
		var avg float64
		if err := rows.Scan(&date, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan daily average row: %w", err)
		}
		averages[date] = avg
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily average rows: %w", err)
	}

	return averages, nil
}

// StoreCorrelationRun persists one correlation result
func (r *ScoreRepositoryImpl) StoreCorrelationRun(run CorrelationRun) error {
	_, err := r.db.Exec(`
		INSERT INTO correlation_runs (
			run_date, series, coefficient, samples, strength, valid, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.RunDate, run.Series, run.Coefficient, run.Samples,
		run.Strength, run.Valid, time.Now().UTC())

	if err != nil {
		return fmt.Errorf("failed to store correlation run: %w", err)
	}

	return nil
}

// GetLatestCorrelationRuns returns the correlation results recorded
// for one run date.
func (r *ScoreRepositoryImpl) GetLatestCorrelationRuns(runDate string) ([]CorrelationRun, error) {
	rows, err := r.db.Query(`
		SELECT id, run_date, series, coefficient, samples, strength, valid, created_at
		FROM correlation_runs
		WHERE run_date = ?
		ORDER BY series
	`, runDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get correlation runs: %w", err)
	}
	defer rows.Close()

	var runs []CorrelationRun
	for rows.Next() {
		var run CorrelationRun
		err := rows.Scan(
			&run.ID, &run.RunDate, &run.Series, &run.Coefficient,
			&run.Samples, &run.Strength, &run.Valid, &run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correlation run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correlation run rows: %w", err)
	}

	return runs, nil
}

// StoreReport persists a rendered report and returns its id
func (r *ScoreRepositoryImpl) StoreReport(rep Report) (int64, error) {
	res, err := r.db.Exec(`
		INSERT INTO reports (run_date, html, sent, created_at)
		VALUES (?, ?, ?, ?)
	`, rep.RunDate, rep.HTML, rep.Sent, time.Now().UTC())

	if err != nil {
		return 0, fmt.Errorf("failed to store report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get report id: %w", err)
	}

	return id, nil
}

// MarkReportSent flags a stored report as delivered
func (r *ScoreRepositoryImpl) MarkReportSent(id int64) error {
	_, err := r.db.Exec("UPDATE reports SET sent = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark report sent: %w", err)
	}
	return nil
}

// GetLatestReport returns the most recently stored report, or nil
// when none exists yet.
func (r *ScoreRepositoryImpl) GetLatestReport() (*Report, error) {
	var rep Report
	err := r.db.QueryRow(`
		SELECT id, run_date, html, sent, created_at
		FROM reports
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rep.ID, &rep.RunDate, &rep.HTML, &rep.Sent, &rep.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}

	return &rep, nil
}

func scanScores(rows *sql.Rows) ([]AccountScore, error) {
	var scores []AccountScore
	for rows.Next() {
		var s AccountScore
		err := rows.Scan(
			&s.ID, &s.Account, &s.ScoreDate, &s.AvgSentiment, &s.TotalPosts,
			&s.PositiveCount, &s.NegativeCount, &s.NeutralCount, &s.Label, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		scores = append(scores, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score rows: %w", err)
	}

	return scores, nil
}
