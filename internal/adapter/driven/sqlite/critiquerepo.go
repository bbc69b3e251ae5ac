package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReportStore = (*CritiqueRepo)(nil)

// CritiqueRepo is the SQLite implementation of the ReportStore port interface.
type CritiqueRepo struct {
	db  *DB
	now func() time.Time
}

// NewCritiqueRepo creates a new CritiqueRepo backed by the given DB.
func NewCritiqueRepo(db *DB) *CritiqueRepo {
	return &CritiqueRepo{db: db, now: time.Now}
}

// ReplaceForLaunch replaces every critique stored for launch with records and
// appends a run row carrying summary. Rows of earlier runs are removed in the
// same transaction, so readers never see a mix of two runs.
func (r *CritiqueRepo) ReplaceForLaunch(
	ctx context.Context,
	launch model.Deviation,
	records []model.CritiqueRecord,
	summary model.RunSummary,
) (string, error) {
	const insertRun = `
		INSERT INTO runs (
			id, launch_id, launch_url, completed_at, batches, critiques,
			valid_critiques, empty_critiques, duplicates_dropped,
			fetch_failures, parse_failures, comments_fetched
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	const deleteCritiques = `DELETE FROM critiques WHERE launch_id = ?`
	const insertCritique = `
		INSERT INTO critiques (
			launch_id, position, run_id, batch_url, critique_url,
			author, posted_at, body, words, chars, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	runID := uuid.NewString()

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx, insertRun,
		runID, launch.ID, launch.URL(), r.now().UTC().Format(time.RFC3339),
		summary.Batches, summary.Critiques, summary.ValidCritiques, summary.EmptyCritiques,
		summary.DuplicatesDropped, summary.FetchFailures, summary.ParseFailures, summary.CommentsFetched,
	)
	if err != nil {
		return "", fmt.Errorf("insert run for %s: %w", launch.ID, err)
	}

	if _, err := tx.ExecContext(ctx, deleteCritiques, launch.ID); err != nil {
		return "", fmt.Errorf("delete critiques for %s: %w", launch.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertCritique)
	if err != nil {
		return "", fmt.Errorf("prepare critique insert: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		var posted any
		if !rec.Posted.IsZero() {
			posted = rec.Posted.UTC().Format(time.RFC3339)
		}

		_, err := stmt.ExecContext(ctx,
			launch.ID, i, runID, rec.BatchURL.String(), rec.CritiqueURL.String(),
			rec.Author, posted, rec.Text, rec.Words, rec.Chars, string(rec.Source),
		)
		if err != nil {
			return "", fmt.Errorf("insert critique %s: %w", rec.CritiqueURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit critiques for %s: %w", launch.ID, err)
	}

	return runID, nil
}

// ListByLaunch returns the stored critiques for launch in report order.
func (r *CritiqueRepo) ListByLaunch(ctx context.Context, launch model.Deviation) ([]model.CritiqueRecord, error) {
	const query = `
		SELECT batch_url, critique_url, author, posted_at, body, words, chars, source
		FROM critiques
		WHERE launch_id = ?
		ORDER BY position
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, launch.ID)
	if err != nil {
		return nil, fmt.Errorf("list critiques for %s: %w", launch.ID, err)
	}
	defer rows.Close()

	var records []model.CritiqueRecord
	for rows.Next() {
		rec, err := scanCritique(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate critiques for %s: %w", launch.ID, err)
	}

	return records, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCritique(s scanner) (model.CritiqueRecord, error) {
	var rec model.CritiqueRecord
	var batchURL, critiqueURL, source string
	var posted sql.NullString

	err := s.Scan(&batchURL, &critiqueURL, &rec.Author, &posted, &rec.Text, &rec.Words, &rec.Chars, &source)
	if err != nil {
		return model.CritiqueRecord{}, fmt.Errorf("scan critique: %w", err)
	}

	if rec.BatchURL, err = model.ParseCommentURL(batchURL); err != nil {
		return model.CritiqueRecord{}, fmt.Errorf("parse batch url: %w", err)
	}
	if rec.CritiqueURL, err = model.ParseCommentURL(critiqueURL); err != nil {
		return model.CritiqueRecord{}, fmt.Errorf("parse critique url: %w", err)
	}
	if posted.Valid {
		if rec.Posted, err = parseTime(posted.String); err != nil {
			return model.CritiqueRecord{}, fmt.Errorf("parse posted_at: %w", err)
		}
	}
	rec.Source = model.RecordSource(source)

	return rec, nil
}

// parseTime handles the timestamp layouts SQLite may hand back.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
