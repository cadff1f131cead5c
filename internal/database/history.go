package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/burrow/internal/report"
)

// ErrReportWithoutID is returned when saving a report that has no ID.
var ErrReportWithoutID = errors.New("report has no id")

// ReportSummary is one row of traversal history.
type ReportSummary struct {
	ID               string
	ManifestLocation string
	StartedAt        time.Time
	CompletedAt      time.Time
	EntriesProcessed int
	ErrorCount       int
	StopReason       string
}

// Duration returns how long the traversal ran.
func (s ReportSummary) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// SaveReport stores a traversal report. Saving a report with an ID that
// already exists replaces it.
func (d *DB) SaveReport(ctx context.Context, r *report.Report) error {
	if r == nil || r.ID == "" {
		return ErrReportWithoutID
	}

	reportJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var completedAt sql.NullString
	if !r.CompletedAt.IsZero() {
		completedAt = sql.NullString{String: formatTimestamp(r.CompletedAt), Valid: true}
	}

	query := `
	INSERT INTO traversal_reports
		(id, manifest_location, started_at, completed_at, entries_processed, error_count, stop_reason, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		manifest_location = excluded.manifest_location,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		entries_processed = excluded.entries_processed,
		error_count = excluded.error_count,
		stop_reason = excluded.stop_reason,
		report_json = excluded.report_json
	`

	_, err = d.db.ExecContext(ctx, query,
		r.ID,
		r.ManifestLocation,
		formatTimestamp(r.StartedAt),
		completedAt,
		r.EntriesProcessed,
		len(r.Errors),
		r.StopReason,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save traversal report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report for a manifest location, or
// nil when there is none.
func (d *DB) LatestReport(ctx context.Context, location string) (*report.Report, error) {
	query := `
	SELECT report_json FROM traversal_reports
	WHERE manifest_location = ?
	ORDER BY started_at DESC, rowid DESC
	LIMIT 1
	`
	return d.scanReport(d.db.QueryRowContext(ctx, query, location))
}

// Report returns the report with the given ID, or nil when there is none.
func (d *DB) Report(ctx context.Context, id string) (*report.Report, error) {
	return d.scanReport(d.db.QueryRowContext(ctx, "SELECT report_json FROM traversal_reports WHERE id = ?", id))
}

func (d *DB) scanReport(row *sql.Row) (*report.Report, error) {
	var reportJSON string
	err := row.Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get traversal report: %w", err)
	}

	var r report.Report
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}

// History lists saved reports, newest first. Only reports whose manifest
// location starts with prefix are listed; an empty prefix lists all. A
// limit of zero or less returns all rows.
func (d *DB) History(ctx context.Context, prefix string, limit int) ([]ReportSummary, error) {
	query := `
	SELECT id, manifest_location, started_at, completed_at, entries_processed, error_count, stop_reason
	FROM traversal_reports
	WHERE manifest_location LIKE ? ESCAPE '\'
	ORDER BY started_at DESC, rowid DESC
	`
	args := []any{likePrefix(prefix)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var results []ReportSummary
	for rows.Next() {
		var (
			s           ReportSummary
			startedAt   string
			completedAt sql.NullString
			stopReason  sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ManifestLocation, &startedAt, &completedAt,
			&s.EntriesProcessed, &s.ErrorCount, &stopReason); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		s.StartedAt = parseTimestamp(startedAt)
		if completedAt.Valid {
			s.CompletedAt = parseTimestamp(completedAt.String)
		}
		s.StopReason = stopReason.String
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListLocations returns every manifest location with saved reports.
func (d *DB) ListLocations(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT manifest_location FROM traversal_reports
	ORDER BY manifest_location
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix returns a LIKE pattern matching strings that start with s.
func likePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}
