package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists analysis results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed analysis store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the analyses table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			id          VARCHAR(36) PRIMARY KEY,
			content     TEXT NOT NULL,
			platform    TEXT NOT NULL DEFAULT 'unknown',
			user_id     TEXT NOT NULL DEFAULT '',
			risk_score  INT NOT NULL CHECK (risk_score >= 0),
			risk_level  VARCHAR(10) NOT NULL CHECK (risk_level IN ('MINIMAL', 'LOW', 'MEDIUM', 'HIGH')),
			flags       JSONB NOT NULL DEFAULT '[]',
			sentiment   JSONB NOT NULL DEFAULT '{}',
			network     JSONB NOT NULL DEFAULT '{}',
			explanation JSONB NOT NULL DEFAULT '[]',
			resolved    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_analyses_created
			ON analyses (created_at DESC, id DESC);

		CREATE INDEX IF NOT EXISTS idx_analyses_platform
			ON analyses (platform, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_analyses_user
			ON analyses (user_id, created_at DESC) WHERE user_id <> '';
	`)
	return err
}

const resultColumns = `id, content, platform, user_id, risk_score, risk_level,
	flags, sentiment, network, explanation, resolved, created_at`

func (s *PostgresStore) Save(ctx context.Context, result *Result) error {
	flagsJSON, err := json.Marshal(result.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	sentimentJSON, err := json.Marshal(result.Sentiment)
	if err != nil {
		return fmt.Errorf("failed to marshal sentiment: %w", err)
	}
	networkJSON, err := json.Marshal(result.NetworkAnalysis)
	if err != nil {
		return fmt.Errorf("failed to marshal network analysis: %w", err)
	}
	explanationJSON, err := json.Marshal(result.Explanation)
	if err != nil {
		return fmt.Errorf("failed to marshal explanation: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (`+resultColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		result.ID,
		result.Content,
		result.Platform,
		result.UserID,
		result.RiskScore,
		string(result.RiskLevel),
		flagsJSON,
		sentimentJSON,
		networkJSON,
		explanationJSON,
		result.Resolved,
		result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+` FROM analyses WHERE id = $1
	`, id)

	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) SetResolved(ctx context.Context, id string, resolved bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET resolved = $2 WHERE id = $1
	`, id, resolved)
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update analysis: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int, opts ...ListOption) ([]*Result, error) {
	o := applyListOpts(opts)

	var conds []string
	var args []any
	if o.platform != "" {
		args = append(args, o.platform)
		conds = append(conds, fmt.Sprintf("platform = $%d", len(args)))
	}
	if o.level != "" {
		args = append(args, string(o.level))
		conds = append(conds, fmt.Sprintf("risk_level = $%d", len(args)))
	}
	if o.cursor != nil {
		args = append(args, o.cursor.CreatedAt, o.cursor.ID)
		conds = append(conds, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + resultColumns + ` FROM analyses`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	return s.queryResults(ctx, query, args...)
}

func (s *PostgresStore) Recent(ctx context.Context, since time.Time, platform string, limit int) ([]*Result, error) {
	if platform != "" {
		return s.queryResults(ctx, `
			SELECT `+resultColumns+` FROM analyses
			WHERE created_at > $1 AND platform = $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, since, platform, limit)
	}
	return s.queryResults(ctx, `
		SELECT `+resultColumns+` FROM analyses
		WHERE created_at > $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, since, limit)
}

func (s *PostgresStore) CountByLevel(ctx context.Context, since time.Time, platform string) (map[RiskLevel]int, error) {
	query := `
		SELECT risk_level, COUNT(*) FROM analyses
		WHERE created_at > $1
	`
	args := []any{since}
	if platform != "" {
		query += " AND platform = $2"
		args = append(args, platform)
	}
	query += " GROUP BY risk_level"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[RiskLevel]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		counts[RiskLevel(level)] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) PlatformStats(ctx context.Context, since time.Time) ([]PlatformStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, COUNT(*), AVG(risk_score)
		FROM analyses
		WHERE created_at > $1
		GROUP BY platform
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate platforms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []PlatformStat
	for rows.Next() {
		var st PlatformStat
		if err := rows.Scan(&st.Platform, &st.Count, &st.AverageScore); err != nil {
			return nil, fmt.Errorf("failed to scan platform stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) ListWithIndicators(ctx context.Context, since time.Time) ([]*Result, error) {
	return s.queryResults(ctx, `
		SELECT `+resultColumns+` FROM analyses
		WHERE created_at > $1 AND jsonb_array_length(network->'indicators') > 0
		ORDER BY created_at ASC, id ASC
	`, since)
}

func (s *PostgresStore) queryResults(ctx context.Context, query string, args ...any) ([]*Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*Result, error) {
	var r Result
	var level string
	var flagsJSON, sentimentJSON, networkJSON, explanationJSON []byte
	var createdAt time.Time

	err := row.Scan(
		&r.ID, &r.Content, &r.Platform, &r.UserID, &r.RiskScore, &level,
		&flagsJSON, &sentimentJSON, &networkJSON, &explanationJSON,
		&r.Resolved, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	r.RiskLevel = RiskLevel(level)
	r.Timestamp = createdAt.UTC()
	r.Flags = []string{}
	r.Explanation = []string{}
	_ = json.Unmarshal(flagsJSON, &r.Flags)
	_ = json.Unmarshal(sentimentJSON, &r.Sentiment)
	_ = json.Unmarshal(networkJSON, &r.NetworkAnalysis)
	_ = json.Unmarshal(explanationJSON, &r.Explanation)
	if r.NetworkAnalysis.Indicators == nil {
		r.NetworkAnalysis.Indicators = []string{}
	}
	return &r, nil
}
