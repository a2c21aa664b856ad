package activity

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists activity profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the activity tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS activity_posts (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			platform TEXT NOT NULL DEFAULT 'unknown',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_posts_user_time
			ON activity_posts(user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS activity_profiles (
			user_id TEXT PRIMARY KEY,
			total_risk_score INTEGER NOT NULL DEFAULT 0,
			flagged_posts INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate activity: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Profile(ctx context.Context, userID string, limit int) (*Profile, error) {
	var (
		totalScore   int
		flaggedPosts int
		hasCounters  = true
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT total_risk_score, flagged_posts FROM activity_profiles WHERE user_id = $1`,
		userID).Scan(&totalScore, &flaggedPosts)
	if err == sql.ErrNoRows {
		hasCounters = false
	} else if err != nil {
		return nil, fmt.Errorf("query risk profile: %w", err)
	}

	var postCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_posts WHERE user_id = $1`,
		userID).Scan(&postCount); err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	if !hasCounters && postCount == 0 {
		return nil, ErrProfileNotFound
	}

	query := `SELECT content, platform, created_at FROM activity_posts
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var recent []Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.Content, &p.Platform, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		recent = append(recent, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	// Rows come back newest first; profiles carry chronological order.
	posts := make([]Post, len(recent))
	for i, p := range recent {
		posts[len(recent)-1-i] = p
	}

	return &Profile{
		UserID:    userID,
		PostCount: postCount,
		Posts:     posts,
		RiskProfile: RiskProfile{
			TotalRiskScore: totalScore,
			FlaggedPosts:   flaggedPosts,
		},
	}, nil
}

func (s *PostgresStore) AppendPost(ctx context.Context, userID string, post Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_posts (user_id, content, platform, created_at) VALUES ($1, $2, $3, $4)`,
		userID, post.Content, post.Platform, post.Timestamp)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// IncrementRiskProfile applies both deltas in one statement so
// concurrent increments for the same user never clobber each other.
func (s *PostgresStore) IncrementRiskProfile(ctx context.Context, userID string, scoreDelta, flaggedDelta int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_profiles (user_id, total_risk_score, flagged_posts, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_risk_score = activity_profiles.total_risk_score + EXCLUDED.total_risk_score,
			flagged_posts = activity_profiles.flagged_posts + EXCLUDED.flagged_posts,
			updated_at = NOW()`,
		userID, scoreDelta, flaggedDelta)
	if err != nil {
		return fmt.Errorf("increment risk profile: %w", err)
	}
	return nil
}
