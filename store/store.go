// Package store persists completed optimizations and answers usage
// queries. SQLite (modernc.org/sqlite) is the default backend; a
// postgres:// DSN selects PostgreSQL through the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/use-agent/promptopt/models"
	"github.com/use-agent/promptopt/tokens"
	_ "modernc.org/sqlite"
)

// Store persists optimization records.
type Store interface {
	Save(ctx context.Context, rec *models.OptimizationRecord) error
	Get(ctx context.Context, id string) (*models.OptimizationRecord, error)
	Usage(ctx context.Context, period, userID string) (*models.UsageSummary, error)
	CountSince(ctx context.Context, apiKey string, since time.Time) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultPeriod is used when a usage query names none.
const DefaultPeriod = "7d"

const topUsersLimit = 10

var periods = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// ParsePeriod converts "1d", "7d", "30d" or "90d" to a duration.
func ParsePeriod(period string) (time.Duration, error) {
	if period == "" {
		period = DefaultPeriod
	}
	d, ok := periods[period]
	if !ok {
		return 0, models.NewPipelineError(models.ErrCodeInvalidInput, "unsupported period "+strconv.Quote(period), nil)
	}
	return d, nil
}

const schema = `CREATE TABLE IF NOT EXISTS optimizations (
	id               TEXT PRIMARY KEY,
	original_prompt  TEXT NOT NULL,
	optimized_prompt TEXT NOT NULL,
	original_tokens  BIGINT NOT NULL,
	optimized_tokens BIGINT NOT NULL,
	tokens_saved     BIGINT NOT NULL,
	money_saved      DOUBLE PRECISION NOT NULL,
	energy_saved     DOUBLE PRECISION NOT NULL,
	emissions_saved  DOUBLE PRECISION NOT NULL,
	strategy         TEXT NOT NULL,
	model            TEXT NOT NULL,
	user_name        TEXT NOT NULL,
	api_key          TEXT NOT NULL,
	created_at       BIGINT NOT NULL
)`

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_optimizations_created_at ON optimizations (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_optimizations_api_key ON optimizations (api_key, created_at)`,
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

// Open connects to dsn and creates the schema. DSNs starting with
// postgres:// or postgresql:// use PostgreSQL; anything else is a SQLite
// path (an optional "sqlite://" prefix is stripped).
func Open(ctx context.Context, dsn string) (*SQLStore, error) {
	driver, source, postgres := resolve(dsn)
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if !postgres {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, postgres: postgres, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func resolve(dsn string) (driver, source string, postgres bool) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, true
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}
	if !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)"
	}
	return "sqlite", dsn, false
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range append([]string{schema}, indexes...) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts rec. CreatedAt defaults to now.
func (s *SQLStore) Save(ctx context.Context, rec *models.OptimizationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO optimizations (
		id, original_prompt, optimized_prompt, original_tokens, optimized_tokens,
		tokens_saved, money_saved, energy_saved, emissions_saved,
		strategy, model, user_name, api_key, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.OriginalPrompt, rec.OptimizedPrompt, rec.OriginalTokens, rec.OptimizedTokens,
		rec.TokensSaved, rec.MoneySaved, rec.EnergySaved, rec.EmissionsSaved,
		rec.Strategy, rec.Model, rec.UserName, rec.APIKey, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads the record with the given id, or returns a NOT_FOUND error.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.OptimizationRecord, error) {
	var (
		rec     models.OptimizationRecord
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT
		id, original_prompt, optimized_prompt, original_tokens, optimized_tokens,
		tokens_saved, money_saved, energy_saved, emissions_saved,
		strategy, model, user_name, api_key, created_at
	FROM optimizations WHERE id = ?`), id).Scan(
		&rec.ID, &rec.OriginalPrompt, &rec.OptimizedPrompt, &rec.OriginalTokens, &rec.OptimizedTokens,
		&rec.TokensSaved, &rec.MoneySaved, &rec.EnergySaved, &rec.EmissionsSaved,
		&rec.Strategy, &rec.Model, &rec.UserName, &rec.APIKey, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewPipelineError(models.ErrCodeNotFound, "optimization "+id+" not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return &rec, nil
}

// CountSince counts optimizations recorded for apiKey at or after since.
func (s *SQLStore) CountSince(ctx context.Context, apiKey string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM optimizations WHERE api_key = ? AND created_at >= ?`),
		apiKey, since.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count usage: %w", err)
	}
	return n, nil
}

// Usage summarizes optimizations within period, optionally for one user.
func (s *SQLStore) Usage(ctx context.Context, period, userID string) (*models.UsageSummary, error) {
	d, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultPeriod
	}
	since := s.now().UTC().Add(-d)

	where := `created_at >= ?`
	args := []any{since.UnixMilli()}
	if userID != "" {
		where += ` AND user_name = ?`
		args = append(args, userID)
	}

	sum := &models.UsageSummary{
		Period:   period,
		Since:    since,
		TopUsers: []models.UserUsage{},
		Daily:    []models.DailyUsage{},
	}

	var original int64
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT
		COUNT(*),
		CAST(COALESCE(SUM(tokens_saved), 0) AS BIGINT),
		CAST(COALESCE(SUM(original_tokens), 0) AS BIGINT),
		CAST(COALESCE(SUM(money_saved), 0) AS DOUBLE PRECISION),
		CAST(COALESCE(SUM(energy_saved), 0) AS DOUBLE PRECISION),
		CAST(COALESCE(SUM(emissions_saved), 0) AS DOUBLE PRECISION)
	FROM optimizations WHERE `+where), args...).Scan(
		&sum.TotalOptimizations, &sum.TotalTokensSaved, &original,
		&sum.TotalMoneySaved, &sum.TotalEnergySaved, &sum.TotalEmissionsSaved,
	)
	if err != nil {
		return nil, fmt.Errorf("store: usage totals: %w", err)
	}
	sum.AverageReduction = tokens.Percent(sum.TotalTokensSaved, int(original), 1)

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT
		user_name, COUNT(*), CAST(COALESCE(SUM(tokens_saved), 0) AS BIGINT)
	FROM optimizations WHERE `+where+`
	GROUP BY user_name ORDER BY COUNT(*) DESC, user_name ASC LIMIT `+strconv.Itoa(topUsersLimit)), args...)
	if err != nil {
		return nil, fmt.Errorf("store: top users: %w", err)
	}
	for rows.Next() {
		var u models.UserUsage
		if err := rows.Scan(&u.UserName, &u.Optimizations, &u.TokensSaved); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: top users: %w", err)
		}
		sum.TopUsers = append(sum.TopUsers, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: top users: %w", err)
	}

	daily, err := s.daily(ctx, where, args)
	if err != nil {
		return nil, err
	}
	sum.Daily = daily
	return sum, nil
}

// daily buckets rows by UTC calendar day. Bucketing happens here rather
// than in SQL because the two backends disagree on date functions.
func (s *SQLStore) daily(ctx context.Context, where string, args []any) ([]models.DailyUsage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT created_at, tokens_saved FROM optimizations WHERE `+where), args...)
	if err != nil {
		return nil, fmt.Errorf("store: daily usage: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]*models.DailyUsage)
	for rows.Next() {
		var created, saved int64
		if err := rows.Scan(&created, &saved); err != nil {
			return nil, fmt.Errorf("store: daily usage: %w", err)
		}
		day := time.UnixMilli(created).UTC().Format(time.DateOnly)
		d, ok := byDay[day]
		if !ok {
			d = &models.DailyUsage{Date: day}
			byDay[day] = d
		}
		d.Optimizations++
		d.TokensSaved += int(saved)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: daily usage: %w", err)
	}

	out := make([]models.DailyUsage, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
