package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/risksure/outreach-cli/internal/db"
	"github.com/risksure/outreach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the hot-path queries to prepare on each new
// connection: the webhook handlers and the send loop hit these constantly.
var preparedStatements = map[string]string{
	"record_email_sent": `UPDATE warming_config SET emails_sent_today = emails_sent_today + 1
	                      WHERE is_active AND emails_sent_today < current_daily_limit`,
	"mark_opened": `UPDATE leads SET status = 'opened', last_opened_at = $2, updated_at = $3
	                WHERE id = $1 AND status IN ('contacted', 'ready')`,
	"mark_clicked": `UPDATE leads SET status = 'clicked', last_clicked_at = $2, updated_at = $3
	                 WHERE id = $1 AND status IN ('contacted', 'ready', 'opened')`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                      TEXT PRIMARY KEY,
	company_name            TEXT NOT NULL,
	website                 TEXT,
	state                   TEXT,
	contact_name            TEXT NOT NULL,
	contact_email           TEXT NOT NULL UNIQUE,
	contact_title           TEXT,
	contact_phone           TEXT,
	source                  TEXT NOT NULL,
	tier                    TEXT NOT NULL DEFAULT 'velocity',
	estimated_subbies       INTEGER,
	estimated_revenue       TEXT,
	email_validated         BOOLEAN NOT NULL DEFAULT false,
	email_validation_result TEXT,
	enrichment              JSONB,
	enrichment_score        INTEGER,
	personalized_opener     TEXT,
	pain_points             JSONB,
	enrichment_error        TEXT,
	status                  TEXT NOT NULL DEFAULT 'new',
	current_sequence_step   INTEGER NOT NULL DEFAULT 0,
	sequence_variant        TEXT,
	last_email_sent_at      TIMESTAMPTZ,
	next_email_at           TIMESTAMPTZ,
	last_opened_at          TIMESTAMPTZ,
	last_clicked_at         TIMESTAMPTZ,
	demo_scheduled_at       TIMESTAMPTZ,
	demo_booking_url        TEXT,
	unsubscribed_at         TIMESTAMPTZ,
	unsubscribe_reason      TEXT,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_tier ON leads(tier);
CREATE INDEX IF NOT EXISTS idx_leads_status_next_email ON leads(status, next_email_at);

CREATE TABLE IF NOT EXISTS warming_config (
	id                  TEXT PRIMARY KEY,
	singleton           BOOLEAN NOT NULL DEFAULT true UNIQUE CHECK (singleton),
	is_active           BOOLEAN NOT NULL DEFAULT true,
	current_daily_limit INTEGER NOT NULL,
	max_daily_limit     INTEGER NOT NULL,
	increment_amount    INTEGER NOT NULL,
	emails_sent_today   INTEGER NOT NULL DEFAULT 0,
	bounces_today       INTEGER NOT NULL DEFAULT 0,
	complaints_today    INTEGER NOT NULL DEFAULT 0,
	last_increment_date TEXT NOT NULL,
	warming_start_date  TEXT NOT NULL,
	paused_at           TIMESTAMPTZ,
	pause_reason        TEXT
);

CREATE TABLE IF NOT EXISTS email_events (
	id               TEXT PRIMARY KEY,
	lead_id          TEXT NOT NULL REFERENCES leads(id),
	event_type       TEXT NOT NULL,
	subject          TEXT NOT NULL DEFAULT '',
	sequence_step    INTEGER NOT NULL DEFAULT 0,
	sequence_variant TEXT,
	message_id       TEXT,
	metadata         TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_email_events_lead ON email_events(lead_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_email_events_dedup
	ON email_events(message_id, event_type) WHERE message_id IS NOT NULL AND message_id <> '';

CREATE TABLE IF NOT EXISTS ab_tests (
	id            TEXT PRIMARY KEY,
	test_name     TEXT NOT NULL UNIQUE,
	tier          TEXT NOT NULL,
	sequence_step INTEGER NOT NULL,
	subject_a     TEXT NOT NULL DEFAULT '',
	subject_b     TEXT NOT NULL DEFAULT '',
	a_sent        INTEGER NOT NULL DEFAULT 0,
	a_opened      INTEGER NOT NULL DEFAULT 0,
	a_clicked     INTEGER NOT NULL DEFAULT 0,
	a_replied     INTEGER NOT NULL DEFAULT 0,
	b_sent        INTEGER NOT NULL DEFAULT 0,
	b_opened      INTEGER NOT NULL DEFAULT 0,
	b_clicked     INTEGER NOT NULL DEFAULT 0,
	b_replied     INTEGER NOT NULL DEFAULT 0,
	start_date    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS unsubscribe_tokens (
	id         TEXT PRIMARY KEY,
	lead_id    TEXT NOT NULL UNIQUE REFERENCES leads(id),
	token      TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	used_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS daily_metrics (
	date               TEXT PRIMARY KEY,
	leads_imported     INTEGER NOT NULL DEFAULT 0,
	leads_validated    INTEGER NOT NULL DEFAULT 0,
	leads_invalid      INTEGER NOT NULL DEFAULT 0,
	leads_enriched     INTEGER NOT NULL DEFAULT 0,
	enrichment_errors  INTEGER NOT NULL DEFAULT 0,
	emails_sent        INTEGER NOT NULL DEFAULT 0,
	emails_delivered   INTEGER NOT NULL DEFAULT 0,
	emails_opened      INTEGER NOT NULL DEFAULT 0,
	emails_clicked     INTEGER NOT NULL DEFAULT 0,
	emails_bounced     INTEGER NOT NULL DEFAULT 0,
	replies            INTEGER NOT NULL DEFAULT 0,
	demos_booked       INTEGER NOT NULL DEFAULT 0,
	unsubscribes       INTEGER NOT NULL DEFAULT 0,
	variant_a_sent     INTEGER NOT NULL DEFAULT 0,
	variant_a_opened   INTEGER NOT NULL DEFAULT 0,
	variant_b_sent     INTEGER NOT NULL DEFAULT 0,
	variant_b_opened   INTEGER NOT NULL DEFAULT 0,
	velocity_sent      INTEGER NOT NULL DEFAULT 0,
	compliance_sent    INTEGER NOT NULL DEFAULT 0,
	business_sent      INTEGER NOT NULL DEFAULT 0
);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const leadColumns = `id, company_name, website, state, contact_name, contact_email, contact_title,
	contact_phone, source, tier, estimated_subbies, estimated_revenue, email_validated,
	email_validation_result, enrichment, enrichment_score, personalized_opener, pain_points,
	enrichment_error, status, current_sequence_step, sequence_variant, last_email_sent_at,
	next_email_at, last_opened_at, last_clicked_at, demo_scheduled_at, demo_booking_url,
	unsubscribed_at, unsubscribe_reason, created_at, updated_at`

// Leads

func (s *PostgresStore) CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lead.ContactEmail = model.NormalizeEmail(lead.ContactEmail)
	if lead.Tier == "" {
		lead.Tier = model.TierForSubbies(lead.EstimatedSubbies)
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	lead.CreatedAt = now
	lead.UpdatedAt = now

	painPointsJSON, err := json.Marshal(lead.PainPoints)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal pain points")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (id, company_name, website, state, contact_name, contact_email,
			contact_title, contact_phone, source, tier, estimated_subbies, estimated_revenue,
			email_validated, status, current_sequence_step, pain_points, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (contact_email) DO NOTHING`,
		lead.ID, lead.CompanyName, nullStr(lead.Website), nullStr(lead.State),
		lead.ContactName, lead.ContactEmail, nullStr(lead.ContactTitle), nullStr(lead.ContactPhone),
		string(lead.Source), string(lead.Tier), nullInt(lead.EstimatedSubbies),
		nullStr(lead.EstimatedRevenue), lead.EmailValidated, string(lead.Status),
		lead.CurrentSequenceStep, painPointsJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDuplicateEmail
	}
	return &lead, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	return lead, nil
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE contact_email = $1`, model.NormalizeEmail(email))
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get lead by email")
	}
	return lead, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	return s.queryLeads(ctx, query, args...)
}

func (s *PostgresStore) LeadStats(ctx context.Context) (*LeadStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, tier, COUNT(*) FROM leads GROUP BY status, tier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	defer rows.Close()

	stats := &LeadStats{
		ByStatus: make(map[model.LeadStatus]int),
		ByTier:   make(map[model.Tier]int),
	}
	for rows.Next() {
		var status, tier string
		var count int
		if err := rows.Scan(&status, &tier, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead stats")
		}
		stats.Total += count
		stats.ByStatus[model.LeadStatus(status)] += count
		stats.ByTier[model.Tier(tier)] += count
	}
	return stats, eris.Wrap(rows.Err(), "postgres: lead stats iterate")
}

func (s *PostgresStore) LeadsPendingValidation(ctx context.Context, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'new' AND NOT email_validated
		 ORDER BY created_at ASC LIMIT $1`, limit)
}

func (s *PostgresStore) LeadsPendingEnrichment(ctx context.Context, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'enriching'
		 ORDER BY created_at ASC LIMIT $1`, limit)
}

func (s *PostgresStore) LeadsReadyForEmail(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status IN ('ready', 'contacted', 'opened', 'clicked')
		   AND (next_email_at IS NULL OR next_email_at <= $1)
		 ORDER BY next_email_at ASC NULLS FIRST LIMIT $2`, now, limit)
}

func (s *PostgresStore) NurtureLeads(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'nurture'
		   AND (next_email_at IS NULL OR next_email_at <= $1)
		 ORDER BY next_email_at ASC NULLS FIRST LIMIT $2`, now, limit)
}

// Lead transitions

func (s *PostgresStore) UpdateValidation(ctx context.Context, leadID string, result model.ValidationResult) error {
	newStatus := model.StatusEnriching
	if result == model.ValidationInvalid {
		newStatus = model.StatusInvalidEmail
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET email_validated = true, email_validation_result = $1, status = $2, updated_at = $3
		 WHERE id = $4`,
		string(result), string(newStatus), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update validation %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, leadID string, update EnrichmentUpdate) error {
	dataJSON, err := json.Marshal(update.Data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enrichment")
	}
	painPointsJSON, err := json.Marshal(update.PainPoints)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal pain points")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET enrichment = $1, enrichment_score = $2, tier = $3, estimated_subbies = $4,
			estimated_revenue = $5, personalized_opener = $6, pain_points = $7,
			status = 'ready', updated_at = $8
		 WHERE id = $9`,
		dataJSON, update.Score, string(update.Tier), update.EstimatedSubbies,
		nullStr(update.EstimatedRevenue), update.PersonalizedOpener, painPointsJSON,
		time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

func (s *PostgresStore) SetEnrichmentError(ctx context.Context, leadID string, errMsg string) error {
	// Degrade gracefully: the lead still proceeds with generic messaging.
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET enrichment_error = $1, status = 'ready', updated_at = $2 WHERE id = $3`,
		errMsg, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set enrichment error %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

func (s *PostgresStore) AssignVariant(ctx context.Context, leadID string, variant model.Variant) error {
	// Assigned exactly once: an existing assignment wins over a re-enrichment.
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET sequence_variant = $1, updated_at = $2
		 WHERE id = $3 AND sequence_variant IS NULL`,
		string(variant), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: assign variant %s", leadID)
	}
	_ = tag
	return nil
}

func (s *PostgresStore) MarkEmailSent(ctx context.Context, leadID string, update SentUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin mark sent")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET
			status = CASE WHEN status = 'nurture' THEN 'nurture' ELSE 'contacted' END,
			current_sequence_step = $1,
			sequence_variant = $2,
			last_email_sent_at = $3,
			next_email_at = $4,
			updated_at = $3
		 WHERE id = $5`,
		update.Step+1, string(update.Variant), update.SentAt, update.NextEmailAt, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark sent %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", leadID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO email_events (id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, created_at)
		 VALUES ($1, $2, 'sent', $3, $4, $5, $6, $7)`,
		uuid.New().String(), leadID, update.Subject, update.Step, string(update.Variant),
		update.MessageID, update.SentAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: log sent event %s", leadID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit mark sent")
}

func (s *PostgresStore) MarkOpened(ctx context.Context, leadID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'opened', last_opened_at = $2, updated_at = $3
		 WHERE id = $1 AND status IN ('contacted', 'ready')`,
		leadID, at, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark opened %s", leadID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkClicked(ctx context.Context, leadID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'clicked', last_clicked_at = $2, updated_at = $3
		 WHERE id = $1 AND status IN ('contacted', 'ready', 'opened')`,
		leadID, at, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: mark clicked %s", leadID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkBounced(ctx context.Context, leadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'bounced', updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark bounced %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead status %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

func (s *PostgresStore) SetDemoScheduled(ctx context.Context, leadID string, at time.Time, bookingURL string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'demo_scheduled', demo_scheduled_at = $1, demo_booking_url = $2, updated_at = $3
		 WHERE id = $4`,
		at, nullStr(bookingURL), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set demo scheduled %s", leadID)
	}
	return checkFound(tag.RowsAffected(), "lead", leadID)
}

// Warming config

const warmingColumns = `id, is_active, current_daily_limit, max_daily_limit, increment_amount,
	emails_sent_today, bounces_today, complaints_today, last_increment_date, warming_start_date,
	paused_at, pause_reason`

func (s *PostgresStore) InitWarming(ctx context.Context, today string) (*model.WarmingConfig, error) {
	// The singleton column's unique constraint makes double-creation impossible.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO warming_config
			(id, is_active, current_daily_limit, max_daily_limit, increment_amount,
			 emails_sent_today, bounces_today, complaints_today, last_increment_date, warming_start_date)
		 VALUES ($1, true, $2, $3, $4, 0, 0, 0, $5, $5)
		 ON CONFLICT (singleton) DO NOTHING`,
		uuid.New().String(), model.WarmingStartLimit, model.WarmingMaxLimit,
		model.WarmingIncrementAmount, today,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: init warming")
	}
	return s.GetWarming(ctx)
}

func (s *PostgresStore) GetWarming(ctx context.Context) (*model.WarmingConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+warmingColumns+` FROM warming_config LIMIT 1`)
	cfg, err := scanWarming(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get warming")
	}
	return cfg, nil
}

func (s *PostgresStore) AdvanceWarmingDay(ctx context.Context, today string, newLimit int) (bool, error) {
	// Guarded on last_increment_date so a second same-day call is a no-op,
	// even under concurrent invocations.
	tag, err := s.pool.Exec(ctx,
		`UPDATE warming_config SET current_daily_limit = $1, last_increment_date = $2,
			emails_sent_today = 0, bounces_today = 0, complaints_today = 0
		 WHERE last_increment_date <> $2`,
		newLimit, today,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: advance warming day")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) RecordEmailSent(ctx context.Context) (bool, error) {
	// The guard keeps concurrent senders from racing past the daily cap.
	tag, err := s.pool.Exec(ctx,
		`UPDATE warming_config SET emails_sent_today = emails_sent_today + 1
		 WHERE is_active AND emails_sent_today < current_daily_limit`,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: record email sent")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) IncrementWarmingCounter(ctx context.Context, counter WarmingCounter) (*model.WarmingConfig, error) {
	column := "bounces_today"
	if counter == CounterComplaint {
		column = "complaints_today"
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE warming_config SET `+column+` = `+column+` + 1 RETURNING `+warmingColumns,
	)
	cfg, err := scanWarming(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: increment %s", column)
	}
	return cfg, nil
}

func (s *PostgresStore) PauseWarming(ctx context.Context, reason string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE warming_config SET is_active = false, paused_at = $1, pause_reason = $2
		 WHERE paused_at IS NULL`,
		at, reason,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: pause warming")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UnpauseWarming(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE warming_config SET is_active = true, paused_at = NULL, pause_reason = NULL`,
	)
	return eris.Wrap(err, "postgres: unpause warming")
}

func (s *PostgresStore) UpdateWarmingLimits(ctx context.Context, currentLimit, maxLimit, increment *int) error {
	query := `UPDATE warming_config SET id = id`
	args := []any{}
	argIdx := 1

	if currentLimit != nil {
		query += fmt.Sprintf(`, current_daily_limit = $%d`, argIdx)
		args = append(args, *currentLimit)
		argIdx++
	}
	if maxLimit != nil {
		query += fmt.Sprintf(`, max_daily_limit = $%d`, argIdx)
		args = append(args, *maxLimit)
		argIdx++
	}
	if increment != nil {
		query += fmt.Sprintf(`, increment_amount = $%d`, argIdx)
		args = append(args, *increment)
	}

	_, err := s.pool.Exec(ctx, query, args...)
	return eris.Wrap(err, "postgres: update warming limits")
}

// Email events

func (s *PostgresStore) LogEmailEvent(ctx context.Context, event model.EmailEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO email_events (id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (message_id, event_type) WHERE message_id IS NOT NULL AND message_id <> '' DO NOTHING`,
		event.ID, event.LeadID, string(event.EventType), event.Subject, event.SequenceStep,
		nullStr(string(event.SequenceVariant)), nullStr(event.MessageID), nullStr(event.Metadata),
		event.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: log email event")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) EventsByLead(ctx context.Context, leadID string, limit int) ([]model.EmailEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, metadata, created_at
		 FROM email_events WHERE lead_id = $1 ORDER BY created_at DESC LIMIT $2`,
		leadID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: events by lead")
	}
	defer rows.Close()

	var events []model.EmailEvent
	for rows.Next() {
		var e model.EmailEvent
		var variant, messageID, metadata *string
		if err := rows.Scan(&e.ID, &e.LeadID, &e.EventType, &e.Subject, &e.SequenceStep,
			&variant, &messageID, &metadata, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email event")
		}
		if variant != nil {
			e.SequenceVariant = model.Variant(*variant)
		}
		e.MessageID = deref(messageID)
		e.Metadata = deref(metadata)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: events by lead iterate")
}

// A/B tests

// abCounterColumn maps (variant, event) to its counter column. The enumerated
// switch replaces the source-of-truthless dynamic field names the dashboard
// used to build.
func abCounterColumn(variant model.Variant, event model.ABEventType) (string, error) {
	prefix := "a"
	if variant == model.VariantB {
		prefix = "b"
	}
	switch event {
	case model.ABEventSent:
		return prefix + "_sent", nil
	case model.ABEventOpened:
		return prefix + "_opened", nil
	case model.ABEventClicked:
		return prefix + "_clicked", nil
	case model.ABEventReplied:
		return prefix + "_replied", nil
	default:
		return "", eris.Errorf("unknown ab event type: %s", event)
	}
}

func (s *PostgresStore) RecordABEvent(ctx context.Context, tier model.Tier, step int, variant model.Variant, event model.ABEventType, subjectA, subjectB string) error {
	column, err := abCounterColumn(variant, event)
	if err != nil {
		return err
	}
	testName := model.ABTestName(tier, step)

	// Lazy create with zeroed counters, then a typed atomic increment.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ab_tests (id, test_name, tier, sequence_step, subject_a, subject_b, start_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (test_name) DO NOTHING`,
		uuid.New().String(), testName, string(tier), step, subjectA, subjectB,
		time.Now().UTC().Format("2006-01-02"),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: create ab test %s", testName)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ab_tests SET `+column+` = `+column+` + 1 WHERE test_name = $1`,
		testName,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record ab event %s", testName)
	}
	return checkFound(tag.RowsAffected(), "ab_test", testName)
}

const abTestColumns = `id, test_name, tier, sequence_step, subject_a, subject_b,
	a_sent, a_opened, a_clicked, a_replied, b_sent, b_opened, b_clicked, b_replied, start_date`

func (s *PostgresStore) GetABTest(ctx context.Context, testName string) (*model.ABTestResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+abTestColumns+` FROM ab_tests WHERE test_name = $1`, testName)
	result, err := scanABTest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get ab test %s", testName)
	}
	return result, nil
}

func (s *PostgresStore) ListABTests(ctx context.Context) ([]model.ABTestResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+abTestColumns+` FROM ab_tests ORDER BY tier, sequence_step`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ab tests")
	}
	defer rows.Close()

	var results []model.ABTestResult
	for rows.Next() {
		r, err := scanABTest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan ab test")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list ab tests iterate")
}

// Unsubscribe tokens

func (s *PostgresStore) GetOrCreateUnsubscribeToken(ctx context.Context, leadID string, token string) (string, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO unsubscribe_tokens (id, lead_id, token, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (lead_id) DO NOTHING`,
		uuid.New().String(), leadID, token, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: create unsubscribe token for %s", leadID)
	}

	var existing string
	err = s.pool.QueryRow(ctx,
		`SELECT token FROM unsubscribe_tokens WHERE lead_id = $1`, leadID,
	).Scan(&existing)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: get unsubscribe token for %s", leadID)
	}
	return existing, nil
}

func (s *PostgresStore) GetUnsubscribeToken(ctx context.Context, token string) (*model.UnsubscribeToken, error) {
	var t model.UnsubscribeToken
	var usedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, lead_id, token, created_at, used_at FROM unsubscribe_tokens WHERE token = $1`,
		token,
	).Scan(&t.ID, &t.LeadID, &t.Token, &t.CreatedAt, &usedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get unsubscribe token")
	}
	t.UsedAt = usedAt
	return &t, nil
}

func (s *PostgresStore) ProcessUnsubscribe(ctx context.Context, token string, reason string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin unsubscribe")
	}
	defer tx.Rollback(ctx)

	var leadID string
	err = tx.QueryRow(ctx,
		`UPDATE unsubscribe_tokens SET used_at = $1 WHERE token = $2 AND used_at IS NULL RETURNING lead_id`,
		at, token,
	).Scan(&leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either unknown or already used; disambiguate for the caller.
			var exists bool
			if checkErr := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM unsubscribe_tokens WHERE token = $1)`, token,
			).Scan(&exists); checkErr != nil {
				return eris.Wrap(checkErr, "postgres: check unsubscribe token")
			}
			if exists {
				return ErrTokenUsed
			}
			return ErrNotFound
		}
		return eris.Wrap(err, "postgres: use unsubscribe token")
	}

	_, err = tx.Exec(ctx,
		`UPDATE leads SET status = 'unsubscribed', unsubscribed_at = $1, unsubscribe_reason = $2, updated_at = $1
		 WHERE id = $3`,
		at, nullStr(reason), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: unsubscribe lead %s", leadID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit unsubscribe")
}

// Daily metrics

// metricColumns whitelists the counter columns; a Metric outside this map is
// a programming error.
var metricColumns = func() map[model.Metric]string {
	m := make(map[model.Metric]string, len(model.AllMetrics))
	for _, metric := range model.AllMetrics {
		m[metric] = string(metric)
	}
	return m
}()

func (s *PostgresStore) EnsureDailyMetrics(ctx context.Context, date string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_metrics (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`, date)
	return eris.Wrap(err, "postgres: ensure daily metrics")
}

func (s *PostgresStore) IncrementMetric(ctx context.Context, date string, metric model.Metric, amount int) error {
	column, ok := metricColumns[metric]
	if !ok {
		return eris.Errorf("postgres: unknown metric: %s", metric)
	}
	if amount == 0 {
		amount = 1
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE daily_metrics SET `+column+` = `+column+` + $1 WHERE date = $2`,
		amount, date,
	)
	return eris.Wrapf(err, "postgres: increment metric %s", metric)
}

func (s *PostgresStore) GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error) {
	query := `SELECT `
	for i, metric := range model.AllMetrics {
		if i > 0 {
			query += ", "
		}
		query += metricColumns[metric]
	}
	query += ` FROM daily_metrics WHERE date = $1`

	counts := make([]int, len(model.AllMetrics))
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}

	err := s.pool.QueryRow(ctx, query, date).Scan(dest...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get daily metrics")
	}

	dm := &model.DailyMetrics{Date: date, Counts: make(map[model.Metric]int, len(counts))}
	for i, metric := range model.AllMetrics {
		dm.Counts[metric] = counts[i]
	}
	return dm, nil
}

// helpers

func (s *PostgresStore) queryLeads(ctx context.Context, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: query leads iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var website, state, contactTitle, contactPhone, estimatedRevenue *string
	var validationResult, opener, enrichmentError, variant *string
	var demoURL, unsubReason *string
	var estimatedSubbies, enrichmentScore *int
	var enrichmentJSON, painPointsJSON []byte
	var source, tier, status string

	err := row.Scan(
		&l.ID, &l.CompanyName, &website, &state, &l.ContactName, &l.ContactEmail,
		&contactTitle, &contactPhone, &source, &tier, &estimatedSubbies, &estimatedRevenue,
		&l.EmailValidated, &validationResult, &enrichmentJSON, &enrichmentScore, &opener,
		&painPointsJSON, &enrichmentError, &status, &l.CurrentSequenceStep, &variant,
		&l.LastEmailSentAt, &l.NextEmailAt, &l.LastOpenedAt, &l.LastClickedAt,
		&l.DemoScheduledAt, &demoURL, &l.UnsubscribedAt, &unsubReason,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Website = deref(website)
	l.State = deref(state)
	l.ContactTitle = deref(contactTitle)
	l.ContactPhone = deref(contactPhone)
	l.Source = model.LeadSource(source)
	l.Tier = model.Tier(tier)
	l.EstimatedRevenue = deref(estimatedRevenue)
	l.PersonalizedOpener = deref(opener)
	l.EnrichmentError = deref(enrichmentError)
	l.DemoBookingURL = deref(demoURL)
	l.UnsubscribeReason = deref(unsubReason)
	l.Status = model.LeadStatus(status)
	if validationResult != nil {
		l.EmailValidationResult = model.ValidationResult(*validationResult)
	}
	if variant != nil {
		l.SequenceVariant = model.Variant(*variant)
	}
	if estimatedSubbies != nil {
		l.EstimatedSubbies = *estimatedSubbies
	}
	if enrichmentScore != nil {
		l.EnrichmentScore = *enrichmentScore
	}
	if len(enrichmentJSON) > 0 {
		l.Enrichment = &model.EnrichmentData{}
		if err := json.Unmarshal(enrichmentJSON, l.Enrichment); err != nil {
			return nil, eris.Wrap(err, "unmarshal enrichment")
		}
	}
	if len(painPointsJSON) > 0 {
		if err := json.Unmarshal(painPointsJSON, &l.PainPoints); err != nil {
			return nil, eris.Wrap(err, "unmarshal pain points")
		}
	}
	return &l, nil
}

func scanWarming(row scannable) (*model.WarmingConfig, error) {
	var c model.WarmingConfig
	var pauseReason *string
	err := row.Scan(
		&c.ID, &c.IsActive, &c.CurrentDailyLimit, &c.MaxDailyLimit, &c.IncrementAmount,
		&c.EmailsSentToday, &c.BouncesToday, &c.ComplaintsToday,
		&c.LastIncrementDate, &c.WarmingStartDate, &c.PausedAt, &pauseReason,
	)
	if err != nil {
		return nil, err
	}
	c.PauseReason = deref(pauseReason)
	return &c, nil
}

func scanABTest(row scannable) (*model.ABTestResult, error) {
	var r model.ABTestResult
	var tier string
	err := row.Scan(
		&r.ID, &r.TestName, &tier, &r.SequenceStep,
		&r.VariantA.Subject, &r.VariantB.Subject,
		&r.VariantA.Sent, &r.VariantA.Opened, &r.VariantA.Clicked, &r.VariantA.Replied,
		&r.VariantB.Sent, &r.VariantB.Opened, &r.VariantB.Clicked, &r.VariantB.Replied,
		&r.StartDate,
	)
	if err != nil {
		return nil, err
	}
	r.Tier = model.Tier(tier)
	return &r, nil
}

func checkFound(rowsAffected int64, entity, id string) error {
	if rowsAffected == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
