package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/risksure/outreach-cli/internal/model"
)

// SQLiteStore implements Store on a local file, for development and dry runs
// without a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single writer; WAL keeps readers from blocking it.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
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
	email_validated         INTEGER NOT NULL DEFAULT 0,
	email_validation_result TEXT,
	enrichment              TEXT,
	enrichment_score        INTEGER,
	personalized_opener     TEXT,
	pain_points             TEXT,
	enrichment_error        TEXT,
	status                  TEXT NOT NULL DEFAULT 'new',
	current_sequence_step   INTEGER NOT NULL DEFAULT 0,
	sequence_variant        TEXT,
	last_email_sent_at      TIMESTAMP,
	next_email_at           TIMESTAMP,
	last_opened_at          TIMESTAMP,
	last_clicked_at         TIMESTAMP,
	demo_scheduled_at       TIMESTAMP,
	demo_booking_url        TEXT,
	unsubscribed_at         TIMESTAMP,
	unsubscribe_reason      TEXT,
	created_at              TIMESTAMP NOT NULL,
	updated_at              TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status);
CREATE INDEX IF NOT EXISTS idx_leads_tier ON leads(tier);
CREATE INDEX IF NOT EXISTS idx_leads_status_next_email ON leads(status, next_email_at);

CREATE TABLE IF NOT EXISTS warming_config (
	id                  TEXT PRIMARY KEY,
	singleton           INTEGER NOT NULL DEFAULT 1 UNIQUE CHECK (singleton = 1),
	is_active           INTEGER NOT NULL DEFAULT 1,
	current_daily_limit INTEGER NOT NULL,
	max_daily_limit     INTEGER NOT NULL,
	increment_amount    INTEGER NOT NULL,
	emails_sent_today   INTEGER NOT NULL DEFAULT 0,
	bounces_today       INTEGER NOT NULL DEFAULT 0,
	complaints_today    INTEGER NOT NULL DEFAULT 0,
	last_increment_date TEXT NOT NULL,
	warming_start_date  TEXT NOT NULL,
	paused_at           TIMESTAMP,
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
	created_at       TIMESTAMP NOT NULL
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
	created_at TIMESTAMP NOT NULL,
	used_at    TIMESTAMP
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteMigration, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Leads

func (s *SQLiteStore) CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal pain points")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (id, company_name, website, state, contact_name, contact_email,
			contact_title, contact_phone, source, tier, estimated_subbies, estimated_revenue,
			email_validated, status, current_sequence_step, pain_points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (contact_email) DO NOTHING`,
		lead.ID, lead.CompanyName, nullStr(lead.Website), nullStr(lead.State),
		lead.ContactName, lead.ContactEmail, nullStr(lead.ContactTitle), nullStr(lead.ContactPhone),
		string(lead.Source), string(lead.Tier), nullInt(lead.EstimatedSubbies),
		nullStr(lead.EstimatedRevenue), lead.EmailValidated, string(lead.Status),
		lead.CurrentSequenceStep, string(painPointsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrDuplicateEmail
	}
	return &lead, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, leadID)
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	return lead, nil
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE contact_email = ?`, model.NormalizeEmail(email))
	lead, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get lead by email")
	}
	return lead, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return s.queryLeads(ctx, query, args...)
}

func (s *SQLiteStore) LeadStats(ctx context.Context) (*LeadStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, tier, COUNT(*) FROM leads GROUP BY status, tier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
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
			return nil, eris.Wrap(err, "sqlite: scan lead stats")
		}
		stats.Total += count
		stats.ByStatus[model.LeadStatus(status)] += count
		stats.ByTier[model.Tier(tier)] += count
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: lead stats iterate")
}

func (s *SQLiteStore) LeadsPendingValidation(ctx context.Context, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'new' AND email_validated = 0
		 ORDER BY created_at ASC LIMIT ?`, limit)
}

func (s *SQLiteStore) LeadsPendingEnrichment(ctx context.Context, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'enriching'
		 ORDER BY created_at ASC LIMIT ?`, limit)
}

func (s *SQLiteStore) LeadsReadyForEmail(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status IN ('ready', 'contacted', 'opened', 'clicked')
		   AND (next_email_at IS NULL OR next_email_at <= ?)
		 ORDER BY next_email_at ASC NULLS FIRST LIMIT ?`, now, limit)
}

func (s *SQLiteStore) NurtureLeads(ctx context.Context, now time.Time, limit int) ([]model.Lead, error) {
	return s.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE status = 'nurture'
		   AND (next_email_at IS NULL OR next_email_at <= ?)
		 ORDER BY next_email_at ASC NULLS FIRST LIMIT ?`, now, limit)
}

// Lead transitions

func (s *SQLiteStore) UpdateValidation(ctx context.Context, leadID string, result model.ValidationResult) error {
	newStatus := model.StatusEnriching
	if result == model.ValidationInvalid {
		newStatus = model.StatusInvalidEmail
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET email_validated = 1, email_validation_result = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		string(result), string(newStatus), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update validation %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, leadID string, update EnrichmentUpdate) error {
	dataJSON, err := json.Marshal(update.Data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enrichment")
	}
	painPointsJSON, err := json.Marshal(update.PainPoints)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pain points")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET enrichment = ?, enrichment_score = ?, tier = ?, estimated_subbies = ?,
			estimated_revenue = ?, personalized_opener = ?, pain_points = ?,
			status = 'ready', updated_at = ?
		 WHERE id = ?`,
		string(dataJSON), update.Score, string(update.Tier), update.EstimatedSubbies,
		nullStr(update.EstimatedRevenue), update.PersonalizedOpener, string(painPointsJSON),
		time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

func (s *SQLiteStore) SetEnrichmentError(ctx context.Context, leadID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET enrichment_error = ?, status = 'ready', updated_at = ? WHERE id = ?`,
		errMsg, time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set enrichment error %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

func (s *SQLiteStore) AssignVariant(ctx context.Context, leadID string, variant model.Variant) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET sequence_variant = ?, updated_at = ?
		 WHERE id = ? AND sequence_variant IS NULL`,
		string(variant), time.Now().UTC(), leadID,
	)
	return eris.Wrapf(err, "sqlite: assign variant %s", leadID)
}

func (s *SQLiteStore) MarkEmailSent(ctx context.Context, leadID string, update SentUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mark sent")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET
			status = CASE WHEN status = 'nurture' THEN 'nurture' ELSE 'contacted' END,
			current_sequence_step = ?,
			sequence_variant = ?,
			last_email_sent_at = ?,
			next_email_at = ?,
			updated_at = ?
		 WHERE id = ?`,
		update.Step+1, string(update.Variant), update.SentAt, update.NextEmailAt, update.SentAt, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark sent %s", leadID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(ErrNotFound, "lead %s", leadID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO email_events (id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, created_at)
		 VALUES (?, ?, 'sent', ?, ?, ?, ?, ?)`,
		uuid.New().String(), leadID, update.Subject, update.Step, string(update.Variant),
		update.MessageID, update.SentAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: log sent event %s", leadID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit mark sent")
}

func (s *SQLiteStore) MarkOpened(ctx context.Context, leadID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'opened', last_opened_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('contacted', 'ready')`,
		at, time.Now().UTC(), leadID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark opened %s", leadID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) MarkClicked(ctx context.Context, leadID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'clicked', last_clicked_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('contacted', 'ready', 'opened')`,
		at, time.Now().UTC(), leadID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: mark clicked %s", leadID)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) MarkBounced(ctx context.Context, leadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'bounced', updated_at = ? WHERE id = ?`,
		time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark bounced %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, leadID string, status model.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead status %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

func (s *SQLiteStore) SetDemoScheduled(ctx context.Context, leadID string, at time.Time, bookingURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'demo_scheduled', demo_scheduled_at = ?, demo_booking_url = ?, updated_at = ?
		 WHERE id = ?`,
		at, nullStr(bookingURL), time.Now().UTC(), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set demo scheduled %s", leadID)
	}
	return checkFoundSQL(res, "lead", leadID)
}

// Warming config

func (s *SQLiteStore) InitWarming(ctx context.Context, today string) (*model.WarmingConfig, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO warming_config
			(id, is_active, current_daily_limit, max_daily_limit, increment_amount,
			 emails_sent_today, bounces_today, complaints_today, last_increment_date, warming_start_date)
		 VALUES (?, 1, ?, ?, ?, 0, 0, 0, ?, ?)
		 ON CONFLICT (singleton) DO NOTHING`,
		uuid.New().String(), model.WarmingStartLimit, model.WarmingMaxLimit,
		model.WarmingIncrementAmount, today, today,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: init warming")
	}
	return s.GetWarming(ctx)
}

func (s *SQLiteStore) GetWarming(ctx context.Context) (*model.WarmingConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+warmingColumns+` FROM warming_config LIMIT 1`)
	cfg, err := scanWarming(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get warming")
	}
	return cfg, nil
}

func (s *SQLiteStore) AdvanceWarmingDay(ctx context.Context, today string, newLimit int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE warming_config SET current_daily_limit = ?, last_increment_date = ?,
			emails_sent_today = 0, bounces_today = 0, complaints_today = 0
		 WHERE last_increment_date <> ?`,
		newLimit, today, today,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: advance warming day")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) RecordEmailSent(ctx context.Context) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE warming_config SET emails_sent_today = emails_sent_today + 1
		 WHERE is_active = 1 AND emails_sent_today < current_daily_limit`,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: record email sent")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) IncrementWarmingCounter(ctx context.Context, counter WarmingCounter) (*model.WarmingConfig, error) {
	column := "bounces_today"
	if counter == CounterComplaint {
		column = "complaints_today"
	}
	// Single-writer connection makes update-then-read atomic enough here.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE warming_config SET `+column+` = `+column+` + 1`,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: increment %s", column)
	}
	return s.GetWarming(ctx)
}

func (s *SQLiteStore) PauseWarming(ctx context.Context, reason string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE warming_config SET is_active = 0, paused_at = ?, pause_reason = ?
		 WHERE paused_at IS NULL`,
		at, reason,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: pause warming")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) UnpauseWarming(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE warming_config SET is_active = 1, paused_at = NULL, pause_reason = NULL`,
	)
	return eris.Wrap(err, "sqlite: unpause warming")
}

func (s *SQLiteStore) UpdateWarmingLimits(ctx context.Context, currentLimit, maxLimit, increment *int) error {
	query := `UPDATE warming_config SET id = id`
	args := []any{}

	if currentLimit != nil {
		query += `, current_daily_limit = ?`
		args = append(args, *currentLimit)
	}
	if maxLimit != nil {
		query += `, max_daily_limit = ?`
		args = append(args, *maxLimit)
	}
	if increment != nil {
		query += `, increment_amount = ?`
		args = append(args, *increment)
	}

	_, err := s.db.ExecContext(ctx, query, args...)
	return eris.Wrap(err, "sqlite: update warming limits")
}

// Email events

func (s *SQLiteStore) LogEmailEvent(ctx context.Context, event model.EmailEvent) (bool, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO email_events (id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (message_id, event_type) WHERE message_id IS NOT NULL AND message_id <> '' DO NOTHING`,
		event.ID, event.LeadID, string(event.EventType), event.Subject, event.SequenceStep,
		nullStr(string(event.SequenceVariant)), nullStr(event.MessageID), nullStr(event.Metadata),
		event.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: log email event")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) EventsByLead(ctx context.Context, leadID string, limit int) ([]model.EmailEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lead_id, event_type, subject, sequence_step, sequence_variant, message_id, metadata, created_at
		 FROM email_events WHERE lead_id = ? ORDER BY created_at DESC LIMIT ?`,
		leadID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: events by lead")
	}
	defer rows.Close()

	var events []model.EmailEvent
	for rows.Next() {
		var e model.EmailEvent
		var variant, messageID, metadata *string
		if err := rows.Scan(&e.ID, &e.LeadID, &e.EventType, &e.Subject, &e.SequenceStep,
			&variant, &messageID, &metadata, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email event")
		}
		if variant != nil {
			e.SequenceVariant = model.Variant(*variant)
		}
		e.MessageID = deref(messageID)
		e.Metadata = deref(metadata)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: events by lead iterate")
}

// A/B tests

func (s *SQLiteStore) RecordABEvent(ctx context.Context, tier model.Tier, step int, variant model.Variant, event model.ABEventType, subjectA, subjectB string) error {
	column, err := abCounterColumn(variant, event)
	if err != nil {
		return err
	}
	testName := model.ABTestName(tier, step)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ab_tests (id, test_name, tier, sequence_step, subject_a, subject_b, start_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (test_name) DO NOTHING`,
		uuid.New().String(), testName, string(tier), step, subjectA, subjectB,
		time.Now().UTC().Format("2006-01-02"),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create ab test %s", testName)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ab_tests SET `+column+` = `+column+` + 1 WHERE test_name = ?`,
		testName,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record ab event %s", testName)
	}
	return checkFoundSQL(res, "ab_test", testName)
}

func (s *SQLiteStore) GetABTest(ctx context.Context, testName string) (*model.ABTestResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+abTestColumns+` FROM ab_tests WHERE test_name = ?`, testName)
	result, err := scanABTest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get ab test %s", testName)
	}
	return result, nil
}

func (s *SQLiteStore) ListABTests(ctx context.Context) ([]model.ABTestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+abTestColumns+` FROM ab_tests ORDER BY tier, sequence_step`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ab tests")
	}
	defer rows.Close()

	var results []model.ABTestResult
	for rows.Next() {
		r, err := scanABTest(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ab test")
		}
		results = append(results, *r)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list ab tests iterate")
}

// Unsubscribe tokens

func (s *SQLiteStore) GetOrCreateUnsubscribeToken(ctx context.Context, leadID string, token string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unsubscribe_tokens (id, lead_id, token, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (lead_id) DO NOTHING`,
		uuid.New().String(), leadID, token, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: create unsubscribe token for %s", leadID)
	}

	var existing string
	err = s.db.QueryRowContext(ctx,
		`SELECT token FROM unsubscribe_tokens WHERE lead_id = ?`, leadID,
	).Scan(&existing)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: get unsubscribe token for %s", leadID)
	}
	return existing, nil
}

func (s *SQLiteStore) GetUnsubscribeToken(ctx context.Context, token string) (*model.UnsubscribeToken, error) {
	var t model.UnsubscribeToken
	var usedAt *time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT id, lead_id, token, created_at, used_at FROM unsubscribe_tokens WHERE token = ?`,
		token,
	).Scan(&t.ID, &t.LeadID, &t.Token, &t.CreatedAt, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get unsubscribe token")
	}
	t.UsedAt = usedAt
	return &t, nil
}

func (s *SQLiteStore) ProcessUnsubscribe(ctx context.Context, token string, reason string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin unsubscribe")
	}
	defer tx.Rollback()

	var leadID string
	var usedAt *time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT lead_id, used_at FROM unsubscribe_tokens WHERE token = ?`, token,
	).Scan(&leadID, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return eris.Wrap(err, "sqlite: get unsubscribe token")
	}
	if usedAt != nil {
		return ErrTokenUsed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE unsubscribe_tokens SET used_at = ? WHERE token = ?`, at, token,
	); err != nil {
		return eris.Wrap(err, "sqlite: use unsubscribe token")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET status = 'unsubscribed', unsubscribed_at = ?, unsubscribe_reason = ?, updated_at = ?
		 WHERE id = ?`,
		at, nullStr(reason), at, leadID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: unsubscribe lead %s", leadID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit unsubscribe")
}

// Daily metrics

func (s *SQLiteStore) EnsureDailyMetrics(ctx context.Context, date string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_metrics (date) VALUES (?) ON CONFLICT (date) DO NOTHING`, date)
	return eris.Wrap(err, "sqlite: ensure daily metrics")
}

func (s *SQLiteStore) IncrementMetric(ctx context.Context, date string, metric model.Metric, amount int) error {
	column, ok := metricColumns[metric]
	if !ok {
		return eris.Errorf("sqlite: unknown metric: %s", metric)
	}
	if amount == 0 {
		amount = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE daily_metrics SET `+column+` = `+column+` + ? WHERE date = ?`,
		amount, date,
	)
	return eris.Wrapf(err, "sqlite: increment metric %s", metric)
}

func (s *SQLiteStore) GetDailyMetrics(ctx context.Context, date string) (*model.DailyMetrics, error) {
	query := `SELECT `
	for i, metric := range model.AllMetrics {
		if i > 0 {
			query += ", "
		}
		query += metricColumns[metric]
	}
	query += ` FROM daily_metrics WHERE date = ?`

	counts := make([]int, len(model.AllMetrics))
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}

	err := s.db.QueryRowContext(ctx, query, date).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "sqlite: get daily metrics")
	}

	dm := &model.DailyMetrics{Date: date, Counts: make(map[model.Metric]int, len(counts))}
	for i, metric := range model.AllMetrics {
		dm.Counts[metric] = counts[i]
	}
	return dm, nil
}

// helpers

func (s *SQLiteStore) queryLeads(ctx context.Context, query string, args ...any) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: query leads iterate")
}

func checkFoundSQL(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
