package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// too, which is what the tests inject.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_document_by_hash": `SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at FROM documents WHERE content_hash = $1 AND status != 'duplicate' ORDER BY published_at ASC LIMIT 1`,
	"insert_occurrence":    `INSERT INTO indicator_occurrences (indicator_id, type, value, document_id, seen_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (indicator_id, document_id) DO NOTHING`,
	"check_false_positive": `SELECT false_positive FROM indicators WHERE type = $1 AND value = $2`,
	"insert_audit":         `INSERT INTO audit_events (id, document_id, reason, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
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
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	content_hash TEXT NOT NULL,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	source_host  TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL DEFAULT 'unprocessed',
	canonical_id TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS indicators (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	type             TEXT NOT NULL,
	value            TEXT NOT NULL,
	confidence       INTEGER NOT NULL,
	evidence         TEXT NOT NULL DEFAULT '',
	provenance       TEXT NOT NULL DEFAULT 'pattern',
	first_seen       TIMESTAMPTZ NOT NULL,
	last_seen        TIMESTAMPTZ NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	reviewed         BOOLEAN NOT NULL DEFAULT false,
	false_positive   BOOLEAN NOT NULL DEFAULT false,
	UNIQUE(type, value)
);

CREATE TABLE IF NOT EXISTS indicator_occurrences (
	indicator_id TEXT NOT NULL REFERENCES indicators(id),
	type         TEXT NOT NULL,
	value        TEXT NOT NULL,
	document_id  TEXT NOT NULL,
	seen_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(indicator_id, document_id)
);

CREATE TABLE IF NOT EXISTS technique_mentions (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id  TEXT NOT NULL,
	technique_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	tactic       TEXT NOT NULL DEFAULT '',
	confidence   INTEGER NOT NULL,
	evidence     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS actor_mentions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name        TEXT NOT NULL,
	document_id TEXT NOT NULL,
	profile_id  TEXT NOT NULL DEFAULT '',
	seen_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS actor_profiles (
	id             TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	profile        JSONB NOT NULL,
	merged_into    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	document_id TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS correlation_cache (
	key          TEXT PRIMARY KEY,
	report       JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_host_published ON documents(source_host, published_at);
CREATE INDEX IF NOT EXISTS idx_occurrences_seen_at ON indicator_occurrences(seen_at);
CREATE INDEX IF NOT EXISTS idx_occurrences_document ON indicator_occurrences(document_id);
CREATE INDEX IF NOT EXISTS idx_techniques_document ON technique_mentions(document_id);
CREATE INDEX IF NOT EXISTS idx_mentions_document ON actor_mentions(document_id);
CREATE INDEX IF NOT EXISTS idx_mentions_profile ON actor_mentions(profile_id);
CREATE INDEX IF NOT EXISTS idx_audit_document ON audit_events(document_id);
CREATE INDEX IF NOT EXISTS idx_correlation_expires ON correlation_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Documents ---

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.DocStatusUnprocessed
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.ContentHash, doc.Title, doc.Content, doc.SourceURL, doc.SourceHost,
		doc.PublishedAt.UTC(), string(doc.Status), doc.CanonicalID, doc.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
		 FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (s *PostgresStore) GetDocumentByHash(ctx context.Context, contentHash string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
		 FROM documents WHERE content_hash = $1 AND status != 'duplicate'
		 ORDER BY published_at ASC LIMIT 1`, contentHash)
	doc, err := scanDocument(row)
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return doc, err
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
	          FROM documents WHERE 1=1`
	var args []any
	n := 0

	if filter.SourceHost != "" {
		n++
		query += ` AND source_host = $` + itoa(n)
		args = append(args, filter.SourceHost)
	}
	if !filter.PublishedAfter.IsZero() {
		n++
		query += ` AND published_at >= $` + itoa(n)
		args = append(args, filter.PublishedAfter.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	n++
	query += ` ORDER BY published_at ASC LIMIT $` + itoa(n)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) UpdateDocumentStatus(ctx context.Context, id string, status model.DocStatus, canonicalID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $1, canonical_id = $2 WHERE id = $3`,
		string(status), canonicalID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("document not found: %s", id)
	}
	return nil
}

// --- Indicators ---

func (s *PostgresStore) UpsertIndicator(ctx context.Context, ind model.Indicator, documentID string) (*model.Indicator, error) {
	now := time.Now().UTC()
	if ind.ID == "" {
		ind.ID = uuid.New().String()
	}
	if ind.FirstSeen.IsZero() {
		ind.FirstSeen = now
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO indicators (id, type, value, confidence, evidence, provenance, first_seen, last_seen, occurrence_count, reviewed, false_positive)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		 ON CONFLICT (type, value) DO UPDATE SET
		   confidence = GREATEST(indicators.confidence, EXCLUDED.confidence),
		   last_seen = EXCLUDED.last_seen,
		   occurrence_count = indicators.occurrence_count + 1
		 RETURNING id, type, value, confidence, evidence, provenance, first_seen, last_seen, occurrence_count, reviewed, false_positive`,
		ind.ID, string(ind.Type), ind.Value, ind.Confidence, ind.Evidence, string(ind.Provenance),
		ind.FirstSeen, now, ind.Reviewed, ind.FalsePositive,
	)
	saved, err := scanIndicator(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert indicator")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO indicator_occurrences (indicator_id, type, value, document_id, seen_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (indicator_id, document_id) DO NOTHING`,
		saved.ID, string(saved.Type), saved.Value, documentID, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert occurrence")
	}
	return saved, nil
}

func (s *PostgresStore) GetIndicator(ctx context.Context, id string) (*model.Indicator, error) {
	ind, err := scanIndicator(s.pool.QueryRow(ctx, indicatorSelect+` WHERE id = $1`, id))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, eris.Errorf("indicator not found: %s", id)
	}
	return ind, err
}

func (s *PostgresStore) GetIndicatorByValue(ctx context.Context, typ model.IndicatorType, value string) (*model.Indicator, error) {
	ind, err := scanIndicator(s.pool.QueryRow(ctx,
		indicatorSelect+` WHERE type = $1 AND value = $2`, string(typ), value))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return ind, err
}

func (s *PostgresStore) ListIndicatorsByDocument(ctx context.Context, documentID string) ([]model.Indicator, error) {
	rows, err := s.pool.Query(ctx,
		indicatorSelect+` WHERE id IN (SELECT indicator_id FROM indicator_occurrences WHERE document_id = $1) ORDER BY value`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list indicators by document")
	}
	defer rows.Close()

	var out []model.Indicator
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ind)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list indicators iterate")
}

func (s *PostgresStore) ListOccurrences(ctx context.Context, from, to time.Time) ([]model.IndicatorOccurrence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT indicator_id, type, value, document_id, seen_at FROM indicator_occurrences
		 WHERE seen_at >= $1 AND seen_at < $2`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list occurrences")
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

func (s *PostgresStore) SetIndicatorReviewed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE indicators SET reviewed = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set reviewed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("indicator not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetIndicatorFalsePositive(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE indicators SET false_positive = true, reviewed = true WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set false positive %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("indicator not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) IsKnownFalsePositive(ctx context.Context, typ model.IndicatorType, value string) (bool, error) {
	var fp bool
	err := s.pool.QueryRow(ctx,
		`SELECT false_positive FROM indicators WHERE type = $1 AND value = $2`,
		string(typ), value,
	).Scan(&fp)
	if isNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: check false positive")
	}
	return fp, nil
}

// --- Techniques ---

func (s *PostgresStore) CreateTechniqueMentions(ctx context.Context, mentions []model.TechniqueMention) error {
	for i := range mentions {
		if mentions[i].ID == "" {
			mentions[i].ID = uuid.New().String()
		}
		m := mentions[i]
		_, err := s.pool.Exec(ctx,
			`INSERT INTO technique_mentions (id, document_id, technique_id, name, tactic, confidence, evidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.DocumentID, m.TechniqueID, m.Name, m.Tactic, m.Confidence, m.Evidence,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert technique mention")
		}
	}
	return nil
}

func (s *PostgresStore) ListTechniquesByDocument(ctx context.Context, documentID string) ([]model.TechniqueMention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, technique_id, name, tactic, confidence, evidence
		 FROM technique_mentions WHERE document_id = $1 ORDER BY technique_id, tactic`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list techniques")
	}
	defer rows.Close()
	return scanTechniqueMentions(rows)
}

// --- Actor mentions ---

func (s *PostgresStore) CreateActorMentions(ctx context.Context, mentions []model.ActorMention) error {
	for i := range mentions {
		if mentions[i].ID == "" {
			mentions[i].ID = uuid.New().String()
		}
		if mentions[i].SeenAt.IsZero() {
			mentions[i].SeenAt = time.Now().UTC()
		}
		m := mentions[i]
		_, err := s.pool.Exec(ctx,
			`INSERT INTO actor_mentions (id, name, document_id, profile_id, seen_at) VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.Name, m.DocumentID, m.ProfileID, m.SeenAt.UTC(),
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert actor mention")
		}
	}
	return nil
}

func (s *PostgresStore) ListUnresolvedMentions(ctx context.Context, limit int) ([]model.ActorMention, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, document_id, profile_id, seen_at FROM actor_mentions
		 WHERE profile_id = '' ORDER BY seen_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unresolved mentions")
	}
	defer rows.Close()
	return scanMentions(rows)
}

func (s *PostgresStore) AssignMentionProfile(ctx context.Context, mentionID, profileID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE actor_mentions SET profile_id = $1 WHERE id = $2`, profileID, mentionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: assign mention %s", mentionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("actor mention not found: %s", mentionID)
	}
	return nil
}

func (s *PostgresStore) ListMentionsByDocument(ctx context.Context, documentID string) ([]model.ActorMention, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, document_id, profile_id, seen_at FROM actor_mentions
		 WHERE document_id = $1 ORDER BY seen_at ASC`, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mentions by document")
	}
	defer rows.Close()
	return scanMentions(rows)
}

// --- Profiles ---

func (s *PostgresStore) SaveProfile(ctx context.Context, p *model.ThreatActorProfile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO actor_profiles (id, canonical_name, profile, merged_into, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET canonical_name = EXCLUDED.canonical_name,
		   profile = EXCLUDED.profile, merged_into = EXCLUDED.merged_into, updated_at = EXCLUDED.updated_at`,
		p.ID, p.CanonicalName, blob, p.MergedInto, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save profile")
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*model.ThreatActorProfile, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT profile FROM actor_profiles WHERE id = $1`, id).Scan(&blob)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile")
	}
	var p model.ThreatActorProfile
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]model.ThreatActorProfile, error) {
	rows, err := s.pool.Query(ctx, `SELECT profile FROM actor_profiles ORDER BY created_at ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var out []model.ThreatActorProfile
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		var p model.ThreatActorProfile
		if err := json.Unmarshal(blob, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

// --- Audit ---

func (s *PostgresStore) RecordAudit(ctx context.Context, event model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, document_id, reason, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.DocumentID, string(event.Reason), event.Detail, event.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record audit")
}

func (s *PostgresStore) ListAuditEvents(ctx context.Context, documentID string, limit int) ([]model.AuditEvent, error) {
	query := `SELECT id, document_id, reason, detail, created_at FROM audit_events WHERE 1=1`
	var args []any
	n := 0
	if documentID != "" {
		n++
		query += ` AND document_id = $` + itoa(n)
		args = append(args, documentID)
	}
	if limit <= 0 {
		limit = 100
	}
	n++
	query += ` ORDER BY created_at DESC LIMIT $` + itoa(n)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit events")
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var reason string
		if err := rows.Scan(&e.ID, &e.DocumentID, &reason, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit event")
		}
		e.Reason = model.AuditReason(reason)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list audit events iterate")
}

// --- Correlation cache ---

func (s *PostgresStore) GetCachedReport(ctx context.Context, key string) (*model.CorrelationReport, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM correlation_cache WHERE key = $1 AND expires_at > now()`, key).Scan(&blob)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached report")
	}
	var report model.CorrelationReport
	if err := json.Unmarshal(blob, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached report")
	}
	return &report, nil
}

func (s *PostgresStore) SetCachedReport(ctx context.Context, key string, report *model.CorrelationReport, ttl time.Duration) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO correlation_cache (key, report, generated_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET report = EXCLUDED.report, generated_at = EXCLUDED.generated_at, expires_at = EXCLUDED.expires_at`,
		key, blob, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached report")
}

func (s *PostgresStore) DeleteExpiredReports(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM correlation_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired reports")
	}
	return int(tag.RowsAffected()), nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
