package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	title        TEXT NOT NULL,
	content      TEXT NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	source_host  TEXT NOT NULL DEFAULT '',
	published_at DATETIME NOT NULL,
	status       TEXT NOT NULL DEFAULT 'unprocessed',
	canonical_id TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS indicators (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	value            TEXT NOT NULL,
	confidence       INTEGER NOT NULL,
	evidence         TEXT NOT NULL DEFAULT '',
	provenance       TEXT NOT NULL DEFAULT 'pattern',
	first_seen       DATETIME NOT NULL,
	last_seen        DATETIME NOT NULL,
	occurrence_count INTEGER NOT NULL DEFAULT 1,
	reviewed         INTEGER NOT NULL DEFAULT 0,
	false_positive   INTEGER NOT NULL DEFAULT 0,
	UNIQUE(type, value)
);

CREATE TABLE IF NOT EXISTS indicator_occurrences (
	indicator_id TEXT NOT NULL REFERENCES indicators(id),
	type         TEXT NOT NULL,
	value        TEXT NOT NULL,
	document_id  TEXT NOT NULL,
	seen_at      DATETIME NOT NULL,
	UNIQUE(indicator_id, document_id)
);

CREATE TABLE IF NOT EXISTS technique_mentions (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL,
	technique_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	tactic       TEXT NOT NULL DEFAULT '',
	confidence   INTEGER NOT NULL,
	evidence     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS actor_mentions (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	document_id TEXT NOT NULL,
	profile_id  TEXT NOT NULL DEFAULT '',
	seen_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS actor_profiles (
	id               TEXT PRIMARY KEY,
	canonical_name   TEXT NOT NULL,
	profile          TEXT NOT NULL,
	merged_into      TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS audit_events (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS correlation_cache (
	key          TEXT PRIMARY KEY,
	report       TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Documents ---

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = model.DocStatusUnprocessed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.ContentHash, doc.Title, doc.Content, doc.SourceURL, doc.SourceHost,
		doc.PublishedAt.UTC(), string(doc.Status), doc.CanonicalID, doc.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetDocumentByHash returns the canonical (non-duplicate) document with the
// given content hash, or nil if none exists.
func (s *SQLiteStore) GetDocumentByHash(ctx context.Context, contentHash string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
		 FROM documents WHERE content_hash = ? AND status != 'duplicate'
		 ORDER BY published_at ASC LIMIT 1`, contentHash)
	doc, err := scanDocument(row)
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return doc, err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query := `SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at
	          FROM documents WHERE 1=1`
	var args []any

	if filter.SourceHost != "" {
		query += ` AND source_host = ?`
		args = append(args, filter.SourceHost)
	}
	if !filter.PublishedAfter.IsZero() {
		query += ` AND published_at >= ?`
		args = append(args, filter.PublishedAfter.UTC())
	}
	query += ` ORDER BY published_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
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
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, id string, status model.DocStatus, canonicalID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, canonical_id = ? WHERE id = ?`,
		string(status), canonicalID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document status %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

// --- Indicators ---

func (s *SQLiteStore) UpsertIndicator(ctx context.Context, ind model.Indicator, documentID string) (*model.Indicator, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := scanIndicator(tx.QueryRowContext(ctx,
		indicatorSelect+` WHERE type = ? AND value = ?`, string(ind.Type), ind.Value))
	if err != nil && !eris.Is(err, errNotFound) {
		return nil, err
	}

	if existing == nil {
		ind.ID = uuid.New().String()
		if ind.FirstSeen.IsZero() {
			ind.FirstSeen = now
		}
		ind.LastSeen = now
		ind.OccurrenceCount = 1

		_, err = tx.ExecContext(ctx,
			`INSERT INTO indicators (id, type, value, confidence, evidence, provenance, first_seen, last_seen, occurrence_count, reviewed, false_positive)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ind.ID, string(ind.Type), ind.Value, ind.Confidence, ind.Evidence, string(ind.Provenance),
			ind.FirstSeen, ind.LastSeen, ind.OccurrenceCount, ind.Reviewed, ind.FalsePositive,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: insert indicator")
		}
		existing = &ind
	} else {
		// Re-occurrence: bump counters, refresh last-seen, and keep the
		// higher confidence of the two observations.
		conf := existing.Confidence
		if ind.Confidence > conf {
			conf = ind.Confidence
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE indicators SET confidence = ?, last_seen = ?, occurrence_count = occurrence_count + 1 WHERE id = ?`,
			conf, now, existing.ID,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: update indicator")
		}
		existing.Confidence = conf
		existing.LastSeen = now
		existing.OccurrenceCount++
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO indicator_occurrences (indicator_id, type, value, document_id, seen_at)
		 VALUES (?, ?, ?, ?, ?)`,
		existing.ID, string(existing.Type), existing.Value, documentID, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert occurrence")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit upsert")
	}
	return existing, nil
}

const indicatorSelect = `SELECT id, type, value, confidence, evidence, provenance, first_seen, last_seen, occurrence_count, reviewed, false_positive FROM indicators`

func (s *SQLiteStore) GetIndicator(ctx context.Context, id string) (*model.Indicator, error) {
	ind, err := scanIndicator(s.db.QueryRowContext(ctx, indicatorSelect+` WHERE id = ?`, id))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, eris.Errorf("indicator not found: %s", id)
	}
	return ind, err
}

func (s *SQLiteStore) GetIndicatorByValue(ctx context.Context, typ model.IndicatorType, value string) (*model.Indicator, error) {
	ind, err := scanIndicator(s.db.QueryRowContext(ctx,
		indicatorSelect+` WHERE type = ? AND value = ?`, string(typ), value))
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return ind, err
}

func (s *SQLiteStore) ListIndicatorsByDocument(ctx context.Context, documentID string) ([]model.Indicator, error) {
	rows, err := s.db.QueryContext(ctx,
		indicatorSelect+` WHERE id IN (SELECT indicator_id FROM indicator_occurrences WHERE document_id = ?) ORDER BY value`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list indicators by document")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list indicators iterate")
}

func (s *SQLiteStore) ListOccurrences(ctx context.Context, from, to time.Time) ([]model.IndicatorOccurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indicator_id, type, value, document_id, seen_at FROM indicator_occurrences
		 WHERE seen_at >= ? AND seen_at < ?`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list occurrences")
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

func (s *SQLiteStore) SetIndicatorReviewed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE indicators SET reviewed = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set reviewed %s", id)
	}
	return checkRowsAffected(res, "indicator", id)
}

func (s *SQLiteStore) SetIndicatorFalsePositive(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE indicators SET false_positive = 1, reviewed = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set false positive %s", id)
	}
	return checkRowsAffected(res, "indicator", id)
}

func (s *SQLiteStore) IsKnownFalsePositive(ctx context.Context, typ model.IndicatorType, value string) (bool, error) {
	var fp bool
	err := s.db.QueryRowContext(ctx,
		`SELECT false_positive FROM indicators WHERE type = ? AND value = ?`,
		string(typ), value,
	).Scan(&fp)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: check false positive")
	}
	return fp, nil
}

// --- Techniques ---

func (s *SQLiteStore) CreateTechniqueMentions(ctx context.Context, mentions []model.TechniqueMention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin technique insert")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range mentions {
		if mentions[i].ID == "" {
			mentions[i].ID = uuid.New().String()
		}
		m := mentions[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO technique_mentions (id, document_id, technique_id, name, tactic, confidence, evidence)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.DocumentID, m.TechniqueID, m.Name, m.Tactic, m.Confidence, m.Evidence,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert technique mention")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit technique insert")
}

func (s *SQLiteStore) ListTechniquesByDocument(ctx context.Context, documentID string) ([]model.TechniqueMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, technique_id, name, tactic, confidence, evidence
		 FROM technique_mentions WHERE document_id = ? ORDER BY technique_id, tactic`,
		documentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list techniques")
	}
	defer rows.Close()
	return scanTechniqueMentions(rows)
}

// --- Actor mentions ---

func (s *SQLiteStore) CreateActorMentions(ctx context.Context, mentions []model.ActorMention) error {
	if len(mentions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mention insert")
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range mentions {
		if mentions[i].ID == "" {
			mentions[i].ID = uuid.New().String()
		}
		if mentions[i].SeenAt.IsZero() {
			mentions[i].SeenAt = time.Now().UTC()
		}
		m := mentions[i]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO actor_mentions (id, name, document_id, profile_id, seen_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.Name, m.DocumentID, m.ProfileID, m.SeenAt.UTC(),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert actor mention")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit mention insert")
}

func (s *SQLiteStore) ListUnresolvedMentions(ctx context.Context, limit int) ([]model.ActorMention, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, document_id, profile_id, seen_at FROM actor_mentions
		 WHERE profile_id = '' ORDER BY seen_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list unresolved mentions")
	}
	defer rows.Close()
	return scanMentions(rows)
}

func (s *SQLiteStore) AssignMentionProfile(ctx context.Context, mentionID, profileID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actor_mentions SET profile_id = ? WHERE id = ?`, profileID, mentionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: assign mention %s", mentionID)
	}
	return checkRowsAffected(res, "actor mention", mentionID)
}

func (s *SQLiteStore) ListMentionsByDocument(ctx context.Context, documentID string) ([]model.ActorMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, document_id, profile_id, seen_at FROM actor_mentions
		 WHERE document_id = ? ORDER BY seen_at ASC`, documentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mentions by document")
	}
	defer rows.Close()
	return scanMentions(rows)
}

// --- Profiles ---

func (s *SQLiteStore) SaveProfile(ctx context.Context, p *model.ThreatActorProfile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	blob, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO actor_profiles (id, canonical_name, profile, merged_into, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET canonical_name = excluded.canonical_name,
		   profile = excluded.profile, merged_into = excluded.merged_into, updated_at = excluded.updated_at`,
		p.ID, p.CanonicalName, string(blob), p.MergedInto, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save profile")
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*model.ThreatActorProfile, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM actor_profiles WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}
	var p model.ThreatActorProfile
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]model.ThreatActorProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT profile FROM actor_profiles ORDER BY created_at ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var out []model.ThreatActorProfile
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		var p model.ThreatActorProfile
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

// --- Audit ---

func (s *SQLiteStore) RecordAudit(ctx context.Context, event model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, document_id, reason, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.DocumentID, string(event.Reason), event.Detail, event.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record audit")
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, documentID string, limit int) ([]model.AuditEvent, error) {
	query := `SELECT id, document_id, reason, detail, created_at FROM audit_events WHERE 1=1`
	var args []any
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit events")
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var reason string
		if err := rows.Scan(&e.ID, &e.DocumentID, &reason, &e.Detail, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit event")
		}
		e.Reason = model.AuditReason(reason)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list audit events iterate")
}

// --- Correlation cache ---

func (s *SQLiteStore) GetCachedReport(ctx context.Context, key string) (*model.CorrelationReport, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM correlation_cache WHERE key = ? AND expires_at > datetime('now')`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached report")
	}
	var report model.CorrelationReport
	if err := json.Unmarshal([]byte(blob), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached report")
	}
	return &report, nil
}

func (s *SQLiteStore) SetCachedReport(ctx context.Context, key string, report *model.CorrelationReport, ttl time.Duration) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO correlation_cache (key, report, generated_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET report = excluded.report, generated_at = excluded.generated_at, expires_at = excluded.expires_at`,
		key, string(blob), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached report")
}

func (s *SQLiteStore) DeleteExpiredReports(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM correlation_cache WHERE expires_at <= datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired reports")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
