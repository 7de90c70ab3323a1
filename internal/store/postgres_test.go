package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetDocumentByHash_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at`).
		WithArgs("deadbeef").
		WillReturnError(pgx.ErrNoRows)

	doc, err := s.GetDocumentByHash(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDocument_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, content_hash, title, content, source_url, source_host, published_at, status, canonical_id, created_at FROM documents WHERE id = \$1`).
		WithArgs("no-such-doc").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDocument(context.Background(), "no-such-doc")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs(pgxmock.AnyArg(), "hash-1", "title", "content", "https://a.example.com/p", "a.example.com",
			pgxmock.AnyArg(), "unprocessed", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	doc := &model.Document{
		ContentHash: "hash-1",
		Title:       "title",
		Content:     "content",
		SourceURL:   "https://a.example.com/p",
		SourceHost:  "a.example.com",
		PublishedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateDocument(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDocumentStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE documents SET status`).
		WithArgs("duplicate", "canon-1", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateDocumentStatus(context.Background(), "missing", model.DocStatusDuplicate, "canon-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertIndicator(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "type", "value", "confidence", "evidence", "provenance",
		"first_seen", "last_seen", "occurrence_count", "reviewed", "false_positive",
	}).AddRow("ind-1", "ip", "203.0.113.5", 70, "evidence", "pattern", now, now, 2, false, false)

	mock.ExpectQuery(`INSERT INTO indicators`).
		WithArgs(pgxmock.AnyArg(), "ip", "203.0.113.5", 70, "evidence", "pattern",
			pgxmock.AnyArg(), pgxmock.AnyArg(), false, false).
		WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO indicator_occurrences`).
		WithArgs("ind-1", "ip", "203.0.113.5", "doc-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	saved, err := s.UpsertIndicator(context.Background(), model.Indicator{
		Type:       model.IndicatorIP,
		Value:      "203.0.113.5",
		Confidence: 70,
		Evidence:   "evidence",
		Provenance: model.ProvenancePattern,
	}, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "ind-1", saved.ID)
	assert.Equal(t, 2, saved.OccurrenceCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IsKnownFalsePositive_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT false_positive FROM indicators`).
		WithArgs("ip", "198.51.100.99").
		WillReturnError(pgx.ErrNoRows)

	known, err := s.IsKnownFalsePositive(context.Background(), model.IndicatorIP, "198.51.100.99")
	require.NoError(t, err)
	assert.False(t, known)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	profile := model.ThreatActorProfile{
		ID:            "prof-1",
		CanonicalName: "Scattered Spider",
		Aliases:       []string{"Scattered Spider", "UNC3944"},
	}
	blob, err := json.Marshal(profile)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT profile FROM actor_profiles WHERE id = \$1`).
		WithArgs("prof-1").
		WillReturnRows(pgxmock.NewRows([]string{"profile"}).AddRow(blob))

	got, err := s.GetProfile(context.Background(), "prof-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Scattered Spider", got.CanonicalName)
	assert.Len(t, got.Aliases, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetProfile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT profile FROM actor_profiles WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetProfile(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAudit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(pgxmock.AnyArg(), "doc-1", "verbatim_failed", "ip not present", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordAudit(context.Background(), model.AuditEvent{
		DocumentID: "doc-1",
		Reason:     model.AuditVerbatimFailed,
		Detail:     "ip not present",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT report FROM correlation_cache`).
		WithArgs("week-1").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetCachedReport(context.Background(), "week-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredReports(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM correlation_cache`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteExpiredReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
