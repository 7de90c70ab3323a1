package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/crestline-sec/intelpipe/internal/model"
)

var errNotFound = eris.New("not found")

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// scannable covers sql.Row, sql.Rows, pgx.Row, and pgx.Rows so the scan
// helpers can be shared across both backends.
type scannable interface {
	Scan(dest ...any) error
}

// rowIterator covers *sql.Rows and pgx.Rows.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var status string
	err := row.Scan(&d.ID, &d.ContentHash, &d.Title, &d.Content, &d.SourceURL, &d.SourceHost,
		&d.PublishedAt, &status, &d.CanonicalID, &d.CreatedAt)
	if isNoRows(err) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan document")
	}
	d.Status = model.DocStatus(status)
	return &d, nil
}

func scanIndicator(row scannable) (*model.Indicator, error) {
	var i model.Indicator
	var typ, prov string
	err := row.Scan(&i.ID, &typ, &i.Value, &i.Confidence, &i.Evidence, &prov,
		&i.FirstSeen, &i.LastSeen, &i.OccurrenceCount, &i.Reviewed, &i.FalsePositive)
	if isNoRows(err) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan indicator")
	}
	i.Type = model.IndicatorType(typ)
	i.Provenance = model.Provenance(prov)
	return &i, nil
}

func scanMentions(rows rowIterator) ([]model.ActorMention, error) {
	var out []model.ActorMention
	for rows.Next() {
		var m model.ActorMention
		if err := rows.Scan(&m.ID, &m.Name, &m.DocumentID, &m.ProfileID, &m.SeenAt); err != nil {
			return nil, eris.Wrap(err, "store: scan actor mention")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "store: scan mentions iterate")
}

func scanOccurrences(rows rowIterator) ([]model.IndicatorOccurrence, error) {
	var out []model.IndicatorOccurrence
	for rows.Next() {
		var o model.IndicatorOccurrence
		var typ string
		if err := rows.Scan(&o.IndicatorID, &typ, &o.Value, &o.DocumentID, &o.SeenAt); err != nil {
			return nil, eris.Wrap(err, "store: scan occurrence")
		}
		o.Type = model.IndicatorType(typ)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "store: scan occurrences iterate")
}

func scanTechniqueMentions(rows rowIterator) ([]model.TechniqueMention, error) {
	var out []model.TechniqueMention
	for rows.Next() {
		var m model.TechniqueMention
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.TechniqueID, &m.Name, &m.Tactic, &m.Confidence, &m.Evidence); err != nil {
			return nil, eris.Wrap(err, "store: scan technique mention")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "store: scan techniques iterate")
}
