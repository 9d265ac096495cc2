package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/palabria/internal/model"
)

// NewDocument is the input to CreateDocument.
type NewDocument struct {
	UserID   int64
	Filename string
	Text     string // hashed into the content fingerprint, never stored
	Metrics  []MetricValue

	// UploadKind is the usage event appended with the document,
	// pdf_uploaded or text_uploaded. Empty appends no event.
	UploadKind model.EventKind
}

// Fingerprint returns the hex SHA-256 of the NFC-normalised text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:])
}

// CreateDocument inserts the document, its initial metrics and the upload
// event in one transaction.
func (l *Ledger) CreateDocument(ctx context.Context, nd NewDocument) (model.Document, error) {
	if nd.UploadKind != "" && nd.UploadKind != model.KindPDFUploaded && nd.UploadKind != model.KindTextUploaded {
		return model.Document{}, fmt.Errorf("create document: invalid upload kind %q", nd.UploadKind)
	}
	for _, m := range nd.Metrics {
		if err := model.ValidateMetricName(normalizeMetricName(m.Name)); err != nil {
			return model.Document{}, fmt.Errorf("create document: %w", err)
		}
		if err := model.ValidateMetricValue(m.Value); err != nil {
			return model.Document{}, fmt.Errorf("create document: %w", err)
		}
	}

	var doc model.Document
	err := l.Update(ctx, func(tx *Ledger) error {
		if _, err := tx.GetUser(ctx, nd.UserID); err != nil {
			return err
		}

		now := tx.Now()
		doc = model.Document{
			UserID:      nd.UserID,
			Filename:    nd.Filename,
			UploadedAt:  now,
			Fingerprint: Fingerprint(nd.Text),
		}
		res, err := tx.q.ExecContext(ctx, `
			INSERT INTO documents (user_id, filename, uploaded_at, content_fingerprint)
			VALUES (?, ?, ?, ?)
		`, doc.UserID, doc.Filename, formatTime(now), doc.Fingerprint)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if doc.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert document: last insert id: %w", err)
		}

		for _, m := range nd.Metrics {
			if _, err := tx.insertMetric(ctx, doc.ID, normalizeMetricName(m.Name), m.Value); err != nil {
				return err
			}
		}

		if nd.UploadKind != "" {
			if _, err := tx.AppendEvent(ctx, model.UsageEvent{
				UserID: nd.UserID,
				Kind:   nd.UploadKind,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.Document{}, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with the given id, or ErrNotFound.
func (l *Ledger) GetDocument(ctx context.Context, documentID int64) (model.Document, error) {
	row := l.q.QueryRowContext(ctx, `
		SELECT id, user_id, filename, uploaded_at, content_fingerprint
		FROM documents
		WHERE id = ?
	`, documentID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document %d: %w", documentID, err)
	}
	return doc, nil
}

// ListDocuments returns the user's documents, newest first.
func (l *Ledger) ListDocuments(ctx context.Context, userID int64) ([]model.Document, error) {
	rows, err := l.q.QueryContext(ctx, `
		SELECT id, user_id, filename, uploaded_at, content_fingerprint
		FROM documents
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// CountDocuments returns the number of documents the user owns.
func (l *Ledger) CountDocuments(ctx context.Context, userID int64) (int, error) {
	var n int
	err := l.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE user_id = ?
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// DeleteDocument removes the document and all of its metric records.
// Returns false if the document did not exist. Usage events are kept.
func (l *Ledger) DeleteDocument(ctx context.Context, documentID int64) (bool, error) {
	var deleted bool
	err := l.Update(ctx, func(tx *Ledger) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM metrics WHERE document_id = ?`, documentID); err != nil {
			return fmt.Errorf("delete metrics: %w", err)
		}
		res, err := tx.q.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete document: rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func scanDocument(row rowScanner) (model.Document, error) {
	var (
		doc        model.Document
		uploadedAt string
	)
	if err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &uploadedAt, &doc.Fingerprint); err != nil {
		return model.Document{}, err
	}
	t, err := parseTime(uploadedAt)
	if err != nil {
		return model.Document{}, err
	}
	doc.UploadedAt = t
	return doc, nil
}
