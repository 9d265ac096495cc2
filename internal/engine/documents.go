package engine

import (
	"context"

	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// Document sources, recorded as the upload usage event.
const (
	SourcePDF  = "pdf"
	SourceText = "text"
)

// SubmitDocument is the input to Engine.SubmitDocument: an analysed text and
// the initial metric batch produced by the analysis pipeline.
type SubmitDocument struct {
	UserID   int64
	Filename string
	Text     string
	Source   string // SourcePDF or SourceText
	Metrics  []store.MetricValue
}

// SubmitDocument stores the document, its initial metrics and the upload
// event atomically.
func (e *Engine) SubmitDocument(ctx context.Context, in SubmitDocument) (model.Document, error) {
	const op = "submit_document"
	if err := e.checkUser(ctx, op, in.UserID); err != nil {
		return model.Document{}, err
	}

	var kind model.EventKind
	switch in.Source {
	case SourcePDF:
		kind = model.KindPDFUploaded
	case SourceText, "":
		kind = model.KindTextUploaded
	default:
		return model.Document{}, invalidInput(op, "unknown source %q", in.Source)
	}

	doc, err := e.store.CreateDocument(ctx, store.NewDocument{
		UserID:     in.UserID,
		Filename:   in.Filename,
		Text:       in.Text,
		Metrics:    in.Metrics,
		UploadKind: kind,
	})
	if err != nil {
		return model.Document{}, classify(op, err)
	}

	e.logger.Info("document stored",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"metrics", len(in.Metrics),
	)
	return doc, nil
}

// AddMetric appends a new value for a document metric. Earlier values are kept.
func (e *Engine) AddMetric(ctx context.Context, documentID int64, name string, value float64) (model.MetricRecord, error) {
	const op = "add_metric"
	if documentID <= 0 {
		return model.MetricRecord{}, invalidInput(op, "document id must be positive, got %d", documentID)
	}
	rec, err := e.store.AppendMetric(ctx, documentID, name, value)
	if err != nil {
		return model.MetricRecord{}, classify(op, err)
	}
	return rec, nil
}

// RecordUserChanges appends a cambios_realizados_usuario value observed
// after the user edited the corrected text.
func (e *Engine) RecordUserChanges(ctx context.Context, documentID int64, changes int) (model.MetricRecord, error) {
	if changes < 0 {
		return model.MetricRecord{}, invalidInput("record_user_changes", "changes must not be negative, got %d", changes)
	}
	return e.AddMetric(ctx, documentID, model.MetricUserChanges, float64(changes))
}

// DocumentMetrics returns every metric record of the document in seq order.
func (e *Engine) DocumentMetrics(ctx context.Context, documentID int64) ([]model.MetricRecord, error) {
	const op = "document_metrics"
	if documentID <= 0 {
		return nil, invalidInput(op, "document id must be positive, got %d", documentID)
	}
	if _, err := e.store.GetDocument(ctx, documentID); err != nil {
		return nil, classify(op, err)
	}
	records, err := e.store.DocumentMetrics(ctx, documentID)
	if err != nil {
		return nil, classify(op, err)
	}
	return records, nil
}

// ListDocuments returns the user's documents, newest first.
func (e *Engine) ListDocuments(ctx context.Context, userID int64) ([]model.Document, error) {
	const op = "list_documents"
	if err := e.checkUser(ctx, op, userID); err != nil {
		return nil, err
	}
	docs, err := e.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return docs, nil
}

// DeleteDocument removes the document and all its metric records in one
// transaction. Returns whether the document existed.
func (e *Engine) DeleteDocument(ctx context.Context, documentID int64) (bool, error) {
	const op = "delete_document"
	if documentID <= 0 {
		return false, invalidInput(op, "document id must be positive, got %d", documentID)
	}
	deleted, err := e.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return false, classify(op, err)
	}
	if deleted {
		e.logger.Info("document deleted", "document_id", documentID)
	}
	return deleted, nil
}
