package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/roach88/palabria/internal/model"
)

func createTestDocument(t *testing.T, s *Store, userID int64, metrics ...MetricValue) model.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), NewDocument{
		UserID:     userID,
		Filename:   "ensayo.pdf",
		Text:       "Cuando tú trabajas, aprendes.",
		Metrics:    metrics,
		UploadKind: model.KindPDFUploaded,
	})
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}
	return doc
}

func TestFingerprint_NormalisesUnicode(t *testing.T) {
	composed := "canci\u00f3n"    // ó as one code point
	decomposed := "cancio\u0301n" // o + combining acute

	if Fingerprint(composed) != Fingerprint(decomposed) {
		t.Error("fingerprints differ for canonically equivalent text")
	}
	if len(Fingerprint("x")) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(Fingerprint("x")))
	}
}

func TestCreateDocument_WritesMetricsAndUploadEvent(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "ana")

	doc := createTestDocument(t, s, u.ID,
		MetricValue{Name: model.MetricTotalSentences, Value: 12},
		MetricValue{Name: model.MetricImpersonalTu, Value: 3},
	)
	if doc.ID <= 0 {
		t.Fatalf("doc.ID = %d, want > 0", doc.ID)
	}
	if doc.Fingerprint != Fingerprint("Cuando tú trabajas, aprendes.") {
		t.Errorf("fingerprint = %q", doc.Fingerprint)
	}
	if !doc.UploadedAt.Equal(testEpoch) {
		t.Errorf("uploaded_at = %v, want %v", doc.UploadedAt, testEpoch)
	}

	records, err := s.DocumentMetrics(ctx, doc.ID)
	if err != nil {
		t.Fatalf("DocumentMetrics() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	uploads, err := s.ReadEvents(ctx, u.ID, model.KindPDFUploaded, 0)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(uploads) != 1 {
		t.Errorf("pdf_uploaded events = %d, want 1", len(uploads))
	}
}

func TestCreateDocument_UnknownUser(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.CreateDocument(context.Background(), NewDocument{UserID: 42, Filename: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCreateDocument_InvalidUploadKind(t *testing.T) {
	s, _ := createTestStore(t)
	u := createTestUser(t, s, "ana")

	_, err := s.CreateDocument(context.Background(), NewDocument{UserID: u.ID, UploadKind: model.KindLogin})
	if err == nil {
		t.Fatal("expected error for login as upload kind")
	}
}

func TestCreateDocument_NonFiniteMetric(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "ana")

	_, err := s.CreateDocument(ctx, NewDocument{
		UserID:   u.ID,
		Filename: "ensayo.pdf",
		Metrics:  []MetricValue{{Name: model.MetricTotalSentences, Value: math.Inf(1)}},
	})
	var verr model.ValidationError
	if !errors.As(err, &verr) || verr.Field != "metric_value" {
		t.Fatalf("error = %v, want metric_value ValidationError", err)
	}

	docs, err := s.ListDocuments(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListDocuments() failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("len(docs) = %d, want 0", len(docs))
	}
}

func TestListDocuments_NewestFirst(t *testing.T) {
	s, _ := createTestStore(t)
	u := createTestUser(t, s, "ana")
	other := createTestUser(t, s, "bo")

	first := createTestDocument(t, s, u.ID)
	second := createTestDocument(t, s, u.ID)
	createTestDocument(t, s, other.ID)

	docs, err := s.ListDocuments(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListDocuments() failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
	if docs[0].ID != second.ID || docs[1].ID != first.ID {
		t.Errorf("order = [%d %d], want [%d %d]", docs[0].ID, docs[1].ID, second.ID, first.ID)
	}

	n, err := s.CountDocuments(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("CountDocuments() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountDocuments() = %d, want 2", n)
	}
}

func TestDeleteDocument_Cascades(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "ana")
	doc := createTestDocument(t, s, u.ID, MetricValue{Name: model.MetricTotalSentences, Value: 4})
	if _, err := s.AppendMetric(ctx, doc.ID, model.MetricUserChanges, 1); err != nil {
		t.Fatalf("AppendMetric() failed: %v", err)
	}

	deleted, err := s.DeleteDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("DeleteDocument() failed: %v", err)
	}
	if !deleted {
		t.Fatal("deleted = false, want true")
	}

	if _, err := s.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument() after delete error = %v, want ErrNotFound", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM metrics WHERE document_id = ?`, doc.ID).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("metrics after delete = %d, want 0", count)
	}

	// Usage events outlive the document
	uploads, err := s.ReadEvents(ctx, u.ID, model.KindPDFUploaded, 0)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(uploads) != 1 {
		t.Errorf("pdf_uploaded events after delete = %d, want 1", len(uploads))
	}
}

func TestDeleteDocument_Missing(t *testing.T) {
	s, _ := createTestStore(t)

	deleted, err := s.DeleteDocument(context.Background(), 999)
	if err != nil {
		t.Fatalf("DeleteDocument() failed: %v", err)
	}
	if deleted {
		t.Error("deleted = true for missing document")
	}
}
