// Package ingest drives an uploaded statement through extraction,
// reconciliation, duplicate detection, classification and the document
// lifecycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/classifier"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/keylock"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/lifecycle"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/logger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/metrics"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/storage"
)

// ErrInvalidRequest is returned for uploads missing what the import needs
// before a document can even be created.
var ErrInvalidRequest = errors.New("ingest: invalid request")

// Request is one uploaded statement with the caller's declarations.
type Request struct {
	Data       []byte
	Filename   string
	BankHint   string
	CustomerID string
	// AccountNumber and Period are the declared account/card id and
	// statement month (YYYY-MM). Empty values are taken from the statement.
	AccountNumber string
	Period        string
	Holder        models.Holder
	BankName      string
}

// Response is what the caller learns about an import.
type Response struct {
	Success     bool            `json:"success"`
	Status      models.Status   `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Note        string          `json:"note"`
	NextActions []string        `json:"nextActions"`
	DocumentID  string          `json:"documentId"`
	DuplicateOf string          `json:"duplicateOf,omitempty"`
	Bank        models.BankType `json:"bank,omitempty"`
	Imported    int             `json:"imported"`
	Matched     int             `json:"matched"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type Service struct {
	store      repository.Store
	blobs      storage.Blobs
	classifier *classifier.Classifier
	locks      *keylock.Locker
	log        zerolog.Logger
	now        func() time.Time
}

func New(store repository.Store, blobs storage.Blobs, cls *classifier.Classifier, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		blobs:      blobs,
		classifier: cls,
		locks:      keylock.New(),
		log:        log.With().Str("component", "ingest").Logger(),
		now:        time.Now,
	}
}

// Import stores the original, records the document as uploaded and runs it
// through the pipeline. Domain problems end in a lifecycle state; only
// storage and persistence failures are returned as errors.
func (s *Service) Import(ctx context.Context, req Request) (*Response, error) {
	if err := normalizeRequest(&req); err != nil {
		return nil, err
	}

	ref, checksum, err := s.blobs.Put(req.Filename, req.Data)
	if err != nil {
		return nil, fmt.Errorf("ingest: import: %w", err)
	}

	now := s.now()
	doc := &models.StatementDocument{
		ID:            uuid.New().String(),
		CustomerID:    req.CustomerID,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		Holder:        req.Holder,
		Period:        req.Period,
		StorageRef:    ref,
		Checksum:      checksum,
		Filename:      req.Filename,
		Status:        models.StatusUploaded,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: import: %w", err)
	}

	log := s.log.With().Str("document_id", doc.ID).Str("filename", req.Filename).Logger()
	log.Info().Str("customer_id", doc.CustomerID).Str("checksum", checksum).Msg("statement uploaded")

	return s.process(logger.WithContext(ctx, log), doc, req.Data, req.BankHint)
}

// Reprocess sends a failed document back through the pipeline from its
// retained original.
func (s *Service) Reprocess(ctx context.Context, id, bankHint string) (*Response, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ingest: reprocess: %w", err)
	}
	if err := s.transition(doc, lifecycle.ActionReprocess, ""); err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(doc.StorageRef)
	if err != nil {
		return nil, fmt.Errorf("ingest: reprocess %s: %w", id, err)
	}

	doc.DuplicateOf = ""
	doc.Info = nil
	doc.Bank = ""
	doc.DeclaredCount = nil
	doc.ParsedCount = 0
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: reprocess: %w", err)
	}

	log := s.log.With().Str("document_id", doc.ID).Str("filename", doc.Filename).Logger()
	log.Info().Msg("reprocessing statement")
	return s.process(logger.WithContext(ctx, log), doc, data, bankHint)
}

// Apply performs an administrative action on a document: activate, post,
// archive or reprocess.
func (s *Service) Apply(ctx context.Context, id string, action lifecycle.Action) (*Response, error) {
	switch action {
	case lifecycle.ActionReprocess:
		return s.Reprocess(ctx, id, "")
	case lifecycle.ActionActivate:
		doc, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("ingest: apply %s: %w", action, err)
		}
		if _, err := lifecycle.Next(doc.Status, action); err != nil {
			return nil, err
		}
		return s.activate(ctx, doc)
	case lifecycle.ActionPost, lifecycle.ActionArchive:
	default:
		return nil, fmt.Errorf("%w: %s is not an administrative action", lifecycle.ErrInvalidTransition, action)
	}

	var doc *models.StatementDocument
	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		var err error
		if doc, err = q.GetDocument(ctx, id); err != nil {
			return err
		}
		if err := s.transition(doc, action, ""); err != nil {
			return err
		}
		return q.UpdateDocument(ctx, doc)
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("ingest: apply %s: %w", action, err)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(doc.Status)).Inc()
	s.log.Info().Str("document_id", id).Str("action", string(action)).Str("status", string(doc.Status)).Msg("document transitioned")
	return s.respond(ctx, doc, nil)
}

// Document returns a stored document.
func (s *Service) Document(ctx context.Context, id string) (*models.StatementDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ingest: document: %w", err)
	}
	return doc, nil
}

// Transactions returns a document's transactions in statement order.
func (s *Service) Transactions(ctx context.Context, id string) ([]*models.Transaction, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("ingest: transactions: %w", err)
	}
	txns, err := s.store.ListTransactions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ingest: transactions: %w", err)
	}
	return txns, nil
}

// Original returns the retained upload of a document and its filename.
func (s *Service) Original(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: original: %w", err)
	}
	data, err := s.blobs.Get(doc.StorageRef)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: original %s: %w", id, err)
	}
	return data, doc.Filename, nil
}

// Describe builds the caller-facing view of a stored document.
func (s *Service) Describe(ctx context.Context, id string) (*Response, error) {
	doc, err := s.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, doc, nil)
}

func (s *Service) transition(doc *models.StatementDocument, action lifecycle.Action, reason string) error {
	to, err := lifecycle.Next(doc.Status, action)
	if err != nil {
		return err
	}
	doc.Status = to
	doc.StatusReason = reason
	doc.UpdatedAt = s.now()
	return nil
}

// respond reports a document's state. Counts come from the stored
// transactions so a later Describe matches the original import response.
func (s *Service) respond(ctx context.Context, doc *models.StatementDocument, warnings []string) (*Response, error) {
	resp := &Response{
		Success:     doc.Status != models.StatusFailed,
		Status:      doc.Status,
		Reason:      doc.StatusReason,
		Note:        lifecycle.Notes[doc.Status],
		NextActions: lifecycle.Actions(doc.Status),
		DocumentID:  doc.ID,
		DuplicateOf: doc.DuplicateOf,
		Bank:        doc.Bank,
		Warnings:    warnings,
	}
	if doc.Status == models.StatusFailed || doc.Status == models.StatusDuplicate || doc.Status == models.StatusUploaded {
		return resp, nil
	}

	txns, err := s.store.ListTransactions(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	resp.Imported = len(txns)
	for _, t := range txns {
		if t.TransferID != "" {
			resp.Matched++
		}
	}
	return resp, nil
}

func normalizeRequest(req *Request) error {
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.AccountNumber = strings.TrimSpace(req.AccountNumber)
	req.Period = strings.TrimSpace(req.Period)
	req.Filename = strings.TrimSpace(req.Filename)

	if req.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidRequest)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: empty document", ErrInvalidRequest)
	}
	switch req.Holder {
	case "":
		req.Holder = models.HolderOwner
	case models.HolderOwner, models.HolderGZ:
	default:
		return fmt.Errorf("%w: unknown holder %q", ErrInvalidRequest, req.Holder)
	}
	if req.Period != "" {
		if _, ok := ledger.PeriodEnd(req.Period); !ok {
			return fmt.Errorf("%w: period %q is not YYYY-MM", ErrInvalidRequest, req.Period)
		}
	}
	if req.Filename == "" {
		req.Filename = "statement"
	}
	return nil
}
