package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/classifier"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/extractor"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/lifecycle"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/logger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/metrics"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/parser"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
)

// process takes an uploaded document to failed, duplicate or active.
func (s *Service) process(ctx context.Context, doc *models.StatementDocument, data []byte, hint string) (*Response, error) {
	log := logger.FromContext(ctx)

	ext, extractErr := s.extract(doc, data, hint)
	var warnings []string
	if ext != nil {
		warnings = ext.Warnings
		doc.Bank = ext.Bank
		doc.Info = ext.Info
		doc.ParsedCount = len(ext.Transactions)
		if n, ok := ext.DeclaredCount(); ok {
			doc.DeclaredCount = &n
		}
		s.fillFromStatement(doc, ext.Info)
	}

	outcome := lifecycle.Assess(ext, extractErr)
	if outcome.OK() {
		if reason := missingSlot(doc); reason != "" {
			outcome = lifecycle.Outcome{Action: lifecycle.ActionFail, Reason: reason}
		}
	}
	if !outcome.OK() {
		if err := s.transition(doc, lifecycle.ActionFail, outcome.Reason); err != nil {
			return nil, err
		}
		if err := s.store.UpdateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("ingest: process: %w", err)
		}
		metrics.DocumentsProcessed.WithLabelValues(string(doc.Status)).Inc()
		log.Warn().Str("bank", string(doc.Bank)).Str("reason", outcome.Reason).Msg("statement failed")
		return s.respond(ctx, doc, warnings)
	}

	if err := s.admit(ctx, doc, ext.Transactions); err != nil {
		return nil, err
	}
	if doc.Status == models.StatusDuplicate {
		metrics.DocumentsProcessed.WithLabelValues(string(doc.Status)).Inc()
		log.Info().Str("duplicate_of", doc.DuplicateOf).Str("key", doc.Key().String()).Msg("statement is a duplicate")
		return s.respond(ctx, doc, warnings)
	}

	resp, err := s.activate(ctx, doc)
	if err != nil {
		return nil, err
	}
	resp.Warnings = warnings
	return resp, nil
}

func (s *Service) extract(doc *models.StatementDocument, data []byte, hint string) (*parser.Extraction, error) {
	start := time.Now()
	pages, err := extractor.Extract(data, doc.Filename)
	if err != nil {
		metrics.ExtractionDuration.WithLabelValues("unknown").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", parser.ErrUnparsable, err)
	}

	opts := parser.Options{Hint: models.BankType(hint)}
	if end, ok := ledger.PeriodEnd(doc.Period); ok {
		opts.ReferenceDate = end
	}
	ext, err := parser.DetectAndExtract(pages, opts)

	bank := "unknown"
	if ext != nil {
		bank = string(ext.Bank)
	}
	metrics.ExtractionDuration.WithLabelValues(bank).Observe(time.Since(start).Seconds())
	return ext, err
}

// fillFromStatement completes undeclared account and period values from
// the extracted statement fields.
func (s *Service) fillFromStatement(doc *models.StatementDocument, info *models.StatementInfo) {
	if doc.AccountNumber == "" {
		if v, ok := info.Get(models.FieldCardNumber); ok {
			doc.AccountNumber = v
		}
	}
	if doc.Period == "" {
		if d, ok := info.Date(models.FieldStatementDate); ok {
			doc.Period = d.Format("2006-01")
		}
	}
}

func missingSlot(doc *models.StatementDocument) string {
	switch {
	case doc.AccountNumber == "":
		return "account number neither declared nor found on the statement"
	case doc.Period == "":
		return "statement period neither declared nor derivable from the statement date"
	}
	return ""
}

// admit runs duplicate detection and the resulting transition in one
// transaction, under a lock on the duplicate key. A document that passes
// is validated and its transactions are stored.
func (s *Service) admit(ctx context.Context, doc *models.StatementDocument, raw []models.RawTransaction) error {
	unlock := s.locks.Lock("slot:" + doc.Key().String())
	defer unlock()

	txns := make([]*models.Transaction, len(raw))
	now := s.now()
	for i, r := range raw {
		txns[i] = &models.Transaction{
			ID:          uuid.New().String(),
			DocumentID:  doc.ID,
			Seq:         i + 1,
			Date:        r.Date,
			Description: r.Description,
			Amount:      r.Signed().Round(2),
			Direction:   r.Direction,
			Points:      r.Points,
			CreatedAt:   now,
		}
	}

	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		primary, err := q.FindPrimary(ctx, doc.Key(), doc.ID)
		switch {
		case err == nil:
			if err := s.transition(doc, lifecycle.ActionMarkDuplicate, "duplicate of "+primary.ID); err != nil {
				return err
			}
			doc.DuplicateOf = primary.ID
			return q.UpdateDocument(ctx, doc)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		if err := s.transition(doc, lifecycle.ActionValidate, ""); err != nil {
			return err
		}
		if err := q.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		return q.InsertTransactions(ctx, txns)
	})
	if err != nil {
		return fmt.Errorf("ingest: admit %s: %w", doc.ID, err)
	}
	return nil
}

// activate classifies a validated document's transactions and moves it to
// active. A persistence failure leaves it validated so activation can be
// retried.
func (s *Service) activate(ctx context.Context, doc *models.StatementDocument) (*Response, error) {
	log := logger.FromContext(ctx)

	txns, err := s.store.ListTransactions(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("ingest: activate %s: %w", doc.ID, err)
	}
	end, _ := ledger.PeriodEnd(doc.Period)
	sum, err := s.classifier.ClassifyAll(ctx, txns, classifier.Account{
		CustomerID:  doc.CustomerID,
		Holder:      doc.Holder,
		PeriodEnd:   end,
		SignAssumed: doc.Bank == models.BankUniversal,
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: activate %s: %w", doc.ID, err)
	}

	if err := s.transition(doc, lifecycle.ActionActivate, ""); err != nil {
		return nil, err
	}
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: activate %s: %w", doc.ID, err)
	}

	metrics.DocumentsProcessed.WithLabelValues(string(doc.Status)).Inc()
	log.Info().
		Str("bank", string(doc.Bank)).
		Int("imported", sum.Classified).
		Int("matched", sum.Matched).
		Msg("statement active")
	return s.respond(ctx, doc, nil)
}
