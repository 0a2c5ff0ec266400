package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

const documentColumns = `id, customer_id, bank_name, account_number, holder, period, storage_ref,
	checksum, filename, bank, status, status_reason, duplicate_of, declared_count,
	parsed_count, info, created_at, updated_at`

func (q *queries) InsertDocument(ctx context.Context, doc *models.StatementDocument) error {
	info, err := encodeInfo(doc.Info)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, `
		INSERT INTO statement_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.CustomerID, doc.BankName, doc.AccountNumber, string(doc.Holder), doc.Period,
		doc.StorageRef, doc.Checksum, doc.Filename, string(doc.Bank), string(doc.Status),
		doc.StatusReason, doc.DuplicateOf, nullInt(doc.DeclaredCount), doc.ParsedCount, info,
		formatTimestamp(doc.CreatedAt), formatTimestamp(doc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("repository: insert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateDocument rewrites the mutable columns of a document: the account
// and period completed from the statement, the detected bank, lifecycle
// status, counts and parsed statement fields.
func (q *queries) UpdateDocument(ctx context.Context, doc *models.StatementDocument) error {
	info, err := encodeInfo(doc.Info)
	if err != nil {
		return err
	}
	err = mustAffect(q.exec(ctx, `
		UPDATE statement_documents
		SET account_number = ?, period = ?, bank = ?, status = ?, status_reason = ?,
			duplicate_of = ?, declared_count = ?, parsed_count = ?, info = ?, updated_at = ?
		WHERE id = ?`,
		doc.AccountNumber, doc.Period, string(doc.Bank), string(doc.Status), doc.StatusReason, doc.DuplicateOf,
		nullInt(doc.DeclaredCount), doc.ParsedCount, info, formatTimestamp(doc.UpdatedAt), doc.ID,
	))
	if err != nil {
		return fmt.Errorf("repository: update document %s: %w", doc.ID, err)
	}
	return nil
}

func (q *queries) GetDocument(ctx context.Context, id string) (*models.StatementDocument, error) {
	row := q.queryRow(ctx, `SELECT `+documentColumns+` FROM statement_documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("repository: get document %s: %w", id, err)
	}
	return doc, nil
}

func (q *queries) FindPrimary(ctx context.Context, key models.DuplicateKey, excludeID string) (*models.StatementDocument, error) {
	row := q.queryRow(ctx, `
		SELECT `+documentColumns+` FROM statement_documents
		WHERE customer_id = ? AND account_number = ? AND period = ? AND id <> ?
			AND status IN (?, ?, ?)
		ORDER BY created_at, id
		LIMIT 1`,
		key.CustomerID, key.AccountNumber, key.Period, excludeID,
		string(models.StatusValidated), string(models.StatusActive), string(models.StatusPosted),
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("repository: find primary %s: %w", key, err)
	}
	return doc, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*models.StatementDocument, error) {
	var (
		doc                        models.StatementDocument
		holder, bank, status, info string
		declared                   sql.NullInt64
		createdAt, updatedAt       string
	)
	err := s.Scan(&doc.ID, &doc.CustomerID, &doc.BankName, &doc.AccountNumber, &holder, &doc.Period,
		&doc.StorageRef, &doc.Checksum, &doc.Filename, &bank, &status, &doc.StatusReason,
		&doc.DuplicateOf, &declared, &doc.ParsedCount, &info, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc.Holder = models.Holder(holder)
	doc.Bank = models.BankType(bank)
	doc.Status = models.Status(status)
	if declared.Valid {
		n := int(declared.Int64)
		doc.DeclaredCount = &n
	}
	if info != "" {
		doc.Info = &models.StatementInfo{}
		if err := json.Unmarshal([]byte(info), doc.Info); err != nil {
			return nil, fmt.Errorf("decode statement info: %w", err)
		}
	}
	if doc.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}

func encodeInfo(info *models.StatementInfo) (string, error) {
	if info == nil {
		return "", nil
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("repository: encode statement info: %w", err)
	}
	return string(b), nil
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
