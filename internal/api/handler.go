package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/classifier"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ingest"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/lifecycle"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/metrics"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/storage"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/writer"
)

// Version is reported by the health endpoint.
const Version = "1.2.0"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// TransferRequest is the JSON body for recording an advance transfer.
type TransferRequest struct {
	CustomerID   string          `json:"customerId"`
	Amount       decimal.Decimal `json:"amount"`
	TransferDate string          `json:"transferDate"` // YYYY-MM-DD
	FromAccount  string          `json:"fromAccount"`
	ToAccount    string          `json:"toAccount"`
	Purpose      string          `json:"purpose"`
}

// TransferResponse is a transfer with the allocations drawn against it.
type TransferResponse struct {
	*models.AdvanceTransfer
	Links []*models.AllocationLink `json:"links"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Ingest     *ingest.Service
	Ledger     *ledger.Ledger
	Classifier *classifier.Classifier
	Log        zerolog.Logger

	// UploadLimiter throttles statement uploads; nil means unlimited.
	UploadLimiter *rate.Limiter
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Use(recover.New())

	app.Get("/api/health", HandleHealth)
	app.Get("/api/lifecycle", HandleLifecycle)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	st := app.Group("/api/statements")
	st.Post("/", h.rateLimit, h.handleUpload)
	st.Get("/:id", h.handleGetStatement)
	st.Get("/:id/transactions", h.handleTransactions)
	st.Get("/:id/original", h.handleOriginal)
	st.Post("/:id/actions/:action", h.handleAction)

	tr := app.Group("/api/transfers")
	tr.Post("/", h.handleRecordTransfer)
	tr.Get("/", h.handleListTransfers)
	tr.Get("/:id", h.handleGetTransfer)

	app.Delete("/api/transactions/:id/allocation", h.handleReverse)
	app.Get("/api/ledger/verify", h.handleVerify)
	app.Post("/api/ledger/rebuild", h.handleRebuild)

	app.Get("/api/suppliers", h.handleListSuppliers)
	app.Post("/api/suppliers", h.handleAddSuppliers)
}

func (h *Handler) rateLimit(c *fiber.Ctx) error {
	if h.UploadLimiter != nil && !h.UploadLimiter.Allow() {
		h.Log.Warn().Str("path", c.Path()).Str("ip", c.IP()).Msg("rate limit exceeded")
		return writeError(c, fiber.StatusTooManyRequests, "Too many uploads, retry shortly.")
	}
	return c.Next()
}

// HandleHealth reports liveness.
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": Version,
	})
}

// HandleLifecycle publishes the document state machine.
func HandleLifecycle(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"transitions": lifecycle.Transitions,
		"nextActions": lifecycle.NextActions,
		"notes":       lifecycle.Notes,
	})
}

func (h *Handler) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}
	f, err := fh.Open()
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Failed to read upload: %v", err))
	}

	resp, err := h.Ingest.Import(c.UserContext(), ingest.Request{
		Data:          data,
		Filename:      fh.Filename,
		BankHint:      c.FormValue("bank"),
		CustomerID:    c.FormValue("customerId"),
		AccountNumber: c.FormValue("accountNumber"),
		Period:        c.FormValue("period"),
		Holder:        models.Holder(c.FormValue("holder")),
		BankName:      c.FormValue("bankName"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) handleGetStatement(c *fiber.Ctx) error {
	resp, err := h.Ingest.Describe(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(resp)
}

func (h *Handler) handleTransactions(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	txns, err := h.Ingest.Transactions(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}

	if c.Query("format") != "csv" {
		if txns == nil {
			txns = []*models.Transaction{}
		}
		return c.JSON(fiber.Map{"documentId": id, "count": len(txns), "transactions": txns})
	}

	doc, err := h.Ingest.Document(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	var buf bytes.Buffer
	w := &writer.CSVWriter{IncludeHeader: c.Query("header") != "false"}
	if err := w.Write(&buf, doc, txns); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err))
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.csv"`, id))
	return c.Send(buf.Bytes())
}

func (h *Handler) handleOriginal(c *fiber.Ctx) error {
	data, name, err := h.Ingest.Original(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, name))
	return c.Send(data)
}

func (h *Handler) handleAction(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	action := lifecycle.Action(c.Params("action"))

	var (
		resp *ingest.Response
		err  error
	)
	if action == lifecycle.ActionReprocess {
		resp, err = h.Ingest.Reprocess(ctx, id, c.Query("bank"))
	} else {
		resp, err = h.Ingest.Apply(ctx, id, action)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(resp)
}

func (h *Handler) handleRecordTransfer(c *fiber.Ctx) error {
	var req TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	date, err := time.Parse(models.DateLayout, req.TransferDate)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("transferDate must be YYYY-MM-DD, got %q", req.TransferDate))
	}

	t, err := h.Ledger.RecordTransfer(c.UserContext(), ledger.TransferInput{
		CustomerID:   req.CustomerID,
		Amount:       req.Amount,
		TransferDate: date,
		FromAccount:  req.FromAccount,
		ToAccount:    req.ToAccount,
		Purpose:      req.Purpose,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *Handler) handleListTransfers(c *fiber.Ctx) error {
	customer := c.Query("customer")
	if customer == "" {
		return writeError(c, fiber.StatusBadRequest, "customer query parameter is required")
	}
	ts, err := h.Ledger.Transfers(c.UserContext(), customer)
	if err != nil {
		return h.fail(c, err)
	}
	if ts == nil {
		ts = []*models.AdvanceTransfer{}
	}
	return c.JSON(fiber.Map{"transfers": ts})
}

func (h *Handler) handleGetTransfer(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	t, err := h.Ledger.Transfer(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	links, err := h.Ledger.Links(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	if links == nil {
		links = []*models.AllocationLink{}
	}
	return c.JSON(TransferResponse{AdvanceTransfer: t, Links: links})
}

func (h *Handler) handleReverse(c *fiber.Ctx) error {
	if err := h.Ledger.Reverse(c.UserContext(), c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) handleVerify(c *fiber.Ctx) error {
	drifts, err := h.Ledger.Verify(c.UserContext(), c.Query("customer"))
	if err != nil {
		return h.fail(c, err)
	}
	if drifts == nil {
		drifts = []ledger.Drift{}
	}
	return c.JSON(fiber.Map{"consistent": len(drifts) == 0, "drifts": drifts})
}

func (h *Handler) handleRebuild(c *fiber.Ctx) error {
	fixed, err := h.Ledger.Rebuild(c.UserContext(), c.Query("customer"))
	if err != nil {
		return h.fail(c, err)
	}
	if fixed == nil {
		fixed = []ledger.Drift{}
	}
	return c.JSON(fiber.Map{"rebuilt": fixed})
}

func (h *Handler) handleListSuppliers(c *fiber.Ctx) error {
	names, err := h.Classifier.Suppliers(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"suppliers": names})
}

func (h *Handler) handleAddSuppliers(c *fiber.Ctx) error {
	var req struct {
		Names []string `json:"names"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.Names) == 0 {
		return writeError(c, fiber.StatusBadRequest, "Body must be {\"names\": [...]}")
	}
	if err := h.Classifier.AddSuppliers(c.UserContext(), req.Names...); err != nil {
		return h.fail(c, err)
	}
	return h.handleListSuppliers(c)
}

// fail maps domain errors onto HTTP status codes.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return writeError(c, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ingest.ErrInvalidRequest), errors.Is(err, ledger.ErrInvalidTransfer):
		return fiber.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, ledger.ErrPeriodClosed),
		errors.Is(err, ledger.ErrOverAllocated):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{Success: false, Error: msg})
}
