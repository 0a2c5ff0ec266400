package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/metrics"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

const suppliersKey = "suppliers"

// Store is the persistence the classifier needs.
type Store interface {
	ListSuppliers(ctx context.Context) ([]string, error)
	AddSupplier(ctx context.Context, name string) error
	SetClassification(ctx context.Context, id string, category models.Category, transferID string) error
}

// Allocator matches payments to advance transfers.
type Allocator interface {
	Allocate(ctx context.Context, req ledger.AllocationRequest) (*models.AllocationLink, error)
}

// Result is a classified transaction.
type Result struct {
	Decision
	Link *models.AllocationLink
}

// Summary counts the outcome of classifying one statement.
type Summary struct {
	Classified int
	Matched    int
	ByCategory map[models.Category]int
}

type Classifier struct {
	store Store
	alloc Allocator
	cache *cache.Cache
	log   zerolog.Logger
}

// New builds a classifier whose supplier allowlist is cached for ttl.
func New(store Store, alloc Allocator, ttl time.Duration, log zerolog.Logger) *Classifier {
	return &Classifier{
		store: store,
		alloc: alloc,
		cache: cache.New(ttl, 2*ttl),
		log:   log.With().Str("component", "classifier").Logger(),
	}
}

// Suppliers returns the allowlist, loading it from the store on a cache miss.
func (c *Classifier) Suppliers(ctx context.Context) ([]string, error) {
	if v, ok := c.cache.Get(suppliersKey); ok {
		return v.([]string), nil
	}
	names, err := c.store.ListSuppliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("classifier: load suppliers: %w", err)
	}
	c.cache.SetDefault(suppliersKey, names)
	return names, nil
}

// AddSuppliers persists names to the allowlist and drops the cached copy.
func (c *Classifier) AddSuppliers(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := c.store.AddSupplier(ctx, name); err != nil {
			return fmt.Errorf("classifier: %w", err)
		}
	}
	c.cache.Delete(suppliersKey)
	return nil
}

// Classify decides and persists the category of one transaction. Payments
// are offered to the ledger; a payment the ledger cannot match stays an
// owner payment. Transactions that already carry a category are returned
// as they are.
func (c *Classifier) Classify(ctx context.Context, txn *models.Transaction, acct Account) (Result, error) {
	if txn.Category != "" {
		return Result{Decision: Decision{Category: txn.Category, Rule: RuleExisting}}, nil
	}

	allowlist, err := c.Suppliers(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Decision: Decide(*txn, acct, allowlist)}
	if res.Allocate {
		link, err := c.alloc.Allocate(ctx, ledger.AllocationRequest{
			TransactionID: txn.ID,
			CustomerID:    acct.CustomerID,
			PeriodEnd:     acct.PeriodEnd,
			Amount:        txn.Amount,
		})
		if err != nil {
			return Result{}, fmt.Errorf("classifier: classify %s: %w", txn.ID, err)
		}
		if link != nil {
			// the ledger stamped the category in the allocation transaction
			res.Link = link
			res.Category = models.CategoryGZIndirectPayment
			txn.Category = res.Category
			txn.TransferID = link.TransferID
			metrics.TransactionsClassified.WithLabelValues(string(res.Category)).Inc()
			return res, nil
		}
	}

	if err := c.store.SetClassification(ctx, txn.ID, res.Category, ""); err != nil {
		return Result{}, fmt.Errorf("classifier: classify %s: %w", txn.ID, err)
	}
	txn.Category = res.Category
	metrics.TransactionsClassified.WithLabelValues(string(res.Category)).Inc()
	return res, nil
}

// ClassifyAll classifies txns in statement order and stops at the first
// persistence error.
func (c *Classifier) ClassifyAll(ctx context.Context, txns []*models.Transaction, acct Account) (Summary, error) {
	sum := Summary{ByCategory: make(map[models.Category]int)}
	for _, txn := range txns {
		res, err := c.Classify(ctx, txn, acct)
		if err != nil {
			return sum, err
		}
		sum.Classified++
		sum.ByCategory[res.Category]++
		if res.Category == models.CategoryGZIndirectPayment {
			sum.Matched++
		}
	}
	c.log.Debug().
		Str("customer_id", acct.CustomerID).
		Int("classified", sum.Classified).
		Int("matched", sum.Matched).
		Msg("statement classified")
	return sum, nil
}
