package store

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound indicates the order document does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUserNotFound indicates no user matches the given user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound indicates the product document does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrTxContention is returned when the commit transaction kept
	// conflicting with concurrent transactions and ran out of attempts.
	ErrTxContention = errors.New("transaction contention retries exhausted")
)

// ProductNotFoundError aborts a commit because a cart line item references
// a product document that does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InsufficientStockError aborts a commit because a line item requests more
// units than the product has. The whole transaction rolls back; no partial
// decrement survives.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d available=%d",
		e.ProductID, e.Requested, e.Available)
}

// CommitError is a transaction infrastructure failure after the stock check
// passed. The committed state is ambiguous: resolve by re-reading the order,
// never by blindly retrying the write.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("order commit failed in ambiguous state: %v", e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
