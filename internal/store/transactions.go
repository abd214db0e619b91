package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrito-backend/internal/models"
	"carrito-backend/internal/util"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	maxCommitAttempts    = 3
	commitAttemptTimeout = 10 * time.Second
)

// CommitOrderWithStock runs the finalization commit as one transaction:
// read stock for every line item, verify sufficiency across the whole cart,
// decrement every item and insert the order document. All-or-nothing; a
// conflicting concurrent commit on any of the same products forces one of
// the two transactions to abort and retry, so stock never goes negative.
//
// Returns the hex id of the persisted order.
func (s *Store) CommitOrderWithStock(ctx context.Context, items []models.OrderItem, order *models.Order) (string, error) {
	if len(items) == 0 {
		return "", errors.New("commit requires at least one line item")
	}

	start := time.Now()
	defer func() {
		util.StockCommitLatency.Observe(time.Since(start).Seconds())
	}()

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	var lastErr error
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		if attempt > 0 {
			util.StockCommitRetriesTotal.Inc()
		}

		orderID, err := s.commitOnce(ctx, items, order, txnOpts)
		if err == nil {
			return orderID, nil
		}

		// Clean business aborts are final, not retried.
		var notFound *ProductNotFoundError
		var insufficient *InsufficientStockError
		if errors.As(err, &notFound) || errors.As(err, &insufficient) {
			return "", err
		}

		if hasErrorLabel(err, "TransientTransactionError") {
			lastErr = err
			continue
		}

		// Commit outcome unknown: the order may or may not exist.
		return "", &CommitError{Err: err}
	}

	return "", fmt.Errorf("%w: %v", ErrTxContention, lastErr)
}

func (s *Store) commitOnce(ctx context.Context, items []models.OrderItem, order *models.Order, txnOpts *options.TransactionOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commitAttemptTimeout)
	defer cancel()

	session, err := s.client.StartSession()
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.commitBody(sc, items, order)
	}, txnOpts)
	if err != nil {
		return "", err
	}

	orderID, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("unexpected transaction result type %T", result)
	}
	return orderID, nil
}

func (s *Store) commitBody(sc mongo.SessionContext, items []models.OrderItem, order *models.Order) (interface{}, error) {
	products := s.db.Collection(collProducts)
	orders := s.db.Collection(collOrders)

	available := make(map[string]int, len(items))
	for _, item := range items {
		var product models.Product
		err := products.FindOne(sc, bson.M{"_id": item.ID}).Decode(&product)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, &ProductNotFoundError{ProductID: item.ID}
			}
			return nil, fmt.Errorf("failed to read stock for %s: %w", item.ID, err)
		}
		if product.Stock < item.Quantity {
			return nil, &InsufficientStockError{
				ProductID: item.ID,
				Requested: item.Quantity,
				Available: product.Stock,
			}
		}
		available[item.ID] = product.Stock
	}

	for _, item := range items {
		// The $gte guard backstops the snapshot read; a concurrent
		// committed decrement surfaces as a write conflict or a
		// non-match, never as negative stock.
		filter := bson.M{"_id": item.ID, "stock": bson.M{"$gte": item.Quantity}}
		update := bson.M{"$inc": bson.M{"stock": -item.Quantity}}

		res, err := products.UpdateOne(sc, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock for %s: %w", item.ID, err)
		}
		if res.MatchedCount == 0 {
			return nil, &InsufficientStockError{
				ProductID: item.ID,
				Requested: item.Quantity,
				Available: available[item.ID],
			}
		}
	}

	order.ID = primitive.NewObjectID()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if _, err := orders.InsertOne(sc, order); err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	return order.ID.Hex(), nil
}

func hasErrorLabel(err error, label string) bool {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel(label)
	}
	return false
}
