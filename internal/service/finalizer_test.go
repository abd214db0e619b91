package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"carrito-backend/config"
	"carrito-backend/internal/models"
	"carrito-backend/internal/payment"
	"carrito-backend/internal/shipping"
	"carrito-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommitter implements OrderCommitter over an in-memory stock map with
// the same all-or-nothing semantics as the Mongo transaction.
type fakeCommitter struct {
	mu     sync.Mutex
	stock  map[string]int
	orders []*models.Order
	seq    int

	failWith error
}

func newFakeCommitter(stock map[string]int) *fakeCommitter {
	return &fakeCommitter{stock: stock}
}

func (f *fakeCommitter) CommitOrderWithStock(_ context.Context, items []models.OrderItem, order *models.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return "", f.failWith
	}

	for _, item := range items {
		available, ok := f.stock[item.ID]
		if !ok {
			return "", &store.ProductNotFoundError{ProductID: item.ID}
		}
		if available < item.Quantity {
			return "", &store.InsufficientStockError{
				ProductID: item.ID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	for _, item := range items {
		f.stock[item.ID] -= item.Quantity
	}

	f.seq++
	f.orders = append(f.orders, order)
	return fmt.Sprintf("order-%d", f.seq), nil
}

type fakeShipper struct {
	mu       sync.Mutex
	calls    int
	lastReq  *shipping.ShipmentRequest
	response *shipping.ShipmentResponse
	err      error
}

func (f *fakeShipper) CreateShipment(_ context.Context, req *shipping.ShipmentRequest) (*shipping.ShipmentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakePublisher struct {
	events []*models.OrderFinalizedEvent
	err    error
}

func (f *fakePublisher) PublishOrderFinalized(_ context.Context, event *models.OrderFinalizedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func shipmentResponseWithTracking(ton int64, ref string) *shipping.ShipmentResponse {
	raw := json.RawMessage(fmt.Sprintf(
		`{"header":{"statusCode":0},"data":{"detail":[{"transportOrderNumber":%d,"reference":"%s"}]}}`, ton, ref))
	return &shipping.ShipmentResponse{
		Raw: raw,
		Data: &shipping.ResponseData{
			Detail: []shipping.ResponseDetail{{
				TransportOrderNumber: &ton,
				Reference:            &ref,
			}},
		},
	}
}

func approvedConfirmation(buyOrder string, amount float64) *payment.Confirmation {
	return &payment.Confirmation{
		BuyOrder:        buyOrder,
		Amount:          amount,
		Status:          "AUTHORIZED",
		ResponseCode:    0,
		TransactionDate: "2024-05-01T12:00:00Z",
		CardDetail:      payment.CardDetail{CardNumber: "XXXX-XXXX-XXXX-6623"},
	}
}

func testFinalizeRequest(items []models.OrderItem) *FinalizeRequest {
	return &FinalizeRequest{
		Items: items,
		ShippingInfo: models.ShippingInfo{
			Address: models.ShippingAddress{
				CountyCode: "PROV",
				StreetName: "AVENIDA SIEMPRE VIVA",
				Number:     742,
			},
			Option: models.ShippingOption{ServiceTypeCode: 2},
		},
		UserInfo: models.UserInfo{
			UID:   "user-1",
			Email: "buyer@example.com",
			Name:  "Buyer",
		},
	}
}

func testSender() config.SenderConfig {
	return config.SenderConfig{
		Name:         "Tu Tienda E-commerce",
		PhoneNumber:  "223824861",
		Email:        "contacto@tutienda.cl",
		CountyCode:   "STGO",
		StreetName:   "SAN ALFONSO",
		StreetNumber: 100,
		Supplement:   "Oficina 101",
	}
}

func testCarrier() config.CarrierConfig {
	return config.CarrierConfig{
		CustomerCardNumber: "18578680",
		MarketplaceRut:     "96756430",
		SellerRut:          "DEFAULT",
	}
}

func TestTotalValue(t *testing.T) {
	items := []models.OrderItem{
		{ID: "p1", Name: "A", Price: 10.0, Quantity: 2},
		{ID: "p2", Name: "B", Price: 5.0, Quantity: 1},
	}

	assert.Equal(t, 25.0, TotalValue(items))
}

func TestFinalizeSuccess(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 5, "p2": 3})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990123, "REF-1")}
	publisher := &fakePublisher{}

	f := NewOrderFinalizer(shipper, committer, nil, publisher, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 2},
		{ID: "p2", Name: "B", Price: 500, Quantity: 1},
	})

	result, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-1", 2500))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "order-1", result.OrderID)
	require.NotNil(t, result.TrackingNumber)
	assert.Equal(t, "990123", *result.TrackingNumber)

	assert.Equal(t, 3, committer.stock["p1"])
	assert.Equal(t, 2, committer.stock["p2"])
	require.Len(t, committer.orders, 1)

	order := committer.orders[0]
	assert.Equal(t, models.OrderStatusPaidAndShipped, order.Status)
	assert.Equal(t, 2500.0, order.TotalAmount)
	assert.Equal(t, "BO-1", order.TransbankDetails.BuyOrder)
	assert.Equal(t, "XXXX-XXXX-XXXX-6623", order.TransbankDetails.CardNumber)
	assert.NotNil(t, order.Shipping.ChilexpressResponse)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, "order-1", publisher.events[0].OrderID)
	assert.Equal(t, "990123", publisher.events[0].TrackingNumber)
}

func TestFinalizeInsufficientStock(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 5, "p2": 0})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990124, "REF-2")}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 1},
		{ID: "p2", Name: "B", Price: 500, Quantity: 1},
	})

	_, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-2", 1500))
	require.Error(t, err)

	var insufficient *store.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "p2", insufficient.ProductID)
	assert.Equal(t, 1, insufficient.Requested)
	assert.Equal(t, 0, insufficient.Available)

	// All-or-nothing: p1 untouched, no order persisted.
	assert.Equal(t, 5, committer.stock["p1"])
	assert.Empty(t, committer.orders)
}

func TestFinalizeProductNotFound(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 5})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990125, "REF-3")}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "ghost", Name: "Ghost", Price: 100, Quantity: 1},
	})

	_, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-3", 100))

	var notFound *store.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.ProductID)
	assert.Empty(t, committer.orders)
}

func TestFinalizeShippingFailureLeavesStockUntouched(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 5})
	shipper := &fakeShipper{err: &shipping.APIError{StatusCode: 500, Body: []byte(`{"message":"boom"}`)}}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 2},
	})

	_, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-4", 2000))
	require.Error(t, err)

	var apiErr *shipping.APIError
	assert.ErrorAs(t, err, &apiErr)

	assert.Equal(t, 5, committer.stock["p1"])
	assert.Empty(t, committer.orders)
}

func TestFinalizeDeclinedPayment(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 5})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990126, "REF-4")}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 1},
	})

	declined := approvedConfirmation("BO-5", 1000)
	declined.ResponseCode = -1
	declined.Status = "FAILED"

	_, err := f.Finalize(context.Background(), req, declined)

	var declinedErr *payment.DeclinedError
	require.ErrorAs(t, err, &declinedErr)
	assert.Equal(t, -1, declinedErr.ResponseCode)

	// Declined before any side effect.
	assert.Equal(t, 0, shipper.calls)
	assert.Equal(t, 5, committer.stock["p1"])
}

func TestFinalizeEmptyCart(t *testing.T) {
	f := NewOrderFinalizer(&fakeShipper{}, newFakeCommitter(nil), nil, nil, testCarrier(), testSender())

	_, err := f.Finalize(context.Background(), testFinalizeRequest(nil), approvedConfirmation("BO-6", 0))
	assert.Error(t, err)
}

func TestFinalizeMissingTrackingNumber(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 1})
	// Carrier response without the data.detail shape.
	shipper := &fakeShipper{response: &shipping.ShipmentResponse{Raw: []byte(`{"header":{"statusCode":0}}`)}}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 1},
	})

	result, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-7", 1000))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Nil(t, result.TrackingNumber)
	assert.Equal(t, 0, committer.stock["p1"])
}

func TestFinalizePublishFailureDoesNotFailOrder(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 1})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990127, "REF-5")}
	publisher := &fakePublisher{err: errors.New("kafka down")}

	f := NewOrderFinalizer(shipper, committer, nil, publisher, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 1000, Quantity: 1},
	})

	result, err := f.Finalize(context.Background(), req, approvedConfirmation("BO-8", 1000))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestFinalizeConcurrentSingleUnit(t *testing.T) {
	committer := newFakeCommitter(map[string]int{"p1": 1})
	shipper := &fakeShipper{response: shipmentResponseWithTracking(990128, "REF-6")}

	f := NewOrderFinalizer(shipper, committer, nil, nil, testCarrier(), testSender())

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			req := testFinalizeRequest([]models.OrderItem{
				{ID: "p1", Name: "A", Price: 1000, Quantity: 1},
			})
			_, err := f.Finalize(context.Background(), req, approvedConfirmation(fmt.Sprintf("BO-C%d", n), 1000))
			results <- err
		}(i)
	}

	var successes, stockFailures int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			successes++
			continue
		}
		var insufficient *store.InsufficientStockError
		if errors.As(err, &insufficient) {
			stockFailures++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, stockFailures)
	assert.Equal(t, 0, committer.stock["p1"])
	assert.Len(t, committer.orders, 1)
}

func TestBuildShipmentRequest(t *testing.T) {
	f := NewOrderFinalizer(&fakeShipper{}, newFakeCommitter(nil), nil, nil, testCarrier(), testSender())

	req := testFinalizeRequest([]models.OrderItem{
		{ID: "p1", Name: "A", Price: 10.4, Quantity: 1},
	})

	shipReq := f.buildShipmentRequest(req, "BO-9", 10.4)

	assert.Equal(t, "18578680", shipReq.Header.CustomerCardNumber)
	assert.Equal(t, "STGO", shipReq.Header.CountyOfOriginCoverageCode)
	require.Len(t, shipReq.Details, 1)

	detail := shipReq.Details[0]
	require.Len(t, detail.Addresses, 2)
	assert.Equal(t, shipping.AddressTypeDestination, detail.Addresses[0].AddressType)
	assert.Equal(t, "PROV", detail.Addresses[0].CountyCoverageCode)
	assert.Equal(t, shipping.AddressTypeReturn, detail.Addresses[1].AddressType)
	assert.Equal(t, "SAN ALFONSO", detail.Addresses[1].StreetName)

	require.Len(t, detail.Contacts, 2)
	assert.Equal(t, shipping.ContactTypeSender, detail.Contacts[0].ContactType)
	assert.Equal(t, shipping.ContactTypeRecipient, detail.Contacts[1].ContactType)
	// No phone on the request falls back to the placeholder.
	assert.Equal(t, "999999999", detail.Contacts[1].PhoneNumber)

	require.Len(t, detail.Packages, 1)
	pkg := detail.Packages[0]
	assert.Equal(t, "ORDEN-BO-9", pkg.DeliveryReference)
	assert.Equal(t, "10", pkg.DeclaredValue)
	assert.Equal(t, "2", pkg.ServiceDeliveryCode)
	assert.Equal(t, "3", pkg.ProductCode)
}
