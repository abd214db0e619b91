package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"carrito-backend/config"
	"carrito-backend/internal/models"
	"carrito-backend/internal/payment"
	"carrito-backend/internal/shipping"
	"carrito-backend/internal/store"
	"carrito-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const shipmentCreateTimeout = 30 * time.Second

// ShipmentCreator creates a transport order with the carrier. Not
// idempotent; the finalizer calls it exactly once per order.
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, req *shipping.ShipmentRequest) (*shipping.ShipmentResponse, error)
}

// OrderCommitter runs the atomic stock-decrement-plus-order-write.
type OrderCommitter interface {
	CommitOrderWithStock(ctx context.Context, items []models.OrderItem, order *models.Order) (string, error)
}

// CacheInvalidator drops cached catalog state after stock changes.
type CacheInvalidator interface {
	InvalidateProducts(ctx context.Context) error
}

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	PublishOrderFinalized(ctx context.Context, event *models.OrderFinalizedEvent) error
}

// FinalizeRequest is the payload for converting a confirmed payment plus a
// cart into a persisted order.
type FinalizeRequest struct {
	Items        []models.OrderItem  `json:"items" binding:"required,min=1,dive"`
	ShippingInfo models.ShippingInfo `json:"shipping_info" binding:"required"`
	UserInfo     models.UserInfo     `json:"user_info" binding:"required"`
}

// FinalizeResult is returned on a successful finalization.
type FinalizeResult struct {
	Success        bool          `json:"success"`
	OrderID        string        `json:"order_id"`
	TrackingNumber *string       `json:"tracking_number"`
	OrderDetails   *models.Order `json:"order_details"`
}

// OrderFinalizer drives the order-finalization workflow: create the
// shipment with the carrier, then commit the stock decrement and the order
// document in one store transaction. The shipment call happens before and
// outside the transaction; a commit failure after a created shipment is an
// accepted inconsistency that is logged and counted for operators, not
// compensated.
type OrderFinalizer struct {
	shipping ShipmentCreator
	store    OrderCommitter
	cache    CacheInvalidator
	events   EventPublisher
	carrier  config.CarrierConfig
	sender   config.SenderConfig
	logger   *zap.Logger
}

// NewOrderFinalizer creates an order finalizer. cache and events are
// optional; nil disables cache invalidation and event publishing.
func NewOrderFinalizer(
	shipmentCreator ShipmentCreator,
	orderCommitter OrderCommitter,
	cache CacheInvalidator,
	events EventPublisher,
	carrier config.CarrierConfig,
	sender config.SenderConfig,
) *OrderFinalizer {
	return &OrderFinalizer{
		shipping: shipmentCreator,
		store:    orderCommitter,
		cache:    cache,
		events:   events,
		carrier:  carrier,
		sender:   sender,
		logger:   util.GetLogger(),
	}
}

// TotalValue is the cart total from the line-item price snapshots.
func TotalValue(items []models.OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// Finalize converts a confirmed payment plus a cart and shipping selection
// into a created shipment, a committed stock decrement and a persisted
// order.
func (f *OrderFinalizer) Finalize(ctx context.Context, req *FinalizeRequest, confirmation *payment.Confirmation) (*FinalizeResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderFinalizer.Finalize")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, errors.New("cart is empty")
	}
	if !confirmation.Approved() {
		util.OrdersFailedTotal.WithLabelValues("payment_declined").Inc()
		return nil, &payment.DeclinedError{
			ResponseCode: confirmation.ResponseCode,
			Status:       confirmation.Status,
		}
	}

	totalValue := TotalValue(req.Items)
	shipmentReq := f.buildShipmentRequest(req, confirmation.BuyOrder, totalValue)

	shipCtx, cancel := context.WithTimeout(ctx, shipmentCreateTimeout)
	defer cancel()

	// Single attempt: creating a shipment twice would duplicate it.
	shipmentResp, err := f.shipping.CreateShipment(shipCtx, shipmentReq)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("shipping").Inc()
		f.logger.Error("Shipment creation failed, no inventory touched",
			zap.String("buy_order", confirmation.BuyOrder),
			zap.Error(err))
		return nil, fmt.Errorf("shipment creation failed: %w", err)
	}

	transportOrderNumber, _ := shipmentResp.TrackingNumbers()

	order := f.buildOrder(req, confirmation, shipmentResp, totalValue)

	orderID, err := f.store.CommitOrderWithStock(ctx, req.Items, order)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(commitFailureStage(err)).Inc()
		util.ShipmentsOrphanedTotal.Inc()
		f.logger.Error("Order commit failed after shipment creation; shipment is orphaned",
			zap.String("buy_order", confirmation.BuyOrder),
			zap.Int64p("transport_order_number", transportOrderNumber),
			zap.Error(err))
		return nil, fmt.Errorf("order commit failed after shipment creation: %w", err)
	}

	util.OrdersFinalizedTotal.Inc()
	f.logger.Info("Order finalized",
		zap.String("order_id", orderID),
		zap.String("buy_order", confirmation.BuyOrder),
		zap.Float64("total", totalValue),
		zap.Int64p("transport_order_number", transportOrderNumber))

	var trackingNumber *string
	if transportOrderNumber != nil {
		tn := strconv.FormatInt(*transportOrderNumber, 10)
		trackingNumber = &tn
	}

	f.afterCommit(ctx, orderID, order, trackingNumber, confirmation.BuyOrder)

	return &FinalizeResult{
		Success:        true,
		OrderID:        orderID,
		TrackingNumber: trackingNumber,
		OrderDetails:   order,
	}, nil
}

// afterCommit runs the best-effort side effects: cache invalidation and
// event publishing. Failures are logged, never surfaced.
func (f *OrderFinalizer) afterCommit(ctx context.Context, orderID string, order *models.Order, trackingNumber *string, buyOrder string) {
	if f.cache != nil {
		if err := f.cache.InvalidateProducts(ctx); err != nil {
			f.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
	}

	if f.events != nil {
		event := &models.OrderFinalizedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderFinalized,
				Timestamp: time.Now().UTC(),
			},
			OrderID:     orderID,
			BuyOrder:    buyOrder,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       order.Items,
		}
		if trackingNumber != nil {
			event.TrackingNumber = *trackingNumber
		}
		if err := f.events.PublishOrderFinalized(ctx, event); err != nil {
			f.logger.Error("Failed to publish OrderFinalized event", zap.Error(err))
		}
	}
}

func (f *OrderFinalizer) buildShipmentRequest(req *FinalizeRequest, buyOrder string, totalValue float64) *shipping.ShipmentRequest {
	address := req.ShippingInfo.Address
	option := req.ShippingInfo.Option
	user := req.UserInfo

	phone := user.PhoneNumber
	if phone == "" {
		phone = "999999999"
	}

	productCode := option.ProductCode
	if productCode == 0 {
		productCode = 3
	}

	return &shipping.ShipmentRequest{
		Header: shipping.ShipmentHeader{
			CustomerCardNumber:         f.carrier.CustomerCardNumber,
			CountyOfOriginCoverageCode: f.sender.CountyCode,
			LabelType:                  1,
			MarketplaceRut:             f.carrier.MarketplaceRut,
			SellerRut:                  f.carrier.SellerRut,
		},
		Details: []shipping.ShipmentDetail{{
			Addresses: []shipping.ShipmentAddress{
				{
					CountyCoverageCode: address.CountyCode,
					StreetName:         address.StreetName,
					StreetNumber:       address.Number,
					Supplement:         address.Supplement,
					AddressType:        shipping.AddressTypeDestination,
					Observation:        "DEFAULT",
				},
				{
					CountyCoverageCode: f.sender.CountyCode,
					StreetName:         f.sender.StreetName,
					StreetNumber:       f.sender.StreetNumber,
					Supplement:         f.sender.Supplement,
					AddressType:        shipping.AddressTypeReturn,
					Observation:        "DEFAULT",
				},
			},
			Contacts: []shipping.ShipmentContact{
				{
					Name:        f.sender.Name,
					PhoneNumber: f.sender.PhoneNumber,
					Mail:        f.sender.Email,
					ContactType: shipping.ContactTypeSender,
				},
				{
					Name:        user.Name,
					PhoneNumber: phone,
					Mail:        user.Email,
					ContactType: shipping.ContactTypeRecipient,
				},
			},
			Packages: []shipping.ShipmentPackage{{
				Weight:              "1",
				Height:              "1",
				Width:               "1",
				Length:              "1",
				ServiceDeliveryCode: strconv.Itoa(option.ServiceTypeCode),
				ProductCode:         strconv.Itoa(productCode),
				DeliveryReference:   fmt.Sprintf("ORDEN-%s", buyOrder),
				GroupReference:      "GRUPO",
				// Carrier expects whole currency units.
				DeclaredValue:   strconv.Itoa(int(math.Round(totalValue))),
				DeclaredContent: "5",
			}},
		}},
	}
}

func (f *OrderFinalizer) buildOrder(req *FinalizeRequest, confirmation *payment.Confirmation, shipmentResp *shipping.ShipmentResponse, totalValue float64) *models.Order {
	return &models.Order{
		UserID:          req.UserInfo.UID,
		UserEmail:       req.UserInfo.Email,
		UserName:        req.UserInfo.Name,
		UserPhoneNumber: req.UserInfo.PhoneNumber,
		Items:           req.Items,
		TotalAmount:     totalValue,
		Status:          models.OrderStatusPaidAndShipped,
		CreatedAt:       time.Now().UTC(),
		ShippingInfo:    req.ShippingInfo,
		Shipping: models.ShippingRecord{
			ChilexpressResponse: shipmentResp.AsDocument(),
		},
		TransbankDetails: models.TransbankDetails{
			BuyOrder:        confirmation.BuyOrder,
			CardNumber:      confirmation.CardDetail.CardNumber,
			TransactionDate: confirmation.TransactionDate,
		},
	}
}

func commitFailureStage(err error) string {
	var notFound *store.ProductNotFoundError
	var insufficient *store.InsufficientStockError
	switch {
	case errors.As(err, &notFound):
		return "product_not_found"
	case errors.As(err, &insufficient):
		return "insufficient_stock"
	case errors.Is(err, store.ErrTxContention):
		return "contention"
	default:
		return "commit"
	}
}
