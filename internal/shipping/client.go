package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"carrito-backend/config"
	"carrito-backend/internal/util"

	"go.uber.org/zap"
)

// APIError is a non-2xx carrier response. The carrier body is preserved
// verbatim so the HTTP layer can pass it through.
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("carrier API error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// TransportError is a network-level failure before any carrier response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("carrier request failed: op=%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client wraps the carrier's three API products: coverage (georeference),
// rating (quotes) and transport orders (shipments + tracking). Request and
// response bodies are forwarded unmodified except for error normalization.
type Client struct {
	cfg        config.CarrierConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a carrier client from the process carrier config.
func NewClient(cfg config.CarrierConfig) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// Regions lists the carrier's region catalog.
func (c *Client) Regions(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "regions", http.MethodGet,
		c.cfg.CoverageBaseURL+"/regions", c.cfg.CoverageAPIKey, nil, nil)
}

// CoverageAreas lists coverage areas (communes) for a region.
func (c *Client) CoverageAreas(ctx context.Context, regionCode string, typ int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("RegionCode", regionCode)
	params.Set("type", strconv.Itoa(typ))
	return c.do(ctx, "coverage_areas", http.MethodGet,
		c.cfg.CoverageBaseURL+"/coverage-areas", c.cfg.CoverageAPIKey, nil, params)
}

// SearchStreets searches streets within a county.
func (c *Client) SearchStreets(ctx context.Context, countyName, streetName string) (json.RawMessage, error) {
	body := map[string]string{
		"countyName": countyName,
		"streetName": streetName,
	}
	return c.do(ctx, "search_streets", http.MethodPost,
		c.cfg.CoverageBaseURL+"/streets/search", c.cfg.CoverageAPIKey, body, nil)
}

// StreetNumbers looks up valid numbers for a street.
func (c *Client) StreetNumbers(ctx context.Context, streetID, streetNumber int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("streetNumber", strconv.Itoa(streetNumber))
	endpoint := fmt.Sprintf("%s/streets/%d/numbers", c.cfg.CoverageBaseURL, streetID)
	return c.do(ctx, "street_numbers", http.MethodGet, endpoint, c.cfg.CoverageAPIKey, nil, params)
}

// Georeference resolves an address to carrier geodata. The address body is
// forwarded as the frontend sent it.
func (c *Client) Georeference(ctx context.Context, address json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, "georeference", http.MethodPost,
		c.cfg.CoverageBaseURL+"/addresses/georeference", c.cfg.CoverageAPIKey, address, nil)
}

// DeliveryOffices lists carrier pick-up offices for a region and county.
func (c *Client) DeliveryOffices(ctx context.Context, regionCode, countyName string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("Type", "0")
	params.Set("RegionCode", regionCode)
	params.Set("CountyName", countyName)
	return c.do(ctx, "delivery_offices", http.MethodGet,
		c.cfg.CoverageBaseURL+"/offices", c.cfg.CoverageAPIKey, nil, params)
}

// Quote rates a courier shipment. Pass-through of the frontend body.
func (c *Client) Quote(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, "quote", http.MethodPost,
		c.cfg.RatingBaseURL+"/rates/courier", c.cfg.RatingAPIKey, body, nil)
}

// Track queries the status of a transport order. The carrier requires the
// account rut on the body, injected here.
func (c *Client) Track(ctx context.Context, body map[string]interface{}) (json.RawMessage, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	body["rut"] = c.cfg.AccountRut
	return c.do(ctx, "track", http.MethodPost,
		c.cfg.TransportBaseURL+"/tracking", c.cfg.TransportAPIKey, body, nil)
}

// CreateShipment submits a transport order. Not idempotent: calling twice
// creates two shipments, so callers invoke it at most once per order and
// never retry automatically.
func (c *Client) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	raw, err := c.do(ctx, "create_shipment", http.MethodPost,
		c.cfg.TransportBaseURL+"/transport-orders", c.cfg.TransportAPIKey, req, nil)
	if err != nil {
		return nil, err
	}

	util.ShipmentsCreatedTotal.Inc()
	return parseShipmentResponse(raw), nil
}

// CreateShipmentRaw submits an already-assembled transport-order body. Used
// by the pass-through endpoint; the finalizer uses CreateShipment.
func (c *Client) CreateShipmentRaw(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	raw, err := c.do(ctx, "create_shipment", http.MethodPost,
		c.cfg.TransportBaseURL+"/transport-orders", c.cfg.TransportAPIKey, body, nil)
	if err != nil {
		return nil, err
	}
	util.ShipmentsCreatedTotal.Inc()
	return raw, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint, apiKey string, body interface{}, params url.Values) (json.RawMessage, error) {
	if apiKey == "" {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("carrier API key not configured")}
	}

	start := time.Now()
	defer func() {
		util.ShippingAPILatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	if params != nil {
		endpoint = endpoint + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to marshal body: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.ShippingAPIRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		util.ShippingAPIRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		util.ShippingAPIRequestsTotal.WithLabelValues(op, "api_error").Inc()
		c.logger.Warn("Carrier API error",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data}
	}

	util.ShippingAPIRequestsTotal.WithLabelValues(op, "ok").Inc()
	return data, nil
}
