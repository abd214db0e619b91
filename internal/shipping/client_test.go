package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"carrito-backend/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carrierConfig(baseURL string) config.CarrierConfig {
	return config.CarrierConfig{
		CoverageBaseURL:  baseURL,
		RatingBaseURL:    baseURL,
		TransportBaseURL: baseURL,
		CoverageAPIKey:   "coverage-key",
		RatingAPIKey:     "rating-key",
		TransportAPIKey:  "transport-key",
		AccountRut:       96756430,
	}
}

func TestRegionsPassthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/regions", r.URL.Path)
		assert.Equal(t, "coverage-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Write([]byte(`{"regions":[{"regionId":"R1"}]}`))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	raw, err := client.Regions(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"regions":[{"regionId":"R1"}]}`, string(raw))
}

func TestCoverageAreasQueryParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coverage-areas", r.URL.Path)
		assert.Equal(t, "R9", r.URL.Query().Get("RegionCode"))
		assert.Equal(t, "0", r.URL.Query().Get("type"))
		w.Write([]byte(`{"coverageAreas":[]}`))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	_, err := client.CoverageAreas(context.Background(), "R9", 0)
	assert.NoError(t, err)
}

func TestQuoteUsesRatingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rates/courier", r.URL.Path)
		assert.Equal(t, "rating-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "STGO", body["originCountyCode"])

		w.Write([]byte(`{"data":{"courierServiceOptions":[]}}`))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	_, err := client.Quote(context.Background(), json.RawMessage(`{"originCountyCode":"STGO"}`))
	assert.NoError(t, err)
}

func TestTrackInjectsAccountRut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tracking", r.URL.Path)
		assert.Equal(t, "transport-key", r.Header.Get("Ocp-Apim-Subscription-Key"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(96756430), body["rut"])
		assert.Equal(t, "990123", body["transportOrderNumber"])

		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	_, err := client.Track(context.Background(), map[string]interface{}{
		"transportOrderNumber": "990123",
	})
	assert.NoError(t, err)
}

func TestCreateShipmentParsesTracking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transport-orders", r.URL.Path)

		var body ShipmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "18578680", body.Header.CustomerCardNumber)

		w.Write([]byte(`{
			"header": {"statusCode": 0, "statusDescription": "OK"},
			"data": {"detail": [{"transportOrderNumber": 990123, "reference": "ORDEN-BO-1"}]}
		}`))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	resp, err := client.CreateShipment(context.Background(), &ShipmentRequest{
		Header: ShipmentHeader{CustomerCardNumber: "18578680"},
	})
	require.NoError(t, err)

	ton, ref := resp.TrackingNumbers()
	require.NotNil(t, ton)
	assert.Equal(t, int64(990123), *ton)
	require.NotNil(t, ref)
	assert.Equal(t, "ORDEN-BO-1", *ref)

	doc := resp.AsDocument()
	require.NotNil(t, doc)
	assert.Contains(t, doc, "header")
}

func TestCreateShipmentAPIErrorKeepsBody(t *testing.T) {
	carrierBody := `{"errors":[{"field":"countyCoverageCode","message":"invalid"}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(carrierBody))
	}))
	defer server.Close()

	client := NewClient(carrierConfig(server.URL))

	_, err := client.CreateShipment(context.Background(), &ShipmentRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.JSONEq(t, carrierBody, string(apiErr.Body))
}

func TestTransportErrorOnUnreachableCarrier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(carrierConfig(server.URL))

	_, err := client.Regions(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "regions", transportErr.Op)
}

func TestMissingAPIKey(t *testing.T) {
	cfg := carrierConfig("http://localhost:0")
	cfg.CoverageAPIKey = ""
	client := NewClient(cfg)

	_, err := client.Regions(context.Background())

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestTrackingNumbersAbsent(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no data", `{"header":{"statusCode":0}}`},
		{"empty detail", `{"data":{"detail":[]}}`},
		{"detail without fields", `{"data":{"detail":[{"barcode":"xyz"}]}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := parseShipmentResponse(json.RawMessage(tc.raw))
			ton, ref := resp.TrackingNumbers()
			assert.Nil(t, ton)
			assert.Nil(t, ref)
		})
	}
}

func TestAsDocumentMalformed(t *testing.T) {
	resp := &ShipmentResponse{Raw: json.RawMessage(`not json`)}
	assert.Nil(t, resp.AsDocument())

	var nilResp *ShipmentResponse
	assert.Nil(t, nilResp.AsDocument())
}
