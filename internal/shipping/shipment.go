package shipping

import "encoding/json"

// Address types on a transport-order request.
const (
	AddressTypeDestination = "DEST"
	AddressTypeReturn      = "DEV"
)

// Contact types on a transport-order request.
const (
	ContactTypeSender    = "R"
	ContactTypeRecipient = "D"
)

// ShipmentRequest is the carrier's transport-order creation body.
type ShipmentRequest struct {
	Header  ShipmentHeader   `json:"header"`
	Details []ShipmentDetail `json:"details"`
}

type ShipmentHeader struct {
	CustomerCardNumber         string `json:"customerCardNumber"`
	CountyOfOriginCoverageCode string `json:"countyOfOriginCoverageCode"`
	LabelType                  int    `json:"labelType"`
	MarketplaceRut             string `json:"marketplaceRut"`
	SellerRut                  string `json:"sellerRut"`
}

type ShipmentDetail struct {
	Addresses []ShipmentAddress `json:"addresses"`
	Contacts  []ShipmentContact `json:"contacts"`
	Packages  []ShipmentPackage `json:"packages"`
}

type ShipmentAddress struct {
	AddressID                  int    `json:"addressId"`
	CountyCoverageCode         string `json:"countyCoverageCode"`
	StreetName                 string `json:"streetName"`
	StreetNumber               int    `json:"streetNumber"`
	Supplement                 string `json:"supplement"`
	AddressType                string `json:"addressType"`
	DeliveryOnCommercialOffice bool   `json:"deliveryOnCommercialOffice"`
	CommercialOfficeID         *int   `json:"commercialOfficeId"`
	Observation                string `json:"observation"`
}

type ShipmentContact struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Mail        string `json:"mail"`
	ContactType string `json:"contactType"`
}

type ShipmentPackage struct {
	Weight                     string `json:"weight"`
	Height                     string `json:"height"`
	Width                      string `json:"width"`
	Length                     string `json:"length"`
	ServiceDeliveryCode        string `json:"serviceDeliveryCode"`
	ProductCode                string `json:"productCode"`
	DeliveryReference          string `json:"deliveryReference"`
	GroupReference             string `json:"groupReference"`
	DeclaredValue              string `json:"declaredValue"`
	DeclaredContent            string `json:"declaredContent"`
	ReceivableAmountInDelivery int    `json:"receivableAmountInDelivery"`
}

// ShipmentResponse holds the carrier's creation response. Raw is the exact
// payload for persistence; the typed fields only cover what the finalizer
// needs to extract, since the carrier does not guarantee their presence.
type ShipmentResponse struct {
	Raw    json.RawMessage
	Header *ResponseHeader
	Data   *ResponseData
}

type ResponseHeader struct {
	StatusCode        *int   `json:"statusCode"`
	StatusDescription string `json:"statusDescription"`
}

type ResponseData struct {
	Detail []ResponseDetail `json:"detail"`
}

// ResponseDetail carries the tracking identifiers. Both fields are optional
// in the carrier's response shape.
type ResponseDetail struct {
	TransportOrderNumber *int64  `json:"transportOrderNumber"`
	Reference            *string `json:"reference"`
	Barcode              string  `json:"barcode,omitempty"`
	LabelData            string  `json:"labelData,omitempty"`
}

// TrackingNumbers extracts the transport-order number and reference from
// the first response detail. Absent fields yield nil rather than an error.
func (r *ShipmentResponse) TrackingNumbers() (transportOrderNumber *int64, reference *string) {
	if r == nil || r.Data == nil || len(r.Data.Detail) == 0 {
		return nil, nil
	}
	first := r.Data.Detail[0]
	return first.TransportOrderNumber, first.Reference
}

// AsDocument returns the raw carrier payload as a generic document for
// persistence alongside the order.
func (r *ShipmentResponse) AsDocument() map[string]interface{} {
	if r == nil || len(r.Raw) == 0 {
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(r.Raw, &doc); err != nil {
		return nil
	}
	return doc
}

func parseShipmentResponse(raw json.RawMessage) *ShipmentResponse {
	resp := &ShipmentResponse{Raw: raw}

	var envelope struct {
		Header *ResponseHeader `json:"header"`
		Data   *ResponseData   `json:"data"`
	}
	// Malformed or unexpected shapes leave the typed fields nil; the
	// caller falls back to nil tracking identifiers.
	if err := json.Unmarshal(raw, &envelope); err == nil {
		resp.Header = envelope.Header
		resp.Data = envelope.Data
	}
	return resp
}
