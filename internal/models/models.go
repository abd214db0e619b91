package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product represents a catalog document in the products collection.
// Stock is only ever mutated through the transactional order commit.
type Product struct {
	ID          string  `bson:"_id,omitempty" json:"id"`
	Name        string  `bson:"name" json:"name"`
	Price       float64 `bson:"price" json:"price"`
	Stock       int     `bson:"stock" json:"stock"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	ImageURL    string  `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

// OrderItem is a cart line item with a price snapshot taken at order time,
// decoupled from the current catalog price.
type OrderItem struct {
	ID       string  `bson:"id" json:"id" binding:"required"`
	Name     string  `bson:"name" json:"name" binding:"required"`
	Quantity int     `bson:"quantity" json:"quantity" binding:"required,min=1"`
	Price    float64 `bson:"price" json:"price" binding:"required"`
}

// ShippingAddress is the destination chosen by the buyer. Field names follow
// the frontend payload; county codes are carrier coverage codes.
type ShippingAddress struct {
	Alias      string `bson:"alias,omitempty" json:"alias,omitempty"`
	Region     string `bson:"region,omitempty" json:"region,omitempty"`
	CountyName string `bson:"comuna,omitempty" json:"comuna,omitempty"`
	CountyCode string `bson:"comuna_cod,omitempty" json:"comuna_cod,omitempty"`
	StreetName string `bson:"calle,omitempty" json:"calle,omitempty"`
	Number     int    `bson:"nro,omitempty" json:"nro,omitempty"`
	Supplement string `bson:"suplemento,omitempty" json:"suplemento,omitempty"`
	UserID     string `bson:"userId,omitempty" json:"userId,omitempty"`
}

// ShippingOption is the carrier service the buyer picked out of a quote.
type ShippingOption struct {
	ServiceTypeCode    int    `bson:"serviceTypeCode" json:"serviceTypeCode"`
	ProductCode        int    `bson:"productCode,omitempty" json:"productCode,omitempty"`
	ServiceDescription string `bson:"serviceDescription,omitempty" json:"serviceDescription,omitempty"`
	ServiceValue       string `bson:"serviceValue,omitempty" json:"serviceValue,omitempty"`
}

// ShippingInfo pairs the chosen address with the chosen service option.
type ShippingInfo struct {
	Address ShippingAddress `bson:"address" json:"address" binding:"required"`
	Option  ShippingOption  `bson:"option" json:"option" binding:"required"`
}

// UserInfo identifies the buyer on a finalization request.
type UserInfo struct {
	UID         string `bson:"uid" json:"uid" binding:"required"`
	Email       string `bson:"email" json:"email" binding:"required"`
	Name        string `bson:"name" json:"name" binding:"required"`
	PhoneNumber string `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
}

// User is a document in the users collection.
type User struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	UserID      string `bson:"userId" json:"userId"`
	UserName    string `bson:"userName" json:"userName"`
	Email       string `bson:"email,omitempty" json:"email,omitempty"`
	PhoneNumber string `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Role        string `bson:"role,omitempty" json:"role,omitempty"`
}

// Address is a saved delivery address in the addresses collection.
type Address struct {
	ID              string `bson:"_id,omitempty" json:"id"`
	ShippingAddress `bson:",inline"`
}

// TransbankDetails are the payment fields denormalized onto the order.
type TransbankDetails struct {
	BuyOrder        string `bson:"buy_order" json:"buy_order"`
	CardNumber      string `bson:"card_number" json:"card_number"`
	TransactionDate string `bson:"transaction_date" json:"transaction_date"`
}

// ShippingRecord wraps the raw carrier response stored with the order.
type ShippingRecord struct {
	ChilexpressResponse map[string]interface{} `bson:"chilexpressResponse" json:"chilexpressResponse"`
}

// Order is the denormalized order document, written exactly once per
// successful finalization and never mutated afterwards by this service.
type Order struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID           string             `bson:"userId" json:"userId"`
	UserEmail        string             `bson:"userEmail" json:"userEmail"`
	UserName         string             `bson:"userName" json:"userName"`
	UserPhoneNumber  string             `bson:"userPhoneNumber,omitempty" json:"userPhoneNumber,omitempty"`
	Items            []OrderItem        `bson:"items" json:"items"`
	TotalAmount      float64            `bson:"totalAmount" json:"totalAmount"`
	Status           string             `bson:"status" json:"status"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	ShippingInfo     ShippingInfo       `bson:"shipping_info" json:"shipping_info"`
	Shipping         ShippingRecord     `bson:"shipping" json:"shipping"`
	TransbankDetails TransbankDetails   `bson:"transbank_details" json:"transbank_details"`
}

// Order statuses
const (
	OrderStatusPaidAndShipped = "paid_and_shipping_created"
)
