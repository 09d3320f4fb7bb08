package cart

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/backend-florist/internal/inventory"
	"github.com/noah-isme/backend-florist/internal/pricing"
)

// CartItemRequest is one line of a pricing request.
type CartItemRequest struct {
	CartItemID string     `json:"cartItemId,omitempty"`
	ProductID  ProductRef `json:"productId" validate:"required"`
	Quantity   int        `json:"quantity" validate:"gt=0"`
}

// CalculatePriceRequest is the body of POST /cart/calculate-price.
type CalculatePriceRequest struct {
	CartItems []CartItemRequest `json:"cartItems" validate:"required,min=1,dive"`
	Currency  string            `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// VerifyQuoteRequest is the body of POST /cart/verify-quote.
type VerifyQuoteRequest struct {
	CartItems   []CartItemRequest `json:"cartItems" validate:"required,min=1,dive"`
	Currency    string            `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Fingerprint string            `json:"fingerprint" validate:"required"`
}

func toItems(reqs []CartItemRequest) []Item {
	items := make([]Item, len(reqs))
	for i, r := range reqs {
		items[i] = Item{CartItemID: r.CartItemID, ProductID: r.ProductID, Quantity: r.Quantity}
	}
	return items
}

// PriceResponse is the data payload of a priced cart.
type PriceResponse struct {
	Subtotal     json.Number        `json:"subtotal"`
	ServiceFee   json.Number        `json:"serviceFee"`
	TotalAmount  json.Number        `json:"totalAmount"`
	Currency     string             `json:"currency"`
	Degraded     bool               `json:"degraded"`
	HasShortfall bool               `json:"hasShortfall"`
	Fingerprint  string             `json:"fingerprint"`
	Warnings     []WarningResponse  `json:"warnings"`
	CartItems    []CartItemResponse `json:"cartItems"`
}

// CartItemResponse is a priced cart line.
type CartItemResponse struct {
	CartItemID          string               `json:"cartItemId,omitempty"`
	ProductID           ProductRef           `json:"productId"`
	Quantity            int                  `json:"quantity"`
	CalculatedUnitPrice json.Number          `json:"calculatedUnitPrice"`
	LineTotal           json.Number          `json:"lineTotal"`
	Shortfall           int                  `json:"shortfall"`
	BasePrice           json.Number          `json:"basePrice"`
	Allocations         []AllocationResponse `json:"allocations"`
}

// AllocationResponse shows the units drawn from one supplier lot.
type AllocationResponse struct {
	LotID      string      `json:"lotId"`
	SupplierID string      `json:"supplierId"`
	Quantity   int         `json:"quantity"`
	UnitPrice  json.Number `json:"unitPrice"`
}

// WarningResponse is a caveat attached to a quote.
type WarningResponse struct {
	Code      string      `json:"code"`
	ProductID *ProductRef `json:"productId,omitempty"`
	Message   string      `json:"message"`
}

// LotResponse is a supplier lot as exposed to the storefront.
type LotResponse struct {
	LotID             string      `json:"lotId"`
	SupplierID        string      `json:"supplierId"`
	UnitPrice         json.Number `json:"unitPrice"`
	QuantityAvailable int         `json:"quantityAvailable"`
	ReceivedAt        string      `json:"receivedAt"`
}

// LotsResponse lists a product's lots cheapest first.
type LotsResponse struct {
	ProductID string        `json:"productId"`
	BasePrice json.Number   `json:"basePrice"`
	Lots      []LotResponse `json:"lots"`
}

func amount(m pricing.Money) json.Number {
	return json.Number(m.StringFixed(pricing.MinorUnits))
}

func newPriceResponse(q *Quote) PriceResponse {
	resp := PriceResponse{
		Subtotal:     amount(q.Summary.Subtotal),
		ServiceFee:   amount(q.Summary.ServiceFee),
		TotalAmount:  amount(q.Summary.TotalAmount),
		Currency:     q.Currency,
		Degraded:     q.Degraded,
		HasShortfall: q.Summary.HasShortfall,
		Fingerprint:  q.Fingerprint,
		Warnings:     make([]WarningResponse, 0, len(q.Warnings)),
		CartItems:    make([]CartItemResponse, 0, len(q.Summary.Lines)),
	}
	for _, w := range q.Warnings {
		resp.Warnings = append(resp.Warnings, WarningResponse{Code: w.Code, ProductID: w.ProductID, Message: w.Message})
	}
	for i, line := range q.Summary.Lines {
		item := CartItemResponse{
			CartItemID:          q.Items[i].CartItemID,
			ProductID:           q.Items[i].ProductID,
			Quantity:            line.Quantity,
			CalculatedUnitPrice: amount(line.CalculatedUnitPrice),
			LineTotal:           amount(line.LineTotal),
			Shortfall:           line.Shortfall,
			BasePrice:           amount(line.BasePrice),
			Allocations:         make([]AllocationResponse, 0, len(line.Allocations)),
		}
		for _, a := range line.Allocations {
			item.Allocations = append(item.Allocations, AllocationResponse{
				LotID:      a.LotID,
				SupplierID: a.SupplierID,
				Quantity:   a.Quantity,
				UnitPrice:  amount(a.UnitPrice),
			})
		}
		resp.CartItems = append(resp.CartItems, item)
	}
	return resp
}

func newLotsResponse(productID string, base pricing.Money, lots []inventory.SupplyLot) LotsResponse {
	resp := LotsResponse{ProductID: productID, BasePrice: amount(base), Lots: make([]LotResponse, 0, len(lots))}
	for _, l := range lots {
		resp.Lots = append(resp.Lots, LotResponse{
			LotID:             l.LotID,
			SupplierID:        l.SupplierID,
			UnitPrice:         amount(l.UnitPrice),
			QuantityAvailable: l.QuantityAvailable,
			ReceivedAt:        l.ReceivedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}
