package models

import (
	"errors"
	"strings"
	"time"
)

// RequestType distinguishes a trade from a purchase.
type RequestType string

const (
	RequestSwap RequestType = "swap"
	RequestBuy  RequestType = "buy"
)

// SwapStatus is the negotiation state of a request.
type SwapStatus string

const (
	StatusPending  SwapStatus = "pending"
	StatusAccepted SwapStatus = "accepted"
	StatusRejected SwapStatus = "rejected"
)

// ShippingStatus tracks fulfilment of an accepted request.
type ShippingStatus string

const (
	ShippingPending    ShippingStatus = "pending"
	ShippingProcessing ShippingStatus = "processing"
	ShippingShipped    ShippingStatus = "shipped"
	ShippingDelivered  ShippingStatus = "delivered"
)

// PaymentStatus is derived from the request type at creation.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// SwapAction is an owner-issued transition on a request.
type SwapAction string

const (
	ActionAccept  SwapAction = "accepted"
	ActionReject  SwapAction = "rejected"
	ActionShip    SwapAction = "shipped"
	ActionDeliver SwapAction = "delivered"
)

// ErrNotParty is returned by Counterpart when the caller is neither side of the request.
var ErrNotParty = errors.New("user is not a party to this swap request")

// SwapRequest is a requester's offer for an owner's book.
type SwapRequest struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	RequesterID     uint           `gorm:"not null;index" json:"requesterId"`
	OwnerID         uint           `gorm:"not null;index" json:"ownerId"`
	BookID          uint           `gorm:"not null;index" json:"bookId"`
	Type            RequestType    `gorm:"size:10;not null;default:swap" json:"type"`
	Status          SwapStatus     `gorm:"size:16;not null;default:pending;index" json:"status"`
	ShippingStatus  ShippingStatus `gorm:"size:16;not null;default:pending" json:"shippingStatus"`
	PaymentStatus   PaymentStatus  `gorm:"size:16;not null;default:pending" json:"paymentStatus"`
	ShippingAddress string         `gorm:"type:text" json:"shippingAddress,omitempty"`
	Book            *Book          `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Requester       *User          `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Owner           *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	CreatedAt       time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Counterpart returns the other party of the request.
func (r *SwapRequest) Counterpart(selfID uint) (uint, error) {
	switch selfID {
	case r.RequesterID:
		return r.OwnerID, nil
	case r.OwnerID:
		return r.RequesterID, nil
	default:
		return 0, ErrNotParty
	}
}

// IsParty reports whether userID is the requester or the owner.
func (r *SwapRequest) IsParty(userID uint) bool {
	_, err := r.Counterpart(userID)
	return err == nil
}

// State returns the lifecycle state stored on the request.
func (r *SwapRequest) State() SwapState {
	return SwapState{Status: r.Status, Shipping: r.ShippingStatus}
}

// PaymentStatusFor derives the initial payment status for a request type.
func PaymentStatusFor(t RequestType) PaymentStatus {
	if t == RequestBuy {
		return PaymentPaid
	}
	return PaymentPending
}

// ParseRequestType validates a client-supplied request type. Empty means swap.
func ParseRequestType(raw string) (RequestType, error) {
	switch RequestType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RequestSwap:
		return RequestSwap, nil
	case RequestBuy:
		return RequestBuy, nil
	}
	return "", NewValidationError("Invalid request type")
}

// ParseSwapAction validates a client-supplied status change.
func ParseSwapAction(raw string) (SwapAction, error) {
	switch a := SwapAction(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionAccept, ActionReject, ActionShip, ActionDeliver:
		return a, nil
	}
	return "", NewValidationError("Invalid status")
}

// SwapState is the combined negotiation and shipping state of a request.
// Shipping only advances while Status is accepted, so no transition can
// produce a shipped request that is pending or rejected.
type SwapState struct {
	Status   SwapStatus
	Shipping ShippingStatus
}

var shippingRank = map[ShippingStatus]int{
	ShippingPending:    0,
	ShippingProcessing: 1,
	ShippingShipped:    2,
	ShippingDelivered:  3,
}

// Apply returns the state reached by performing action, or an InvalidOperation
// error when the action is not legal from s.
func (s SwapState) Apply(action SwapAction) (SwapState, error) {
	switch action {
	case ActionAccept, ActionReject:
		if s.Status != StatusPending {
			return s, NewInvalidOperationError("Swap request has already been " + string(s.Status))
		}
		if action == ActionAccept {
			return SwapState{Status: StatusAccepted, Shipping: s.Shipping}, nil
		}
		return SwapState{Status: StatusRejected, Shipping: s.Shipping}, nil
	case ActionShip, ActionDeliver:
		if s.Status != StatusAccepted {
			return s, NewInvalidOperationError("Only accepted requests can be marked as " + string(action))
		}
		target := ShippingShipped
		if action == ActionDeliver {
			target = ShippingDelivered
		}
		if shippingRank[target] <= shippingRank[s.Shipping] {
			return s, NewInvalidOperationError("Request is already " + string(s.Shipping))
		}
		return SwapState{Status: StatusAccepted, Shipping: target}, nil
	}
	return s, NewValidationError("Invalid status")
}
