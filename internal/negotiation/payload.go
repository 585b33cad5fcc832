package negotiation

import (
	"encoding/json"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/models"
)

// ApprovalState is the lifecycle of a status-change request. It moves
// PENDING -> APPROVED or PENDING -> REJECTED exactly once.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "PENDING"
	ApprovalApproved ApprovalState = "APPROVED"
	ApprovalRejected ApprovalState = "REJECTED"
)

const (
	payloadTypeStatusRequest = "STATUS_REQUEST"
	// Historical request messages used this type with a transactionType
	// field instead of requestedStatus. They must still parse.
	payloadTypeTradeRequest = "TRADE_REQUEST"
)

// Payload is the structured status-change request embedded as a message's
// content. It is JSON-encoded text; the shape must round-trip exactly,
// including the legacy transactionType field on old rows.
type Payload struct {
	Type            string        `json:"type"`
	RequestedStatus string        `json:"requestedStatus,omitempty"`
	CurrentStatus   string        `json:"currentStatus,omitempty"`
	RegionCode      string        `json:"regionCode,omitempty"`
	RegionName      string        `json:"regionName,omitempty"`
	AddressDetail   string        `json:"addressDetail,omitempty"`
	Amount          *int64        `json:"amount,omitempty"`
	Status          ApprovalState `json:"status"`
	TransactionType string        `json:"transactionType,omitempty"`
}

// Requested returns the requested trade status, reading the legacy
// transactionType field when requestedStatus is absent.
func (p *Payload) Requested() models.TradeStatus {
	if p.RequestedStatus != "" {
		return models.TradeStatus(p.RequestedStatus)
	}
	return models.TradeStatus(p.TransactionType)
}

// Encode serializes the payload for storage in a message's content column.
func (p *Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", apperr.Storage("encoding negotiation payload", err)
	}
	return string(b), nil
}

// ParsePayload decodes a message's content into a negotiation payload.
// Absent, malformed or non-request content yields ValidationFailed, never a
// crash: request messages share the log with free-form chat.
func ParsePayload(content *string) (*Payload, error) {
	if content == nil || *content == "" {
		return nil, apperr.Validation("message is not a status change request")
	}
	var p Payload
	if err := json.Unmarshal([]byte(*content), &p); err != nil {
		return nil, apperr.Validation("malformed status change request")
	}
	if p.Type != payloadTypeStatusRequest && p.Type != payloadTypeTradeRequest {
		return nil, apperr.Validation("message is not a status change request")
	}
	return &p, nil
}
