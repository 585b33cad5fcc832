// Package negotiation interprets status-change-request messages and drives
// the trade state machine. Every operation is one GORM transaction; the
// participant, self-approval and PENDING guards run inside that transaction
// so concurrent approvals cannot double-apply.
package negotiation

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tradechat_backend/internal/apperr"
	"tradechat_backend/internal/audit"
	"tradechat_backend/models"
)

// RegionResolver looks up the region collaborator inside the caller's
// transaction. A nil region (no error) means the code is unknown.
type RegionResolver interface {
	ResolveRegion(tx *gorm.DB, code string) (*models.Region, error)
}

// GormRegions resolves regions from the relational store.
type GormRegions struct{}

func (GormRegions) ResolveRegion(tx *gorm.DB, code string) (*models.Region, error) {
	var region models.Region
	err := tx.Where("region_code = ?", code).First(&region).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("looking up region", err)
	}
	return &region, nil
}

// Engine owns the trade state machine. It never caches state across calls;
// every operation re-reads the trade and message inside its transaction.
type Engine struct {
	db      *gorm.DB
	regions RegionResolver
	audit   audit.Logger
}

func NewEngine(db *gorm.DB, regions RegionResolver, auditLog audit.Logger) *Engine {
	if regions == nil {
		regions = GormRegions{}
	}
	if auditLog == nil {
		auditLog = audit.NewNopLogger()
	}
	return &Engine{db: db, regions: regions, audit: auditLog}
}

// RequestExtra carries the logistics of an in-person/shipping request.
type RequestExtra struct {
	RegionCode    string
	AddressDetail string
	Amount        *int64
}

// CreateStatusChangeRequest appends a status-request message whose content
// is a PENDING negotiation payload snapshotting the trade's current status.
// In-person/shipping requests require region, address and amount.
func (e *Engine) CreateStatusChangeRequest(tradeID, requesterID uint, requested models.TradeStatus, extra *RequestExtra) (*models.Message, *Payload, error) {
	if !ValidRequestedStatus(requested) {
		return nil, nil, apperr.Validation("invalid requested status")
	}

	var message models.Message
	var payload Payload

	err := e.db.Transaction(func(tx *gorm.DB) error {
		trade, err := loadTrade(tx, tradeID, requesterID)
		if err != nil {
			return err
		}

		payload = Payload{
			Type:            payloadTypeStatusRequest,
			RequestedStatus: string(requested),
			CurrentStatus:   string(trade.Status),
			Status:          ApprovalPending,
		}

		if requested == models.TradeStatusInPerson || requested == models.TradeStatusShipping {
			if extra == nil || extra.RegionCode == "" || extra.AddressDetail == "" || extra.Amount == nil {
				return apperr.Validation("in-person/shipping requests require region, address detail and amount")
			}
			region, err := e.regions.ResolveRegion(tx, extra.RegionCode)
			if err != nil {
				return err
			}
			payload.RegionCode = extra.RegionCode
			payload.RegionName = extra.RegionCode
			if region != nil {
				payload.RegionName = region.DisplayName()
			}
			payload.AddressDetail = extra.AddressDetail
			payload.Amount = extra.Amount
		}

		content, err := payload.Encode()
		if err != nil {
			return err
		}

		message = models.Message{
			TradeID:     tradeID,
			SenderID:    requesterID,
			Content:     &content,
			MessageType: models.MessageTypeForStatus(requested),
		}
		if err := tx.Create(&message).Error; err != nil {
			return apperr.Storage("creating status request message", err)
		}

		return touchTrade(tx, tradeID)
	})
	if err != nil {
		return nil, nil, err
	}
	return &message, &payload, nil
}

// ApproveStatusChangeRequest applies a PENDING request: the trade moves to
// the requested status, in-person/shipping approvals snapshot a trade
// record, the request payload is rewritten to APPROVED and a system message
// is appended. All four effects commit together or not at all.
func (e *Engine) ApproveStatusChangeRequest(tradeID, messageID, approverID uint) (models.TradeStatus, *Payload, error) {
	var newStatus models.TradeStatus
	var previous models.TradeStatus
	var payload *Payload

	err := e.db.Transaction(func(tx *gorm.DB) error {
		trade, err := loadTrade(tx, tradeID, approverID)
		if err != nil {
			return err
		}
		previous = trade.Status

		request, p, err := loadPendingRequest(tx, tradeID, messageID)
		if err != nil {
			return err
		}
		if request.SenderID == approverID {
			return apperr.Validation("a request cannot be approved by its own sender")
		}
		payload = p

		newStatus = payload.Requested()
		if !models.ValidTradeStatus(newStatus) {
			return apperr.Validation("invalid requested status")
		}

		if err := tx.Model(&models.Trade{}).Where("id = ?", tradeID).
			Updates(map[string]interface{}{"status": newStatus, "updated_at": time.Now()}).Error; err != nil {
			return apperr.Storage("updating trade status", err)
		}

		if (newStatus == models.TradeStatusInPerson || newStatus == models.TradeStatusShipping) && payload.RegionCode != "" {
			region, err := e.regions.ResolveRegion(tx, payload.RegionCode)
			if err != nil {
				return err
			}
			record := models.TradeRecord{
				TradeID:       tradeID,
				Amount:        amountOrZero(payload.Amount),
				AddressDetail: payload.AddressDetail,
			}
			if region != nil {
				record.RegionID = &region.ID
			}
			if err := tx.Create(&record).Error; err != nil {
				return apperr.Storage("creating trade record", err)
			}
		}

		payload.Status = ApprovalApproved
		if err := rewriteRequest(tx, messageID, payload); err != nil {
			return err
		}

		return appendSystemMessage(tx, tradeID, approverID, approvalSummary(newStatus, payload.Amount))
	})
	if err != nil {
		return "", nil, err
	}

	e.recordTransition(tradeID, approverID, previous, newStatus, audit.ViaApproval)
	return newStatus, payload, nil
}

// RejectStatusChangeRequest marks a PENDING request REJECTED and appends a
// system message. The trade's status is untouched. Either participant may
// reject, including the sender withdrawing their own request.
func (e *Engine) RejectStatusChangeRequest(tradeID, messageID, rejecterID uint) (*Payload, error) {
	var payload *Payload

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if _, err := loadTrade(tx, tradeID, rejecterID); err != nil {
			return err
		}

		_, p, err := loadPendingRequest(tx, tradeID, messageID)
		if err != nil {
			return err
		}
		payload = p

		payload.Status = ApprovalRejected
		if err := rewriteRequest(tx, messageID, payload); err != nil {
			return err
		}

		return appendSystemMessage(tx, tradeID, rejecterID, "The status change request was rejected.")
	})
	if err != nil {
		return nil, err
	}

	e.recordTransition(tradeID, rejecterID, "", "", audit.ViaRejection)
	return payload, nil
}

// UpdateTradeStatus is the direct status write used by the real-time
// transport's legacy path. It bypasses the approval protocol and creates no
// trade record.
func (e *Engine) UpdateTradeStatus(tradeID, userID uint, status models.TradeStatus) (*models.Trade, error) {
	if !models.ValidTradeStatus(status) {
		return nil, apperr.Validation("invalid status")
	}

	var trade *models.Trade
	var previous models.TradeStatus

	err := e.db.Transaction(func(tx *gorm.DB) error {
		t, err := loadTrade(tx, tradeID, userID)
		if err != nil {
			return err
		}
		previous = t.Status

		if err := tx.Model(&models.Trade{}).Where("id = ?", tradeID).
			Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error; err != nil {
			return apperr.Storage("updating trade status", err)
		}
		t.Status = status
		trade = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.recordTransition(tradeID, userID, previous, status, audit.ViaDirectUpdate)
	return trade, nil
}

// ValidRequestedStatus reports whether s may be the subject of a
// status-change request. Any lifecycle state is requestable, including
// PENDING (reopening negotiation).
func ValidRequestedStatus(s models.TradeStatus) bool {
	return models.ValidTradeStatus(s)
}

func loadTrade(tx *gorm.DB, tradeID, userID uint) (*models.Trade, error) {
	var trade models.Trade
	err := tx.First(&trade, tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chat room not found")
	}
	if err != nil {
		return nil, apperr.Storage("loading trade", err)
	}
	if !trade.Participant(userID) {
		return nil, apperr.Forbidden("you are not a participant of this chat room")
	}
	return &trade, nil
}

// loadPendingRequest fetches the request message and its payload, failing
// ValidationFailed when the payload is malformed or already processed. The
// PENDING check happens here, inside the caller's transaction, so a second
// concurrent approval observes the rewritten payload and fails.
func loadPendingRequest(tx *gorm.DB, tradeID, messageID uint) (*models.Message, *Payload, error) {
	var request models.Message
	err := tx.Where("id = ? AND trade_id = ?", messageID, tradeID).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("request message not found")
	}
	if err != nil {
		return nil, nil, apperr.Storage("loading request message", err)
	}

	payload, err := ParsePayload(request.Content)
	if err != nil {
		return nil, nil, err
	}
	if payload.Status != ApprovalPending {
		return nil, nil, apperr.Validation("request already processed")
	}
	return &request, payload, nil
}

func rewriteRequest(tx *gorm.DB, messageID uint, payload *Payload) error {
	content, err := payload.Encode()
	if err != nil {
		return err
	}
	if err := tx.Model(&models.Message{}).Where("id = ?", messageID).
		Update("content", content).Error; err != nil {
		return apperr.Storage("rewriting request message", err)
	}
	return nil
}

func appendSystemMessage(tx *gorm.DB, tradeID, senderID uint, text string) error {
	msg := models.Message{
		TradeID:     tradeID,
		SenderID:    senderID,
		Content:     &text,
		MessageType: models.MessageTypeNormal,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return apperr.Storage("creating system message", err)
	}
	return nil
}

func touchTrade(tx *gorm.DB, tradeID uint) error {
	if err := tx.Model(&models.Trade{}).Where("id = ?", tradeID).
		Update("updated_at", time.Now()).Error; err != nil {
		return apperr.Storage("touching trade", err)
	}
	return nil
}

func statusText(s models.TradeStatus) string {
	switch s {
	case models.TradeStatusInPerson:
		return "in-person"
	case models.TradeStatusShipping:
		return "shipping"
	case models.TradeStatusCompleted:
		return "completed"
	case models.TradeStatusCanceled:
		return "canceled"
	case models.TradeStatusPending:
		return "negotiating"
	default:
		return string(s)
	}
}

func approvalSummary(status models.TradeStatus, amount *int64) string {
	if amount != nil {
		return fmt.Sprintf("Trade approved. (%s, %s)", statusText(status), FormatAmount(*amount))
	}
	return fmt.Sprintf("Trade status changed to '%s'.", statusText(status))
}

// FormatAmount renders an amount with thousands separators.
func FormatAmount(amount int64) string {
	s := fmt.Sprintf("%d", amount)
	neg := false
	if amount < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func amountOrZero(amount *int64) int64 {
	if amount == nil {
		return 0
	}
	return *amount
}

// recordTransition writes the audit event outside the transaction; audit is
// best-effort and never fails the operation.
func (e *Engine) recordTransition(tradeID, actorID uint, from, to models.TradeStatus, via string) {
	ev := &audit.Event{
		TradeID:    tradeID,
		ActorID:    actorID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Via:        via,
		OccurredAt: time.Now(),
	}
	if err := e.audit.TradeStatusChanged(ev); err != nil {
		log.Printf("Warning: failed to record status audit for trade %d: %v", tradeID, err)
	}
}
