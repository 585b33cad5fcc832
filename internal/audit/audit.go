// Package audit writes a best-effort trail of trade status transitions to
// MongoDB. Failures are reported to the caller, who logs and moves on; the
// relational store stays the source of truth.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	DatabaseName    = "tradechat"
	CollectionAudit = "trade_status_audit"
)

const (
	ViaApproval     = "approval"
	ViaRejection    = "rejection"
	ViaDirectUpdate = "direct_update"
)

// Event is one status transition (or rejection) of a trade.
type Event struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	TradeID    uint               `bson:"trade_id"`
	ActorID    uint               `bson:"actor_id"`
	FromStatus string             `bson:"from_status,omitempty"`
	ToStatus   string             `bson:"to_status,omitempty"`
	Via        string             `bson:"via"`
	OccurredAt time.Time          `bson:"occurred_at"`
}

type Logger interface {
	TradeStatusChanged(ev *Event) error
}

type mongoLogger struct {
	client *mongo.Client
}

// NewMongoLogger records events in the trade_status_audit collection.
func NewMongoLogger(client *mongo.Client) Logger {
	return &mongoLogger{client: client}
}

func (l *mongoLogger) TradeStatusChanged(ev *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if ev.ID.IsZero() {
		ev.ID = primitive.NewObjectID()
	}

	collection := l.client.Database(DatabaseName).Collection(CollectionAudit)
	if _, err := collection.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("failed to insert status audit to Mongo: %w", err)
	}
	return nil
}

type nopLogger struct{}

// NewNopLogger is used when no MONGO_URI is configured and in tests.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) TradeStatusChanged(*Event) error { return nil }
