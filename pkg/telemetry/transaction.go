// Package telemetry correlates every operation to a transaction id and
// provides the structured log sink and tracing hooks used across the core.
package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transaction identifies a single top-level request and all work derived
// from it. It is carried through every downstream call and attached to
// every log, span, and audit record.
type Transaction struct {
	ID        string    `json:"transaction_id"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Role      string    `json:"role,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// NewTransaction creates a transaction for an externally-initiated operation.
func NewTransaction(sessionID, userID, role string) *Transaction {
	return &Transaction{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		StartedAt: time.Now().UTC(),
	}
}

// Child derives a transaction for a nested call (e.g. a tool call issued
// by an agent serving this transaction). The child keeps the parent's
// session, user, and role; the parent id records lineage.
func (t *Transaction) Child() *Transaction {
	return &Transaction{
		ID:        uuid.New().String(),
		SessionID: t.SessionID,
		UserID:    t.UserID,
		Role:      t.Role,
		ParentID:  t.ID,
		StartedAt: time.Now().UTC(),
	}
}

type txnKey struct{}

// WithTransaction attaches a transaction to the context.
func WithTransaction(ctx context.Context, txn *Transaction) context.Context {
	return context.WithValue(ctx, txnKey{}, txn)
}

// TransactionFrom returns the transaction carried by the context, or a
// fresh anonymous one if none is present. Operations deeper in the call
// tree can therefore always log a transaction id.
func TransactionFrom(ctx context.Context) *Transaction {
	if txn, ok := ctx.Value(txnKey{}).(*Transaction); ok {
		return txn
	}
	return NewTransaction("", "", "")
}

// TransactionID returns the transaction id on the context, or "" if none.
func TransactionID(ctx context.Context) string {
	if txn, ok := ctx.Value(txnKey{}).(*Transaction); ok {
		return txn.ID
	}
	return ""
}
