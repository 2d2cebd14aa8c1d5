package handler

import (
	"context"

	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/logger"
)

// StoreNotifier adapts conversationstore.Store to
// orchestrator.ConversationNotifier, so a completed exchange is durably
// persisted without the orchestrator depending on gorm directly (spec.md
// §9 "collaborators as interfaces"). Callers are expected to have already
// created the conversation row (via Store.EnsureExists, Store.Create or
// Store.CreatePlaceholder) before the orchestrator runs, so NotifyExchange
// only ever appends.
type StoreNotifier struct {
	store  conversationstore.Store
	userID func(ctx context.Context) string
}

func NewStoreNotifier(store conversationstore.Store, userID func(ctx context.Context) string) *StoreNotifier {
	return &StoreNotifier{store: store, userID: userID}
}

// NotifyExchange appends the exchange to the durable conversation.
// Persistence failures are logged, never surfaced — the in-process
// ConversationMemory already holds the authoritative live state for this
// request, and a later poll of /api/conversations simply would not see
// this turn.
func (n *StoreNotifier) NotifyExchange(ctx context.Context, conversationID, question, answer string) {
	userID := n.userID(ctx)
	if err := n.store.AppendExchange(ctx, conversationID, userID, question, answer); err != nil {
		logger.Errorf(ctx, "handler: failed to persist exchange for conversation %s: %v", conversationID, err)
	}
}
