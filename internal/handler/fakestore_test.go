package handler

import (
	"context"
	"sync"

	"github.com/kristoman/standardgpt/internal/conversationstore"
	"github.com/kristoman/standardgpt/internal/types"
)

// fakeStore is an in-memory conversationstore.Store test double, shared
// across this package's handler tests.
type fakeStore struct {
	mu    sync.Mutex
	convs map[string]*conversationstore.Conversation
	msgs  map[string][]types.Exchange

	createErr       error
	ensureExistsErr error
	appendErr       error
	getErr          error
	listErr         error
	deleteErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		convs: make(map[string]*conversationstore.Conversation),
		msgs:  make(map[string][]types.Exchange),
	}
}

func (f *fakeStore) Create(_ context.Context, userID, question, answer string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "created-conversation"
	f.convs[id] = &conversationstore.Conversation{ID: id, UserID: userID, Title: "Ny samtale", MessageCount: 1}
	f.msgs[id] = []types.Exchange{{User: question, System: answer}}
	return id, nil
}

func (f *fakeStore) CreatePlaceholder(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "placeholder-conversation"
	f.convs[id] = &conversationstore.Conversation{ID: id, UserID: userID, Title: "Ny samtale"}
	return id, nil
}

func (f *fakeStore) EnsureExists(_ context.Context, conversationID, userID string) error {
	if f.ensureExistsErr != nil {
		return f.ensureExistsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[conversationID]; ok {
		return nil
	}
	f.convs[conversationID] = &conversationstore.Conversation{ID: conversationID, UserID: userID, Title: "Ny samtale"}
	return nil
}

func (f *fakeStore) AppendExchange(_ context.Context, conversationID, userID, question, answer string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok {
		return conversationstore.ErrNotFound
	}
	conv.MessageCount++
	f.msgs[conversationID] = append(f.msgs[conversationID], types.Exchange{User: question, System: answer})
	return nil
}

func (f *fakeStore) Get(_ context.Context, conversationID, userID string) (*conversationstore.Conversation, []types.Exchange, error) {
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok || conv.UserID != userID {
		return nil, nil, conversationstore.ErrNotFound
	}
	return conv, f.msgs[conversationID], nil
}

func (f *fakeStore) List(_ context.Context, userID string, limit, offset int) ([]*conversationstore.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*conversationstore.Conversation
	for _, conv := range f.convs {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, conversationID, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok || conv.UserID != userID {
		return conversationstore.ErrNotFound
	}
	delete(f.convs, conversationID)
	delete(f.msgs, conversationID)
	return nil
}

func (f *fakeStore) Rename(_ context.Context, conversationID, userID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[conversationID]
	if !ok || conv.UserID != userID {
		return conversationstore.ErrNotFound
	}
	conv.Title = title
	return nil
}
