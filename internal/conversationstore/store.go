package conversationstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kristoman/standardgpt/internal/types"
)

// ErrNotFound is returned when a requested conversation does not exist (or
// does not belong to the requesting user).
var ErrNotFound = errors.New("conversationstore: conversation not found")

// Store is the durable conversation/exchange persistence port, grounded on
// session_manager.py's create_conversation / append-message /
// list-by-user / delete operations plus spec.md §6.4's conversation CRUD
// surface.
type Store interface {
	// Create starts a new conversation for userID seeded with the first
	// exchange, generating its title, and returns the new conversation id.
	Create(ctx context.Context, userID, question, answer string) (string, error)
	// CreatePlaceholder starts an untitled conversation with no exchanges
	// yet, for the streaming endpoint that must hand back a conversation id
	// before the first answer exists.
	CreatePlaceholder(ctx context.Context, userID string) (string, error)
	// EnsureExists idempotently creates an untitled placeholder row under
	// the caller-supplied conversationID if one doesn't already exist, so a
	// client-chosen session id can be used as a durable conversation id
	// from its very first turn. A no-op when the row already exists.
	EnsureExists(ctx context.Context, conversationID, userID string) error
	// AppendExchange records one more (question, answer) pair and bumps
	// LastMessageAt/MessageCount.
	AppendExchange(ctx context.Context, conversationID, userID, question, answer string) error
	// Get returns one conversation (scoped to userID) and its exchanges in
	// chronological order.
	Get(ctx context.Context, conversationID, userID string) (*Conversation, []types.Exchange, error)
	// List returns userID's conversations, most recently active first.
	List(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)
	// Delete removes a conversation and its messages (scoped to userID).
	Delete(ctx context.Context, conversationID, userID string) error
	// Rename overwrites a conversation's title.
	Rename(ctx context.Context, conversationID, userID, title string) error
}

type gormStore struct {
	db     *gorm.DB
	titles *TitleGenerator
	now    func() time.Time
}

// NewGormStore constructs a Store backed by db, using titles to name new
// conversations.
func NewGormStore(db *gorm.DB, titles *TitleGenerator) Store {
	return &gormStore{db: db, titles: titles, now: time.Now}
}

func (s *gormStore) Create(ctx context.Context, userID, question, answer string) (string, error) {
	id := uuid.NewString()
	title := s.titles.Generate(ctx, question, answer)
	now := s.now()

	conv := &Conversation{
		ID: id, UserID: userID, Title: title,
		CreatedAt: now, LastMessageAt: now, MessageCount: 1,
	}
	msg := &Message{ConversationID: id, UserID: userID, Question: question, Answer: answer, Timestamp: now}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *gormStore) CreatePlaceholder(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	now := s.now()
	conv := &Conversation{ID: id, UserID: userID, Title: "Ny samtale", CreatedAt: now, LastMessageAt: now}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return "", err
	}
	return id, nil
}

func (s *gormStore) EnsureExists(ctx context.Context, conversationID, userID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ?", conversationID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := s.now()
	conv := &Conversation{ID: conversationID, UserID: userID, Title: "Ny samtale", CreatedAt: now, LastMessageAt: now}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return err
	}
	return nil
}

func (s *gormStore) AppendExchange(ctx context.Context, conversationID, userID, question, answer string) error {
	now := s.now()
	msg := &Message{ConversationID: conversationID, UserID: userID, Question: question, Answer: answer, Timestamp: now}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		result := tx.Model(&Conversation{}).
			Where("id = ? AND user_id = ?", conversationID, userID).
			Updates(map[string]interface{}{
				"last_message_at": now,
				"message_count":   gorm.Expr("message_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *gormStore) Get(ctx context.Context, conversationID, userID string) (*Conversation, []types.Exchange, error) {
	var conv Conversation
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	var messages []Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("timestamp ASC").
		Find(&messages).Error; err != nil {
		return nil, nil, err
	}

	exchanges := make([]types.Exchange, 0, len(messages))
	for _, m := range messages {
		exchanges = append(exchanges, types.Exchange{User: m.Question, System: m.Answer, Timestamp: m.Timestamp})
	}
	return &conv, exchanges, nil
}

func (s *gormStore) List(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	var convs []*Conversation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_message_at DESC").
		Limit(limit).Offset(offset).
		Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

func (s *gormStore) Delete(ctx context.Context, conversationID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).Delete(&Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ? AND user_id = ?", conversationID, userID).Delete(&Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *gormStore) Rename(ctx context.Context, conversationID, userID, title string) error {
	result := s.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
