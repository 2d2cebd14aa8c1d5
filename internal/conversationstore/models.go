// Package conversationstore persists conversations and their exchanges
// durably, independent of the in-process internal/memory.Store used on the
// orchestrator's hot path. Grounded on
// original_source/src/session_manager.py's SessionManager (SQLite schema,
// reworked to Postgres to match the teacher's own persistence choice) and
// the teacher's gorm-based repository idiom
// (internal/application/repository/custom_agent.go).
package conversationstore

import "time"

// Conversation is one durable, titled conversation thread, scoped to a
// user. Mirrors session_manager.py's `conversations` table.
type Conversation struct {
	ID            string    `gorm:"column:id;primaryKey;type:uuid"`
	UserID        string    `gorm:"column:user_id;index:idx_conversations_user,priority:1"`
	Title         string    `gorm:"column:title;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	LastMessageAt time.Time `gorm:"column:last_message_at;index:idx_conversation_last_message,sort:desc;index:idx_conversations_user,priority:2,sort:desc"`
	MessageCount  int       `gorm:"column:message_count;default:0"`
}

// TableName pins the gorm table name, matching the original schema's name.
func (Conversation) TableName() string { return "conversations" }

// Message is one (question, answer) exchange belonging to a Conversation.
// Mirrors session_manager.py's `messages` table.
type Message struct {
	ID             uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ConversationID string    `gorm:"column:conversation_id;not null;index:idx_messages_conversation,priority:1;index:idx_messages_user,priority:1"`
	UserID         string    `gorm:"column:user_id;index:idx_messages_user,priority:2"`
	Question       string    `gorm:"column:question;not null"`
	Answer         string    `gorm:"column:answer;not null"`
	Timestamp      time.Time `gorm:"column:timestamp;autoCreateTime;index:idx_messages_conversation,priority:2,sort:desc;index:idx_messages_user,priority:3,sort:desc"`
}

// TableName pins the gorm table name, matching the original schema's name.
func (Message) TableName() string { return "messages" }
