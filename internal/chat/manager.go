package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dsouza-anush/open-deep-research/internal/store"
)

// Manager owns the conversation collection and the active-conversation
// pointer. It is not safe for concurrent use; the bubbletea update loop is
// its only caller. Every mutation writes the full collection back to the
// store.
type Manager struct {
	store  store.Store
	logger *slog.Logger

	conversations []*Conversation
	activeID      string

	now func() time.Time
}

// NewManager loads persisted conversations and applies the startup policy:
// an empty store yields one fresh conversation, otherwise the most recently
// updated conversation becomes active.
func NewManager(st store.Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  st,
		logger: logger.With("component", "chat"),
		now:    time.Now,
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	if len(m.conversations) == 0 {
		m.CreateConversation()
		return m, nil
	}
	m.activeID = m.MostRecentlyUpdated().ID
	return m, nil
}

func (m *Manager) load() error {
	raw, ok, err := m.store.Load(store.KeyConversations)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	if !ok {
		return nil
	}
	var convs []*Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return fmt.Errorf("decode conversations: %w", err)
	}
	m.conversations = convs
	return nil
}

// persist is best effort: a failed save must not wedge the chat session.
func (m *Manager) persist() {
	raw, err := json.Marshal(m.conversations)
	if err != nil {
		m.logger.Error("encode conversations", "err", err)
		return
	}
	if err := m.store.Save(store.KeyConversations, raw); err != nil {
		m.logger.Error("save conversations", "err", err)
	}
}

// CreateConversation prepends a fresh conversation and makes it active.
func (m *Manager) CreateConversation() *Conversation {
	now := m.now()
	c := &Conversation{
		ID:        uuid.New().String(),
		Title:     placeholderTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations = append([]*Conversation{c}, m.conversations...)
	m.activeID = c.ID
	m.persist()
	return c
}

// SelectConversation sets the active pointer. Unknown ids are ignored.
func (m *Manager) SelectConversation(id string) {
	if m.find(id) == nil {
		return
	}
	m.activeID = id
}

// DeleteConversation removes a conversation. If it was active the pointer
// is cleared; the caller selects or creates a replacement.
func (m *Manager) DeleteConversation(id string) {
	idx := -1
	for i, c := range m.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	m.conversations = append(m.conversations[:idx], m.conversations[idx+1:]...)
	if m.activeID == id {
		m.activeID = ""
	}
	m.persist()
}

// AppendMessage appends to a conversation's ordered sequence. Unknown
// conversations are a silent no-op. The title is derived from the first
// message when that message comes from the user.
func (m *Manager) AppendMessage(conversationID string, msg Message) {
	c := m.find(conversationID)
	if c == nil {
		m.logger.Warn("append to unknown conversation", "conversation_id", conversationID)
		return
	}
	if len(c.Messages) == 0 && msg.Role == RoleUser {
		c.Title = DeriveTitle(msg.Content)
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = m.now()
	m.persist()
}

// Active returns the active conversation, or nil when none is selected.
func (m *Manager) Active() *Conversation {
	return m.find(m.activeID)
}

func (m *Manager) ActiveID() string {
	return m.activeID
}

// Conversations returns the collection in storage order (newest first).
func (m *Manager) Conversations() []*Conversation {
	return m.conversations
}

// MostRecentlyUpdated returns nil when the collection is empty.
func (m *Manager) MostRecentlyUpdated() *Conversation {
	if len(m.conversations) == 0 {
		return nil
	}
	best := m.conversations[0]
	for _, c := range m.conversations[1:] {
		if c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	return best
}

func (m *Manager) find(id string) *Conversation {
	if id == "" {
		return nil
	}
	for _, c := range m.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// NewMessage builds a message ready to append.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
