package store

// Fixed keys for everything the client persists.
const (
	KeyConversations = "conversations"
	KeySidebarHidden = "sidebar_hidden"
)

// Store is the keyed persistence boundary for conversation state. Load
// reports absence with the second return value rather than an error.
type Store interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, value []byte) error
	Close() error
}
