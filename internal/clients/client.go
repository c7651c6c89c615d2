// Package clients manages per-bot MTProto sessions. A Client wraps one
// authorized session; the Registry caches them by session name and creates
// them lazily on first use.
package clients

import (
	"context"
	"errors"
)

// ErrMessageNotFound reports that a requested message does not exist or is
// no longer visible to the session.
var ErrMessageNotFound = errors.New("clients: message not found")

// User is the subset of account data the gateway needs.
type User struct {
	ID        int64
	Bot       bool
	FirstName string
	Username  string
	LangCode  string
	Premium   bool
}

// Chat describes a private peer as seen by a bot session.
type Chat struct {
	ID        int64
	FirstName string
	Username  string
	Type      string
}

// StoredMessage is a message fetched back from the session's history.
type StoredMessage struct {
	ID   int64
	Date int64
	Text string
}

// MessageEvent is an incoming message delivered by the update stream.
type MessageEvent struct {
	MessageID int64
	SenderID  int64
	ChatID    int64
	Date      int64
	Text      string
	Outgoing  bool
}

// CallbackEvent is an inline button press delivered by the update stream.
type CallbackEvent struct {
	QueryID int64
	UserID  int64
	ChatID  int64
	MsgID   int64
	Data    []byte
}

// MessageHandler consumes message events. The context is the client's run
// context and is canceled when the session stops.
type MessageHandler func(ctx context.Context, ev MessageEvent)

// CallbackHandler consumes callback events.
type CallbackHandler func(ctx context.Context, ev CallbackEvent)

// Client is one live MTProto session. Implementations must be safe for
// concurrent use once Connect has returned.
type Client interface {
	// Connect brings the session online and starts update delivery.
	Connect(ctx context.Context) error
	// Close stops the session and releases its resources.
	Close() error
	// Connected reports whether the session is currently running.
	Connected() bool

	// Authorized reports whether the stored session holds valid credentials.
	Authorized(ctx context.Context) (bool, error)
	// Me returns the account behind the session.
	Me(ctx context.Context) (*User, error)

	// SyncState records the server-side update state so the gaps engine has
	// a starting point.
	SyncState(ctx context.Context) error
	// CatchUp starts the update recovery loop in the background.
	CatchUp(ctx context.Context) error

	// ResolveUser returns profile data for a user the session has seen.
	ResolveUser(ctx context.Context, id int64) (*User, error)
	// ResolveChat returns chat data for a private peer.
	ResolveChat(ctx context.Context, id int64) (*Chat, error)

	// GetMessage fetches a single message from history.
	GetMessage(ctx context.Context, chatID, msgID int64) (*StoredMessage, error)
	// EditMessage rewrites a message's text and returns the edit timestamp.
	EditMessage(ctx context.Context, chatID, msgID int64, text string) (int64, error)
	// DeleteMessages removes messages for both sides.
	DeleteMessages(ctx context.Context, chatID int64, ids []int64) error

	// OnNewMessage registers the message event handler. Registration may
	// happen before or after Connect; events arriving with no handler
	// installed are discarded.
	OnNewMessage(h MessageHandler)
	// OnCallbackQuery registers the callback event handler.
	OnCallbackQuery(h CallbackHandler)
}

// Dialer builds a Client bound to the session file at path. It does not
// connect; the Registry drives the connect and authorization checks.
type Dialer func(sessionPath string) (Client, error)
