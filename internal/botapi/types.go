// Package botapi defines the JSON shapes of the public Bot HTTP API surface:
// the response envelope, user/chat/message objects, updates, and inline
// keyboards. Field names and optionality follow the upstream Bot API so
// existing client libraries work against the gateway unchanged.
package botapi

// Response is the envelope wrapped around every reply.
type Response struct {
	OK          bool   `json:"ok"`
	Result      any    `json:"result,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// OK wraps a successful result.
func OK(result any) Response {
	return Response{OK: true, Result: result}
}

// Fail builds a protocol-level failure envelope.
func Fail(code int, description string) Response {
	return Response{OK: false, ErrorCode: code, Description: description}
}

// User is the sender object attached to messages and callback queries.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// Chat describes the conversation a message belongs to. Type is "private"
// for user dialogs and "group" otherwise.
type Chat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Type      string `json:"type"`
}

// Message is the canonical message object.
type Message struct {
	MessageID   int64                 `json:"message_id"`
	From        *User                 `json:"from,omitempty"`
	Chat        *Chat                 `json:"chat,omitempty"`
	Date        int64                 `json:"date"`
	EditDate    int64                 `json:"edit_date,omitempty"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// CallbackQuery is emitted when a user presses an inline keyboard button.
// It stays pending until the bot calls answerCallbackQuery.
type CallbackQuery struct {
	ID           string   `json:"id"`
	From         *User    `json:"from"`
	Message      *Message `json:"message"`
	ChatInstance string   `json:"chat_instance"`
	Data         string   `json:"data"`
}

// Me is the getMe result: identity plus capability flags. The flags are
// always emitted, matching the upstream shape for bot accounts.
type Me struct {
	ID                      int64  `json:"id"`
	IsBot                   bool   `json:"is_bot"`
	FirstName               string `json:"first_name"`
	Username                string `json:"username"`
	CanJoinGroups           bool   `json:"can_join_groups"`
	CanReadAllGroupMessages bool   `json:"can_read_all_group_messages"`
	SupportsInlineQueries   bool   `json:"supports_inline_queries"`
	CanConnectToBusiness    bool   `json:"can_connect_to_business"`
	HasMainWebApp           bool   `json:"has_main_web_app"`
}

// InlineKeyboardMarkup mirrors reply_markup={"inline_keyboard":[[...]]}.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton carries either a URL or a callback payload.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// Update is the two-variant union delivered by getUpdates: exactly one of
// Message or CallbackQuery is set. Construct values through
// NewMessageUpdate / NewCallbackUpdate so the variant is always well formed;
// the JSON output discriminates by the single present field.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// NewMessageUpdate builds the message variant. UpdateID is assigned on
// enqueue, not here.
func NewMessageUpdate(m *Message) Update {
	return Update{Message: m}
}

// NewCallbackUpdate builds the callback_query variant.
func NewCallbackUpdate(q *CallbackQuery) Update {
	return Update{CallbackQuery: q}
}
