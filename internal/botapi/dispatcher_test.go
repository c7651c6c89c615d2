package botapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eventflow-im/botapi-bridge/internal/adminapi"
	"github.com/eventflow-im/botapi-bridge/internal/clients"
	"github.com/eventflow-im/botapi-bridge/internal/store"
)

type fakeClient struct {
	me        *clients.User
	stored    *clients.StoredMessage
	storedErr error
	deleteErr error

	deleted [][]int64
	edits   []string
}

func (f *fakeClient) Connect(ctx context.Context) error            { return nil }
func (f *fakeClient) Close() error                                 { return nil }
func (f *fakeClient) Connected() bool                              { return true }
func (f *fakeClient) Authorized(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeClient) SyncState(ctx context.Context) error          { return nil }
func (f *fakeClient) CatchUp(ctx context.Context) error            { return nil }

func (f *fakeClient) Me(ctx context.Context) (*clients.User, error) { return f.me, nil }

func (f *fakeClient) ResolveUser(ctx context.Context, id int64) (*clients.User, error) {
	return &clients.User{ID: id, FirstName: "Alice"}, nil
}

func (f *fakeClient) ResolveChat(ctx context.Context, id int64) (*clients.Chat, error) {
	return &clients.Chat{ID: id, FirstName: "Alice", Username: "alice", Type: "private"}, nil
}

func (f *fakeClient) GetMessage(ctx context.Context, chatID, msgID int64) (*clients.StoredMessage, error) {
	if f.storedErr != nil {
		return nil, f.storedErr
	}
	return f.stored, nil
}

func (f *fakeClient) EditMessage(ctx context.Context, chatID, msgID int64, text string) (int64, error) {
	f.edits = append(f.edits, text)
	return 1700000100, nil
}

func (f *fakeClient) DeleteMessages(ctx context.Context, chatID int64, ids []int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids)
	return nil
}

func (f *fakeClient) OnNewMessage(h clients.MessageHandler)     {}
func (f *fakeClient) OnCallbackQuery(h clients.CallbackHandler) {}

type fakeTokens struct {
	records map[string]*store.TokenRecord
}

func (f *fakeTokens) Lookup(ctx context.Context, token string) (*store.TokenRecord, error) {
	if rec, ok := f.records[token]; ok {
		return rec, nil
	}
	return nil, store.ErrNotFound
}

type fakeClientSource struct {
	client clients.Client
	err    error
}

func (f *fakeClientSource) Get(ctx context.Context, sessionName string) (clients.Client, error) {
	return f.client, f.err
}

type fakeQueue struct {
	mu         sync.Mutex
	updates    []Update
	registered bool
}

func (q *fakeQueue) add(u Update) {
	q.mu.Lock()
	q.updates = append(q.updates, u)
	q.mu.Unlock()
}

func (q *fakeQueue) Get(botID int64, offset int64, limit int) []Update {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Update, 0, len(q.updates))
	for _, u := range q.updates {
		if u.UpdateID >= offset {
			out = append(out, u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (q *fakeQueue) HandlersRegistered(botID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.registered
}

func (q *fakeQueue) markRegistered() {
	q.mu.Lock()
	q.registered = true
	q.mu.Unlock()
}

type fakeAnswers struct {
	mu   sync.Mutex
	recs []*store.CallbackAnswer
}

func (f *fakeAnswers) PutAnswer(ctx context.Context, rec *store.CallbackAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

type fakeAdmin struct {
	mu        sync.Mutex
	requests  []adminapi.SendMessageRequest
	messageID int64
	err       error
}

func (f *fakeAdmin) SendMessage(ctx context.Context, req adminapi.SendMessageRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.messageID, f.err
}

type fakeInstaller struct{ installs int }

func (f *fakeInstaller) Install(root context.Context, botID int64, c clients.Client) bool {
	f.installs++
	return true
}

const testToken = "123:abcDEF"

func newTestDispatcher() (*Dispatcher, *fakeQueue, *fakeAnswers, *fakeAdmin) {
	fc := &fakeClient{
		me:     &clients.User{ID: 123, Bot: true, FirstName: "Test Bot", Username: "testbot"},
		stored: &clients.StoredMessage{ID: 7, Date: 1700000000, Text: "old"},
	}
	queue := &fakeQueue{}
	answers := &fakeAnswers{}
	admin := &fakeAdmin{messageID: 555}
	d := &Dispatcher{
		Tokens: &fakeTokens{records: map[string]*store.TokenRecord{
			testToken: {Token: "abcDEF", FullToken: testToken, BotID: 123, SessionName: "bot_1_100"},
		}},
		Clients: &fakeClientSource{client: fc},
		Updates: queue,
		Answers: answers,
		Admin:   admin,
		Events:  &fakeInstaller{},
		step:    5 * time.Millisecond,
	}
	return d, queue, answers, admin
}

func TestProcessUnknownToken(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), "DEADBEEF", "getMe", nil)
	if resp.OK || resp.ErrorCode != 401 || resp.Description != "Unauthorized" {
		t.Fatalf("expected 401 Unauthorized, got %+v", resp)
	}
}

func TestProcessClientFailureIsUnauthorized(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	d.Clients = &fakeClientSource{err: errors.New("session is not authorized")}

	resp := d.Process(context.Background(), testToken, "getMe", nil)
	if resp.OK || resp.ErrorCode != 401 {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestGetMe(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "getMe", nil)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	me, ok := resp.Result.(Me)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if me.ID != 123 || !me.IsBot || me.Username != "testbot" {
		t.Fatalf("wrong identity: %+v", me)
	}
	if !me.CanJoinGroups || me.SupportsInlineQueries || me.CanReadAllGroupMessages {
		t.Fatalf("wrong capability flags: %+v", me)
	}
}

func TestMethodNameIsCaseInsensitive(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	if resp := d.Process(context.Background(), testToken, "GETME", nil); !resp.OK {
		t.Fatalf("uppercase method rejected: %+v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendPhoto", nil)
	if resp.OK || resp.ErrorCode != 400 {
		t.Fatalf("expected 400, got %+v", resp)
	}
	if resp.Description != "Method 'sendPhoto' not implemented" {
		t.Fatalf("wrong description: %q", resp.Description)
	}
}

func TestSendMessageMissingParams(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{"chat_id": 42})
	if resp.OK || resp.ErrorCode != 400 || resp.Description != "Missing required parameters" {
		t.Fatalf("expected missing-params failure, got %+v", resp)
	}
}

func TestSendMessageToSelfRejected(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{
		"chat_id": 123, "text": "hi",
	})
	if resp.OK || resp.Description != "Bot can't send messages to itself" {
		t.Fatalf("expected self-send rejection, got %+v", resp)
	}
}

func TestSendMessageHappyPath(t *testing.T) {
	d, _, _, admin := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{
		"chat_id": 42, "text": "hi",
	})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	msg := resp.Result.(Message)
	if msg.MessageID != 555 || msg.Text != "hi" {
		t.Fatalf("wrong message: %+v", msg)
	}
	if msg.Chat.ID != 42 || msg.Chat.Type != "private" {
		t.Fatalf("wrong chat: %+v", msg.Chat)
	}
	if len(admin.requests) != 1 {
		t.Fatalf("expected 1 admin call, got %d", len(admin.requests))
	}
	sent := admin.requests[0]
	if sent.FromUserID != 123 || sent.ToUserID != 42 || sent.Message != "hi" {
		t.Fatalf("wrong admin payload: %+v", sent)
	}
}

func TestSendMessageKeyboardTranslation(t *testing.T) {
	d, _, _, admin := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{
		"chat_id": 42,
		"text":    "hi",
		"reply_markup": map[string]any{
			"inline_keyboard": []any{
				[]any{map[string]any{"text": "B", "callback_data": "x"}},
			},
		},
	})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}

	sent := admin.requests[0]
	if len(sent.Buttons) != 1 || len(sent.Buttons[0]) != 1 {
		t.Fatalf("wrong button shape: %+v", sent.Buttons)
	}
	if b := sent.Buttons[0][0]; b.Text != "B" || b.CallbackData != "x" || b.URL != "" {
		t.Fatalf("wrong admin button: %+v", b)
	}

	msg := resp.Result.(Message)
	if msg.ReplyMarkup == nil {
		t.Fatal("reply_markup not echoed")
	}
	if e := msg.ReplyMarkup.InlineKeyboard[0][0]; e.Text != "B" || e.CallbackData != "x" {
		t.Fatalf("wrong echoed button: %+v", e)
	}
}

func TestSendMessageKeyboardAsJSONString(t *testing.T) {
	d, _, _, admin := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{
		"chat_id":      "42",
		"text":         "hi",
		"reply_markup": `{"inline_keyboard":[[{"text":"Open","url":"https://example.com"}]]}`,
	})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if b := admin.requests[0].Buttons[0][0]; b.Text != "Open" || b.URL != "https://example.com" {
		t.Fatalf("wrong admin button: %+v", b)
	}
}

func TestSendMessageBackendRejection(t *testing.T) {
	d, _, _, admin := newTestDispatcher()
	admin.err = &adminapi.APIError{Status: 422, Body: "user is blocked"}

	resp := d.Process(context.Background(), testToken, "sendMessage", map[string]any{
		"chat_id": 42, "text": "hi",
	})
	if resp.OK || resp.ErrorCode != 400 || resp.Description != "user is blocked" {
		t.Fatalf("expected backend body as description, got %+v", resp)
	}
}

func TestDeleteMessage(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	fc := d.Clients.(*fakeClientSource).client.(*fakeClient)

	resp := d.Process(context.Background(), testToken, "deleteMessage", map[string]any{
		"chat_id": 42, "message_id": 7,
	})
	if !resp.OK || resp.Result != true {
		t.Fatalf("expected {ok:true,result:true}, got %+v", resp)
	}
	if len(fc.deleted) != 1 || fc.deleted[0][0] != 7 {
		t.Fatalf("wrong delete call: %+v", fc.deleted)
	}
}

func TestEditMessageTextNotFound(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	fc := d.Clients.(*fakeClientSource).client.(*fakeClient)
	fc.storedErr = clients.ErrMessageNotFound

	resp := d.Process(context.Background(), testToken, "editMessageText", map[string]any{
		"chat_id": 42, "message_id": 7, "text": "new",
	})
	if resp.OK || resp.Description != "Message not found" {
		t.Fatalf("expected not-found failure, got %+v", resp)
	}
}

func TestEditMessageTextNotModified(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "editMessageText", map[string]any{
		"chat_id": 42, "message_id": 7, "text": "old",
	})
	if resp.OK || resp.ErrorCode != 400 || resp.Description != "Message is not modified" {
		t.Fatalf("expected not-modified failure, got %+v", resp)
	}
}

func TestEditMessageTextHappyPath(t *testing.T) {
	d, _, _, _ := newTestDispatcher()
	fc := d.Clients.(*fakeClientSource).client.(*fakeClient)

	resp := d.Process(context.Background(), testToken, "editMessageText", map[string]any{
		"chat_id": 42, "message_id": 7, "text": "new",
	})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	msg := resp.Result.(Message)
	if msg.MessageID != 7 || msg.Text != "new" {
		t.Fatalf("wrong message: %+v", msg)
	}
	if msg.Date != 1700000000 || msg.EditDate != 1700000100 {
		t.Fatalf("wrong dates: %+v", msg)
	}
	if len(fc.edits) != 1 || fc.edits[0] != "new" {
		t.Fatalf("wrong edit call: %v", fc.edits)
	}
}

func TestGetUpdatesImmediate(t *testing.T) {
	d, queue, _, _ := newTestDispatcher()
	queue.add(Update{UpdateID: 10, Message: &Message{Text: "hi"}})

	resp := d.Process(context.Background(), testToken, "getUpdates", map[string]any{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	ups := resp.Result.([]Update)
	if len(ups) != 1 || ups[0].UpdateID != 10 {
		t.Fatalf("wrong updates: %+v", ups)
	}
}

func TestGetUpdatesEmptyReturnsEmptySlice(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "getUpdates", map[string]any{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	ups, ok := resp.Result.([]Update)
	if !ok || ups == nil {
		t.Fatalf("result must be an empty slice, got %#v", resp.Result)
	}
	if len(ups) != 0 {
		t.Fatalf("expected no updates, got %d", len(ups))
	}
}

func TestGetUpdatesLongPollDelivery(t *testing.T) {
	d, queue, _, _ := newTestDispatcher()

	go func() {
		time.Sleep(20 * time.Millisecond)
		queue.add(Update{UpdateID: 11, Message: &Message{Text: "late"}})
	}()

	start := time.Now()
	resp := d.Process(context.Background(), testToken, "getUpdates", map[string]any{"timeout": 5})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	ups := resp.Result.([]Update)
	if len(ups) != 1 || ups[0].UpdateID != 11 {
		t.Fatalf("late update not delivered: %+v", ups)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("long poll should return soon after delivery, not at the deadline")
	}
}

func TestGetUpdatesLongPollTimeout(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "getUpdates", map[string]any{"timeout": "0"})
	if !resp.OK || len(resp.Result.([]Update)) != 0 {
		t.Fatalf("expected empty result, got %+v", resp)
	}
}

func TestAnswerCallbackQueryMissingID(t *testing.T) {
	d, _, _, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "answerCallbackQuery", map[string]any{})
	if resp.OK || resp.Description != "Missing callback_query_id" {
		t.Fatalf("expected missing-id failure, got %+v", resp)
	}
}

func TestAnswerCallbackQueryDeposits(t *testing.T) {
	d, _, answers, _ := newTestDispatcher()

	resp := d.Process(context.Background(), testToken, "answerCallbackQuery", map[string]any{
		"callback_query_id": 7,
		"text":              "ok",
		"show_alert":        true,
		"cache_time":        15,
	})
	if !resp.OK || resp.Result != true {
		t.Fatalf("expected {ok:true,result:true}, got %+v", resp)
	}
	if len(answers.recs) != 1 {
		t.Fatalf("expected 1 deposit, got %d", len(answers.recs))
	}
	rec := answers.recs[0]
	if rec.QueryID != "7" || !rec.Alert || rec.Message != "ok" || rec.CacheTime != 15 {
		t.Fatalf("wrong deposit: %+v", rec)
	}
}

func TestHandlersInstalledOnFirstSight(t *testing.T) {
	d, queue, _, _ := newTestDispatcher()
	installer := d.Events.(*fakeInstaller)

	d.Process(context.Background(), testToken, "getMe", nil)
	if installer.installs != 1 {
		t.Fatalf("expected 1 install, got %d", installer.installs)
	}

	queue.markRegistered()
	d.Process(context.Background(), testToken, "getMe", nil)
	if installer.installs != 1 {
		t.Fatalf("registered bot reinstalled: %d installs", installer.installs)
	}
}
