// Package mtproto implements the clients.Client interface on top of gotd/td
// against the self-hosted backend. Everything gotd-specific stays inside
// this package; the rest of the gateway only sees the interface.
package mtproto

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/clients"
)

// The backend exposes a single data center under this id, mirroring the
// session configuration the original deployment used.
const backendDC = 2

// Config carries everything needed to dial the backend.
type Config struct {
	APIID   int
	APIHash string
	Host    string
	Port    int
	// PublicKey is installed as both the current and the old server key so
	// key rotation on the backend does not strand existing sessions.
	PublicKey *rsa.PublicKey
}

// NewDialer builds the clients.Dialer used by the registry. The returned
// client is not connected; the registry drives Connect and the
// authorization checks.
func NewDialer(cfg Config) clients.Dialer {
	return func(sessionPath string) (clients.Client, error) {
		return newClient(cfg, sessionPath), nil
	}
}

type client struct {
	cfg        Config
	dispatcher tg.UpdateDispatcher
	gaps       *updates.Manager
	tg         *telegram.Client

	mu         sync.Mutex
	onMessage  clients.MessageHandler
	onCallback clients.CallbackHandler

	connected atomic.Bool
	selfID    atomic.Int64

	cancel  context.CancelFunc
	runDone chan error
}

func newClient(cfg Config, sessionPath string) *client {
	c := &client{cfg: cfg}
	c.dispatcher = tg.NewUpdateDispatcher()
	c.dispatcher.OnNewMessage(c.handleNewMessage)
	c.dispatcher.OnBotCallbackQuery(c.handleCallbackQuery)
	c.gaps = updates.New(updates.Config{Handler: c.dispatcher})

	keys := []telegram.PublicKey{{RSA: cfg.PublicKey}}
	c.tg = telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionPath},
		PublicKeys:     keys,
		DC:             backendDC,
		DCList: dcs.List{
			Options: []tg.DCOption{{
				ID:        backendDC,
				IPAddress: cfg.Host,
				Port:      cfg.Port,
			}},
		},
		UpdateHandler: c.gaps,
	})
	return c
}

// Connect starts the client's run loop in the background and waits for the
// transport to come up.
func (c *client) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runDone = make(chan error, 1)
	ready := make(chan struct{})

	go func() {
		c.runDone <- c.tg.Run(runCtx, func(ctx context.Context) error {
			c.connected.Store(true)
			close(ready)
			<-ctx.Done()
			c.connected.Store(false)
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		return nil
	case err := <-c.runDone:
		cancel()
		if err == nil {
			err = errors.New("mtproto: run loop exited before ready")
		}
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Close stops the run loop and waits for it to unwind.
func (c *client) Close() error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	err := <-c.runDone
	c.connected.Store(false)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *client) Connected() bool {
	return c.connected.Load()
}

func (c *client) Authorized(ctx context.Context) (bool, error) {
	status, err := c.tg.Auth().Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Authorized, nil
}

func (c *client) Me(ctx context.Context) (*clients.User, error) {
	self, err := c.tg.Self(ctx)
	if err != nil {
		return nil, err
	}
	c.selfID.Store(self.ID)
	return userFromTG(self), nil
}

// SyncState asks the backend for the current update state so gap recovery
// has a baseline.
func (c *client) SyncState(ctx context.Context) error {
	_, err := c.tg.API().UpdatesGetState(ctx)
	return err
}

// CatchUp runs the gaps engine in the background for the lifetime of the
// session. It delivers missed updates and keeps the sequence consistent.
func (c *client) CatchUp(ctx context.Context) error {
	selfID := c.selfID.Load()
	if selfID == 0 {
		self, err := c.tg.Self(ctx)
		if err != nil {
			return err
		}
		selfID = self.ID
		c.selfID.Store(selfID)
	}

	go func() {
		err := c.gaps.Run(context.Background(), c.tg.API(), selfID, updates.AuthOptions{})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int64("userId", selfID).Msg("update recovery stopped")
		}
	}()
	return nil
}

func (c *client) ResolveUser(ctx context.Context, id int64) (*clients.User, error) {
	users, err := c.tg.API().UsersGetUsers(ctx, []tg.InputUserClass{
		&tg.InputUser{UserID: id},
	})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			return userFromTG(user), nil
		}
	}
	return nil, fmt.Errorf("mtproto: user %d not found", id)
}

func (c *client) ResolveChat(ctx context.Context, id int64) (*clients.Chat, error) {
	// The gateway only serves private dialogs, so a chat resolves through
	// the same user lookup; the type falls out of the first_name rule.
	user, err := c.ResolveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	chatType := "group"
	if user.FirstName != "" {
		chatType = "private"
	}
	return &clients.Chat{
		ID:        user.ID,
		FirstName: user.FirstName,
		Username:  user.Username,
		Type:      chatType,
	}, nil
}

func (c *client) GetMessage(ctx context.Context, chatID, msgID int64) (*clients.StoredMessage, error) {
	res, err := c.tg.API().MessagesGetMessages(ctx, []tg.InputMessageClass{
		&tg.InputMessageID{ID: int(msgID)},
	})
	if err != nil {
		return nil, err
	}

	var msgs []tg.MessageClass
	switch v := res.(type) {
	case *tg.MessagesMessages:
		msgs = v.Messages
	case *tg.MessagesMessagesSlice:
		msgs = v.Messages
	default:
		return nil, clients.ErrMessageNotFound
	}
	for _, m := range msgs {
		msg, ok := m.(*tg.Message)
		if !ok || int64(msg.ID) != msgID {
			continue
		}
		return &clients.StoredMessage{
			ID:   int64(msg.ID),
			Date: int64(msg.Date),
			Text: msg.Message,
		}, nil
	}
	return nil, clients.ErrMessageNotFound
}

func (c *client) EditMessage(ctx context.Context, chatID, msgID int64, text string) (int64, error) {
	req := &tg.MessagesEditMessageRequest{
		Peer: &tg.InputPeerUser{UserID: chatID},
		ID:   int(msgID),
	}
	req.SetMessage(text)

	upd, err := c.tg.API().MessagesEditMessage(ctx, req)
	if err != nil {
		return 0, err
	}

	editDate := time.Now().Unix()
	if u, ok := upd.(*tg.Updates); ok {
		for _, inner := range u.Updates {
			edit, ok := inner.(*tg.UpdateEditMessage)
			if !ok {
				continue
			}
			if msg, ok := edit.Message.(*tg.Message); ok {
				editDate = int64(msg.EditDate)
			}
		}
	}
	return editDate, nil
}

func (c *client) DeleteMessages(ctx context.Context, chatID int64, ids []int64) error {
	msgIDs := make([]int, 0, len(ids))
	for _, id := range ids {
		msgIDs = append(msgIDs, int(id))
	}
	_, err := c.tg.API().MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     msgIDs,
	})
	return err
}

func (c *client) OnNewMessage(h clients.MessageHandler) {
	c.mu.Lock()
	c.onMessage = h
	c.mu.Unlock()
}

func (c *client) OnCallbackQuery(h clients.CallbackHandler) {
	c.mu.Lock()
	c.onCallback = h
	c.mu.Unlock()
}

func (c *client) handleNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	c.mu.Lock()
	h := c.onMessage
	c.mu.Unlock()
	if h == nil {
		return nil
	}

	msg, ok := u.Message.(*tg.Message)
	if !ok {
		return nil
	}

	chatID := peerID(msg.PeerID)
	senderID := chatID
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		senderID = from.UserID
	}

	h(ctx, clients.MessageEvent{
		MessageID: int64(msg.ID),
		SenderID:  senderID,
		ChatID:    chatID,
		Date:      int64(msg.Date),
		Text:      msg.Message,
		Outgoing:  msg.Out,
	})
	return nil
}

func (c *client) handleCallbackQuery(ctx context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
	c.mu.Lock()
	h := c.onCallback
	c.mu.Unlock()
	if h == nil {
		return nil
	}

	data, _ := u.GetData()
	h(ctx, clients.CallbackEvent{
		QueryID: u.QueryID,
		UserID:  u.UserID,
		ChatID:  peerID(u.Peer),
		MsgID:   int64(u.MsgID),
		Data:    data,
	})
	return nil
}

func peerID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID
	case *tg.PeerChat:
		return v.ChatID
	case *tg.PeerChannel:
		return v.ChannelID
	}
	return 0
}

func userFromTG(u *tg.User) *clients.User {
	return &clients.User{
		ID:        u.ID,
		Bot:       u.Bot,
		FirstName: u.FirstName,
		Username:  u.Username,
		LangCode:  u.LangCode,
		Premium:   u.Premium,
	}
}
