// Package ingest subscribes to a bot's client events and turns them into
// Bot-API-shaped updates. One subscription is installed per bot, at the
// first dispatch that sees it; failures inside handlers are logged and the
// event dropped, never surfaced to a caller.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/botapi"
	"github.com/eventflow-im/botapi-bridge/internal/clients"
	"github.com/eventflow-im/botapi-bridge/internal/updates"
)

// callbackSettleDelay gives the backend time to materialize the pressed
// message before we fetch it back.
const callbackSettleDelay = 100 * time.Millisecond

// Watcher is the reconciler hook spawned for every ingested callback.
type Watcher interface {
	Watch(ctx context.Context, queryID string, botID, msgID int64)
}

// Installer wires the two typed event handlers of a client into the
// updates manager.
type Installer struct {
	updates    *updates.Manager
	reconciler Watcher

	// settleDelay is shortened in tests.
	settleDelay time.Duration
}

// NewInstaller builds an installer feeding the given manager and spawning
// watchers on the given reconciler.
func NewInstaller(um *updates.Manager, rec Watcher) *Installer {
	return &Installer{
		updates:     um,
		reconciler:  rec,
		settleDelay: callbackSettleDelay,
	}
}

// Install registers both handlers for the bot. The manager's registration
// flag makes this idempotent: only the first call per bot id subscribes.
// Watchers spawned by callback events inherit root, which should be the
// server's lifetime context.
func (i *Installer) Install(root context.Context, botID int64, c clients.Client) bool {
	if !i.updates.MarkHandlersRegistered(botID) {
		log.Debug().Int64("botId", botID).Msg("handlers already registered")
		return false
	}
	log.Info().Int64("botId", botID).Msg("registering event handlers")

	c.OnNewMessage(func(ctx context.Context, ev clients.MessageEvent) {
		i.handleMessage(ctx, botID, c, ev)
	})
	c.OnCallbackQuery(func(ctx context.Context, ev clients.CallbackEvent) {
		i.handleCallback(root, ctx, botID, c, ev)
	})
	return true
}

func (i *Installer) handleMessage(ctx context.Context, botID int64, c clients.Client, ev clients.MessageEvent) {
	if ev.Outgoing || ev.SenderID == botID {
		return
	}
	key := fmt.Sprintf("%d_%d", ev.ChatID, ev.MessageID)
	if !i.updates.MarkMessage(botID, key) {
		return
	}
	if ev.Text == "" {
		return
	}

	sender, err := c.ResolveUser(ctx, ev.SenderID)
	if err != nil {
		log.Error().Err(err).Int64("userId", ev.SenderID).Msg("sender resolve failed")
		return
	}
	chat, err := c.ResolveChat(ctx, ev.ChatID)
	if err != nil {
		log.Error().Err(err).Int64("chatId", ev.ChatID).Msg("chat resolve failed")
		return
	}

	id := i.updates.Add(botID, botapi.NewMessageUpdate(&botapi.Message{
		MessageID: ev.MessageID,
		From:      apiUser(sender),
		Chat:      apiChat(chat),
		Date:      ev.Date,
		Text:      ev.Text,
	}))
	log.Info().
		Int64("botId", botID).
		Int64("updateId", id).
		Msg("message ingested")
}

func (i *Installer) handleCallback(root, ctx context.Context, botID int64, c clients.Client, ev clients.CallbackEvent) {
	if ev.UserID == botID {
		return
	}
	data := string(ev.Data)
	key := fmt.Sprintf("cb_%d_%d_%s", ev.UserID, ev.MsgID, data)
	if !i.updates.MarkCallback(botID, key) {
		return
	}

	select {
	case <-time.After(i.settleDelay):
	case <-ctx.Done():
		return
	}

	sender, err := c.ResolveUser(ctx, ev.UserID)
	if err != nil {
		log.Error().Err(err).Int64("userId", ev.UserID).Msg("callback sender resolve failed")
		return
	}
	msg, err := c.GetMessage(ctx, ev.ChatID, ev.MsgID)
	if err != nil {
		log.Error().Err(err).Int64("msgId", ev.MsgID).Msg("callback message fetch failed")
		return
	}
	chat, err := c.ResolveChat(ctx, ev.ChatID)
	if err != nil {
		log.Error().Err(err).Int64("chatId", ev.ChatID).Msg("callback chat resolve failed")
		return
	}

	queryID := strconv.FormatInt(ev.QueryID, 10)
	id := i.updates.Add(botID, botapi.NewCallbackUpdate(&botapi.CallbackQuery{
		ID:   queryID,
		From: apiUser(sender),
		Message: &botapi.Message{
			MessageID: ev.MsgID,
			Date:      msg.Date,
			Chat:      apiChat(chat),
			Text:      msg.Text,
		},
		ChatInstance: fmt.Sprintf("%d_%d", ev.ChatID, time.Now().Unix()),
		Data:         data,
	}))
	log.Info().
		Int64("botId", botID).
		Int64("updateId", id).
		Str("queryId", queryID).
		Msg("callback ingested")

	go i.reconciler.Watch(root, queryID, botID, ev.MsgID)
}

func apiUser(u *clients.User) *botapi.User {
	return &botapi.User{
		ID:           u.ID,
		IsBot:        u.Bot,
		FirstName:    u.FirstName,
		Username:     u.Username,
		LanguageCode: u.LangCode,
		IsPremium:    u.Premium,
	}
}

func apiChat(c *clients.Chat) *botapi.Chat {
	return &botapi.Chat{
		ID:        c.ID,
		FirstName: c.FirstName,
		Username:  c.Username,
		Type:      c.Type,
	}
}
