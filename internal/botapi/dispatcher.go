package botapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/adminapi"
	"github.com/eventflow-im/botapi-bridge/internal/clients"
	"github.com/eventflow-im/botapi-bridge/internal/store"
)

const (
	// MaxUpdatesLimit caps the limit parameter of getUpdates.
	MaxUpdatesLimit = 100

	// MaxTimeout caps the getUpdates long-poll timeout.
	MaxTimeout = 50 * time.Second

	// pollStep is the long-poll re-check cadence. Coarse on purpose: the
	// queue is in-process and a 1s scan is cheap.
	pollStep = time.Second
)

// TokenSource authenticates the token a caller embedded in the URL.
type TokenSource interface {
	Lookup(ctx context.Context, token string) (*store.TokenRecord, error)
}

// ClientSource hands out the shared client session for a bot.
type ClientSource interface {
	Get(ctx context.Context, sessionName string) (clients.Client, error)
}

// UpdateQueue is the slice of the updates manager the dispatcher reads.
type UpdateQueue interface {
	Get(botID int64, offset int64, limit int) []Update
	HandlersRegistered(botID int64) bool
}

// AnswerSink receives deposited callback answers.
type AnswerSink interface {
	PutAnswer(ctx context.Context, rec *store.CallbackAnswer) error
}

// MessageSender is the admin REST slice used by sendMessage.
type MessageSender interface {
	SendMessage(ctx context.Context, req adminapi.SendMessageRequest) (int64, error)
}

// EventInstaller subscribes a bot's event handlers on first sight.
type EventInstaller interface {
	Install(root context.Context, botID int64, c clients.Client) bool
}

// Dispatcher implements the six contracted Bot API methods. Process never
// returns an error; every failure is an envelope.
type Dispatcher struct {
	Tokens  TokenSource
	Clients ClientSource
	Updates UpdateQueue
	Answers AnswerSink
	Admin   MessageSender
	Events  EventInstaller

	// step overrides pollStep in tests.
	step time.Duration
}

// Process authenticates the token, brings the bot's client up, and routes
// the method. Method names are case-insensitive.
func (d *Dispatcher) Process(ctx context.Context, token, method string, params map[string]any) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("method", method).Msg("dispatcher panic")
			resp = Fail(500, fmt.Sprint(r))
		}
	}()

	rec, err := d.Tokens.Lookup(ctx, token)
	if err != nil {
		log.Warn().Str("tokenPrefix", tokenPrefix(token)).Msg("token not found")
		return Fail(401, "Unauthorized")
	}

	client, err := d.Clients.Get(ctx, rec.SessionName)
	if err != nil {
		log.Error().Err(err).Str("session", rec.SessionName).Msg("client init failed")
		return Fail(401, "Unauthorized")
	}

	me, err := client.Me(ctx)
	if err != nil {
		return Fail(500, err.Error())
	}
	if me == nil {
		return Fail(401, "Unauthorized")
	}

	if !d.Updates.HandlersRegistered(me.ID) {
		// Ingest handlers and their watchers outlive this request.
		d.Events.Install(context.WithoutCancel(ctx), me.ID, client)
	}

	switch strings.ToLower(method) {
	case "getme":
		return d.getMe(me)
	case "sendmessage":
		return d.sendMessage(ctx, client, me, params)
	case "deletemessage":
		return d.deleteMessage(ctx, client, params)
	case "editmessagetext":
		return d.editMessageText(ctx, client, me, params)
	case "getupdates":
		return d.getUpdates(ctx, me.ID, params)
	case "answercallbackquery":
		return d.answerCallbackQuery(ctx, params)
	default:
		log.Warn().Str("method", method).Msg("method not implemented")
		return Fail(400, fmt.Sprintf("Method '%s' not implemented", method))
	}
}

func (d *Dispatcher) getMe(me *clients.User) Response {
	return OK(Me{
		ID:        me.ID,
		IsBot:     me.Bot,
		FirstName: me.FirstName,
		Username:  me.Username,
		// The backend has no group or inline support behind this gateway;
		// the flags are fixed to match.
		CanJoinGroups: true,
	})
}

func (d *Dispatcher) sendMessage(ctx context.Context, client clients.Client, me *clients.User, params map[string]any) Response {
	chatID, okChat := Int64(params, "chat_id")
	text, okText := String(params, "text")
	if !okChat || !okText {
		return Fail(400, "Missing required parameters")
	}
	if chatID == me.ID {
		return Fail(400, "Bot can't send messages to itself")
	}

	entity, err := client.ResolveChat(ctx, chatID)
	if err != nil {
		return Fail(400, err.Error())
	}

	req := adminapi.SendMessageRequest{
		FromUserID: me.ID,
		ToUserID:   chatID,
		Message:    text,
		Silent:     Bool(params, "disable_notification"),
	}

	var echo *InlineKeyboardMarkup
	if raw, ok := params["reply_markup"]; ok {
		markup, err := ParseReplyMarkup(raw)
		if err != nil {
			return Fail(400, err.Error())
		}
		req.Buttons, echo = translateKeyboard(markup)
	}

	messageID, err := d.Admin.SendMessage(ctx, req)
	if err != nil {
		var apiErr *adminapi.APIError
		if errors.As(err, &apiErr) {
			return Fail(400, apiErr.Body)
		}
		return Fail(400, err.Error())
	}
	if messageID == 0 {
		messageID = time.Now().Unix()
	}

	result := Message{
		MessageID: messageID,
		From: &User{
			ID:        me.ID,
			IsBot:     me.Bot,
			FirstName: me.FirstName,
			Username:  me.Username,
		},
		Chat: &Chat{
			ID:        entity.ID,
			FirstName: entity.FirstName,
			Username:  entity.Username,
			Type:      entity.Type,
		},
		Date:        time.Now().Unix(),
		Text:        text,
		ReplyMarkup: echo,
	}
	return OK(result)
}

func (d *Dispatcher) deleteMessage(ctx context.Context, client clients.Client, params map[string]any) Response {
	chatID, okChat := Int64(params, "chat_id")
	messageID, okMsg := Int64(params, "message_id")
	if !okChat || !okMsg {
		return Fail(400, "Missing required parameters")
	}
	if err := client.DeleteMessages(ctx, chatID, []int64{messageID}); err != nil {
		return Fail(400, err.Error())
	}
	return OK(true)
}

func (d *Dispatcher) editMessageText(ctx context.Context, client clients.Client, me *clients.User, params map[string]any) Response {
	chatID, okChat := Int64(params, "chat_id")
	messageID, okMsg := Int64(params, "message_id")
	text, okText := String(params, "text")
	if !okChat || !okMsg || !okText {
		return Fail(400, "Missing required parameters")
	}

	stored, err := client.GetMessage(ctx, chatID, messageID)
	if errors.Is(err, clients.ErrMessageNotFound) {
		return Fail(400, "Message not found")
	}
	if err != nil {
		return Fail(400, err.Error())
	}
	if stored.Text == text {
		return Fail(400, "Message is not modified")
	}

	editDate, err := client.EditMessage(ctx, chatID, messageID, text)
	if err != nil {
		return Fail(400, err.Error())
	}
	if editDate == 0 {
		editDate = stored.Date
	}

	entity, err := client.ResolveChat(ctx, chatID)
	if err != nil {
		return Fail(400, err.Error())
	}

	return OK(Message{
		MessageID: messageID,
		From: &User{
			ID:        me.ID,
			IsBot:     me.Bot,
			FirstName: me.FirstName,
			Username:  me.Username,
		},
		Chat: &Chat{
			ID:        entity.ID,
			FirstName: entity.FirstName,
			Username:  entity.Username,
			Type:      entity.Type,
		},
		Date:     stored.Date,
		EditDate: editDate,
		Text:     text,
	})
}

func (d *Dispatcher) getUpdates(ctx context.Context, botID int64, params map[string]any) Response {
	offset := Int64Or(params, "offset", 0)
	limit := int(Int64Or(params, "limit", MaxUpdatesLimit))
	if limit > MaxUpdatesLimit || limit <= 0 {
		limit = MaxUpdatesLimit
	}
	timeout := time.Duration(Int64Or(params, "timeout", 0)) * time.Second
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	step := d.step
	if step == 0 {
		step = pollStep
	}
	deadline := time.Now().Add(timeout)

	for {
		if ups := d.Updates.Get(botID, offset, limit); len(ups) > 0 {
			return OK(ups)
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return OK([]Update{})
		case <-time.After(step):
		}
	}
	return OK([]Update{})
}

func (d *Dispatcher) answerCallbackQuery(ctx context.Context, params map[string]any) Response {
	raw, ok := params["callback_query_id"]
	if !ok {
		return Fail(400, "Missing callback_query_id")
	}
	queryID := Stringify(raw)

	rec := &store.CallbackAnswer{
		QueryID:   queryID,
		Alert:     Bool(params, "show_alert"),
		CacheTime: int(Int64Or(params, "cache_time", 0)),
		CreatedAt: time.Now().Unix(),
	}
	if msg, ok := String(params, "text"); ok {
		rec.Message = msg
	}
	if u, ok := String(params, "url"); ok {
		rec.URL = u
	}

	if err := d.Answers.PutAnswer(ctx, rec); err != nil {
		return Fail(500, err.Error())
	}
	log.Info().Str("queryId", queryID).Msg("callback answer saved")
	return OK(true)
}

// translateKeyboard builds the camelCase admin payload and the snake_case
// echo from one inline keyboard. Row structure is preserved; url wins when
// a button carries both url and callback_data.
func translateKeyboard(markup *InlineKeyboardMarkup) ([][]adminapi.Button, *InlineKeyboardMarkup) {
	if markup == nil || len(markup.InlineKeyboard) == 0 {
		return nil, nil
	}
	buttons := make([][]adminapi.Button, 0, len(markup.InlineKeyboard))
	echo := make([][]InlineKeyboardButton, 0, len(markup.InlineKeyboard))
	for _, row := range markup.InlineKeyboard {
		adminRow := make([]adminapi.Button, 0, len(row))
		echoRow := make([]InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			a := adminapi.Button{Text: btn.Text}
			e := InlineKeyboardButton{Text: btn.Text}
			switch {
			case btn.URL != "":
				a.URL = btn.URL
				e.URL = btn.URL
			case btn.CallbackData != "":
				a.CallbackData = btn.CallbackData
				e.CallbackData = btn.CallbackData
			}
			adminRow = append(adminRow, a)
			echoRow = append(echoRow, e)
		}
		buttons = append(buttons, adminRow)
		echo = append(echo, echoRow)
	}
	return buttons, &InlineKeyboardMarkup{InlineKeyboard: echo}
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
