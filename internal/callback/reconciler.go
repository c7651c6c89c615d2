// Package callback bridges the asynchronous gap between an inbound callback
// event and the answerCallbackQuery the bot eventually writes over HTTP.
// Each ingested callback gets its own watcher goroutine polling the answer
// store; a deposited answer is forwarded to the admin REST exactly once.
package callback

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/adminapi"
	"github.com/eventflow-im/botapi-bridge/internal/store"
)

const (
	// MaxAttempts bounds how many polls a watcher makes before giving up.
	MaxAttempts = 20

	// CheckInterval is the spacing between polls. Together with MaxAttempts
	// it gives the bot roughly six seconds to answer.
	CheckInterval = 300 * time.Millisecond
)

// AnswerSource is the slice of the answer store a watcher needs.
type AnswerSource interface {
	GetAnswer(ctx context.Context, queryID string) (*store.CallbackAnswer, error)
	DeleteAnswer(ctx context.Context, queryID string) error
}

// AdminPoster forwards a deposited answer to the backend.
type AdminPoster interface {
	AnswerCallback(ctx context.Context, req adminapi.AnswerCallbackRequest) error
}

// Reconciler spawns watchers for live callback queries.
type Reconciler struct {
	answers AnswerSource
	admin   AdminPoster

	// Narrowed in tests.
	attempts int
	interval time.Duration
}

// NewReconciler wires a reconciler to the answer store and the admin client.
func NewReconciler(answers AnswerSource, admin AdminPoster) *Reconciler {
	return &Reconciler{
		answers:  answers,
		admin:    admin,
		attempts: MaxAttempts,
		interval: CheckInterval,
	}
}

// Watch polls the answer store for queryID until an answer appears or the
// retry budget runs out. A found answer is posted to the admin REST and the
// record deleted regardless of the post's outcome; network failures are
// logged, not retried. An exhausted budget terminates silently: the bot
// simply never answered.
func (r *Reconciler) Watch(ctx context.Context, queryID string, botID, msgID int64) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}

		answer, err := r.answers.GetAnswer(ctx, queryID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("queryId", queryID).Msg("answer lookup failed")
			continue
		}

		r.forward(ctx, queryID, botID, msgID, answer)
		return
	}
	log.Debug().Str("queryId", queryID).Msg("callback answer wait timed out")
}

func (r *Reconciler) forward(ctx context.Context, queryID string, botID, msgID int64, answer *store.CallbackAnswer) {
	id, err := strconv.ParseInt(queryID, 10, 64)
	if err != nil {
		log.Error().Err(err).Str("queryId", queryID).Msg("malformed query id")
		_ = r.answers.DeleteAnswer(ctx, queryID)
		return
	}

	req := adminapi.AnswerCallbackRequest{
		QueryID:   id,
		PeerID:    botID,
		MsgID:     msgID,
		Alert:     answer.Alert,
		Message:   answer.Message,
		URL:       answer.URL,
		CacheTime: answer.CacheTime,
	}
	if err := r.admin.AnswerCallback(ctx, req); err != nil {
		log.Error().Err(err).Str("queryId", queryID).Msg("answer forward failed")
	} else {
		log.Info().Str("queryId", queryID).Int64("botId", botID).Msg("callback answered")
	}

	// The record is consumed either way; a second watcher must never see it.
	if err := r.answers.DeleteAnswer(ctx, queryID); err != nil {
		log.Warn().Err(err).Str("queryId", queryID).Msg("answer delete failed")
	}
}
