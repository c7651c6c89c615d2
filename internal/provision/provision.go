// Package provision fabricates bot identities on the backend: it reserves a
// username, creates the backend user over the admin REST, and mints the
// token record the HTTP surface authenticates against. It also bootstraps
// the privileged BotFather token at startup.
package provision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eventflow-im/botapi-bridge/internal/adminapi"
	"github.com/eventflow-im/botapi-bridge/internal/clients"
	"github.com/eventflow-im/botapi-bridge/internal/store"
)

// botFatherFallbackID stands in for the real BotFather account id when the
// session probe fails. It must match the id the backend seeds for the
// account; a mismatch only breaks the BotFather token, not regular bots.
const botFatherFallbackID = 600000000000

// botIDMin and botIDMax bound freshly minted bot ids. Ten-digit ids keep
// bots visually distinct from the backend's human accounts.
const (
	botIDMin = 1_000_000_000
	botIDMax = 10_000_000_000
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// TokenDirectory is the token-store slice provisioning writes through.
type TokenDirectory interface {
	Create(ctx context.Context, rec *store.TokenRecord) error
	Update(ctx context.Context, botID int64, patch map[string]any) error
	FindBySessionName(ctx context.Context, name string) (*store.TokenRecord, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// UsernameIndex probes the backend's user read model for claimed usernames.
type UsernameIndex interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// AdminProvisioner is the admin REST slice driving user creation.
type AdminProvisioner interface {
	SendVerificationCode(ctx context.Context, userID int64, phone, code string) (string, error)
	CreateUser(ctx context.Context, req adminapi.CreateUserRequest) error
	SetVerified(ctx context.Context, userID int64, verified bool) error
}

// SessionSource is the registry slice used by the BotFather bootstrap.
type SessionSource interface {
	AuthorizeBotFather(phone string) bool
	Get(ctx context.Context, sessionName string) (clients.Client, error)
}

// Service performs bot provisioning against the backend.
type Service struct {
	Tokens   TokenDirectory
	Users    UsernameIndex
	Admin    AdminProvisioner
	Sessions SessionSource

	// BotFatherPhone enables the startup bootstrap when non-empty.
	BotFatherPhone string

	// now is swapped in tests.
	now func() time.Time
}

// NewService wires a provisioning service.
func NewService(tokens TokenDirectory, users UsernameIndex, admin AdminProvisioner, sessions SessionSource, botFatherPhone string) *Service {
	return &Service{
		Tokens:         tokens,
		Users:          users,
		Admin:          admin,
		Sessions:       sessions,
		BotFatherPhone: botFatherPhone,
		now:            time.Now,
	}
}

// ValidateUsername enforces the platform's bot username rules: 5..32
// characters, letters, digits and underscores only, ending in "bot".
func ValidateUsername(username string) error {
	if len(username) < 5 || len(username) > 32 {
		return fmt.Errorf("username must be 5-32 characters long")
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username may only contain letters, digits and underscores")
	}
	if !strings.HasSuffix(strings.ToLower(username), "bot") {
		return fmt.Errorf("username must end in 'bot'")
	}
	return nil
}

// CheckUsernameAvailable reports whether the username is free on both the
// backend's user read model and the gateway's own token records.
func (s *Service) CheckUsernameAvailable(ctx context.Context, username string) (bool, error) {
	taken, err := s.Users.UsernameTaken(ctx, username)
	if err != nil {
		return false, fmt.Errorf("probe user read model: %w", err)
	}
	if taken {
		return false, nil
	}
	exists, err := s.Tokens.UsernameExists(ctx, username)
	if err != nil {
		return false, fmt.Errorf("probe token records: %w", err)
	}
	return !exists, nil
}

// CreateBot fabricates a new bot for ownerID: a backend user with a random
// ten-digit id, plus the token record authenticating it. The bot starts
// unverified; SetVerified flips it after review.
func (s *Service) CreateBot(ctx context.Context, name, username string, ownerID int64) (*store.TokenRecord, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	available, err := s.CheckUsernameAvailable(ctx, username)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("username %q is already taken", username)
	}

	botID, err := randomBotID()
	if err != nil {
		return nil, err
	}
	accessHash, err := randomAccessHash()
	if err != nil {
		return nil, err
	}
	code, err := randomCode()
	if err != nil {
		return nil, err
	}
	phone := fmt.Sprintf("%d", botID)

	hash, err := s.Admin.SendVerificationCode(ctx, botID, phone, code)
	if err != nil {
		return nil, fmt.Errorf("send verification code: %w", err)
	}
	if hash == "" {
		return nil, fmt.Errorf("backend returned no phone code hash for bot %d", botID)
	}

	if err := s.Admin.CreateUser(ctx, adminapi.CreateUserRequest{
		UserID:        botID,
		AccessHash:    accessHash,
		PhoneNumber:   phone,
		FirstName:     name,
		LastName:      nil,
		UserName:      username,
		Bot:           true,
		PhoneCodeHash: hash,
	}); err != nil {
		return nil, fmt.Errorf("create backend user: %w", err)
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	rec := &store.TokenRecord{
		Token:       token,
		FullToken:   fmt.Sprintf("%d:%s", botID, token),
		BotID:       botID,
		SessionName: fmt.Sprintf("bot_%d_%d", ownerID, now),
		BotUsername: username,
		BotName:     name,
		OwnerID:     ownerID,
		Verified:    false,
		CreatedAt:   now,
	}
	if err := s.Tokens.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist token record: %w", err)
	}

	log.Info().
		Int64("botId", botID).
		Str("username", username).
		Int64("ownerId", ownerID).
		Msg("bot provisioned")
	return rec, nil
}

// SetVerified flips the backend verification flag and mirrors it in the
// token record.
func (s *Service) SetVerified(ctx context.Context, botID int64) error {
	if err := s.Admin.SetVerified(ctx, botID, true); err != nil {
		return fmt.Errorf("set verified on backend: %w", err)
	}
	if err := s.Tokens.Update(ctx, botID, map[string]any{"verified": true}); err != nil {
		return fmt.Errorf("update token record: %w", err)
	}
	log.Info().Int64("botId", botID).Msg("bot verified")
	return nil
}

// EnsureBotFatherToken makes sure the privileged BotFather session has a
// token record, creating or repairing one as needed. It is a no-op when no
// BotFather phone is configured. Called once at startup; failures keep the
// gateway running, only BotFather-driven flows stay dark.
func (s *Service) EnsureBotFatherToken(ctx context.Context) error {
	if s.BotFatherPhone == "" {
		log.Debug().Msg("botfather bootstrap skipped, no phone configured")
		return nil
	}
	s.Sessions.AuthorizeBotFather(s.BotFatherPhone)

	botID := s.resolveBotFatherID(ctx)

	rec, err := s.Tokens.FindBySessionName(ctx, "botfather")
	if err == nil {
		if rec.FullToken == "" && rec.Token != "" {
			full := fmt.Sprintf("%d:%s", rec.BotID, rec.Token)
			if err := s.Tokens.Update(ctx, rec.BotID, map[string]any{"full_token": full}); err != nil {
				return fmt.Errorf("backfill botfather token: %w", err)
			}
			log.Info().Int64("botId", rec.BotID).Msg("botfather token backfilled")
		}
		log.Info().Int64("botId", rec.BotID).Msg("botfather token present")
		return nil
	}
	if err != store.ErrNotFound {
		return fmt.Errorf("look up botfather token: %w", err)
	}

	token, err := GenerateToken()
	if err != nil {
		return err
	}
	rec = &store.TokenRecord{
		Token:       token,
		FullToken:   fmt.Sprintf("%d:%s", botID, token),
		BotID:       botID,
		SessionName: "botfather",
		BotUsername: "BotFather",
		BotName:     "BotFather",
		OwnerID:     0,
		Verified:    true,
		CreatedAt:   s.now().Unix(),
	}
	if err := s.Tokens.Create(ctx, rec); err != nil {
		return fmt.Errorf("persist botfather token: %w", err)
	}
	log.Info().Int64("botId", botID).Msg("botfather token created")
	return nil
}

func (s *Service) resolveBotFatherID(ctx context.Context) int64 {
	c, err := s.Sessions.Get(ctx, "botfather")
	if err == nil {
		if me, err := c.Me(ctx); err == nil && me != nil {
			return me.ID
		}
	}
	log.Warn().
		Err(err).
		Int64("fallbackId", botFatherFallbackID).
		Msg("botfather identity probe failed, using placeholder id")
	return botFatherFallbackID
}
