package clients

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrNotAuthorized reports a session file without valid credentials. The
// dispatcher collapses it, like every other registry failure, into a 401.
var ErrNotAuthorized = errors.New("clients: session is not authorized")

// Registry caches one live Client per session name. Clients are created
// lazily on first use and shared by every request for the same bot; a
// singleflight group serializes cold starts so two racing requests never
// open the same session file twice.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]Client

	dial        Dialer
	sessionsDir string
	group       singleflight.Group
}

// NewRegistry creates a registry dialing through dial, with session files
// under sessionsDir.
func NewRegistry(dial Dialer, sessionsDir string) *Registry {
	return &Registry{
		cache:       make(map[string]Client),
		dial:        dial,
		sessionsDir: sessionsDir,
	}
}

// Get returns a connected, authorized client for the session. A cached
// client is probed with Me before reuse; a failed probe falls through to a
// fresh connect which replaces the cache entry.
func (r *Registry) Get(ctx context.Context, sessionName string) (Client, error) {
	if c, ok := r.probeCached(ctx, sessionName); ok {
		log.Debug().Str("session", sessionName).Msg("using cached client")
		return c, nil
	}

	v, err, _ := r.group.Do(sessionName, func() (any, error) {
		// Another caller may have finished the connect while we waited.
		if c, ok := r.probeCached(ctx, sessionName); ok {
			return c, nil
		}
		return r.connect(ctx, sessionName)
	})
	if err != nil {
		return nil, err
	}
	return v.(Client), nil
}

func (r *Registry) probeCached(ctx context.Context, sessionName string) (Client, bool) {
	r.mu.RLock()
	c, ok := r.cache[sessionName]
	r.mu.RUnlock()
	if !ok || !c.Connected() {
		return nil, false
	}
	me, err := c.Me(ctx)
	if err != nil || me == nil {
		return nil, false
	}
	return c, true
}

func (r *Registry) connect(ctx context.Context, sessionName string) (Client, error) {
	path := filepath.Join(r.sessionsDir, sessionName+".session")
	c, err := r.dial(path)
	if err != nil {
		return nil, fmt.Errorf("dial session %s: %w", sessionName, err)
	}

	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connect session %s: %w", sessionName, err)
	}
	ok, err := c.Authorized(ctx)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("check authorization %s: %w", sessionName, err)
	}
	if !ok {
		_ = c.Close()
		return nil, ErrNotAuthorized
	}
	me, err := c.Me(ctx)
	if err != nil || me == nil {
		_ = c.Close()
		return nil, fmt.Errorf("get self for %s: %w", sessionName, err)
	}

	// State sync is best effort; a failure only costs gap recovery accuracy.
	if err := c.SyncState(ctx); err != nil {
		log.Warn().Err(err).Str("session", sessionName).Msg("state sync failed")
	}

	r.mu.Lock()
	r.cache[sessionName] = c
	r.mu.Unlock()

	if err := c.CatchUp(ctx); err != nil {
		log.Warn().Err(err).Str("session", sessionName).Msg("catch up failed")
	}

	log.Info().
		Str("session", sessionName).
		Int64("userId", me.ID).
		Msg("client initialized")
	return c, nil
}

// AuthorizeBotFather is the bootstrap hook for the privileged session. The
// interactive sign-in itself happens out-of-band; here we only report
// whether a session file already exists.
func (r *Registry) AuthorizeBotFather(phone string) bool {
	path := filepath.Join(r.sessionsDir, "botfather.session")
	if _, err := os.Stat(path); err == nil {
		log.Info().Msg("botfather session found")
		return true
	}
	log.Error().
		Str("phone", phone).
		Str("path", path).
		Msg("botfather session missing, interactive sign-in required")
	return false
}

// Close disconnects every cached client. Called once at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.cache {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("session", name).Msg("client close failed")
		}
	}
	r.cache = make(map[string]Client)
}
