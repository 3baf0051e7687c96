package sandbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// closeTimeout bounds the best-effort remote teardown on release.
const closeTimeout = 10 * time.Second

// SessionManager owns the session table. It guarantees at most one in-flight
// execution per (backend, key) pair; sessions under different keys are fully
// independent.
type SessionManager struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry

	now func() time.Time
}

// sessionEntry serializes executions for one (backend, key) pair. The slot
// channel has capacity one; sess is only touched while holding the slot.
type sessionEntry struct {
	slot chan struct{}
	sess *Session
}

// NewSessionManager creates an empty session manager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		logger:  logger,
		entries: make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

func sessionID(t BackendType, key string) string {
	return string(t) + "/" + key
}

// Acquire returns a ready session for the key, creating one if none is live,
// and marks it executing. It blocks while another execution holds the same
// key, bounded by the context deadline. Every successful Acquire must be
// paired with a Release.
func (m *SessionManager) Acquire(ctx context.Context, desc Descriptor, client Client, key string) (*Session, error) {
	if key == "" {
		return nil, ConfigErrorf("session key must not be empty")
	}

	m.mu.Lock()
	entry, ok := m.entries[sessionID(desc.Type, key)]
	if !ok {
		entry = &sessionEntry{slot: make(chan struct{}, 1)}
		m.entries[sessionID(desc.Type, key)] = entry
	}
	m.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, Timeoutf("timed out waiting for session %q", key)
	}

	sess := entry.sess
	if sess != nil && desc.IdleTTL > 0 && m.now().Sub(sess.LastUsedAt) > desc.IdleTTL {
		// The backend retires idle sessions server-side. Forget ours and let
		// the create below recreate it transparently.
		m.logger.Info("forgetting idle session",
			zap.String("backend", string(desc.Type)),
			zap.String("session_key", key))
		entry.sess = nil
		sess = nil
	}

	if sess == nil {
		created, err := m.create(ctx, desc, client, key)
		if err != nil {
			<-entry.slot
			return nil, err
		}
		sess = created
		if desc.SupportsSessionReuse {
			entry.sess = sess
		}
	}

	sess.State = StateExecuting
	sess.LastUsedAt = m.now()
	return sess, nil
}

// create performs the backend session-create call. Create failures are not
// retried here: a failing create usually means misconfiguration, and
// retrying would mask it.
func (m *SessionManager) create(ctx context.Context, desc Descriptor, client Client, key string) (*Session, error) {
	start := m.now()
	sess := &Session{
		Key:       key,
		Backend:   desc.Type,
		State:     StateCreating,
		CreatedAt: start,
	}

	remoteID, err := client.CreateSession(ctx, key)
	if err != nil {
		return nil, err
	}

	sess.RemoteID = remoteID
	sess.State = StateReady
	sess.LastUsedAt = m.now()
	m.logger.Info("session ready",
		zap.String("backend", string(desc.Type)),
		zap.String("session_key", key),
		zap.String("remote_id", remoteID),
		zap.Int64("create_ms", m.now().Sub(start).Milliseconds()))
	return sess, nil
}

// Release returns a session after an execution. Reuse-capable sessions go
// back to ready unless the execution timed out, in which case the session is
// assumed dirty and forgotten. Non-reusable sessions are torn down remotely,
// best effort.
func (m *SessionManager) Release(desc Descriptor, client Client, sess *Session, outcome Outcome) {
	m.mu.Lock()
	entry := m.entries[sessionID(desc.Type, sess.Key)]
	m.mu.Unlock()
	if entry == nil {
		return
	}

	if desc.SupportsSessionReuse && outcome != OutcomeTimeout {
		sess.State = StateReady
		sess.LastUsedAt = m.now()
		entry.sess = sess
	} else {
		entry.sess = nil
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := client.CloseSession(ctx, sess); err != nil {
			m.logger.Warn("session teardown failed",
				zap.String("backend", string(desc.Type)),
				zap.String("session_key", sess.Key),
				zap.Error(err))
		}
	}

	<-entry.slot
}
