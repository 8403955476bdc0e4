package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/redis"
)

// DistributedLocker takes a lock shared by every server instance.
type DistributedLocker interface {
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (redis.UnlockFunc, error)
}

// sessionSlot is a one-token semaphore shared by the requests of one session.
type sessionSlot struct {
	token chan struct{}
	refs  int
}

// SessionLocker serialises request processing per session id. Requests in
// the same process queue on a ref-counted slot before contending for the
// distributed lock.
type SessionLocker struct {
	mu     sync.Mutex
	slots  map[string]*sessionSlot
	remote DistributedLocker
	ttl    time.Duration
}

// NewSessionLocker builds a locker. remote may be nil for a single instance.
func NewSessionLocker(remote DistributedLocker, ttl time.Duration) *SessionLocker {
	return &SessionLocker{
		slots:  make(map[string]*sessionSlot),
		remote: remote,
		ttl:    ttl,
	}
}

// Acquire blocks until the session is held or ctx is done. The returned
// function releases it.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	slot := l.ref(sessionID)

	select {
	case slot.token <- struct{}{}:
	case <-ctx.Done():
		l.unref(sessionID)
		return nil, fmt.Errorf("wait for session %s: %w", sessionID, ctx.Err())
	}

	local := func() {
		<-slot.token
		l.unref(sessionID)
	}
	if l.remote == nil {
		return local, nil
	}

	unlock, err := l.remote.Lock(ctx, sessionID, l.ttl)
	if err != nil {
		local()
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := unlock(ctx); err != nil {
			log.Warn().Err(err).Str("sessionId", sessionID).Msg("failed to release session lock")
		}
		local()
	}, nil
}

func (l *SessionLocker) ref(sessionID string) *sessionSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[sessionID]
	if !ok {
		slot = &sessionSlot{token: make(chan struct{}, 1)}
		l.slots[sessionID] = slot
	}
	slot.refs++
	return slot
}

func (l *SessionLocker) unref(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[sessionID]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, sessionID)
	}
}

// held returns the number of sessions with waiters or holders.
func (l *SessionLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
