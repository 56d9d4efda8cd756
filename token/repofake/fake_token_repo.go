package tokenfakerepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

// FakeTokenRepo is an in-memory token.Repo for unit tests.
type FakeTokenRepo struct {
	sets      map[string]token.Set
	denylist  map[string]time.Time
	lock      sync.RWMutex
	UpdateErr error
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		sets:     make(map[string]token.Set),
		denylist: make(map[string]time.Time),
	}
}

// Put stores a set exactly as given, bypassing sealing.
func (tr *FakeTokenRepo) Put(set token.Set) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.sets[set.SessionID] = set
}

// Deny adds a hash to the denylist.
func (tr *FakeTokenRepo) Deny(hash string, expiresAt time.Time) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	tr.denylist[hash] = expiresAt
}

// Remove drops the set bound to a session.
func (tr *FakeTokenRepo) Remove(sessionID string) {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	delete(tr.sets, sessionID)
}

func (tr *FakeTokenRepo) GetTokenSet(_ context.Context, sessionID string) (token.Set, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	set, ok := tr.sets[sessionID]
	if !ok {
		return token.Set{}, errors.ErrInvalidSession
	}
	return set, nil
}

func (tr *FakeTokenRepo) UpdateTokenSet(_ context.Context, set token.Set) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tr.UpdateErr != nil {
		return tr.UpdateErr
	}
	if _, ok := tr.sets[set.SessionID]; !ok {
		return errors.ErrInvalidSession
	}
	tr.sets[set.SessionID] = set
	return nil
}

func (tr *FakeTokenRepo) IsDenylisted(_ context.Context, hash string, now time.Time) (bool, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	exp, ok := tr.denylist[hash]
	return ok && now.Before(exp), nil
}
