// Package memory is a single-process store.Store. One mutex guards every
// table, which makes the multi-row transitions trivially atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/pkce"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/store"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

var _ store.Store = (*Store)(nil)

type pageKey struct {
	providerUserID string
	key            string
}

type selected struct {
	selectedAt time.Time
}

type Store struct {
	lock       sync.RWMutex
	pkce       map[string]pkce.Entry
	sessions   map[string]sessions.Session
	tokens     map[string]token.Set
	denylist   map[string]token.Denylisted
	pages      map[pageKey]providercache.Page
	links      map[string]map[pageKey]providercache.Link
	selections map[string]map[string]selected
}

func New() *Store {
	return &Store{
		pkce:       make(map[string]pkce.Entry),
		sessions:   make(map[string]sessions.Session),
		tokens:     make(map[string]token.Set),
		denylist:   make(map[string]token.Denylisted),
		pages:      make(map[pageKey]providercache.Page),
		links:      make(map[string]map[pageKey]providercache.Link),
		selections: make(map[string]map[string]selected),
	}
}

func (s *Store) SavePKCE(_ context.Context, entry pkce.Entry) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, exists := s.pkce[entry.State]; exists {
		return errors.Wrapf(errors.ErrInternal, "duplicate pkce state")
	}
	entry.Scopes = append([]string(nil), entry.Scopes...)
	s.pkce[entry.State] = entry
	return nil
}

func (s *Store) GetPKCE(_ context.Context, state string) (pkce.Entry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	entry, ok := s.pkce[state]
	if !ok {
		return pkce.Entry{}, errors.ErrUnknownOrExpiredState
	}
	entry.Scopes = append([]string(nil), entry.Scopes...)
	return entry, nil
}

func (s *Store) TakePKCE(_ context.Context, state string) (pkce.Entry, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	entry, ok := s.pkce[state]
	if !ok {
		return pkce.Entry{}, errors.ErrUnknownOrExpiredState
	}
	delete(s.pkce, state)
	return entry, nil
}

func (s *Store) CompleteAuth(_ context.Context, state string, session sessions.Session, tokens token.Set) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.pkce[state]; !ok {
		return errors.Wrapf(errors.ErrUnknownOrExpiredState, "state already consumed")
	}
	if _, exists := s.sessions[session.ID]; exists {
		return errors.Wrapf(errors.ErrInternal, "duplicate session id")
	}
	delete(s.pkce, state)
	s.sessions[session.ID] = session
	tokens.SessionID = session.ID
	s.tokens[session.ID] = tokens
	return nil
}

func (s *Store) Logout(_ context.Context, sessionID string, denied token.Denylisted) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errors.Wrapf(errors.ErrInvalidSession, "session already logged out")
	}
	if denied.Hash != "" {
		s.denylist[denied.Hash] = denied
	}
	s.deleteSessionLocked(sessionID)
	return nil
}

func (s *Store) deleteSessionLocked(sessionID string) {
	delete(s.sessions, sessionID)
	delete(s.tokens, sessionID)
	delete(s.selections, sessionID)
	delete(s.links, sessionID)
}

func (s *Store) GetSession(_ context.Context, sessionID string) (sessions.Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return sessions.Session{}, errors.ErrInvalidSession
	}
	return session, nil
}

func (s *Store) GetTokenSet(_ context.Context, sessionID string) (token.Set, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	set, ok := s.tokens[sessionID]
	if !ok {
		return token.Set{}, errors.ErrInvalidSession
	}
	return set, nil
}

func (s *Store) UpdateTokenSet(_ context.Context, set token.Set) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.tokens[set.SessionID]; !ok {
		return errors.ErrInvalidSession
	}
	s.tokens[set.SessionID] = set
	return nil
}

func (s *Store) IsDenylisted(_ context.Context, hash string, now time.Time) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	d, ok := s.denylist[hash]
	return ok && now.Before(d.ExpiresAt), nil
}

func (s *Store) GetPage(_ context.Context, providerUserID, key string, now time.Time) (providercache.Page, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	page, ok := s.pages[pageKey{providerUserID, key}]
	if !ok || page.Expired(now) {
		return providercache.Page{}, errors.ErrNotFound
	}
	page.Payload = append([]byte(nil), page.Payload...)
	return page, nil
}

func (s *Store) PutPage(_ context.Context, page providercache.Page) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	page.Payload = append([]byte(nil), page.Payload...)
	s.pages[pageKey{page.ProviderUserID, page.Key}] = page
	return nil
}

func (s *Store) LinkSession(_ context.Context, link providercache.Link) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[link.SessionID]; !ok {
		return errors.ErrInvalidSession
	}
	links, ok := s.links[link.SessionID]
	if !ok {
		links = make(map[pageKey]providercache.Link)
		s.links[link.SessionID] = links
	}
	k := pageKey{link.ProviderUserID, link.PageKey}
	if _, exists := links[k]; !exists {
		links[k] = link
	}
	return nil
}

func (s *Store) SessionLinks(_ context.Context, sessionID string) ([]providercache.Link, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := make([]providercache.Link, 0, len(s.links[sessionID]))
	for _, l := range s.links[sessionID] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProviderUserID != out[j].ProviderUserID {
			return out[i].ProviderUserID < out[j].ProviderUserID
		}
		return out[i].PageKey < out[j].PageKey
	})
	return out, nil
}

func (s *Store) ReplaceSelection(_ context.Context, sessionID string, playlistIDs []string, now time.Time) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errors.ErrInvalidSession
	}
	set := make(map[string]selected, len(playlistIDs))
	for _, id := range playlistIDs {
		set[id] = selected{selectedAt: now}
	}
	s.selections[sessionID] = set
	return nil
}

func (s *Store) AddSelection(_ context.Context, sessionID string, playlistIDs []string, now time.Time) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, errors.ErrInvalidSession
	}
	set, ok := s.selections[sessionID]
	if !ok {
		set = make(map[string]selected, len(playlistIDs))
		s.selections[sessionID] = set
	}
	var added int64
	for _, id := range playlistIDs {
		if _, exists := set[id]; !exists {
			set[id] = selected{selectedAt: now}
			added++
		}
	}
	return added, nil
}

func (s *Store) RemoveSelection(_ context.Context, sessionID string, playlistIDs []string) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, errors.ErrInvalidSession
	}
	set := s.selections[sessionID]
	var removed int64
	for _, id := range playlistIDs {
		if _, ok := set[id]; ok {
			delete(set, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) ClearSelection(_ context.Context, sessionID string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return errors.ErrInvalidSession
	}
	delete(s.selections, sessionID)
	return nil
}

func (s *Store) ListSelection(_ context.Context, sessionID string) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, errors.ErrInvalidSession
	}
	ids := make([]string, 0, len(s.selections[sessionID]))
	for id := range s.selections[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) PurgeExpired(_ context.Context, now time.Time) (store.PurgeStats, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	var stats store.PurgeStats
	for state, entry := range s.pkce {
		if entry.Expired(now) {
			delete(s.pkce, state)
			stats.PKCEEntries++
		}
	}
	for id, session := range s.sessions {
		if session.Expired(now) {
			s.deleteSessionLocked(id)
			stats.Sessions++
		}
	}
	for hash, d := range s.denylist {
		if !now.Before(d.ExpiresAt) {
			delete(s.denylist, hash)
			stats.Denylist++
		}
	}
	for k, page := range s.pages {
		if page.Expired(now) {
			delete(s.pages, k)
			stats.CachePages++
		}
	}
	return stats, nil
}

func (s *Store) Close() error {
	return nil
}
