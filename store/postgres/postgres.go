// Package postgres is the store.Store used when several gateway replicas
// share state. Multi-row transitions run in a single transaction; rows bound
// to a session reference it with ON DELETE CASCADE.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
	"github.com/jrsteele09/go-playlist-gateway/pkce"
	"github.com/jrsteele09/go-playlist-gateway/providercache"
	"github.com/jrsteele09/go-playlist-gateway/sessions"
	"github.com/jrsteele09/go-playlist-gateway/store"
	"github.com/jrsteele09/go-playlist-gateway/token"
)

var _ store.Store = (*Store)(nil)

const foreignKeyViolation = "23503"

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db     DB
	close  func()
	logger zerolog.Logger
}

// Option defines a function type to modify the Store instance.
type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(db DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("[postgres New] db is required")
	}
	s := &Store{
		db:     db,
		close:  func() {},
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Open connects to dsn, applies migrations and returns a Store that owns the
// connection pool.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInternal, "parsing postgres dsn: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInternal, "opening connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(errors.ErrInternal, "pinging postgres: %v", err)
	}

	s, err := New(pool, options...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := Migrate(ctx, pool, s.logger); err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

func (s *Store) Close() error {
	s.close()
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return dbError("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

// dbError keeps domain errors intact and reports everything else as internal.
func dbError(op string, err error) error {
	for _, domain := range []error{errors.ErrInvalidSession, errors.ErrUnknownOrExpiredState, errors.ErrNotFound} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return errors.Wrapf(errors.ErrInternal, "%s: %v", op, err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

func (s *Store) SavePKCE(ctx context.Context, entry pkce.Entry) error {
	const query = `
        INSERT INTO pkce_entries (state, code_verifier, scopes, created_at, expires_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	scopes := entry.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := s.db.Exec(ctx, query, entry.State, entry.CodeVerifier, scopes, entry.CreatedAt, entry.ExpiresAt); err != nil {
		return dbError("saving pkce entry", err)
	}
	return nil
}

func (s *Store) GetPKCE(ctx context.Context, state string) (pkce.Entry, error) {
	const query = `
        SELECT code_verifier, scopes, created_at, expires_at
        FROM pkce_entries WHERE state = $1
    `
	return s.scanPKCE(ctx, query, state)
}

func (s *Store) TakePKCE(ctx context.Context, state string) (pkce.Entry, error) {
	const query = `
        DELETE FROM pkce_entries WHERE state = $1
        RETURNING code_verifier, scopes, created_at, expires_at
    `
	return s.scanPKCE(ctx, query, state)
}

func (s *Store) scanPKCE(ctx context.Context, query, state string) (pkce.Entry, error) {
	entry := pkce.Entry{State: state}
	err := s.db.QueryRow(ctx, query, state).Scan(&entry.CodeVerifier, &entry.Scopes, &entry.CreatedAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pkce.Entry{}, errors.ErrUnknownOrExpiredState
		}
		return pkce.Entry{}, dbError("reading pkce entry", err)
	}
	return entry, nil
}

func (s *Store) CompleteAuth(ctx context.Context, state string, session sessions.Session, tokens token.Set) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM pkce_entries WHERE state = $1`, state)
		if err != nil {
			return dbError("consuming pkce entry", err)
		}
		if tag.RowsAffected() != 1 {
			return errors.Wrapf(errors.ErrUnknownOrExpiredState, "state already consumed")
		}

		const insertSession = `
            INSERT INTO sessions (id, provider_user_id, device_info, created_at, expires_at)
            VALUES ($1, $2, $3, $4, $5)
        `
		if _, err := tx.Exec(ctx, insertSession,
			session.ID, session.ProviderUserID, session.DeviceInfo, session.CreatedAt, session.ExpiresAt,
		); err != nil {
			return dbError("creating session", err)
		}

		const insertTokens = `
            INSERT INTO token_sets (session_id, access_token, refresh_token, scope, expires_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6)
        `
		if _, err := tx.Exec(ctx, insertTokens,
			session.ID, tokens.AccessToken, tokens.RefreshToken, tokens.Scope, tokens.ExpiresAt, tokens.UpdatedAt,
		); err != nil {
			return dbError("storing token set", err)
		}
		return nil
	})
}

func (s *Store) Logout(ctx context.Context, sessionID string, denied token.Denylisted) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		if err != nil {
			return dbError("deleting session", err)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(errors.ErrInvalidSession, "session already logged out")
		}
		if denied.Hash == "" {
			return nil
		}

		const deny = `
            INSERT INTO denylisted_refresh_tokens (hash, reason, added_at, expires_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (hash) DO UPDATE
            SET expires_at = GREATEST(denylisted_refresh_tokens.expires_at, EXCLUDED.expires_at)
        `
		if _, err := tx.Exec(ctx, deny, denied.Hash, denied.Reason, denied.AddedAt, denied.ExpiresAt); err != nil {
			return dbError("denylisting refresh token", err)
		}
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (sessions.Session, error) {
	const query = `
        SELECT provider_user_id, device_info, created_at, expires_at
        FROM sessions WHERE id = $1
    `
	session := sessions.Session{ID: sessionID}
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&session.ProviderUserID, &session.DeviceInfo, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sessions.Session{}, errors.ErrInvalidSession
		}
		return sessions.Session{}, dbError("reading session", err)
	}
	return session, nil
}

func (s *Store) GetTokenSet(ctx context.Context, sessionID string) (token.Set, error) {
	const query = `
        SELECT access_token, refresh_token, scope, expires_at, updated_at
        FROM token_sets WHERE session_id = $1
    `
	set := token.Set{SessionID: sessionID}
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&set.AccessToken, &set.RefreshToken, &set.Scope, &set.ExpiresAt, &set.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token.Set{}, errors.ErrInvalidSession
		}
		return token.Set{}, dbError("reading token set", err)
	}
	return set, nil
}

func (s *Store) UpdateTokenSet(ctx context.Context, set token.Set) error {
	const query = `
        UPDATE token_sets
        SET access_token = $2, refresh_token = $3, scope = $4, expires_at = $5, updated_at = $6
        WHERE session_id = $1
    `
	tag, err := s.db.Exec(ctx, query, set.SessionID, set.AccessToken, set.RefreshToken, set.Scope, set.ExpiresAt, set.UpdatedAt)
	if err != nil {
		return dbError("updating token set", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrInvalidSession
	}
	return nil
}

func (s *Store) IsDenylisted(ctx context.Context, hash string, now time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM denylisted_refresh_tokens WHERE hash = $1 AND expires_at > $2
        )
    `
	var denied bool
	if err := s.db.QueryRow(ctx, query, hash, now).Scan(&denied); err != nil {
		return false, dbError("checking denylist", err)
	}
	return denied, nil
}

func (s *Store) GetPage(ctx context.Context, providerUserID, key string, now time.Time) (providercache.Page, error) {
	const query = `
        SELECT payload, updated_at, expires_at
        FROM playlist_cache
        WHERE provider_user_id = $1 AND page_key = $2 AND expires_at > $3
    `
	page := providercache.Page{ProviderUserID: providerUserID, Key: key}
	err := s.db.QueryRow(ctx, query, providerUserID, key, now).Scan(&page.Payload, &page.UpdatedAt, &page.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return providercache.Page{}, errors.ErrNotFound
		}
		return providercache.Page{}, dbError("reading cache page", err)
	}
	return page, nil
}

func (s *Store) PutPage(ctx context.Context, page providercache.Page) error {
	const query = `
        INSERT INTO playlist_cache (provider_user_id, page_key, payload, updated_at, expires_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (provider_user_id, page_key) DO UPDATE
        SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at
    `
	if _, err := s.db.Exec(ctx, query, page.ProviderUserID, page.Key, page.Payload, page.UpdatedAt, page.ExpiresAt); err != nil {
		return dbError("writing cache page", err)
	}
	return nil
}

func (s *Store) LinkSession(ctx context.Context, link providercache.Link) error {
	const query = `
        INSERT INTO cache_session_links (session_id, provider_user_id, page_key, linked_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT DO NOTHING
    `
	if _, err := s.db.Exec(ctx, query, link.SessionID, link.ProviderUserID, link.PageKey, link.LinkedAt); err != nil {
		if isForeignKeyViolation(err) {
			return errors.ErrInvalidSession
		}
		return dbError("linking session", err)
	}
	return nil
}

func (s *Store) SessionLinks(ctx context.Context, sessionID string) ([]providercache.Link, error) {
	const query = `
        SELECT provider_user_id, page_key, linked_at
        FROM cache_session_links WHERE session_id = $1
        ORDER BY provider_user_id, page_key
    `
	rows, err := s.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, dbError("listing session links", err)
	}
	defer rows.Close()

	links := []providercache.Link{}
	for rows.Next() {
		l := providercache.Link{SessionID: sessionID}
		if err := rows.Scan(&l.ProviderUserID, &l.PageKey, &l.LinkedAt); err != nil {
			return nil, dbError("scanning session link", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing session links", err)
	}
	return links, nil
}

// lockSession serializes selection writes per session and fails when the
// session has been deleted.
func lockSession(ctx context.Context, tx pgx.Tx, sessionID string) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.ErrInvalidSession
		}
		return dbError("locking session", err)
	}
	return nil
}

const insertSelection = `
    INSERT INTO playlist_selections (session_id, playlist_id, selected_at)
    SELECT $1, id, $3 FROM unnest($2::text[]) AS id
    ON CONFLICT DO NOTHING
`

func (s *Store) ReplaceSelection(ctx context.Context, sessionID string, playlistIDs []string, now time.Time) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM playlist_selections WHERE session_id = $1`, sessionID); err != nil {
			return dbError("clearing selection", err)
		}
		if len(playlistIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, insertSelection, sessionID, playlistIDs, now); err != nil {
			return dbError("replacing selection", err)
		}
		return nil
	})
}

func (s *Store) AddSelection(ctx context.Context, sessionID string, playlistIDs []string, now time.Time) (int64, error) {
	var added int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, insertSelection, sessionID, playlistIDs, now)
		if err != nil {
			return dbError("adding to selection", err)
		}
		added = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *Store) RemoveSelection(ctx context.Context, sessionID string, playlistIDs []string) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		const query = `DELETE FROM playlist_selections WHERE session_id = $1 AND playlist_id = ANY($2)`
		tag, err := tx.Exec(ctx, query, sessionID, playlistIDs)
		if err != nil {
			return dbError("removing from selection", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Store) ClearSelection(ctx context.Context, sessionID string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM playlist_selections WHERE session_id = $1`, sessionID); err != nil {
			return dbError("clearing selection", err)
		}
		return nil
	})
}

func (s *Store) ListSelection(ctx context.Context, sessionID string) ([]string, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, dbError("checking session", err)
	}
	if !exists {
		return nil, errors.ErrInvalidSession
	}

	rows, err := s.db.Query(ctx, `SELECT playlist_id FROM playlist_selections WHERE session_id = $1 ORDER BY playlist_id`, sessionID)
	if err != nil {
		return nil, dbError("listing selection", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dbError("scanning selection", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("listing selection", err)
	}
	return ids, nil
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (store.PurgeStats, error) {
	var stats store.PurgeStats
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, purge := range []struct {
			query string
			count *int64
		}{
			{`DELETE FROM pkce_entries WHERE expires_at <= $1`, &stats.PKCEEntries},
			{`DELETE FROM sessions WHERE expires_at <= $1`, &stats.Sessions},
			{`DELETE FROM denylisted_refresh_tokens WHERE expires_at <= $1`, &stats.Denylist},
			{`DELETE FROM playlist_cache WHERE expires_at <= $1`, &stats.CachePages},
		} {
			tag, err := tx.Exec(ctx, purge.query, now)
			if err != nil {
				return dbError("purging expired rows", err)
			}
			*purge.count = tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return store.PurgeStats{}, err
	}
	return stats, nil
}
