package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"huddle/internal/app/store"
	"huddle/internal/pkg/randx"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// maxIDAttempts bounds retries when a random id collides.
const maxIDAttempts = 5

// Store implements store.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// compile-time check to ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// NewStore wraps a migrated pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// withTx runs fn inside a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Users ---

const userColumns = `id, username, password_hash, avatar_key, created_at, last_login_at`

func scanUser(row pgx.Row) (store.User, error) {
	var (
		u         store.User
		lastLogin *time.Time
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.AvatarKey, &u.CreatedAt, &lastLogin); err != nil {
		return store.User{}, translate(err)
	}
	if lastLogin != nil {
		u.LastLoginAt = *lastLogin
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3) RETURNING `+userColumns,
		uuid.NewString(), username, passwordHash,
	)
	return scanUser(row)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (store.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *Store) UpdateAvatar(ctx context.Context, userID, key string) (store.User, error) {
	row := s.pool.QueryRow(ctx, `UPDATE users SET avatar_key = $2 WHERE id = $1 RETURNING `+userColumns, userID, key)
	return scanUser(row)
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Servers ---

func loadServer(ctx context.Context, q querier, serverID string) (store.Server, error) {
	var srv store.Server
	err := q.QueryRow(ctx, `SELECT id, name, owner, created_at FROM servers WHERE id = $1`, serverID).
		Scan(&srv.ID, &srv.Name, &srv.Owner, &srv.CreatedAt)
	if err != nil {
		return store.Server{}, translate(err)
	}

	if srv.Admins, err = listNames(ctx, q, `SELECT username FROM server_admins WHERE server_id = $1 ORDER BY added_at, username`, serverID); err != nil {
		return store.Server{}, err
	}
	if srv.Members, err = listNames(ctx, q, `SELECT username FROM server_members WHERE server_id = $1 ORDER BY joined_at, username`, serverID); err != nil {
		return store.Server{}, err
	}
	return srv, nil
}

func listNames(ctx context.Context, q querier, sql string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *Store) CreateServer(ctx context.Context, name, owner string) (store.Server, []store.Channel, error) {
	var (
		srv      store.Server
		channels []store.Channel
	)

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		serverID, err := randx.ResourceID()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `INSERT INTO servers (id, name, owner) VALUES ($1, $2, $3)`, serverID, name, owner); err != nil {
			return translate(err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO server_members (server_id, username) VALUES ($1, $2)`, serverID, owner); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO server_admins (server_id, username) VALUES ($1, $2)`, serverID, owner); err != nil {
			return err
		}

		for _, d := range []struct {
			name string
			typ  store.ChannelType
		}{
			{"general", store.ChannelText},
			{"General Voice", store.ChannelVoice},
		} {
			ch, err := insertChannel(ctx, tx, serverID, d.name, d.typ, store.DefaultSettings(d.typ))
			if err != nil {
				return err
			}
			channels = append(channels, ch)
		}

		srv, err = loadServer(ctx, tx, serverID)
		return err
	})
	if err != nil {
		return store.Server{}, nil, err
	}
	return srv, channels, nil
}

func (s *Store) GetServer(ctx context.Context, serverID string) (store.Server, error) {
	return loadServer(ctx, s.pool, serverID)
}

func (s *Store) ListServersForUser(ctx context.Context, username string) ([]store.Server, error) {
	ids, err := listNames(ctx, s.pool, `
		SELECT s.id FROM servers s
		JOIN server_members m ON m.server_id = s.id
		WHERE m.username = $1
		ORDER BY s.created_at, s.id`, username)
	if err != nil {
		return nil, err
	}

	out := make([]store.Server, 0, len(ids))
	for _, id := range ids {
		srv, err := loadServer(ctx, s.pool, id)
		if err != nil {
			return nil, err
		}
		out = append(out, srv)
	}
	return out, nil
}

func (s *Store) EnsureMember(ctx context.Context, serverID, username string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO server_members (server_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		serverID, username,
	)
	return translate(err)
}

func (s *Store) SetAdmin(ctx context.Context, serverID, username string, admin bool) (store.Server, error) {
	var srv store.Server

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		if admin {
			_, err = tx.Exec(ctx, `INSERT INTO server_admins (server_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING`, serverID, username)
		} else {
			_, err = tx.Exec(ctx, `
				DELETE FROM server_admins a USING servers s
				WHERE a.server_id = s.id AND s.id = $1 AND a.username = $2 AND s.owner <> $2`, serverID, username)
		}
		if err != nil {
			return translate(err)
		}

		srv, err = loadServer(ctx, tx, serverID)
		return err
	})
	return srv, err
}

func (s *Store) IsOwnerOrAdmin(ctx context.Context, serverID, username string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT s.owner = $2 OR EXISTS (
			SELECT 1 FROM server_admins a WHERE a.server_id = s.id AND a.username = $2
		)
		FROM servers s WHERE s.id = $1`, serverID, username).Scan(&ok)
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// --- Channels ---

const channelColumns = `id, server_id, name, type, admin_only, slow_mode_seconds, user_limit, created_at`

func scanChannel(row pgx.Row) (store.Channel, error) {
	var ch store.Channel
	err := row.Scan(&ch.ID, &ch.ServerID, &ch.Name, &ch.Type,
		&ch.Settings.AdminOnly, &ch.Settings.SlowModeSeconds, &ch.Settings.UserLimit, &ch.CreatedAt)
	if err != nil {
		return store.Channel{}, translate(err)
	}
	return ch, nil
}

func insertChannel(ctx context.Context, q querier, serverID, name string, typ store.ChannelType, settings store.ChannelSettings) (store.Channel, error) {
	for range maxIDAttempts {
		id, err := randx.ResourceID()
		if err != nil {
			return store.Channel{}, err
		}

		ch, err := scanChannel(q.QueryRow(ctx, `
			INSERT INTO channels (id, server_id, name, type, admin_only, slow_mode_seconds, user_limit)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+channelColumns,
			id, serverID, name, string(typ), settings.AdminOnly, settings.SlowModeSeconds, settings.UserLimit,
		))
		if err == store.ErrConflict {
			continue
		}
		return ch, err
	}
	return store.Channel{}, store.ErrConflict
}

func (s *Store) CreateChannel(ctx context.Context, serverID, name string, typ store.ChannelType, settings store.ChannelSettings) (store.Channel, error) {
	return insertChannel(ctx, s.pool, serverID, name, typ, settings)
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (store.Channel, error) {
	return scanChannel(s.pool.QueryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID))
}

func (s *Store) ListChannels(ctx context.Context, serverID string) ([]store.Channel, error) {
	if _, err := loadServer(ctx, s.pool, serverID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT `+channelColumns+` FROM channels WHERE server_id = $1 ORDER BY seq`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) UpdateChannelSettings(ctx context.Context, channelID string, patch store.SettingsPatch) (store.Channel, error) {
	if err := patch.Validate(); err != nil {
		return store.Channel{}, err
	}

	return scanChannel(s.pool.QueryRow(ctx, `
		UPDATE channels SET
			admin_only        = COALESCE($2::boolean, admin_only),
			slow_mode_seconds = COALESCE($3::integer, slow_mode_seconds),
			user_limit        = COALESCE($4::integer, user_limit)
		WHERE id = $1
		RETURNING `+channelColumns,
		channelID, patch.AdminOnly, patch.SlowModeSeconds, patch.UserLimit,
	))
}

func (s *Store) DeleteChannel(ctx context.Context, channelID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, channelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Invites ---

func (s *Store) CreateInvite(ctx context.Context, serverID, createdBy string, maxUses int) (store.Invite, error) {
	if maxUses <= 0 {
		maxUses = store.DefaultInviteMaxUses
	}

	for range maxIDAttempts {
		code, err := randx.InviteCode()
		if err != nil {
			return store.Invite{}, err
		}

		inv := store.Invite{Code: code, ServerID: serverID, CreatedBy: createdBy, MaxUses: maxUses}
		err = s.pool.QueryRow(ctx, `
			INSERT INTO invites (code, server_id, created_by, max_uses) VALUES ($1, $2, $3, $4)
			RETURNING created_at`, code, serverID, createdBy, maxUses).Scan(&inv.CreatedAt)
		switch err = translate(err); err {
		case nil:
			return inv, nil
		case store.ErrConflict:
			continue
		default:
			return store.Invite{}, err
		}
	}
	return store.Invite{}, store.ErrConflict
}

func (s *Store) RedeemInvite(ctx context.Context, code, username string) (store.Server, error) {
	var srv store.Server

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			serverID      string
			uses, maxUses int
		)
		err := tx.QueryRow(ctx, `SELECT server_id, uses, max_uses FROM invites WHERE code = $1 FOR UPDATE`, code).
			Scan(&serverID, &uses, &maxUses)
		if err != nil {
			return translate(err)
		}
		if uses >= maxUses {
			return store.ErrInviteExhausted
		}

		tag, err := tx.Exec(ctx, `INSERT INTO server_members (server_id, username) VALUES ($1, $2) ON CONFLICT DO NOTHING`, serverID, username)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrAlreadyMember
		}

		if _, err := tx.Exec(ctx, `UPDATE invites SET uses = uses + 1 WHERE code = $1`, code); err != nil {
			return err
		}

		srv, err = loadServer(ctx, tx, serverID)
		return err
	})
	return srv, err
}

// --- Messages ---

const messageColumns = `id, channel_id, username, text, is_admin, is_owner, created_at`

func scanMessage(row pgx.Row) (store.Message, error) {
	var m store.Message
	if err := row.Scan(&m.ID, &m.ChannelID, &m.Username, &m.Text, &m.IsAdmin, &m.IsOwner, &m.CreatedAt); err != nil {
		return store.Message{}, translate(err)
	}
	return m, nil
}

func (s *Store) PersistMessage(ctx context.Context, channelID, username, text string) (store.Message, error) {
	return scanMessage(s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, channel_id, username, text, is_admin, is_owner)
		SELECT $1, c.id, $3, $4,
			EXISTS (SELECT 1 FROM server_admins a WHERE a.server_id = c.server_id AND a.username = $3),
			s.owner = $3
		FROM channels c JOIN servers s ON s.id = c.server_id
		WHERE c.id = $2
		RETURNING `+messageColumns,
		randx.MessageID(), channelID, username, text,
	))
}

func (s *Store) ListMessages(ctx context.Context, channelID string, limit int) ([]store.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM channels WHERE id = $1)`, channelID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+` FROM messages
			WHERE channel_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent ORDER BY seq`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
