package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// New opens (or creates) a SQLite database at path, runs migrations, and
// returns a store.Store backed by it.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB constructs a SQLite store from an existing connection. The caller
// is responsible for having run migrations.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

// Migrate applies embedded goose migrations. A dedicated provider keeps the
// migration state off goose's package globals, so this store and the agent's
// database can migrate concurrently.
func Migrate(db *sql.DB) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(context.Background()); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Users() store.Users       { return &users{db: s.db} }
func (s *sqliteStore) Topics() store.Topics     { return &topics{db: s.db} }
func (s *sqliteStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *sqliteStore) Tokens() store.Tokens     { return &tokens{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	// modernc/sqlite surfaces constraint failures as plain errors
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return model.ErrConflict
	}
	return err
}

// --- Users ---

type users struct{ db *sql.DB }

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	id := m.UserID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (user_id, username, email, password_hash, creation_time)
        VALUES (?,?,?,?,?)
    `, id, m.Username, m.Email, m.PasswordHash, now)
	if err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.UserID = id
	out.CreationTime = now
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, username, email, password_hash, creation_time
        FROM users WHERE user_id = ?
    `, userID)
	return scanUser(row)
}

func (u *users) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, username, email, password_hash, creation_time
        FROM users WHERE username = ?
    `, username)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	var out model.User
	if err := row.Scan(&out.UserID, &out.Username, &out.Email, &out.PasswordHash, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

// --- Topics ---

type topics struct{ db *sql.DB }

func (t *topics) Create(ctx context.Context, m *model.Topic) (*model.Topic, error) {
	id := m.TopicID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := t.db.ExecContext(ctx, `
        INSERT INTO topics (topic_id, user_id, title, creation_time)
        VALUES (?,?,?,?)
    `, id, m.UserID, m.Title, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &model.Topic{TopicID: id, UserID: m.UserID, Title: m.Title, CreationTime: now}, nil
}

func (t *topics) GetByID(ctx context.Context, userID, topicID string) (*model.Topic, error) {
	row := t.db.QueryRowContext(ctx, `
        SELECT topic_id, user_id, title, creation_time
        FROM topics WHERE user_id = ? AND topic_id = ?
    `, userID, topicID)
	var out model.Topic
	if err := row.Scan(&out.TopicID, &out.UserID, &out.Title, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (t *topics) List(ctx context.Context, userID string) ([]*model.Topic, error) {
	rows, err := t.db.QueryContext(ctx, `
        SELECT topic_id, title, creation_time
        FROM topics WHERE user_id = ? ORDER BY creation_time DESC, topic_id
    `, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Topic
	for rows.Next() {
		var id, title string
		var created time.Time
		if err := rows.Scan(&id, &title, &created); err != nil {
			return nil, err
		}
		res = append(res, &model.Topic{TopicID: id, UserID: userID, Title: title, CreationTime: created})
	}
	return res, rows.Err()
}

func (t *topics) Rename(ctx context.Context, userID, topicID, title string) (*model.Topic, error) {
	res, err := t.db.ExecContext(ctx, `
        UPDATE topics SET title = ? WHERE user_id = ? AND topic_id = ?
    `, title, userID, topicID)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return t.GetByID(ctx, userID, topicID)
}

func (t *topics) Delete(ctx context.Context, userID, topicID string) error {
	// ON DELETE CASCADE removes the topic's messages.
	res, err := t.db.ExecContext(ctx, `
        DELETE FROM topics WHERE user_id = ? AND topic_id = ?
    `, userID, topicID)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- Messages ---

type messages struct{ db *sql.DB }

func (m *messages) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	id := msg.MessageID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO messages (message_id, topic_id, role, content, creation_time)
        VALUES (?,?,?,?,?)
    `, id, msg.TopicID, string(msg.Role), msg.Content, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &model.Message{MessageID: id, TopicID: msg.TopicID, Role: msg.Role, Content: msg.Content, CreationTime: now}, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	q := `
        SELECT message_id, role, content, creation_time
        FROM messages WHERE topic_id = ?`
	args := []interface{}{req.TopicID}
	if req.Before != nil {
		q += ` AND creation_time < ?`
		args = append(args, req.Before.UTC())
	}
	if req.After != nil {
		q += ` AND creation_time > ?`
		args = append(args, req.After.UTC())
	}
	// id breaks creation_time ties in commit order
	q += ` ORDER BY creation_time, id`
	if req.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, req.Limit)
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Message
	for rows.Next() {
		var out model.Message
		var role string
		out.TopicID = req.TopicID
		if err := rows.Scan(&out.MessageID, &role, &out.Content, &out.CreationTime); err != nil {
			return nil, err
		}
		out.Role = model.Role(role)
		res = append(res, &out)
	}
	return res, rows.Err()
}

// --- Tokens ---

type tokens struct{ db *sql.DB }

func (t *tokens) Put(ctx context.Context, tok *model.Token) error {
	now := time.Now().UTC()
	_, err := t.db.ExecContext(ctx, `
        INSERT INTO tokens (token, user_id, kind, expiry_time, creation_time)
        VALUES (?,?,?,?,?)
    `, tok.Token, tok.UserID, string(tok.Kind), tok.ExpiryTime.UTC(), now)
	return mapErr(err)
}

func (t *tokens) Get(ctx context.Context, token string) (*model.Token, error) {
	row := t.db.QueryRowContext(ctx, `
        SELECT token, user_id, kind, expiry_time, creation_time
        FROM tokens WHERE token = ?
    `, token)
	var out model.Token
	var kind string
	if err := row.Scan(&out.Token, &out.UserID, &kind, &out.ExpiryTime, &out.CreationTime); err != nil {
		return nil, mapErr(err)
	}
	out.Kind = model.TokenKind(kind)
	return &out, nil
}

func (t *tokens) DeleteForUser(ctx context.Context, userID string, kind model.TokenKind) error {
	_, err := t.db.ExecContext(ctx, `
        DELETE FROM tokens WHERE user_id = ? AND kind = ?
    `, userID, string(kind))
	return mapErr(err)
}
