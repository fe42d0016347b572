package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/store"
)

//go:embed schema.sql
var ddl string

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

// Bootstrap applies the embedded schema. Statements use IF NOT EXISTS so the
// call is idempotent.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
	}
	return nil
}

type pgStore struct{ db *sql.DB }

func (s *pgStore) Users() store.Users       { return &users{db: s.db} }
func (s *pgStore) Topics() store.Topics     { return &topics{db: s.db} }
func (s *pgStore) Messages() store.Messages { return &messages{db: s.db} }
func (s *pgStore) Tokens() store.Tokens     { return &tokens{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *pgStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
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
	var created time.Time
	row := u.db.QueryRowContext(ctx, `
        INSERT INTO users (user_id, username, email, password_hash)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, id, m.Username, m.Email, m.PasswordHash)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	out := *m
	out.UserID = id
	out.CreationTime = created
	return &out, nil
}

func (u *users) Get(ctx context.Context, userID string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, username, email, password_hash, creation_time
        FROM users WHERE user_id=$1
    `, userID)
	return scanUser(row)
}

func (u *users) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := u.db.QueryRowContext(ctx, `
        SELECT user_id, username, email, password_hash, creation_time
        FROM users WHERE username=$1
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
	var created time.Time
	row := t.db.QueryRowContext(ctx, `
        INSERT INTO topics (topic_id, user_id, title)
        VALUES ($1,$2,$3)
        RETURNING creation_time
    `, id, m.UserID, m.Title)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	return &model.Topic{TopicID: id, UserID: m.UserID, Title: m.Title, CreationTime: created}, nil
}

func (t *topics) GetByID(ctx context.Context, userID, topicID string) (*model.Topic, error) {
	row := t.db.QueryRowContext(ctx, `
        SELECT topic_id, user_id, title, creation_time
        FROM topics WHERE user_id=$1 AND topic_id=$2
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
        FROM topics WHERE user_id=$1 ORDER BY creation_time DESC, topic_id
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
        UPDATE topics SET title=$1 WHERE user_id=$2 AND topic_id=$3
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
	res, err := t.db.ExecContext(ctx, `
        DELETE FROM topics WHERE user_id=$1 AND topic_id=$2
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
	var created time.Time
	row := m.db.QueryRowContext(ctx, `
        INSERT INTO messages (message_id, topic_id, role, content)
        VALUES ($1,$2,$3,$4)
        RETURNING creation_time
    `, id, msg.TopicID, string(msg.Role), msg.Content)
	if err := row.Scan(&created); err != nil {
		return nil, mapErr(err)
	}
	return &model.Message{MessageID: id, TopicID: msg.TopicID, Role: msg.Role, Content: msg.Content, CreationTime: created}, nil
}

func (m *messages) List(ctx context.Context, req model.ListMessagesRequest) ([]*model.Message, error) {
	q := `
        SELECT message_id, role, content, creation_time
        FROM messages WHERE topic_id=$1`
	args := []interface{}{req.TopicID}
	if req.Before != nil {
		args = append(args, req.Before.UTC())
		q += fmt.Sprintf(" AND creation_time < $%d", len(args))
	}
	if req.After != nil {
		args = append(args, req.After.UTC())
		q += fmt.Sprintf(" AND creation_time > $%d", len(args))
	}
	q += ` ORDER BY creation_time, id`
	if req.Limit > 0 {
		args = append(args, req.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
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
	_, err := t.db.ExecContext(ctx, `
        INSERT INTO tokens (token, user_id, kind, expiry_time)
        VALUES ($1,$2,$3,$4)
    `, tok.Token, tok.UserID, string(tok.Kind), tok.ExpiryTime.UTC())
	return mapErr(err)
}

func (t *tokens) Get(ctx context.Context, token string) (*model.Token, error) {
	row := t.db.QueryRowContext(ctx, `
        SELECT token, user_id, kind, expiry_time, creation_time
        FROM tokens WHERE token=$1
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
        DELETE FROM tokens WHERE user_id=$1 AND kind=$2
    `, userID, string(kind))
	return mapErr(err)
}
