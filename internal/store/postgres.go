package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"personachat/backend/internal/profile"
)

type dbQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

const chatColumns = `id, "userId", title, tags, "isFavorite", "isDeleted", "createdAt", "updatedAt"`

const messageColumns = `id, "chatId", role, content, COALESCE("modelUsed", ''), "tokensInput", "tokensOutput", cost, "createdAt"`

func scanChat(row pgx.Row) (Chat, error) {
	var chat Chat
	err := row.Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Tags,
		&chat.IsFavorite,
		&chat.IsDeleted,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chat{}, ErrNotFound
	}
	if chat.Tags == nil {
		chat.Tags = []string{}
	}
	return chat, err
}

func scanMessage(row pgx.Row) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.Role,
		&msg.Content,
		&msg.Model,
		&msg.TokensInput,
		&msg.TokensOutput,
		&msg.Cost,
		&msg.CreatedAt,
	)
	return msg, err
}

func (s *Postgres) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRow(
		ctx,
		`SELECT id, COALESCE(email, ''), name, balance, "createdAt" FROM "User" WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Balance, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts the user and the signup credit in one transaction. An
// existing user with the same id is returned unchanged.
func (s *Postgres) CreateUser(ctx context.Context, user User) (User, error) {
	if strings.TrimSpace(user.ID) == "" {
		user.ID = uuid.NewString()
	}
	var email any
	if e := strings.TrimSpace(user.Email); e != "" {
		email = e
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return User{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(
		ctx,
		`INSERT INTO "User" (id, email, name, balance, "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (id) DO NOTHING`,
		user.ID,
		email,
		user.Name,
		user.Balance,
	)
	if err != nil {
		return User{}, err
	}
	if tag.RowsAffected() > 0 && user.Balance != 0 {
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO "Transaction" (id, "userId", amount, type, description, "createdAt")
			 VALUES ($1, $2, $3, $4, $5, NOW())`,
			uuid.NewString(),
			user.ID,
			user.Balance,
			TransactionSignup,
			"Signup balance",
		); err != nil {
			return User{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Postgres) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		ctx,
		`SELECT id, "userId", amount, type, description, COALESCE("messageId", ''), "createdAt"
		 FROM "Transaction"
		 WHERE "userId" = $1
		 ORDER BY "createdAt" DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Transaction, 0)
	for rows.Next() {
		var item Transaction
		if err := rows.Scan(&item.ID, &item.UserID, &item.Amount, &item.Type, &item.Description, &item.MessageID, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Postgres) ListChats(ctx context.Context, userID string, filter ChatFilter) ([]Chat, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var tag any
	if t := strings.TrimSpace(filter.Tag); t != "" {
		tag = strings.ToLower(t)
	}
	rows, err := s.db.Query(
		ctx,
		`SELECT `+chatColumns+`
		 FROM "Chat"
		 WHERE "userId" = $1
		   AND "isDeleted" = FALSE
		   AND ($2::boolean = FALSE OR "isFavorite" = TRUE)
		   AND ($3::text IS NULL OR EXISTS (SELECT 1 FROM unnest(tags) t WHERE lower(t) = $3::text))
		 ORDER BY "isFavorite" DESC, "updatedAt" DESC
		 LIMIT $4 OFFSET $5`,
		userID,
		filter.FavoritesOnly,
		tag,
		limit,
		max(filter.Offset, 0),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *Postgres) CreateChat(ctx context.Context, userID, title string, tags []string) (Chat, error) {
	return scanChat(s.db.QueryRow(
		ctx,
		`INSERT INTO "Chat" (id, "userId", title, tags, "isFavorite", "isDeleted", "createdAt", "updatedAt")
		 VALUES ($1, $2, $3, $4, FALSE, FALSE, NOW(), NOW())
		 RETURNING `+chatColumns,
		uuid.NewString(),
		userID,
		normalizeTitle(title),
		normalizeTags(tags),
	))
}

func (s *Postgres) GetChat(ctx context.Context, userID, chatID string) (Chat, error) {
	return scanChat(s.db.QueryRow(
		ctx,
		`SELECT `+chatColumns+`
		 FROM "Chat"
		 WHERE id = $1 AND "userId" = $2 AND "isDeleted" = FALSE`,
		chatID,
		userID,
	))
}

func (s *Postgres) UpdateChat(ctx context.Context, userID, chatID string, update ChatUpdate) (Chat, error) {
	var title, tags, favorite any
	if update.Title != nil {
		title = normalizeTitle(*update.Title)
	}
	if update.Tags != nil {
		tags = normalizeTags(*update.Tags)
	}
	if update.IsFavorite != nil {
		favorite = *update.IsFavorite
	}
	return scanChat(s.db.QueryRow(
		ctx,
		`UPDATE "Chat"
		 SET title = COALESCE($3::text, title),
		     tags = COALESCE($4::text[], tags),
		     "isFavorite" = COALESCE($5::boolean, "isFavorite"),
		     "updatedAt" = NOW()
		 WHERE id = $1 AND "userId" = $2 AND "isDeleted" = FALSE
		 RETURNING `+chatColumns,
		chatID,
		userID,
		title,
		tags,
		favorite,
	))
}

func (s *Postgres) DeleteChat(ctx context.Context, userID, chatID string, permanent bool) error {
	query := `UPDATE "Chat" SET "isDeleted" = TRUE, "updatedAt" = NOW()
		 WHERE id = $1 AND "userId" = $2 AND "isDeleted" = FALSE`
	if permanent {
		query = `DELETE FROM "Chat" WHERE id = $1 AND "userId" = $2`
	}
	tag, err := s.db.Exec(ctx, query, chatID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, err
	}
	defer tx.Rollback(ctx)

	saved, err := insertMessage(ctx, tx, msg)
	if err != nil {
		return Message{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE "Chat" SET "updatedAt" = NOW() WHERE id = $1`, msg.ChatID); err != nil {
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	return saved, nil
}

func insertMessage(ctx context.Context, q dbQuerier, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	var model any
	if m := strings.TrimSpace(msg.Model); m != "" {
		model = m
	}
	err := q.QueryRow(
		ctx,
		`INSERT INTO "Message" (id, "chatId", role, content, "modelUsed", "tokensInput", "tokensOutput", cost, "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, clock_timestamp())
		 RETURNING "createdAt"`,
		msg.ID,
		msg.ChatID,
		msg.Role,
		msg.Content,
		model,
		msg.TokensInput,
		msg.TokensOutput,
		msg.Cost,
	).Scan(&msg.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return Message{}, fmt.Errorf("insert message: chat %w", ErrNotFound)
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *Postgres) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	return s.queryMessages(
		ctx,
		`SELECT `+messageColumns+` FROM "Message" WHERE "chatId" = $1 ORDER BY seq ASC`,
		chatID,
	)
}

func (s *Postgres) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.ListMessages(ctx, chatID)
	}
	msgs, err := s.queryMessages(
		ctx,
		`SELECT `+messageColumns+` FROM "Message" WHERE "chatId" = $1 ORDER BY seq DESC LIMIT $2`,
		chatID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Postgres) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CommitTurn writes the assistant message, the balance decrement, the usage
// transaction and the optional title in one transaction.
func (s *Postgres) CommitTurn(ctx context.Context, commit TurnCommit) (TurnResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer tx.Rollback(ctx)

	msg := commit.Assistant
	msg.ChatID = commit.ChatID
	msg.Role = RoleAssistant

	var balanceAfter float64
	err = tx.QueryRow(
		ctx,
		`UPDATE "User"
		 SET balance = balance - $2, "updatedAt" = NOW()
		 WHERE id = $1 AND balance >= $3
		 RETURNING balance`,
		commit.UserID,
		msg.Cost,
		commit.MinBalance,
	).Scan(&balanceAfter)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := s.GetUser(ctx, commit.UserID); errors.Is(lookupErr, ErrNotFound) {
			return TurnResult{}, fmt.Errorf("commit turn: user %w", ErrNotFound)
		}
		return TurnResult{}, ErrInsufficientBalance
	}
	if err != nil {
		return TurnResult{}, err
	}

	msg, err = insertMessage(ctx, tx, msg)
	if err != nil {
		return TurnResult{}, err
	}

	tag, err := tx.Exec(
		ctx,
		`UPDATE "Chat"
		 SET title = CASE WHEN $2::text <> '' AND title = $3::text THEN $2::text ELSE title END,
		     "updatedAt" = NOW()
		 WHERE id = $1`,
		commit.ChatID,
		commit.Title,
		DefaultChatTitle,
	)
	if err != nil {
		return TurnResult{}, err
	}
	if tag.RowsAffected() == 0 {
		return TurnResult{}, fmt.Errorf("commit turn: chat %w", ErrNotFound)
	}

	txn := usageTransaction(commit.UserID, msg, msg.CreatedAt)
	if _, err := tx.Exec(
		ctx,
		`INSERT INTO "Transaction" (id, "userId", amount, type, description, "messageId", "createdAt")
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		txn.ID,
		txn.UserID,
		txn.Amount,
		txn.Type,
		txn.Description,
		txn.MessageID,
	); err != nil {
		return TurnResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Message: msg, BalanceAfter: balanceAfter}, nil
}

func (s *Postgres) ensureProfile(ctx context.Context, q dbQuerier, userID string) error {
	_, err := q.Exec(
		ctx,
		`INSERT INTO "UserProfile" ("userId", facts, "createdAt", "updatedAt")
		 VALUES ($1, '{}'::jsonb, NOW(), NOW())
		 ON CONFLICT ("userId") DO NOTHING`,
		userID,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) GetProfile(ctx context.Context, userID string) (profile.Profile, error) {
	if err := s.ensureProfile(ctx, s.db, userID); err != nil {
		return nil, err
	}
	return loadProfile(ctx, s.db, userID, false)
}

func (s *Postgres) UpdateProfile(ctx context.Context, userID string, fn ProfileMutation) (profile.Profile, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.ensureProfile(ctx, tx, userID); err != nil {
		return nil, err
	}
	current, err := loadProfile(ctx, tx, userID, true)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(
		ctx,
		`UPDATE "UserProfile" SET facts = $2::jsonb, "updatedAt" = NOW() WHERE "userId" = $1`,
		userID,
		string(payload),
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

func loadProfile(ctx context.Context, q dbQuerier, userID string, forUpdate bool) (profile.Profile, error) {
	query := `SELECT facts FROM "UserProfile" WHERE "userId" = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var raw []byte
	if err := q.QueryRow(ctx, query, userID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p := profile.Profile{}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile facts: %w", err)
	}
	return p, nil
}
