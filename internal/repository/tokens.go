package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/superpan/taskboard/internal/models"
)

// CreateAuthToken создает новый токен авторизации с заданным сроком жизни.
// Ранее выданные неиспользованные токены не отзываются, несколько действующих
// токенов на одного пользователя допустимы.
func (r *Repository) CreateAuthToken(ctx context.Context, userID, telegramUserID *int64, ttl time.Duration) (*models.TelegramAuthToken, error) {
	token := &models.TelegramAuthToken{
		Token:          uuid.New(),
		UserID:         userID,
		TelegramUserID: telegramUserID,
	}

	query := `
        INSERT INTO telegram_auth_tokens (token, user_id, telegram_user_id, expires_at)
        VALUES ($1, $2, $3, NOW() + $4)
        RETURNING created_at, expires_at
    `
	err := r.pool.QueryRow(ctx, query, token.Token, userID, telegramUserID, ttl).Scan(&token.CreatedAt, &token.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth token: %w", err)
	}

	return token, nil
}

// GetAuthToken получает токен по значению
func (r *Repository) GetAuthToken(ctx context.Context, token uuid.UUID) (*models.TelegramAuthToken, error) {
	query := `
        SELECT token, user_id, telegram_user_id, created_at, expires_at, is_used
        FROM telegram_auth_tokens
        WHERE token = $1
    `

	var t models.TelegramAuthToken
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.Token, &t.UserID, &t.TelegramUserID, &t.CreatedAt, &t.ExpiresAt, &t.IsUsed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth token: %w", err)
	}

	return &t, nil
}

// ConsumeAuthToken атомарно помечает токен использованным и привязывает к нему
// пользователя и Telegram-профиль. Строка токена блокируется на время
// транзакции, поэтому двойное использование невозможно: повторная попытка
// вернет ErrTokenUsed, просроченный токен - ErrTokenExpired.
func (r *Repository) ConsumeAuthToken(ctx context.Context, token uuid.UUID, userID, telegramUserID *int64) (*models.TelegramAuthToken, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
        SELECT token, user_id, telegram_user_id, created_at, expires_at, is_used
        FROM telegram_auth_tokens
        WHERE token = $1
        FOR UPDATE
    `

	var t models.TelegramAuthToken
	err = tx.QueryRow(ctx, lockQuery, token).Scan(
		&t.Token, &t.UserID, &t.TelegramUserID, &t.CreatedAt, &t.ExpiresAt, &t.IsUsed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock auth token: %w", err)
	}

	if t.IsUsed {
		return nil, ErrTokenUsed
	}
	if t.IsExpired(time.Now()) {
		return nil, ErrTokenExpired
	}

	consumeQuery := `
        UPDATE telegram_auth_tokens
        SET is_used = TRUE,
            user_id = COALESCE($2, user_id),
            telegram_user_id = COALESCE($3, telegram_user_id)
        WHERE token = $1
        RETURNING user_id, telegram_user_id
    `
	if err = tx.QueryRow(ctx, consumeQuery, token, userID, telegramUserID).Scan(&t.UserID, &t.TelegramUserID); err != nil {
		return nil, fmt.Errorf("failed to consume auth token: %w", err)
	}
	t.IsUsed = true

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &t, nil
}
