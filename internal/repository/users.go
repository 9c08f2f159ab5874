package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/superpan/taskboard/internal/models"
)

// GetUser получает пользователя по ID
func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := `
        SELECT id, email, first_name, last_name, role, is_active, device_fingerprint
        FROM users
        WHERE id = $1
    `

	var user models.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.Role, &user.IsActive, &user.DeviceFingerprint,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserByTelegramID получает пользователя, привязанного к Telegram-аккаунту
func (r *Repository) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `
        SELECT u.id, u.email, u.first_name, u.last_name, u.role, u.is_active, u.device_fingerprint
        FROM users u
        JOIN telegram_users t ON t.user_id = u.id
        WHERE t.telegram_id = $1
    `

	var user models.User
	err := r.pool.QueryRow(ctx, query, telegramID).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.Role, &user.IsActive, &user.DeviceFingerprint,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}

	return &user, nil
}

// UpsertTelegramUser создает или обновляет Telegram-профиль по telegram_id.
// Привязка к пользователю системы не затирается, если уже установлена.
func (r *Repository) UpsertTelegramUser(ctx context.Context, tu models.TelegramUser) (*models.TelegramUser, error) {
	query := `
        INSERT INTO telegram_users (user_id, telegram_id, username, first_name, last_name, photo_url, language_code)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (telegram_id) DO UPDATE
        SET username = excluded.username,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            photo_url = excluded.photo_url,
            language_code = excluded.language_code,
            user_id = COALESCE(telegram_users.user_id, excluded.user_id)
        RETURNING id, user_id, created_at
    `
	err := r.pool.QueryRow(ctx, query,
		tu.UserID, tu.TelegramID, tu.Username, tu.FirstName, tu.LastName, tu.PhotoURL, tu.LanguageCode,
	).Scan(&tu.ID, &tu.UserID, &tu.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert telegram user: %w", err)
	}

	return &tu, nil
}

// LinkTelegramUser привязывает Telegram-профиль к пользователю системы
func (r *Repository) LinkTelegramUser(ctx context.Context, telegramUserID, userID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE telegram_users SET user_id = $1 WHERE id = $2`, userID, telegramUserID)
	if err != nil {
		return fmt.Errorf("failed to link telegram user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BindDevice сохраняет отпечаток устройства при первом входе пользователя.
// Если отпечаток уже привязан, ничего не меняется - возвращается сохраненное
// значение для сверки на стороне вызывающего кода.
func (r *Repository) BindDevice(ctx context.Context, userID int64, fingerprint string) (string, error) {
	query := `
        UPDATE users
        SET device_fingerprint = CASE WHEN device_fingerprint = '' THEN $1 ELSE device_fingerprint END,
            updated_at = NOW()
        WHERE id = $2
        RETURNING device_fingerprint
    `

	var bound string
	err := r.pool.QueryRow(ctx, query, fingerprint, userID).Scan(&bound)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to bind device: %w", err)
	}

	return bound, nil
}

// AdminContact представляет администратора проекта с привязанным Telegram
type AdminContact struct {
	UserID     int64
	FullName   string
	TelegramID int64
}

// ListProjectAdmins получает активных администраторов проекта с привязанным
// Telegram ID для отправки уведомлений
func (r *Repository) ListProjectAdmins(ctx context.Context, projectID int64) ([]AdminContact, error) {
	query := `
        SELECT u.id, TRIM(u.first_name || ' ' || u.last_name), t.telegram_id
        FROM users u
        JOIN project_members pm ON pm.user_id = u.id AND pm.is_active
        JOIN telegram_users t ON t.user_id = u.id
        WHERE pm.project_id = $1 AND u.role = 'admin' AND u.is_active
    `

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project admins: %w", err)
	}
	defer rows.Close()

	var admins []AdminContact
	for rows.Next() {
		var a AdminContact
		if err := rows.Scan(&a.UserID, &a.FullName, &a.TelegramID); err != nil {
			return nil, fmt.Errorf("failed to scan admin contact: %w", err)
		}
		admins = append(admins, a)
	}

	return admins, rows.Err()
}
