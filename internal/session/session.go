// Package session хранит короткоживущее состояние в Redis: сессии создания
// задач в боте (по chat ID) и веб-сессии входа (по cookie). Состояние
// переживает рестарт процесса в отличие от хранения в памяти.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("session not found")

const (
	// IntakeTTL ограничивает время жизни незавершенного создания задачи
	IntakeTTL = 30 * time.Minute
	// LoginTTL ограничивает время жизни веб-сессии
	LoginTTL = 12 * time.Hour
	// QRTokenTTL привязывает выданный QR-токен к веб-сессии на время опроса
	QRTokenTTL = 15 * time.Minute
)

// Attachment представляет скачанное вложение, ожидающее привязки к задаче
type Attachment struct {
	Type             string `json:"type"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename,omitempty"`
	LocalPath        string `json:"local_path"`
}

// TaskIntake представляет состояние создания задачи в чате
type TaskIntake struct {
	ProjectID   int64        `json:"project_id"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// SetIntake сохраняет состояние создания задачи для чата
func (s *Store) SetIntake(ctx context.Context, chatID int64, intake *TaskIntake) error {
	data, err := json.Marshal(intake)
	if err != nil {
		return fmt.Errorf("failed to marshal intake state: %w", err)
	}
	if err := s.client.Set(ctx, intakeKey(chatID), data, IntakeTTL).Err(); err != nil {
		return fmt.Errorf("failed to store intake state: %w", err)
	}
	return nil
}

// GetIntake получает состояние создания задачи для чата
func (s *Store) GetIntake(ctx context.Context, chatID int64) (*TaskIntake, error) {
	data, err := s.client.Get(ctx, intakeKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load intake state: %w", err)
	}

	var intake TaskIntake
	if err := json.Unmarshal(data, &intake); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intake state: %w", err)
	}
	return &intake, nil
}

// ClearIntake удаляет состояние создания задачи для чата
func (s *Store) ClearIntake(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, intakeKey(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to clear intake state: %w", err)
	}
	return nil
}

// CreateLogin создает веб-сессию для пользователя и возвращает ее ID
func (s *Store) CreateLogin(ctx context.Context, userID int64) (string, error) {
	sessionID := uuid.NewString()
	key := loginKey(sessionID)
	if err := s.client.Set(ctx, key, userID, LoginTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to create login session: %w", err)
	}
	return sessionID, nil
}

// GetLogin возвращает ID пользователя по сессии
func (s *Store) GetLogin(ctx context.Context, sessionID string) (int64, error) {
	userID, err := s.client.Get(ctx, loginKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load login session: %w", err)
	}
	return userID, nil
}

// BindQRToken запоминает выданный QR-токен за веб-сессией для опроса статуса
func (s *Store) BindQRToken(ctx context.Context, sessionID string, token uuid.UUID) error {
	if err := s.client.Set(ctx, qrKey(sessionID), token.String(), QRTokenTTL).Err(); err != nil {
		return fmt.Errorf("failed to bind qr token: %w", err)
	}
	return nil
}

// GetQRToken возвращает QR-токен, привязанный к веб-сессии
func (s *Store) GetQRToken(ctx context.Context, sessionID string) (uuid.UUID, error) {
	raw, err := s.client.Get(ctx, qrKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load qr token: %w", err)
	}

	token, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse stored qr token: %w", err)
	}
	return token, nil
}

func intakeKey(chatID int64) string {
	return fmt.Sprintf("intake:%d", chatID)
}

func loginKey(sessionID string) string {
	return "login:" + sessionID
}

func qrKey(sessionID string) string {
	return "qr:" + sessionID
}
