// models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Статусы задач (синхронизированы с типом колонки)
const (
	StatusNew        = "new"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// StatusDisplay возвращает отображаемое название статуса
func StatusDisplay(status string) string {
	switch status {
	case StatusNew:
		return "Новая"
	case StatusTodo:
		return "К выполнению"
	case StatusInProgress:
		return "В работе"
	case StatusReview:
		return "На проверке"
	case StatusDone:
		return "Выполнена"
	case StatusCancelled:
		return "Отменена"
	}
	return status
}

// IsValidStatus проверяет, что статус входит в список допустимых
func IsValidStatus(status string) bool {
	switch status {
	case StatusNew, StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Роли пользователей
const (
	RoleAdmin   = "admin"
	RoleForeman = "foreman"
	RoleWorker  = "worker"
)

// Статусы запросов на изменение статуса задачи
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// User представляет пользователя системы
type User struct {
	ID                int64  `json:"id" db:"id"`
	Email             string `json:"email" db:"email"`
	FirstName         string `json:"first_name" db:"first_name"`
	LastName          string `json:"last_name" db:"last_name"`
	Role              string `json:"role" db:"role"`
	IsActive          bool   `json:"is_active" db:"is_active"`
	DeviceFingerprint string `json:"-" db:"device_fingerprint"`
}

// FullName возвращает полное имя пользователя
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CanChangeStatus проверяет, может ли пользователь менять статус задач напрямую.
// Остальные роли могут только создавать запросы на изменение.
func (u *User) CanChangeStatus() bool {
	return u.Role == RoleAdmin
}

// Project представляет строительный проект
type Project struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KanbanColumn представляет колонку доски проекта.
// Тип колонки определяет статус попадающих в нее задач.
type KanbanColumn struct {
	ID         int64  `json:"id" db:"id"`
	ProjectID  int64  `json:"project_id" db:"project_id"`
	Name       string `json:"name" db:"name"`
	ColumnType string `json:"column_type" db:"column_type"`
	Position   int    `json:"position" db:"position"`
}

// ExpenseItem представляет задачу (элемент расхода) на канбан-доске
type ExpenseItem struct {
	ID          int64     `json:"id" db:"id"`
	ProjectID   int64     `json:"project_id" db:"project_id"`
	ColumnID    int64     `json:"column_id" db:"column_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Amount      float64   `json:"amount" db:"amount"`
	Status      string    `json:"status" db:"status"`
	Position    int       `json:"position" db:"position"`
	CreatedBy   int64     `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// StatusChangeRequest представляет запрос на изменение статуса задачи,
// ожидающий утверждения администратором
type StatusChangeRequest struct {
	ID              int64      `json:"id" db:"id"`
	ExpenseItemID   int64      `json:"expense_item_id" db:"expense_item_id"`
	RequestedBy     int64      `json:"requested_by" db:"requested_by"`
	OldStatus       string     `json:"old_status" db:"old_status"`
	NewStatus       string     `json:"new_status" db:"new_status"`
	Reason          string     `json:"reason" db:"reason"`
	Status          string     `json:"status" db:"status"`
	ApprovedBy      *int64     `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// PendingRequestInfo представляет запрос вместе с данными задачи и автора
// для дашборда утверждений
type PendingRequestInfo struct {
	RequestID     int64     `json:"request_id"`
	ExpenseItemID int64     `json:"item_id"`
	ItemTitle     string    `json:"item_title"`
	ProjectName   string    `json:"project_name"`
	RequestedBy   string    `json:"requested_by"`
	OldStatus     string    `json:"old_status"`
	NewStatus     string    `json:"new_status"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExpenseHistory представляет запись аудита изменений задачи
type ExpenseHistory struct {
	ID            int64     `json:"id" db:"id"`
	ExpenseItemID int64     `json:"expense_item_id" db:"expense_item_id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	Action        string    `json:"action" db:"action"`
	FieldName     string    `json:"field_name" db:"field_name"`
	OldValue      string    `json:"old_value" db:"old_value"`
	NewValue      string    `json:"new_value" db:"new_value"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Действия в истории изменений
const (
	ActionMoved          = "moved"
	ActionUpdated        = "updated"
	ActionStatusApproved = "status_approved"
	ActionStatusRejected = "status_rejected"
)

// TelegramUser представляет связь пользователя с Telegram-аккаунтом
type TelegramUser struct {
	ID           int64     `json:"id" db:"id"`
	UserID       *int64    `json:"user_id,omitempty" db:"user_id"`
	TelegramID   int64     `json:"telegram_id" db:"telegram_id"`
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	PhotoURL     string    `json:"photo_url" db:"photo_url"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TelegramAuthToken представляет одноразовый токен авторизации через Telegram.
// Токен живет ограниченное время и может быть использован ровно один раз.
type TelegramAuthToken struct {
	Token          uuid.UUID `json:"token" db:"token"`
	UserID         *int64    `json:"user_id,omitempty" db:"user_id"`
	TelegramUserID *int64    `json:"telegram_user_id,omitempty" db:"telegram_user_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	IsUsed         bool      `json:"is_used" db:"is_used"`
}

// IsExpired проверяет, истек ли срок действия токена
func (t *TelegramAuthToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
