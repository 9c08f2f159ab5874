package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"go.uber.org/zap"
)

// Коды ошибок для API
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeTokenExpired = "TOKEN_EXPIRED"
	ErrCodeTokenUsed    = "TOKEN_USED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// Store описывает операции хранилища, нужные обработчикам
type Store interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetExpenseItem(ctx context.Context, itemID int64) (*models.ExpenseItem, error)
	GetProject(ctx context.Context, projectID int64) (*models.Project, error)
	IsProjectMember(ctx context.Context, projectID, userID int64) (bool, error)
	MoveDirect(ctx context.Context, itemID, targetColumnID int64, position int, actorID int64) (*models.ExpenseItem, error)
	UpdateExpenseAmount(ctx context.Context, itemID int64, amount float64, actorID int64) (*models.ExpenseItem, error)
	CreateStatusChangeRequest(ctx context.Context, itemID, targetColumnID int64, position int, requesterID int64, reason string) (*models.StatusChangeRequest, error)
	ApproveStatusChange(ctx context.Context, itemID, approverID int64) (*repository.ApprovalResult, error)
	RejectStatusChange(ctx context.Context, itemID, approverID int64, rejectionReason string) (*models.StatusChangeRequest, error)
	ListPendingRequests(ctx context.Context, userID int64) ([]models.PendingRequestInfo, error)
	ListExpenseHistory(ctx context.Context, itemID int64) ([]models.ExpenseHistory, error)
	ListProjectAdmins(ctx context.Context, projectID int64) ([]repository.AdminContact, error)
	CreateAuthToken(ctx context.Context, userID, telegramUserID *int64, ttl time.Duration) (*models.TelegramAuthToken, error)
	GetAuthToken(ctx context.Context, token uuid.UUID) (*models.TelegramAuthToken, error)
	ConsumeAuthToken(ctx context.Context, token uuid.UUID, userID, telegramUserID *int64) (*models.TelegramAuthToken, error)
	UpsertTelegramUser(ctx context.Context, tu models.TelegramUser) (*models.TelegramUser, error)
	LinkTelegramUser(ctx context.Context, telegramUserID, userID int64) error
	BindDevice(ctx context.Context, userID int64, fingerprint string) (string, error)
}

// Sessions описывает операции хранилища сессий, нужные обработчикам
type Sessions interface {
	CreateLogin(ctx context.Context, userID int64) (string, error)
	GetLogin(ctx context.Context, sessionID string) (int64, error)
	BindQRToken(ctx context.Context, sessionID string, token uuid.UUID) error
	GetQRToken(ctx context.Context, sessionID string) (uuid.UUID, error)
}

// Notifier отправляет уведомления о запросах на изменение статуса
type Notifier interface {
	StatusChangeRequested(admins []repository.AdminContact, item *models.ExpenseItem, projectName, requesterName, oldStatus, newStatus string)
}

type Handler struct {
	store       Store
	sessions    Sessions
	notifier    Notifier
	logger      *zap.Logger
	botUsername string
}

// New создает новый экземпляр обработчика
func New(store Store, sessions Sessions, notifier Notifier, logger *zap.Logger, botUsername string) *Handler {
	return &Handler{
		store:       store,
		sessions:    sessions,
		notifier:    notifier,
		logger:      logger,
		botUsername: botUsername,
	}
}

// ErrorResponse представляет структуру ошибки API
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newErrorResponse создает стандартный ответ с ошибкой
func newErrorResponse(code, message string) ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	return resp
}

// MoveExpenseItem перемещает задачу между колонками. Администраторы перемещают
// напрямую, остальные участники создают запрос на изменение статуса, который
// ждет утверждения.
func (h *Handler) MoveExpenseItem(c echo.Context) error {
	h.logger.Info("MoveExpenseItem: начало обработки запроса")

	var req struct {
		ItemID         int64  `json:"item_id"`
		TargetColumnID int64  `json:"target_column_id"`
		Position       int    `json:"position"`
		Reason         string `json:"reason"`
	}

	if err := c.Bind(&req); err != nil {
		h.logger.Error("MoveExpenseItem: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректные данные"))
	}

	if req.ItemID == 0 || req.TargetColumnID == 0 {
		h.logger.Warn("MoveExpenseItem: отсутствуют обязательные поля")
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Отсутствуют обязательные поля"))
	}

	user := currentUser(c)
	ctx := c.Request().Context()

	item, err := h.store.GetExpenseItem(ctx, req.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("MoveExpenseItem: задача не найдена", zap.Int64("item_id", req.ItemID))
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Задача не найдена"))
		}
		h.logger.Error("MoveExpenseItem: ошибка получения задачи", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Внутренняя ошибка сервера"))
	}

	member, err := h.store.IsProjectMember(ctx, item.ProjectID, user.ID)
	if err != nil {
		h.logger.Error("MoveExpenseItem: ошибка проверки доступа", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Внутренняя ошибка сервера"))
	}
	if !member {
		h.logger.Warn("MoveExpenseItem: нет доступа к проекту",
			zap.Int64("user_id", user.ID), zap.Int64("project_id", item.ProjectID))
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	// Администратор перемещает напрямую
	if user.CanChangeStatus() {
		if _, err := h.store.MoveDirect(ctx, req.ItemID, req.TargetColumnID, req.Position, user.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Колонка не найдена"))
			}
			h.logger.Error("MoveExpenseItem: ошибка перемещения", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Внутренняя ошибка сервера"))
		}

		h.logger.Info("MoveExpenseItem: задача перемещена",
			zap.Int64("item_id", req.ItemID), zap.Int64("column_id", req.TargetColumnID))
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
	}

	// Остальные роли создают запрос на утверждение
	change, err := h.store.CreateStatusChangeRequest(ctx, req.ItemID, req.TargetColumnID, req.Position, user.ID, req.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			h.logger.Warn("MoveExpenseItem: запрос уже существует", zap.Int64("item_id", req.ItemID))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeConflict,
				"Уже есть ожидающий утверждения запрос на изменение статуса"))
		}
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Колонка не найдена"))
		}
		h.logger.Error("MoveExpenseItem: ошибка создания запроса", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Внутренняя ошибка сервера"))
	}

	h.notifyAdmins(ctx, item, user, change)

	h.logger.Info("MoveExpenseItem: создан запрос на изменение статуса",
		zap.Int64("item_id", req.ItemID),
		zap.String("old_status", change.OldStatus),
		zap.String("new_status", change.NewStatus))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":           true,
		"message":           "Запрос на изменение статуса отправлен на утверждение",
		"requires_approval": true,
	})
}

// notifyAdmins отправляет уведомление администраторам проекта. Любой сбой
// логируется и не влияет на результат перемещения.
func (h *Handler) notifyAdmins(ctx context.Context, item *models.ExpenseItem, requester *models.User, change *models.StatusChangeRequest) {
	project, err := h.store.GetProject(ctx, item.ProjectID)
	if err != nil {
		h.logger.Warn("notifyAdmins: не удалось получить проект", zap.Error(err))
		return
	}

	admins, err := h.store.ListProjectAdmins(ctx, item.ProjectID)
	if err != nil {
		h.logger.Warn("notifyAdmins: не удалось получить список админов", zap.Error(err))
		return
	}
	if len(admins) == 0 {
		return
	}

	h.notifier.StatusChangeRequested(admins, item, project.Name, requester.FullName(), change.OldStatus, change.NewStatus)
}

// UpdateExpenseAmount меняет сумму задачи. Изменение доступно администраторам
// и записывается в историю.
func (h *Handler) UpdateExpenseAmount(c echo.Context) error {
	var req struct {
		ItemID int64   `json:"item_id"`
		Amount float64 `json:"amount"`
	}

	if err := c.Bind(&req); err != nil {
		h.logger.Error("UpdateExpenseAmount: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректные данные"))
	}

	if req.ItemID == 0 {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Отсутствуют обязательные поля"))
	}
	if req.Amount < 0 {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Сумма не может быть отрицательной"))
	}

	user := currentUser(c)
	if !user.CanChangeStatus() {
		h.logger.Warn("UpdateExpenseAmount: недостаточно прав", zap.Int64("user_id", user.ID))
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	item, err := h.store.UpdateExpenseAmount(c.Request().Context(), req.ItemID, req.Amount, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Задача не найдена"))
		}
		h.logger.Error("UpdateExpenseAmount: ошибка обновления суммы", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Внутренняя ошибка сервера"))
	}

	h.logger.Info("UpdateExpenseAmount: сумма обновлена",
		zap.Int64("item_id", item.ID), zap.Float64("amount", item.Amount))

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "amount": item.Amount})
}

// ApproveStatusChange утверждает ожидающий запрос на изменение статуса задачи
func (h *Handler) ApproveStatusChange(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректный идентификатор задачи"))
	}

	user := currentUser(c)
	h.logger.Info("ApproveStatusChange: утверждение запроса",
		zap.Int64("item_id", itemID), zap.Int64("user_id", user.ID))

	if !user.CanChangeStatus() {
		h.logger.Warn("ApproveStatusChange: недостаточно прав", zap.Int64("user_id", user.ID))
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	result, err := h.store.ApproveStatusChange(c.Request().Context(), itemID, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("ApproveStatusChange: запрос не найден", zap.Int64("item_id", itemID))
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Запрос на изменение статуса не найден"))
		}
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			h.logger.Warn("ApproveStatusChange: запрос уже обработан", zap.Int64("item_id", itemID))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeConflict, "Запрос уже обработан"))
		}
		h.logger.Error("ApproveStatusChange: ошибка утверждения", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	if !result.ColumnMoved {
		// Статус изменился, но подходящей колонки в проекте нет
		h.logger.Warn("ApproveStatusChange: колонка для статуса не найдена",
			zap.String("status", result.Request.NewStatus),
			zap.Int64("project_id", result.Item.ProjectID))
	}

	h.logger.Info("ApproveStatusChange: запрос утвержден",
		zap.Int64("item_id", itemID), zap.String("new_status", result.Request.NewStatus))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Статус задачи \"" + result.Item.Title + "\" утвержден и изменен на \"" +
			models.StatusDisplay(result.Request.NewStatus) + "\"",
	})
}

// RejectStatusChange отклоняет ожидающий запрос на изменение статуса задачи
func (h *Handler) RejectStatusChange(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректный идентификатор задачи"))
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		h.logger.Error("RejectStatusChange: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректные данные"))
	}

	user := currentUser(c)
	h.logger.Info("RejectStatusChange: отклонение запроса",
		zap.Int64("item_id", itemID), zap.Int64("user_id", user.ID))

	if !user.CanChangeStatus() {
		h.logger.Warn("RejectStatusChange: недостаточно прав", zap.Int64("user_id", user.ID))
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	change, err := h.store.RejectStatusChange(c.Request().Context(), itemID, user.ID, req.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.logger.Warn("RejectStatusChange: запрос не найден", zap.Int64("item_id", itemID))
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Запрос на изменение статуса не найден"))
		}
		if errors.Is(err, repository.ErrAlreadyProcessed) {
			h.logger.Warn("RejectStatusChange: запрос уже обработан", zap.Int64("item_id", itemID))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeConflict, "Запрос уже обработан"))
		}
		h.logger.Error("RejectStatusChange: ошибка отклонения", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	h.logger.Info("RejectStatusChange: запрос отклонен",
		zap.Int64("item_id", itemID), zap.Int64("request_id", change.ID))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Запрос на изменение статуса задачи отклонен",
	})
}

// ExpenseItemHistory возвращает историю изменений задачи участникам проекта
func (h *Handler) ExpenseItemHistory(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректный идентификатор задачи"))
	}

	user := currentUser(c)
	ctx := c.Request().Context()

	item, err := h.store.GetExpenseItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, newErrorResponse(ErrCodeNotFound, "Задача не найдена"))
		}
		h.logger.Error("ExpenseItemHistory: ошибка получения задачи", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	member, err := h.store.IsProjectMember(ctx, item.ProjectID, user.ID)
	if err != nil {
		h.logger.Error("ExpenseItemHistory: ошибка проверки доступа", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}
	if !member {
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	history, err := h.store.ListExpenseHistory(ctx, itemID)
	if err != nil {
		h.logger.Error("ExpenseItemHistory: ошибка получения истории", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"history": history,
	})
}

// PendingStatusChanges возвращает ожидающие запросы по проектам администратора
func (h *Handler) PendingStatusChanges(c echo.Context) error {
	user := currentUser(c)

	if !user.CanChangeStatus() {
		return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Недостаточно прав"))
	}

	requests, err := h.store.ListPendingRequests(c.Request().Context(), user.ID)
	if err != nil {
		h.logger.Error("PendingStatusChanges: ошибка получения запросов", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	h.logger.Info("PendingStatusChanges: запросы получены",
		zap.Int64("user_id", user.ID), zap.Int("count", len(requests)))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"requests": requests,
	})
}

// RegisterRoutes регистрирует все маршруты API
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Kanban API (требует входа)
	kanban := e.Group("/kanban/api", h.RequireLogin)
	kanban.POST("/move-expense/", h.MoveExpenseItem)
	kanban.POST("/update-expense/", h.UpdateExpenseAmount)
	kanban.POST("/approve-status-change/:item_id/", h.ApproveStatusChange)
	kanban.POST("/reject-status-change/:item_id/", h.RejectStatusChange)
	kanban.GET("/pending-status-changes/", h.PendingStatusChanges)
	kanban.GET("/expense-history/:item_id/", h.ExpenseItemHistory)

	// Авторизация через Telegram
	e.GET("/accounts/telegram-login/", h.TelegramLogin)
	e.POST("/accounts/telegram-login/", h.TelegramLoginWidget)
	e.GET("/accounts/telegram/qr/", h.TelegramQRCode)
	e.GET("/accounts/telegram/auth-status/", h.TelegramAuthStatus)
}
