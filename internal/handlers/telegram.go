package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/superpan/taskboard/internal/device"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"go.uber.org/zap"
)

// Срок жизни токена, выдаваемого при генерации QR-кода
const qrTokenTTL = 10 * time.Minute

// TelegramQRCode создает токен авторизации и возвращает QR-код со ссылкой на
// бота. Токен привязывается к анонимной веб-сессии для опроса статуса.
func (h *Handler) TelegramQRCode(c echo.Context) error {
	ctx := c.Request().Context()

	token, err := h.store.CreateAuthToken(ctx, nil, nil, qrTokenTTL)
	if err != nil {
		h.logger.Error("TelegramQRCode: ошибка создания токена", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	// Привязываем токен к cookie, чтобы страница могла опрашивать статус
	qrSession := qrSessionID(c)
	if err := h.sessions.BindQRToken(ctx, qrSession, token.Token); err != nil {
		h.logger.Error("TelegramQRCode: ошибка привязки токена к сессии", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	botURL := "https://t.me/" + h.botUsername + "?start=auth_" + token.Token.String()
	png, err := qrcode.Encode(botURL, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("TelegramQRCode: ошибка генерации QR", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	h.logger.Info("TelegramQRCode: токен создан", zap.String("token", token.Token.String()))
	return c.Blob(http.StatusOK, "image/png", png)
}

// TelegramAuthStatus проверяет состояние авторизации по токену из веб-сессии
func (h *Handler) TelegramAuthStatus(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie(qrCookie)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusOK, map[string]string{"status": "no_token"})
	}

	token, err := h.sessions.GetQRToken(ctx, cookie.Value)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "no_token"})
	}

	t, err := h.store.GetAuthToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusOK, map[string]string{"status": "invalid_token"})
		}
		h.logger.Error("TelegramAuthStatus: ошибка получения токена", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Ошибка сервера"))
	}

	if t.IsExpired(time.Now()) {
		return c.JSON(http.StatusOK, map[string]string{"status": "expired"})
	}

	if t.IsUsed && t.UserID != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "success",
			"user_id": *t.UserID,
			"token":   t.Token.String(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "pending",
		"token":  t.Token.String(),
	})
}

// TelegramLogin потребляет одноразовый токен входа, выданный ботом, и создает
// веб-сессию. Токен нельзя использовать дважды или после истечения срока.
func (h *Handler) TelegramLogin(c echo.Context) error {
	raw := c.QueryParam("auth_token")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Отсутствует токен авторизации"))
	}

	token, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("TelegramLogin: невалидный формат токена", zap.String("token", raw))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Неверный токен авторизации"))
	}

	ctx := c.Request().Context()

	consumed, err := h.store.ConsumeAuthToken(ctx, token, nil, nil)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Неверный токен авторизации"))
		case errors.Is(err, repository.ErrTokenExpired):
			h.logger.Warn("TelegramLogin: токен истек", zap.String("token", raw))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeTokenExpired,
				"Токен авторизации истек. Попробуйте еще раз."))
		case errors.Is(err, repository.ErrTokenUsed):
			h.logger.Warn("TelegramLogin: токен уже использован", zap.String("token", raw))
			return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeTokenUsed, "Токен уже использован."))
		}
		h.logger.Error("TelegramLogin: ошибка потребления токена", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}

	if consumed.UserID == nil {
		// Токен создан, но бот еще не привязал к нему пользователя
		h.logger.Warn("TelegramLogin: у токена нет связанного пользователя", zap.String("token", raw))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation,
			"Ваш аккаунт не привязан к Telegram. Обратитесь к администратору."))
	}

	user, err := h.store.GetUser(ctx, *consumed.UserID)
	if err != nil {
		h.logger.Error("TelegramLogin: пользователь токена не найден", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}

	h.bindDevice(c, user)

	// Досоздаем связь с Telegram, если ее еще нет
	if consumed.TelegramUserID != nil {
		if err := h.store.LinkTelegramUser(ctx, *consumed.TelegramUserID, user.ID); err != nil {
			h.logger.Warn("TelegramLogin: не удалось привязать telegram-профиль", zap.Error(err))
		}
	}

	sessionID, err := h.sessions.CreateLogin(ctx, user.ID)
	if err != nil {
		h.logger.Error("TelegramLogin: ошибка создания сессии", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}
	setSessionCookie(c, sessionCookie, sessionID)

	redirect := "/projects/list/"
	if user.Role == models.RoleAdmin {
		redirect = "/management/"
	}

	h.logger.Info("TelegramLogin: пользователь авторизован",
		zap.Int64("user_id", user.ID), zap.String("role", user.Role))

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Добро пожаловать, " + user.FullName() + "!",
		"redirect": redirect,
	})
}

// TelegramLoginWidget обрабатывает данные виджета входа Telegram: досоздает
// telegram-профиль и авторизует пользователя, если профиль привязан
func (h *Handler) TelegramLoginWidget(c echo.Context) error {
	var req struct {
		TelegramID   int64  `json:"telegram_id"`
		ID           int64  `json:"id"`
		Username     string `json:"username"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		PhotoURL     string `json:"photo_url"`
		LanguageCode string `json:"language_code"`
	}

	if err := c.Bind(&req); err != nil {
		h.logger.Error("TelegramLoginWidget: ошибка парсинга тела запроса", zap.Error(err))
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Некорректные данные"))
	}

	telegramID := req.TelegramID
	if telegramID == 0 {
		telegramID = req.ID
	}
	if telegramID == 0 {
		return c.JSON(http.StatusBadRequest, newErrorResponse(ErrCodeValidation, "Отсутствует telegram_id"))
	}

	ctx := c.Request().Context()

	if req.LanguageCode == "" {
		req.LanguageCode = "ru"
	}
	_, err := h.store.UpsertTelegramUser(ctx, models.TelegramUser{
		TelegramID:   telegramID,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PhotoURL:     req.PhotoURL,
		LanguageCode: req.LanguageCode,
	})
	if err != nil {
		h.logger.Error("TelegramLoginWidget: ошибка сохранения профиля", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}

	user, err := h.store.GetUserByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden,
				"Ваш аккаунт не привязан к Telegram. Обратитесь к администратору."))
		}
		h.logger.Error("TelegramLoginWidget: ошибка поиска пользователя", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}

	h.bindDevice(c, user)

	sessionID, err := h.sessions.CreateLogin(ctx, user.ID)
	if err != nil {
		h.logger.Error("TelegramLoginWidget: ошибка создания сессии", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, newErrorResponse(ErrCodeInternal, "Произошла ошибка при авторизации."))
	}
	setSessionCookie(c, sessionCookie, sessionID)

	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

// bindDevice привязывает отпечаток устройства при первом входе. Несовпадение
// с ранее привязанным отпечатком фиксируется как подозрительный вход, но не
// блокирует авторизацию.
func (h *Handler) bindDevice(c echo.Context, user *models.User) {
	fp := device.Fingerprint(
		c.Request().UserAgent(),
		device.ClientIP(c.Request().Header.Get("X-Forwarded-For"), c.RealIP()),
		user.Email,
	)

	bound, err := h.store.BindDevice(c.Request().Context(), user.ID, fp)
	if err != nil {
		h.logger.Warn("bindDevice: ошибка привязки устройства", zap.Error(err))
		return
	}

	if bound != fp {
		h.logger.Warn("bindDevice: вход с нового устройства",
			zap.Int64("user_id", user.ID), zap.String("fingerprint", fp))
	}
}

// qrSessionID возвращает идентификатор анонимной веб-сессии из cookie,
// создавая его при необходимости
func qrSessionID(c echo.Context) string {
	if cookie, err := c.Cookie(qrCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	setSessionCookie(c, qrCookie, id)
	return id
}
