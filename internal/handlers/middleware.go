package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/superpan/taskboard/internal/models"
	"go.uber.org/zap"
)

const (
	sessionCookie = "sp_session"
	qrCookie      = "sp_qr"
	userContext   = "current_user"
)

// RequireLogin проверяет cookie сессии и кладет пользователя в контекст запроса
func (h *Handler) RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			return c.JSON(http.StatusUnauthorized, newErrorResponse(ErrCodeUnauthorized, "Требуется вход"))
		}

		userID, err := h.sessions.GetLogin(c.Request().Context(), cookie.Value)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, newErrorResponse(ErrCodeUnauthorized, "Сессия недействительна"))
		}

		user, err := h.store.GetUser(c.Request().Context(), userID)
		if err != nil {
			h.logger.Warn("RequireLogin: пользователь сессии не найден", zap.Int64("user_id", userID))
			return c.JSON(http.StatusUnauthorized, newErrorResponse(ErrCodeUnauthorized, "Сессия недействительна"))
		}
		if !user.IsActive {
			return c.JSON(http.StatusForbidden, newErrorResponse(ErrCodeForbidden, "Учетная запись отключена"))
		}

		c.Set(userContext, user)
		return next(c)
	}
}

// currentUser достает пользователя, положенного в контекст RequireLogin
func currentUser(c echo.Context) *models.User {
	user, _ := c.Get(userContext).(*models.User)
	return user
}

func setSessionCookie(c echo.Context, name, value string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
