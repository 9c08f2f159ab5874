package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"go.uber.org/zap"
)

// Срок жизни токена входа, выдаваемого ботом
const loginTokenTTL = 30 * time.Minute

// handleStart обрабатывает /start, в том числе deep-link авторизации
// вида /start auth_<token>
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	args := msg.CommandArguments()

	if strings.HasPrefix(args, "auth_") {
		b.handleAuthToken(ctx, msg, strings.TrimPrefix(args, "auth_"))
		return
	}

	user, err := b.repo.GetUserByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(msg.Chat.ID,
				"👋 Здравствуйте! Это бот панели SuperPan.\n\n"+
					"Чтобы привязать аккаунт, отсканируйте QR-код на странице входа в панель.")
			return
		}
		b.logger.Error("handleStart: ошибка поиска пользователя", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	profile, err := b.repo.UpsertTelegramUser(ctx, profileFromMessage(msg))
	if err != nil {
		b.logger.Error("не удалось обновить telegram-профиль", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	// Пользователь уже привязан - выдаем свежую ссылку для входа в панель
	b.sendPanelLink(ctx, msg.Chat.ID, user, &profile.ID,
		"👋 С возвращением, "+user.FullName()+"!")
}

// handleAuthToken потребляет QR-токен: привязывает Telegram-профиль и выдает
// ссылку для входа в панель с новым токеном
func (b *Bot) handleAuthToken(ctx context.Context, msg *tgbotapi.Message, raw string) {
	b.logger.Info("обработка токена авторизации", zap.String("token", raw))

	token, err := uuid.Parse(raw)
	if err != nil {
		b.logger.Warn("невалидный формат токена", zap.String("token", raw))
		b.reply(msg.Chat.ID, "❌ Неверный формат токена авторизации.")
		return
	}

	profile, err := b.repo.UpsertTelegramUser(ctx, profileFromMessage(msg))
	if err != nil {
		b.logger.Error("не удалось сохранить telegram-профиль", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	user, err := b.repo.GetUserByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(msg.Chat.ID,
				"❌ Ваш Telegram не привязан к аккаунту в системе. Обратитесь к администратору.")
			return
		}
		b.logger.Error("ошибка поиска пользователя по telegram id", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	_, err = b.repo.ConsumeAuthToken(ctx, token, &user.ID, &profile.ID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			b.reply(msg.Chat.ID, "❌ Токен авторизации не найден.")
		case errors.Is(err, repository.ErrTokenExpired):
			b.reply(msg.Chat.ID, "⏰ Токен авторизации истек. Запросите новый QR-код на странице входа.")
		case errors.Is(err, repository.ErrTokenUsed):
			b.reply(msg.Chat.ID, "❌ Токен уже использован.")
		default:
			b.logger.Error("ошибка потребления токена", zap.Error(err))
			b.reply(msg.Chat.ID, errorReply)
		}
		return
	}

	b.sendPanelLink(ctx, msg.Chat.ID, user, &profile.ID,
		"✅ Telegram привязан к аккаунту "+user.FullName()+"!")
}

// sendPanelLink создает токен входа и отправляет ссылку в панель
func (b *Bot) sendPanelLink(ctx context.Context, chatID int64, user *models.User, profileID *int64, greeting string) {
	loginToken, err := b.repo.CreateAuthToken(ctx, &user.ID, profileID, loginTokenTTL)
	if err != nil {
		b.logger.Error("не удалось создать токен входа", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}

	panelURL := b.baseURL + "/accounts/telegram-login/?auth_token=" + loginToken.Token.String()

	reply := tgbotapi.NewMessage(chatID,
		greeting+"\n\n"+
			"🔗 <a href='"+panelURL+"'>Войти в панель</a>\n"+
			"Ссылка действует 30 минут.\n\n"+
			"Команды бота: /help")
	reply.ParseMode = tgbotapi.ModeHTML
	b.send(reply)
}

func profileFromMessage(msg *tgbotapi.Message) models.TelegramUser {
	return models.TelegramUser{
		TelegramID:   msg.From.ID,
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: languageOrDefault(msg.From.LanguageCode),
	}
}

func languageOrDefault(code string) string {
	if code == "" {
		return "ru"
	}
	return code
}
