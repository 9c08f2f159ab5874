// Package bot реализует Telegram-бота: авторизация по одноразовым токенам и
// создание задач из свободного текста с вложениями.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"github.com/superpan/taskboard/internal/session"
	"go.uber.org/zap"
)

const errorReply = "❌ Произошла ошибка. Попробуйте позже."

type Bot struct {
	api      *tgbotapi.BotAPI
	repo     *repository.Repository
	sessions *session.Store
	logger   *zap.Logger
	baseURL  string
	mediaDir string
}

func New(api *tgbotapi.BotAPI, repo *repository.Repository, sessions *session.Store, logger *zap.Logger, baseURL, mediaDir string) *Bot {
	return &Bot{
		api:      api,
		repo:     repo,
		sessions: sessions,
		logger:   logger,
		baseURL:  baseURL,
		mediaDir: mediaDir,
	}
}

// Run запускает цикл получения обновлений и блокируется до отмены контекста
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{tgbotapi.UpdateTypeMessage, tgbotapi.UpdateTypeCallbackQuery}

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("бот запущен", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("бот остановлен")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("паника в обработчике обновления", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message == nil:
		return
	case update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	case len(update.Message.Photo) > 0:
		b.handlePhoto(ctx, update.Message)
	case update.Message.Document != nil:
		b.handleDocument(ctx, update.Message)
	case update.Message.Text != "":
		b.handleText(ctx, update.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "help":
		b.reply(msg.Chat.ID, helpText)
	case "projects":
		b.sendProjectList(ctx, msg, "project", "🏗️ Ваши проекты:")
	case "tasks":
		b.sendProjectList(ctx, msg, "project_tasks", "📋 Выберите проект для просмотра задач:")
	case "stages":
		b.sendProjectList(ctx, msg, "stages_project", "📍 Выберите проект для просмотра этапов:")
	case "create_task":
		b.sendProjectList(ctx, msg, "create_task_project", "➕ Выберите проект для новой задачи:")
	default:
		b.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

const helpText = "ℹ️ Доступные команды:\n\n" +
	"/projects - список ваших проектов\n" +
	"/tasks - задачи по проекту\n" +
	"/stages - этапы проекта\n" +
	"/create_task - создать задачу\n\n" +
	"При создании задачи опишите ее текстом, можно приложить фото или документ. " +
	"Сумма распознается автоматически: «Купить цемент. 5000₽». " +
	"Нумерованный список создаст несколько задач сразу."

// sendProjectList показывает проекты пользователя кнопками с заданным префиксом
func (b *Bot) sendProjectList(ctx context.Context, msg *tgbotapi.Message, prefix, title string) {
	user, err := b.repo.GetUserByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(msg.Chat.ID, "🔐 Ваш Telegram не привязан к аккаунту. Отсканируйте QR-код на странице входа в панель.")
			return
		}
		b.logger.Error("не удалось получить пользователя", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	projects, err := b.repo.ListUserProjects(ctx, user.ID)
	if err != nil {
		b.logger.Error("не удалось получить проекты", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}
	if len(projects) == 0 {
		b.reply(msg.Chat.ID, "У вас пока нет проектов.")
		return
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(projects))
	for _, p := range projects {
		data := fmt.Sprintf("%s_%d", prefix, p.ID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Name, data),
		))
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, title)
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(reply)
}

// handleText обрабатывает свободный текст: если активна сессия создания
// задачи, текст превращается в задачи
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	intake, err := b.sessions.GetIntake(ctx, msg.Chat.ID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			b.reply(msg.Chat.ID, "Используйте /create_task, чтобы создать задачу, или /help для списка команд.")
			return
		}
		b.logger.Error("не удалось получить сессию создания задачи", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	b.createTasksFromText(ctx, msg, intake, msg.Text)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("не удалось отправить сообщение", zap.Error(err))
	}
}

func parseCallbackID(data, prefix string) (int64, bool) {
	raw, ok := strings.CutPrefix(data, prefix+"_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 0, 64) + "₽"
}

func statusLine(item *models.ExpenseItem) string {
	line := "📊 " + models.StatusDisplay(item.Status)
	if item.Amount > 0 {
		line += " · 💰 " + formatAmount(item.Amount)
	}
	return line
}
