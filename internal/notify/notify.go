// Package notify отправляет уведомления администраторам проектов в Telegram.
// Отправка выполняется по принципу "наилучших усилий": сбои логируются и не
// влияют на исход операции, из-за которой отправлялось уведомление.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"go.uber.org/zap"
)

// Sender отправляет сообщения через Telegram Bot API
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	sender  Sender
	logger  *zap.Logger
	baseURL string
}

func New(sender Sender, logger *zap.Logger, baseURL string) *Notifier {
	return &Notifier{sender: sender, logger: logger, baseURL: baseURL}
}

// StatusChangeMessage формирует HTML-текст уведомления о запросе на изменение
// статуса задачи
func StatusChangeMessage(itemTitle, projectName, requesterName, oldStatus, newStatus, approvalURL string) string {
	return fmt.Sprintf(
		"🔄 <b>Запрос на изменение статуса задачи</b>\n\n"+
			"📋 <b>Задача:</b> %s\n"+
			"🏗️ <b>Проект:</b> %s\n"+
			"👤 <b>Запросил:</b> %s\n"+
			"📊 <b>Статус:</b> %s → %s\n\n"+
			"⚠️ <b>Требуется ваше утверждение</b>\n\n"+
			"🔗 <b>Ссылка для утверждения:</b>\n"+
			"<a href='%s'>Перейти к подтверждению</a>",
		itemTitle, projectName, requesterName,
		models.StatusDisplay(oldStatus), models.StatusDisplay(newStatus),
		approvalURL,
	)
}

// StatusChangeRequested уведомляет администраторов проекта о новом запросе.
// Ошибки отправки логируются и проглатываются.
func (n *Notifier) StatusChangeRequested(admins []repository.AdminContact, item *models.ExpenseItem, projectName, requesterName, oldStatus, newStatus string) {
	approvalURL := n.baseURL + "/kanban/approvals/"
	text := StatusChangeMessage(item.Title, projectName, requesterName, oldStatus, newStatus, approvalURL)

	for _, admin := range admins {
		msg := tgbotapi.NewMessage(admin.TelegramID, text)
		msg.ParseMode = tgbotapi.ModeHTML

		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Warn("не удалось отправить уведомление админу",
				zap.String("admin", admin.FullName),
				zap.Int64("telegram_id", admin.TelegramID),
				zap.Error(err))
			continue
		}
		n.logger.Info("уведомление отправлено админу",
			zap.String("admin", admin.FullName),
			zap.Int64("telegram_id", admin.TelegramID))
	}
}
