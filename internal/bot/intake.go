package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"github.com/superpan/taskboard/internal/session"
	"github.com/superpan/taskboard/internal/taskparse"
	"go.uber.org/zap"
)

// В сводке о создании задач показываем не больше пяти заголовков
const summaryTitleLimit = 5

// handlePhoto сохраняет фото во вложения сессии. Если у фото есть подпись,
// задача создается сразу.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	intake, ok := b.requireIntake(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	// Берем самый крупный вариант фото
	photo := msg.Photo[len(msg.Photo)-1]

	filename := fmt.Sprintf("task_photo_%s_%s.jpg", time.Now().Format("20060102_150405"), shortID())
	localPath, err := b.downloadFile(ctx, photo.FileID, filename)
	if err != nil {
		b.logger.Error("не удалось скачать фото", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	intake.Attachments = append(intake.Attachments, session.Attachment{
		Type:      "photo",
		Filename:  filename,
		LocalPath: localPath,
	})

	if msg.Caption != "" {
		b.createTasksFromText(ctx, msg, intake, msg.Caption)
		return
	}

	if err := b.sessions.SetIntake(ctx, msg.Chat.ID, intake); err != nil {
		b.logger.Error("не удалось сохранить вложение в сессии", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("📸 Фото добавлено (всего вложений: %d). Теперь опишите задачу текстом.", len(intake.Attachments)))
}

// handleDocument сохраняет документ во вложения сессии, оригинальное имя
// файла остается в описании задачи
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	intake, ok := b.requireIntake(ctx, msg.Chat.ID)
	if !ok {
		return
	}

	doc := msg.Document
	ext := filepath.Ext(doc.FileName)
	filename := fmt.Sprintf("task_file_%s_%s%s", time.Now().Format("20060102_150405"), shortID(), ext)

	localPath, err := b.downloadFile(ctx, doc.FileID, filename)
	if err != nil {
		b.logger.Error("не удалось скачать документ", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	intake.Attachments = append(intake.Attachments, session.Attachment{
		Type:             "document",
		Filename:         filename,
		OriginalFilename: doc.FileName,
		LocalPath:        localPath,
	})

	if msg.Caption != "" {
		b.createTasksFromText(ctx, msg, intake, msg.Caption)
		return
	}

	if err := b.sessions.SetIntake(ctx, msg.Chat.ID, intake); err != nil {
		b.logger.Error("не удалось сохранить вложение в сессии", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("📎 Файл «%s» добавлен (всего вложений: %d). Теперь опишите задачу текстом.", doc.FileName, len(intake.Attachments)))
}

// createTasksFromText превращает свободный текст в задачи проекта. Вложения
// из сессии дописываются к описанию первой созданной задачи.
func (b *Bot) createTasksFromText(ctx context.Context, msg *tgbotapi.Message, intake *session.TaskIntake, text string) {
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

	parsed := taskparse.ParseMessage(text)
	if len(parsed) == 0 || parsed[0].Title == "" {
		b.reply(msg.Chat.ID, "Не удалось распознать задачу. Опишите ее текстом, например: «Купить цемент. 5000₽».")
		return
	}

	column, err := b.repo.EnsureIntakeColumn(ctx, intake.ProjectID)
	if err != nil {
		b.logger.Error("не удалось получить колонку для новых задач", zap.Error(err))
		b.reply(msg.Chat.ID, errorReply)
		return
	}

	created := make([]*models.ExpenseItem, 0, len(parsed))
	for _, item := range buildItems(intake.ProjectID, column, parsed, user.ID) {
		item, err = b.repo.CreateExpenseItem(ctx, item)
		if err != nil {
			b.logger.Error("не удалось создать задачу",
				zap.Int64("project_id", intake.ProjectID), zap.Error(err))
			b.reply(msg.Chat.ID, errorReply)
			return
		}
		created = append(created, item)
	}

	// Вложения привязываются к первой задаче
	if len(intake.Attachments) > 0 {
		first := created[0]
		desc := first.Description
		if desc != "" {
			desc += "\n\n"
		}
		desc += attachmentsBlock(intake.Attachments)
		if err := b.repo.UpdateExpenseDescription(ctx, first.ID, desc); err != nil {
			b.logger.Warn("не удалось дописать вложения к задаче",
				zap.Int64("item_id", first.ID), zap.Error(err))
		}
	}

	if err := b.sessions.ClearIntake(ctx, msg.Chat.ID); err != nil {
		b.logger.Warn("не удалось очистить сессию создания задачи", zap.Error(err))
	}

	b.reply(msg.Chat.ID, creationSummary(created, len(intake.Attachments)))
}

// buildItems собирает задачи для вставки в колонку. Статус каждой задачи
// берется из типа колонки, а не фиксируется: задача в колонке "В работе"
// сразу получает статус in_progress.
func buildItems(projectID int64, column *models.KanbanColumn, parsed []taskparse.Task, creatorID int64) []*models.ExpenseItem {
	items := make([]*models.ExpenseItem, 0, len(parsed))
	for _, t := range parsed {
		items = append(items, &models.ExpenseItem{
			ProjectID:   projectID,
			ColumnID:    column.ID,
			Title:       t.Title,
			Description: t.Description,
			Amount:      t.Amount,
			Status:      column.ColumnType,
			CreatedBy:   creatorID,
		})
	}
	return items
}

// requireIntake возвращает активную сессию создания задачи или подсказывает
// начать с /create_task
func (b *Bot) requireIntake(ctx context.Context, chatID int64) (*session.TaskIntake, bool) {
	intake, err := b.sessions.GetIntake(ctx, chatID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			b.reply(chatID, "Сначала выберите проект командой /create_task, затем отправьте вложение.")
			return nil, false
		}
		b.logger.Error("не удалось получить сессию создания задачи", zap.Error(err))
		b.reply(chatID, errorReply)
		return nil, false
	}
	return intake, true
}

// downloadFile скачивает файл из Telegram в каталог вложений и возвращает
// локальный путь
func (b *Bot) downloadFile(ctx context.Context, fileID, filename string) (string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(b.api.Token), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d while downloading file", resp.StatusCode)
	}

	if err := os.MkdirAll(b.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media dir: %w", err)
	}

	localPath := filepath.Join(b.mediaDir, filename)
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return localPath, nil
}

// attachmentsBlock форматирует список вложений для описания задачи
func attachmentsBlock(attachments []session.Attachment) string {
	var sb strings.Builder
	sb.WriteString("Вложения:")
	for _, a := range attachments {
		if a.Type == "photo" {
			sb.WriteString("\n📸 " + a.Filename)
			continue
		}
		name := a.OriginalFilename
		if name == "" {
			name = a.Filename
		}
		sb.WriteString("\n📎 " + name)
	}
	return sb.String()
}

// creationSummary собирает ответ о созданных задачах
func creationSummary(created []*models.ExpenseItem, attachmentCount int) string {
	var sb strings.Builder

	if len(created) == 1 {
		item := created[0]
		sb.WriteString("✅ Задача создана!\n\n📋 " + item.Title)
		if item.Amount > 0 {
			sb.WriteString("\n💰 " + formatAmount(item.Amount))
		}
	} else {
		fmt.Fprintf(&sb, "✅ Создано задач: %d!\n", len(created))
		shown := created
		if len(shown) > summaryTitleLimit {
			shown = shown[:summaryTitleLimit]
		}
		for i, item := range shown {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, item.Title)
			if item.Amount > 0 {
				sb.WriteString(" - " + formatAmount(item.Amount))
			}
		}
		if rest := len(created) - summaryTitleLimit; rest > 0 {
			fmt.Fprintf(&sb, "\n... и еще %d задач", rest)
		}
	}

	if attachmentCount > 0 {
		fmt.Fprintf(&sb, "\n\n📎 Вложений: %d", attachmentCount)
	}

	return sb.String()
}

func shortID() string {
	return uuid.NewString()[:8]
}
