package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/superpan/taskboard/internal/repository"
	"github.com/superpan/taskboard/internal/session"
	"go.uber.org/zap"
)

// Задач в одном сообщении со списком
const taskListLimit = 10

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	// Callback из inline-режима приходит без сообщения, ответить некуда
	if cb.Message == nil {
		b.logger.Warn("callback без сообщения", zap.String("data", cb.Data))
		return
	}

	// Сразу гасим "часики" на кнопке
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("не удалось ответить на callback", zap.Error(err))
	}

	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "create_task_project_"):
		if id, ok := parseCallbackID(data, "create_task_project"); ok {
			b.startTaskIntake(ctx, chatID, id)
		}
	case strings.HasPrefix(data, "project_tasks_"):
		if id, ok := parseCallbackID(data, "project_tasks"); ok {
			b.sendTaskList(ctx, chatID, id)
		}
	case strings.HasPrefix(data, "stages_project_"):
		if id, ok := parseCallbackID(data, "stages_project"); ok {
			b.sendStages(ctx, chatID, id)
		}
	case strings.HasPrefix(data, "project_"):
		if id, ok := parseCallbackID(data, "project"); ok {
			b.sendProjectCard(ctx, chatID, id)
		}
	case strings.HasPrefix(data, "task_"):
		if id, ok := parseCallbackID(data, "task"); ok {
			b.sendTaskCard(ctx, chatID, id)
		}
	default:
		b.logger.Warn("неизвестный callback", zap.String("data", data))
	}
}

// startTaskIntake открывает сессию создания задачи для выбранного проекта
func (b *Bot) startTaskIntake(ctx context.Context, chatID, projectID int64) {
	err := b.sessions.SetIntake(ctx, chatID, &session.TaskIntake{ProjectID: projectID})
	if err != nil {
		b.logger.Error("не удалось сохранить сессию создания задачи", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}

	b.reply(chatID,
		"✏️ Опишите задачу текстом. Можно приложить фото или документ.\n\n"+
			"Примеры:\n"+
			"• Купить цемент. 50 мешков. 5000₽\n"+
			"• 1. Задача раз. 100₽\n  2. Задача два. 200₽")
}

func (b *Bot) sendProjectCard(ctx context.Context, chatID, projectID int64) {
	project, err := b.repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(chatID, "❌ Проект не найден.")
			return
		}
		b.logger.Error("не удалось получить проект", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}

	text := "🏗️ " + project.Name
	if project.Address != "" {
		text += "\n📍 " + project.Address
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Задачи", fmt.Sprintf("project_tasks_%d", projectID)),
			tgbotapi.NewInlineKeyboardButtonData("📍 Этапы", fmt.Sprintf("stages_project_%d", projectID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Создать задачу", fmt.Sprintf("create_task_project_%d", projectID)),
		),
	)
	b.send(msg)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID, projectID int64) {
	tasks, err := b.repo.ListProjectTasks(ctx, projectID)
	if err != nil {
		b.logger.Error("не удалось получить задачи проекта", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}
	if len(tasks) == 0 {
		b.reply(chatID, "В проекте пока нет задач.")
		return
	}

	shown := tasks
	if len(shown) > taskListLimit {
		shown = shown[:taskListLimit]
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(shown))
	for _, task := range shown {
		label := task.Title
		if task.Amount > 0 {
			label += " · " + formatAmount(task.Amount)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("task_%d", task.ID)),
		))
	}

	title := fmt.Sprintf("📋 Задачи проекта (%d):", len(tasks))
	if len(tasks) > taskListLimit {
		title += fmt.Sprintf("\nПоказаны первые %d.", taskListLimit)
	}

	msg := tgbotapi.NewMessage(chatID, title)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(msg)
}

func (b *Bot) sendTaskCard(ctx context.Context, chatID, taskID int64) {
	task, err := b.repo.GetExpenseItem(ctx, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			b.reply(chatID, "❌ Задача не найдена.")
			return
		}
		b.logger.Error("не удалось получить задачу", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}

	text := "📋 " + task.Title + "\n" + statusLine(task)
	if task.Description != "" {
		text += "\n\n📝 " + task.Description
	}
	b.reply(chatID, text)
}

func (b *Bot) sendStages(ctx context.Context, chatID, projectID int64) {
	columns, err := b.repo.ListProjectColumns(ctx, projectID)
	if err != nil {
		b.logger.Error("не удалось получить этапы проекта", zap.Error(err))
		b.reply(chatID, errorReply)
		return
	}
	if len(columns) == 0 {
		b.reply(chatID, "В проекте пока нет этапов.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📍 Этапы проекта:\n")
	for _, col := range columns {
		fmt.Fprintf(&sb, "\n• %s - %d задач", col.Column.Name, col.TaskCount)
	}
	b.reply(chatID, sb.String())
}
