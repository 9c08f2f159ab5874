package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/session"
	"github.com/superpan/taskboard/internal/taskparse"
	"go.uber.org/zap"
)

func TestParseCallbackID(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		prefix string
		wantID int64
		wantOK bool
	}{
		{name: "проект", data: "project_42", prefix: "project", wantID: 42, wantOK: true},
		{name: "составной префикс", data: "create_task_project_7", prefix: "create_task_project", wantID: 7, wantOK: true},
		{name: "чужой префикс", data: "task_5", prefix: "project", wantOK: false},
		{name: "не число", data: "project_abc", prefix: "project", wantOK: false},
		{name: "пустой id", data: "project_", prefix: "project", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := parseCallbackID(tt.data, tt.prefix)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestBuildItemsSyncsStatusWithColumnType(t *testing.T) {
	column := &models.KanbanColumn{ID: 3, ProjectID: 10, Name: "В работе", ColumnType: models.StatusInProgress}
	parsed := []taskparse.Task{
		{Title: "Купить цемент", Amount: 5000},
		{Title: "Залить фундамент"},
	}

	items := buildItems(10, column, parsed, 7)

	require.Len(t, items, 2)
	for _, item := range items {
		// Статус всегда совпадает с типом колонки, в которую попадает задача
		assert.Equal(t, models.StatusInProgress, item.Status)
		assert.Equal(t, column.ID, item.ColumnID)
		assert.Equal(t, int64(10), item.ProjectID)
		assert.Equal(t, int64(7), item.CreatedBy)
	}
	assert.Equal(t, "Купить цемент", items[0].Title)
	assert.Equal(t, 5000.0, items[0].Amount)
}

func TestHandleCallbackIgnoresInlineModeCallbacks(t *testing.T) {
	b := &Bot{logger: zap.NewNop()}

	// Callback из inline-режима приходит без сообщения
	assert.NotPanics(t, func() {
		b.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "1", Data: "project_1"})
	})
}

func TestCreationSummarySingleTask(t *testing.T) {
	created := []*models.ExpenseItem{
		{Title: "Купить цемент", Amount: 5000},
	}

	got := creationSummary(created, 0)

	assert.Contains(t, got, "✅ Задача создана!")
	assert.Contains(t, got, "Купить цемент")
	assert.Contains(t, got, "5000₽")
	assert.NotContains(t, got, "Вложений")
}

func TestCreationSummaryManyTasksCapped(t *testing.T) {
	created := []*models.ExpenseItem{
		{Title: "Задача 1", Amount: 100},
		{Title: "Задача 2"},
		{Title: "Задача 3"},
		{Title: "Задача 4"},
		{Title: "Задача 5"},
		{Title: "Задача 6"},
		{Title: "Задача 7"},
	}

	got := creationSummary(created, 2)

	assert.Contains(t, got, "✅ Создано задач: 7!")
	assert.Contains(t, got, "Задача 5")
	assert.NotContains(t, got, "Задача 6")
	assert.Contains(t, got, "... и еще 2 задач")
	assert.Contains(t, got, "📎 Вложений: 2")
}

func TestAttachmentsBlock(t *testing.T) {
	attachments := []session.Attachment{
		{Type: "photo", Filename: "task_photo_20250101_120000_ab12cd34.jpg"},
		{Type: "document", Filename: "task_file_20250101_120001_ef56ab78.pdf", OriginalFilename: "смета.pdf"},
	}

	got := attachmentsBlock(attachments)

	assert.Contains(t, got, "Вложения:")
	assert.Contains(t, got, "📸 task_photo_20250101_120000_ab12cd34.jpg")
	assert.Contains(t, got, "📎 смета.pdf")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5000₽", formatAmount(5000))
	assert.Equal(t, "1500₽", formatAmount(1500.0))
}

func TestStatusLine(t *testing.T) {
	item := &models.ExpenseItem{Status: models.StatusInProgress, Amount: 300}
	line := statusLine(item)

	assert.Contains(t, line, "В работе")
	assert.Contains(t, line, "300₽")

	noAmount := &models.ExpenseItem{Status: models.StatusNew}
	assert.NotContains(t, statusLine(noAmount), "💰")
}
