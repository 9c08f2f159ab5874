// Package taskparse извлекает задачи из свободного текста сообщений.
//
// Эвристики локализованы под русский язык: суммы распознаются по суффиксам
// ₽/руб/тыс/к, название - по первому предложению или ключевым словам.
// Неоднозначный ввод (например, "5к" не про деньги) распознается неверно,
// это известное ограничение формата, а не ошибка.
package taskparse

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxTasksPerMessage ограничивает число задач из одного сообщения
const MaxTasksPerMessage = 20

// Task представляет одну распознанную задачу
type Task struct {
	Title       string
	Description string
	Amount      float64
}

var numberedLineRe = regexp.MustCompile(`(?m)^\s*\d+\.\s*(.+)$`)

// amountPattern распознает сумму; thousands помечает суффиксы тысяч
type amountPattern struct {
	re        *regexp.Regexp
	thousands bool
}

// Порядок важен: выигрывает первый совпавший шаблон
var amountPatterns = []amountPattern{
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*₽`)},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*руб`)},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*рублей`)},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*р`)},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*тыс`), thousands: true},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*тысяч`), thousands: true},
	{re: regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*к`), thousands: true},
}

var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^([^.!?]+)[.!?]`),
	regexp.MustCompile(`(?i)задача[:\s]+([^.!?]+)`),
	regexp.MustCompile(`(?i)нужно[:\s]+([^.!?]+)`),
	regexp.MustCompile(`(?i)сделать[:\s]+([^.!?]+)`),
}

var descriptionJunkRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)

// ParseMessage разбирает сообщение на задачи. Нумерованный список превращается
// в отдельные задачи (не более MaxTasksPerMessage), любой другой текст - в одну.
func ParseMessage(text string) []Task {
	matches := numberedLineRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []Task{ParseSingle(text)}
	}

	if len(matches) > MaxTasksPerMessage {
		matches = matches[:MaxTasksPerMessage]
	}

	tasks := make([]Task, 0, len(matches))
	for _, m := range matches {
		tasks = append(tasks, ParseSingle(strings.TrimSpace(m[1])))
	}
	return tasks
}

// ParseSingle извлекает название, описание и сумму одной задачи
func ParseSingle(text string) Task {
	var task Task

	for _, p := range amountPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if p.thousands {
			amount *= 1000
		}
		task.Amount = amount
		break
	}

	// Убираем сумму из текста, чтобы она не попала в название
	clean := text
	for _, p := range amountPatterns {
		clean = p.re.ReplaceAllString(clean, "")
	}

	var title string
	for _, p := range titlePatterns {
		if m := p.FindStringSubmatch(clean); m != nil {
			title = strings.TrimSpace(m[1])
			break
		}
	}

	// Название не нашлось - берем первые пять слов
	if title == "" {
		words := strings.Fields(clean)
		if len(words) > 5 {
			words = words[:5]
		}
		title = strings.Join(words, " ")
	}
	task.Title = title

	description := clean
	if title != "" {
		description = strings.ReplaceAll(clean, title, "")
	}
	description = descriptionJunkRe.ReplaceAllString(description, "")
	task.Description = strings.TrimSpace(description)

	return task
}
