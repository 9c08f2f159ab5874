package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/superpan/taskboard/internal/models"
)

// GetProject получает проект по ID
func (r *Repository) GetProject(ctx context.Context, projectID int64) (*models.Project, error) {
	query := `SELECT id, name, address, created_at FROM projects WHERE id = $1`

	var p models.Project
	err := r.pool.QueryRow(ctx, query, projectID).Scan(&p.ID, &p.Name, &p.Address, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &p, nil
}

// ListUserProjects получает проекты, в которых пользователь состоит участником
func (r *Repository) ListUserProjects(ctx context.Context, userID int64) ([]models.Project, error) {
	query := `
        SELECT p.id, p.name, p.address, p.created_at
        FROM projects p
        JOIN project_members pm ON pm.project_id = p.id AND pm.is_active
        WHERE pm.user_id = $1
        ORDER BY p.name
    `

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// IsProjectMember проверяет, что пользователь состоит в проекте
func (r *Repository) IsProjectMember(ctx context.Context, projectID, userID int64) (bool, error) {
	var member bool
	query := `SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2 AND is_active)`
	if err := r.pool.QueryRow(ctx, query, projectID, userID).Scan(&member); err != nil {
		return false, fmt.Errorf("failed to check project membership: %w", err)
	}
	return member, nil
}

// ListProjectTasks получает задачи проекта в порядке колонок и позиций
func (r *Repository) ListProjectTasks(ctx context.Context, projectID int64) ([]models.ExpenseItem, error) {
	query := `
        SELECT e.id, e.project_id, e.column_id, e.title, e.description, e.amount,
               e.status, e.position, e.created_by, e.created_at, e.updated_at
        FROM expense_items e
        JOIN kanban_columns c ON c.id = e.column_id
        WHERE e.project_id = $1
        ORDER BY c.position, e.position
    `

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project tasks: %w", err)
	}
	defer rows.Close()

	var items []models.ExpenseItem
	for rows.Next() {
		var item models.ExpenseItem
		err := rows.Scan(
			&item.ID, &item.ProjectID, &item.ColumnID, &item.Title, &item.Description,
			&item.Amount, &item.Status, &item.Position, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// ColumnSummary представляет колонку с количеством задач для обзора этапов
type ColumnSummary struct {
	Column    models.KanbanColumn
	TaskCount int
}

// ListProjectColumns получает колонки проекта с количеством задач в каждой
func (r *Repository) ListProjectColumns(ctx context.Context, projectID int64) ([]ColumnSummary, error) {
	query := `
        SELECT c.id, c.project_id, c.name, c.column_type, c.position, COUNT(e.id)
        FROM kanban_columns c
        LEFT JOIN expense_items e ON e.column_id = c.id
        WHERE c.project_id = $1
        GROUP BY c.id
        ORDER BY c.position
    `

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project columns: %w", err)
	}
	defer rows.Close()

	var columns []ColumnSummary
	for rows.Next() {
		var s ColumnSummary
		err := rows.Scan(&s.Column.ID, &s.Column.ProjectID, &s.Column.Name,
			&s.Column.ColumnType, &s.Column.Position, &s.TaskCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column summary: %w", err)
		}
		columns = append(columns, s)
	}

	return columns, rows.Err()
}

// EnsureIntakeColumn возвращает первую колонку проекта. Если колонок нет,
// создается колонка "Новые" - задачи из бота должны куда-то попадать.
func (r *Repository) EnsureIntakeColumn(ctx context.Context, projectID int64) (*models.KanbanColumn, error) {
	col := &models.KanbanColumn{ProjectID: projectID}

	query := `
        SELECT id, name, column_type, position
        FROM kanban_columns
        WHERE project_id = $1
        ORDER BY position
        LIMIT 1
    `
	err := r.pool.QueryRow(ctx, query, projectID).Scan(&col.ID, &col.Name, &col.ColumnType, &col.Position)
	if err == nil {
		return col, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get intake column: %w", err)
	}

	createQuery := `
        INSERT INTO kanban_columns (project_id, name, column_type, position)
        VALUES ($1, 'Новые', 'new', 0)
        RETURNING id, name, column_type, position
    `
	err = r.pool.QueryRow(ctx, createQuery, projectID).Scan(&col.ID, &col.Name, &col.ColumnType, &col.Position)
	if err != nil {
		return nil, fmt.Errorf("failed to create intake column: %w", err)
	}

	return col, nil
}

// CreateExpenseItem создает задачу в указанной колонке. Статус задачи всегда
// синхронизируется с типом колонки, переданное значение игнорируется.
func (r *Repository) CreateExpenseItem(ctx context.Context, item *models.ExpenseItem) (*models.ExpenseItem, error) {
	var columnType string
	err := r.pool.QueryRow(ctx,
		`SELECT column_type FROM kanban_columns WHERE id = $1`, item.ColumnID,
	).Scan(&columnType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column type: %w", err)
	}
	if !models.IsValidStatus(columnType) {
		return nil, ErrInvalidInput
	}
	item.Status = columnType

	query := `
        INSERT INTO expense_items (project_id, column_id, title, description, amount, status, position, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at
    `
	err = r.pool.QueryRow(ctx, query,
		item.ProjectID, item.ColumnID, item.Title, item.Description,
		item.Amount, item.Status, item.Position, item.CreatedBy,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create expense item: %w", err)
	}

	return item, nil
}

// UpdateExpenseDescription обновляет описание задачи (используется ботом для
// дописывания блока вложений)
func (r *Repository) UpdateExpenseDescription(ctx context.Context, itemID int64, description string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE expense_items SET description = $1, updated_at = NOW() WHERE id = $2`,
		description, itemID)
	if err != nil {
		return fmt.Errorf("failed to update expense description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
