package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/superpan/taskboard/internal/models"
)

// GetExpenseItem получает задачу по ID
func (r *Repository) GetExpenseItem(ctx context.Context, itemID int64) (*models.ExpenseItem, error) {
	query := `
        SELECT id, project_id, column_id, title, description, amount, status, position, created_by, created_at, updated_at
        FROM expense_items
        WHERE id = $1
    `

	var item models.ExpenseItem
	err := r.pool.QueryRow(ctx, query, itemID).Scan(
		&item.ID, &item.ProjectID, &item.ColumnID, &item.Title, &item.Description,
		&item.Amount, &item.Status, &item.Position, &item.CreatedBy, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense item: %w", err)
	}

	return &item, nil
}

// MoveDirect перемещает задачу в целевую колонку напрямую (для администраторов).
// Статус задачи синхронизируется с типом целевой колонки, в историю пишется
// запись о перемещении.
func (r *Repository) MoveDirect(ctx context.Context, itemID, targetColumnID int64, position int, actorID int64) (*models.ExpenseItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, oldColumnName, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	var target models.KanbanColumn
	err = tx.QueryRow(ctx,
		`SELECT id, project_id, name, column_type, position FROM kanban_columns WHERE id = $1`,
		targetColumnID,
	).Scan(&target.ID, &target.ProjectID, &target.Name, &target.ColumnType, &target.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target column: %w", err)
	}

	updateQuery := `
        UPDATE expense_items
        SET column_id = $1, position = $2, status = $3, updated_at = NOW()
        WHERE id = $4
    `
	if _, err = tx.Exec(ctx, updateQuery, target.ID, position, target.ColumnType, itemID); err != nil {
		return nil, fmt.Errorf("failed to move expense item: %w", err)
	}

	err = addHistory(ctx, tx, itemID, actorID, models.ActionMoved, "column",
		"Колонка: "+oldColumnName, "Колонка: "+target.Name)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	item.ColumnID = target.ID
	item.Position = position
	item.Status = target.ColumnType
	return item, nil
}

// CreateStatusChangeRequest создает запрос на изменение статуса задачи.
// Позиция задачи обновляется сразу, статус остается прежним до утверждения.
// Уникальность ожидающего запроса гарантируется частичным индексом в базе:
// при конкурентной вставке вторая попытка вернет ErrAlreadyExists.
func (r *Repository) CreateStatusChangeRequest(ctx context.Context, itemID, targetColumnID int64, position int, requesterID int64, reason string) (*models.StatusChangeRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, _, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	var newStatus string
	err = tx.QueryRow(ctx, `SELECT column_type FROM kanban_columns WHERE id = $1`, targetColumnID).Scan(&newStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target column type: %w", err)
	}

	req := &models.StatusChangeRequest{
		ExpenseItemID: itemID,
		RequestedBy:   requesterID,
		OldStatus:     item.Status,
		NewStatus:     newStatus,
		Reason:        reason,
		Status:        models.RequestPending,
	}

	insertQuery := `
        INSERT INTO status_change_requests (expense_item_id, requested_by, old_status, new_status, reason, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	err = tx.QueryRow(ctx, insertQuery,
		req.ExpenseItemID, req.RequestedBy, req.OldStatus, req.NewStatus, req.Reason, req.Status,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create status change request: %w", err)
	}

	// Перемещаем только позицию, статус не трогаем
	if _, err = tx.Exec(ctx, `UPDATE expense_items SET position = $1, updated_at = NOW() WHERE id = $2`, position, itemID); err != nil {
		return nil, fmt.Errorf("failed to update item position: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return req, nil
}

// UpdateExpenseAmount меняет сумму задачи и пишет изменение в историю
func (r *Repository) UpdateExpenseAmount(ctx context.Context, itemID int64, amount float64, actorID int64) (*models.ExpenseItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item, _, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx,
		`UPDATE expense_items SET amount = $1, updated_at = NOW() WHERE id = $2`,
		amount, itemID,
	); err != nil {
		return nil, fmt.Errorf("failed to update expense amount: %w", err)
	}

	err = addHistory(ctx, tx, itemID, actorID, models.ActionUpdated, "amount",
		fmt.Sprintf("Сумма: %.2f", item.Amount), fmt.Sprintf("Сумма: %.2f", amount))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	item.Amount = amount
	return item, nil
}

// ApprovalResult представляет итог утверждения запроса
type ApprovalResult struct {
	Request     *models.StatusChangeRequest
	Item        *models.ExpenseItem
	ColumnMoved bool
}

// ApproveStatusChange утверждает ожидающий запрос для задачи: статус задачи
// меняется на запрошенный, задача перемещается в колонку с соответствующим
// типом. Если такой колонки в проекте нет, колонка остается прежней,
// ColumnMoved будет false, решение о предупреждении за вызывающим кодом.
func (r *Repository) ApproveStatusChange(ctx context.Context, itemID, approverID int64) (*ApprovalResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := lockPendingRequest(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	item, _, err := lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	resolveQuery := `
        UPDATE status_change_requests
        SET status = $1, approved_by = $2, approved_at = NOW()
        WHERE id = $3
        RETURNING approved_at
    `
	if err = tx.QueryRow(ctx, resolveQuery, models.RequestApproved, approverID, req.ID).Scan(&req.ApprovedAt); err != nil {
		return nil, fmt.Errorf("failed to approve request: %w", err)
	}
	req.Status = models.RequestApproved
	req.ApprovedBy = &approverID

	// Ищем в проекте колонку с типом, соответствующим новому статусу
	var newColumnID int64
	columnMoved := true
	err = tx.QueryRow(ctx,
		`SELECT id FROM kanban_columns WHERE project_id = $1 AND column_type = $2 ORDER BY position LIMIT 1`,
		item.ProjectID, req.NewStatus,
	).Scan(&newColumnID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Колонки нет - статус меняем, колонку оставляем
		columnMoved = false
		newColumnID = item.ColumnID
	} else if err != nil {
		return nil, fmt.Errorf("failed to find column for status: %w", err)
	}

	updateQuery := `
        UPDATE expense_items
        SET status = $1, column_id = $2, updated_at = NOW()
        WHERE id = $3
    `
	if _, err = tx.Exec(ctx, updateQuery, req.NewStatus, newColumnID, itemID); err != nil {
		return nil, fmt.Errorf("failed to update item status: %w", err)
	}

	err = addHistory(ctx, tx, itemID, approverID, models.ActionStatusApproved, "status",
		"Статус: "+models.StatusDisplay(req.OldStatus), "Статус: "+models.StatusDisplay(req.NewStatus))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	item.Status = req.NewStatus
	item.ColumnID = newColumnID
	return &ApprovalResult{Request: req, Item: item, ColumnMoved: columnMoved}, nil
}

// RejectStatusChange отклоняет ожидающий запрос для задачи. Сама задача
// остается без изменений, сохраняется причина отклонения.
func (r *Repository) RejectStatusChange(ctx context.Context, itemID, approverID int64, rejectionReason string) (*models.StatusChangeRequest, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := lockPendingRequest(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	resolveQuery := `
        UPDATE status_change_requests
        SET status = $1, approved_by = $2, approved_at = NOW(), rejection_reason = $3
        WHERE id = $4
        RETURNING approved_at
    `
	err = tx.QueryRow(ctx, resolveQuery, models.RequestRejected, approverID, rejectionReason, req.ID).Scan(&req.ApprovedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to reject request: %w", err)
	}
	req.Status = models.RequestRejected
	req.ApprovedBy = &approverID
	req.RejectionReason = rejectionReason

	err = addHistory(ctx, tx, itemID, approverID, models.ActionStatusRejected, "status",
		"Статус: "+models.StatusDisplay(req.OldStatus), "Запрос отклонен: "+models.StatusDisplay(req.NewStatus))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return req, nil
}

// ListPendingRequests получает ожидающие запросы по проектам, в которых
// пользователь состоит участником
func (r *Repository) ListPendingRequests(ctx context.Context, userID int64) ([]models.PendingRequestInfo, error) {
	query := `
        SELECT r.id, r.expense_item_id, e.title, p.name,
               TRIM(u.first_name || ' ' || u.last_name),
               r.old_status, r.new_status, r.reason, r.created_at
        FROM status_change_requests r
        JOIN expense_items e ON e.id = r.expense_item_id
        JOIN projects p ON p.id = e.project_id
        JOIN users u ON u.id = r.requested_by
        JOIN project_members pm ON pm.project_id = p.id AND pm.user_id = $1 AND pm.is_active
        WHERE r.status = 'pending'
        ORDER BY r.created_at
    `

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	var requests []models.PendingRequestInfo
	for rows.Next() {
		var info models.PendingRequestInfo
		err := rows.Scan(
			&info.RequestID, &info.ExpenseItemID, &info.ItemTitle, &info.ProjectName,
			&info.RequestedBy, &info.OldStatus, &info.NewStatus, &info.Reason, &info.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		requests = append(requests, info)
	}

	return requests, rows.Err()
}

// lockItem блокирует строку задачи на время транзакции и возвращает задачу
// вместе с названием текущей колонки
func lockItem(ctx context.Context, tx pgx.Tx, itemID int64) (*models.ExpenseItem, string, error) {
	query := `
        SELECT e.id, e.project_id, e.column_id, e.title, e.description, e.amount,
               e.status, e.position, e.created_by, e.created_at, e.updated_at, c.name
        FROM expense_items e
        JOIN kanban_columns c ON c.id = e.column_id
        WHERE e.id = $1
        FOR UPDATE OF e
    `

	var item models.ExpenseItem
	var columnName string
	err := tx.QueryRow(ctx, query, itemID).Scan(
		&item.ID, &item.ProjectID, &item.ColumnID, &item.Title, &item.Description,
		&item.Amount, &item.Status, &item.Position, &item.CreatedBy,
		&item.CreatedAt, &item.UpdatedAt, &columnName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to lock expense item: %w", err)
	}

	return &item, columnName, nil
}

// lockPendingRequest находит и блокирует единственный ожидающий запрос задачи.
// Если запросы по задаче есть, но все уже разрешены, возвращает
// ErrAlreadyProcessed, чтобы отличать повторное утверждение от опечатки в ID.
func lockPendingRequest(ctx context.Context, tx pgx.Tx, itemID int64) (*models.StatusChangeRequest, error) {
	query := `
        SELECT id, expense_item_id, requested_by, old_status, new_status, reason, status, rejection_reason, created_at
        FROM status_change_requests
        WHERE expense_item_id = $1 AND status = 'pending'
        FOR UPDATE
    `

	var req models.StatusChangeRequest
	err := tx.QueryRow(ctx, query, itemID).Scan(
		&req.ID, &req.ExpenseItemID, &req.RequestedBy, &req.OldStatus, &req.NewStatus,
		&req.Reason, &req.Status, &req.RejectionReason, &req.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		var resolved bool
		existsQuery := `SELECT EXISTS(SELECT 1 FROM status_change_requests WHERE expense_item_id = $1)`
		if err := tx.QueryRow(ctx, existsQuery, itemID).Scan(&resolved); err != nil {
			return nil, fmt.Errorf("failed to check resolved requests: %w", err)
		}
		if resolved {
			return nil, ErrAlreadyProcessed
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending request: %w", err)
	}

	return &req, nil
}

// ListExpenseHistory получает историю изменений задачи в хронологическом порядке
func (r *Repository) ListExpenseHistory(ctx context.Context, itemID int64) ([]models.ExpenseHistory, error) {
	query := `
        SELECT id, expense_item_id, user_id, action, field_name, old_value, new_value, created_at
        FROM expense_history
        WHERE expense_item_id = $1
        ORDER BY created_at
    `

	rows, err := r.pool.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expense history: %w", err)
	}
	defer rows.Close()

	var history []models.ExpenseHistory
	for rows.Next() {
		var h models.ExpenseHistory
		err := rows.Scan(&h.ID, &h.ExpenseItemID, &h.UserID, &h.Action,
			&h.FieldName, &h.OldValue, &h.NewValue, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		history = append(history, h)
	}

	return history, rows.Err()
}

func addHistory(ctx context.Context, tx pgx.Tx, itemID, userID int64, action, fieldName, oldValue, newValue string) error {
	query := `
        INSERT INTO expense_history (expense_item_id, user_id, action, field_name, old_value, new_value)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	if _, err := tx.Exec(ctx, query, itemID, userID, action, fieldName, oldValue, newValue); err != nil {
		return fmt.Errorf("failed to add history record: %w", err)
	}
	return nil
}
