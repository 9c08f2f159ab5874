package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/superpan/taskboard/internal/models"
	"github.com/superpan/taskboard/internal/repository"
	"go.uber.org/zap"
)

// fakeStore реализует Store через подменяемые функции
type fakeStore struct {
	getUser              func(ctx context.Context, userID int64) (*models.User, error)
	getExpenseItem       func(ctx context.Context, itemID int64) (*models.ExpenseItem, error)
	isProjectMember      func(ctx context.Context, projectID, userID int64) (bool, error)
	moveDirect           func(ctx context.Context, itemID, targetColumnID int64, position int, actorID int64) (*models.ExpenseItem, error)
	updateExpenseAmount  func(ctx context.Context, itemID int64, amount float64, actorID int64) (*models.ExpenseItem, error)
	createStatusRequest  func(ctx context.Context, itemID, targetColumnID int64, position int, requesterID int64, reason string) (*models.StatusChangeRequest, error)
	approveStatusChange  func(ctx context.Context, itemID, approverID int64) (*repository.ApprovalResult, error)
	rejectStatusChange   func(ctx context.Context, itemID, approverID int64, reason string) (*models.StatusChangeRequest, error)
	listPendingRequests  func(ctx context.Context, userID int64) ([]models.PendingRequestInfo, error)
	listExpenseHistory   func(ctx context.Context, itemID int64) ([]models.ExpenseHistory, error)
	listProjectAdmins    func(ctx context.Context, projectID int64) ([]repository.AdminContact, error)
	getProject           func(ctx context.Context, projectID int64) (*models.Project, error)
	consumeAuthToken     func(ctx context.Context, token uuid.UUID, userID, telegramUserID *int64) (*models.TelegramAuthToken, error)
	getUserByTelegramID  func(ctx context.Context, telegramID int64) (*models.User, error)
	upsertTelegramUser   func(ctx context.Context, tu models.TelegramUser) (*models.TelegramUser, error)
	linkTelegramUser     func(ctx context.Context, telegramUserID, userID int64) error
	bindDevice           func(ctx context.Context, userID int64, fingerprint string) (string, error)
	createAuthToken      func(ctx context.Context, userID, telegramUserID *int64, ttl time.Duration) (*models.TelegramAuthToken, error)
	getAuthToken         func(ctx context.Context, token uuid.UUID) (*models.TelegramAuthToken, error)
}

func (f *fakeStore) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	if f.getUser == nil {
		return nil, repository.ErrNotFound
	}
	return f.getUser(ctx, userID)
}

func (f *fakeStore) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	if f.getUserByTelegramID == nil {
		return nil, repository.ErrNotFound
	}
	return f.getUserByTelegramID(ctx, telegramID)
}

func (f *fakeStore) GetExpenseItem(ctx context.Context, itemID int64) (*models.ExpenseItem, error) {
	if f.getExpenseItem == nil {
		return nil, repository.ErrNotFound
	}
	return f.getExpenseItem(ctx, itemID)
}

func (f *fakeStore) GetProject(ctx context.Context, projectID int64) (*models.Project, error) {
	if f.getProject == nil {
		return &models.Project{ID: projectID, Name: "Объект"}, nil
	}
	return f.getProject(ctx, projectID)
}

func (f *fakeStore) IsProjectMember(ctx context.Context, projectID, userID int64) (bool, error) {
	if f.isProjectMember == nil {
		return true, nil
	}
	return f.isProjectMember(ctx, projectID, userID)
}

func (f *fakeStore) MoveDirect(ctx context.Context, itemID, targetColumnID int64, position int, actorID int64) (*models.ExpenseItem, error) {
	if f.moveDirect == nil {
		return nil, repository.ErrNotFound
	}
	return f.moveDirect(ctx, itemID, targetColumnID, position, actorID)
}

func (f *fakeStore) UpdateExpenseAmount(ctx context.Context, itemID int64, amount float64, actorID int64) (*models.ExpenseItem, error) {
	if f.updateExpenseAmount == nil {
		return nil, repository.ErrNotFound
	}
	return f.updateExpenseAmount(ctx, itemID, amount, actorID)
}

func (f *fakeStore) CreateStatusChangeRequest(ctx context.Context, itemID, targetColumnID int64, position int, requesterID int64, reason string) (*models.StatusChangeRequest, error) {
	if f.createStatusRequest == nil {
		return nil, repository.ErrNotFound
	}
	return f.createStatusRequest(ctx, itemID, targetColumnID, position, requesterID, reason)
}

func (f *fakeStore) ApproveStatusChange(ctx context.Context, itemID, approverID int64) (*repository.ApprovalResult, error) {
	if f.approveStatusChange == nil {
		return nil, repository.ErrNotFound
	}
	return f.approveStatusChange(ctx, itemID, approverID)
}

func (f *fakeStore) RejectStatusChange(ctx context.Context, itemID, approverID int64, reason string) (*models.StatusChangeRequest, error) {
	if f.rejectStatusChange == nil {
		return nil, repository.ErrNotFound
	}
	return f.rejectStatusChange(ctx, itemID, approverID, reason)
}

func (f *fakeStore) ListPendingRequests(ctx context.Context, userID int64) ([]models.PendingRequestInfo, error) {
	if f.listPendingRequests == nil {
		return nil, nil
	}
	return f.listPendingRequests(ctx, userID)
}

func (f *fakeStore) ListExpenseHistory(ctx context.Context, itemID int64) ([]models.ExpenseHistory, error) {
	if f.listExpenseHistory == nil {
		return nil, nil
	}
	return f.listExpenseHistory(ctx, itemID)
}

func (f *fakeStore) ListProjectAdmins(ctx context.Context, projectID int64) ([]repository.AdminContact, error) {
	if f.listProjectAdmins == nil {
		return nil, nil
	}
	return f.listProjectAdmins(ctx, projectID)
}

func (f *fakeStore) CreateAuthToken(ctx context.Context, userID, telegramUserID *int64, ttl time.Duration) (*models.TelegramAuthToken, error) {
	if f.createAuthToken == nil {
		return &models.TelegramAuthToken{Token: uuid.New(), ExpiresAt: time.Now().Add(ttl)}, nil
	}
	return f.createAuthToken(ctx, userID, telegramUserID, ttl)
}

func (f *fakeStore) GetAuthToken(ctx context.Context, token uuid.UUID) (*models.TelegramAuthToken, error) {
	if f.getAuthToken == nil {
		return nil, repository.ErrNotFound
	}
	return f.getAuthToken(ctx, token)
}

func (f *fakeStore) ConsumeAuthToken(ctx context.Context, token uuid.UUID, userID, telegramUserID *int64) (*models.TelegramAuthToken, error) {
	if f.consumeAuthToken == nil {
		return nil, repository.ErrNotFound
	}
	return f.consumeAuthToken(ctx, token, userID, telegramUserID)
}

func (f *fakeStore) UpsertTelegramUser(ctx context.Context, tu models.TelegramUser) (*models.TelegramUser, error) {
	if f.upsertTelegramUser == nil {
		tu.ID = 1
		return &tu, nil
	}
	return f.upsertTelegramUser(ctx, tu)
}

func (f *fakeStore) LinkTelegramUser(ctx context.Context, telegramUserID, userID int64) error {
	if f.linkTelegramUser == nil {
		return nil
	}
	return f.linkTelegramUser(ctx, telegramUserID, userID)
}

func (f *fakeStore) BindDevice(ctx context.Context, userID int64, fingerprint string) (string, error) {
	if f.bindDevice == nil {
		return fingerprint, nil
	}
	return f.bindDevice(ctx, userID, fingerprint)
}

// fakeSessions реализует Sessions в памяти
type fakeSessions struct {
	logins   map[string]int64
	qrTokens map[string]uuid.UUID
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{logins: map[string]int64{}, qrTokens: map[string]uuid.UUID{}}
}

func (f *fakeSessions) CreateLogin(_ context.Context, userID int64) (string, error) {
	id := uuid.NewString()
	f.logins[id] = userID
	return id, nil
}

func (f *fakeSessions) GetLogin(_ context.Context, sessionID string) (int64, error) {
	id, ok := f.logins[sessionID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeSessions) BindQRToken(_ context.Context, sessionID string, token uuid.UUID) error {
	f.qrTokens[sessionID] = token
	return nil
}

func (f *fakeSessions) GetQRToken(_ context.Context, sessionID string) (uuid.UUID, error) {
	t, ok := f.qrTokens[sessionID]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return t, nil
}

// fakeNotifier запоминает отправленные уведомления
type fakeNotifier struct {
	calls []string
}

func (f *fakeNotifier) StatusChangeRequested(_ []repository.AdminContact, item *models.ExpenseItem, _, _, oldStatus, newStatus string) {
	f.calls = append(f.calls, item.Title+": "+oldStatus+" -> "+newStatus)
}

func newTestHandler(store Store) (*Handler, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return New(store, newFakeSessions(), notifier, zap.NewNop(), "superpan_bot"), notifier
}

func jsonRequest(method, target, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

func asUser(c echo.Context, user *models.User) {
	c.Set(userContext, user)
}

var (
	admin  = &models.User{ID: 1, Email: "admin@superpan.ru", Role: models.RoleAdmin, IsActive: true}
	worker = &models.User{ID: 2, Email: "worker@superpan.ru", FirstName: "Иван", Role: models.RoleWorker, IsActive: true}
)

func TestMoveExpenseItemAdminDirect(t *testing.T) {
	moved := false
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10, Status: models.StatusNew}, nil
		},
		moveDirect: func(_ context.Context, itemID, columnID int64, position int, actorID int64) (*models.ExpenseItem, error) {
			moved = true
			assert.Equal(t, int64(1), actorID)
			return &models.ExpenseItem{ID: itemID, ColumnID: columnID, Position: position, Status: models.StatusDone}, nil
		},
	}
	h, notifier := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/move-expense/",
		`{"item_id": 5, "target_column_id": 7, "position": 2}`)
	c := e.NewContext(req, rec)
	asUser(c, admin)

	require.NoError(t, h.MoveExpenseItem(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, moved)
	assert.Empty(t, notifier.calls, "прямое перемещение не требует уведомлений")

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Nil(t, resp["requires_approval"])
}

func TestMoveExpenseItemWorkerCreatesRequest(t *testing.T) {
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10, Title: "Залить фундамент", Status: models.StatusNew}, nil
		},
		createStatusRequest: func(_ context.Context, itemID, columnID int64, position int, requesterID int64, reason string) (*models.StatusChangeRequest, error) {
			assert.Equal(t, int64(2), requesterID)
			assert.Equal(t, "готово", reason)
			return &models.StatusChangeRequest{
				ID: 100, ExpenseItemID: itemID,
				OldStatus: models.StatusNew, NewStatus: models.StatusDone,
				Status: models.RequestPending,
			}, nil
		},
		listProjectAdmins: func(_ context.Context, _ int64) ([]repository.AdminContact, error) {
			return []repository.AdminContact{{UserID: 1, FullName: "Админ", TelegramID: 42}}, nil
		},
	}
	h, notifier := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/move-expense/",
		`{"item_id": 5, "target_column_id": 7, "position": 2, "reason": "готово"}`)
	c := e.NewContext(req, rec)
	asUser(c, worker)

	require.NoError(t, h.MoveExpenseItem(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, true, resp["requires_approval"])

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "Залить фундамент: new -> done", notifier.calls[0])
}

func TestMoveExpenseItemAlreadyPending(t *testing.T) {
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10, Status: models.StatusNew}, nil
		},
		createStatusRequest: func(_ context.Context, _, _ int64, _ int, _ int64, _ string) (*models.StatusChangeRequest, error) {
			return nil, repository.ErrAlreadyExists
		},
	}
	h, notifier := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/move-expense/",
		`{"item_id": 5, "target_column_id": 7}`)
	c := e.NewContext(req, rec)
	asUser(c, worker)

	require.NoError(t, h.MoveExpenseItem(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, notifier.calls)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeConflict, resp.Error.Code)
}

func TestMoveExpenseItemNoAccess(t *testing.T) {
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10}, nil
		},
		isProjectMember: func(_ context.Context, _, _ int64) (bool, error) {
			return false, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/move-expense/",
		`{"item_id": 5, "target_column_id": 7}`)
	c := e.NewContext(req, rec)
	asUser(c, worker)

	require.NoError(t, h.MoveExpenseItem(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateExpenseAmountWritesHistoryActor(t *testing.T) {
	store := &fakeStore{
		updateExpenseAmount: func(_ context.Context, itemID int64, amount float64, actorID int64) (*models.ExpenseItem, error) {
			assert.Equal(t, int64(1), actorID)
			return &models.ExpenseItem{ID: itemID, Amount: amount}, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/update-expense/",
		`{"item_id": 5, "amount": 7500}`)
	c := e.NewContext(req, rec)
	asUser(c, admin)

	require.NoError(t, h.UpdateExpenseAmount(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7500.0, resp["amount"])
}

func TestUpdateExpenseAmountForbiddenForWorker(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/update-expense/",
		`{"item_id": 5, "amount": 100}`)
	c := e.NewContext(req, rec)
	asUser(c, worker)

	require.NoError(t, h.UpdateExpenseAmount(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveStatusChangeForbiddenForWorker(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/approve-status-change/5/", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, worker)

	require.NoError(t, h.ApproveStatusChange(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveStatusChangeNotFound(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/approve-status-change/5/", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, admin)

	require.NoError(t, h.ApproveStatusChange(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveStatusChangeSuccess(t *testing.T) {
	store := &fakeStore{
		approveStatusChange: func(_ context.Context, itemID, approverID int64) (*repository.ApprovalResult, error) {
			assert.Equal(t, int64(1), approverID)
			return &repository.ApprovalResult{
				Request: &models.StatusChangeRequest{
					ExpenseItemID: itemID,
					OldStatus:     models.StatusNew,
					NewStatus:     models.StatusDone,
					Status:        models.RequestApproved,
				},
				Item:        &models.ExpenseItem{ID: itemID, Title: "Залить фундамент", Status: models.StatusDone},
				ColumnMoved: true,
			}, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/approve-status-change/5/", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, admin)

	require.NoError(t, h.ApproveStatusChange(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Выполнена")
}

func TestRejectStatusChangeStoresReason(t *testing.T) {
	var gotReason string
	store := &fakeStore{
		rejectStatusChange: func(_ context.Context, itemID, approverID int64, reason string) (*models.StatusChangeRequest, error) {
			gotReason = reason
			return &models.StatusChangeRequest{
				ID: 100, ExpenseItemID: itemID,
				Status: models.RequestRejected, RejectionReason: reason,
			}, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/kanban/api/reject-status-change/5/",
		`{"reason": "не согласовано"}`)
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, admin)

	require.NoError(t, h.RejectStatusChange(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "не согласовано", gotReason)
}

func TestTelegramLoginTokenErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "invalid", err: repository.ErrNotFound, wantCode: ErrCodeValidation},
		{name: "expired", err: repository.ErrTokenExpired, wantCode: ErrCodeTokenExpired},
		{name: "used", err: repository.ErrTokenUsed, wantCode: ErrCodeTokenUsed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				consumeAuthToken: func(_ context.Context, _ uuid.UUID, _, _ *int64) (*models.TelegramAuthToken, error) {
					return nil, tt.err
				},
			}
			h, _ := newTestHandler(store)

			e := echo.New()
			req, rec := jsonRequest(http.MethodGet, "/accounts/telegram-login/?auth_token="+uuid.NewString(), "")
			c := e.NewContext(req, rec)

			require.NoError(t, h.TelegramLogin(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestTelegramLoginSuccess(t *testing.T) {
	userID := int64(2)
	tgID := int64(55)
	store := &fakeStore{
		consumeAuthToken: func(_ context.Context, token uuid.UUID, _, _ *int64) (*models.TelegramAuthToken, error) {
			return &models.TelegramAuthToken{
				Token: token, UserID: &userID, TelegramUserID: &tgID, IsUsed: true,
				ExpiresAt: time.Now().Add(time.Minute),
			}, nil
		},
		getUser: func(_ context.Context, id int64) (*models.User, error) {
			require.Equal(t, userID, id)
			return worker, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/accounts/telegram-login/?auth_token="+uuid.NewString(), "")
	c := e.NewContext(req, rec)

	require.NoError(t, h.TelegramLogin(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/projects/list/")

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookie, cookies[0].Name)
}

func TestTelegramLoginBadTokenFormat(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/accounts/telegram-login/?auth_token=not-a-uuid", "")
	c := e.NewContext(req, rec)

	require.NoError(t, h.TelegramLogin(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelegramLoginWidgetStoresPhotoURL(t *testing.T) {
	var saved models.TelegramUser
	store := &fakeStore{
		upsertTelegramUser: func(_ context.Context, tu models.TelegramUser) (*models.TelegramUser, error) {
			saved = tu
			tu.ID = 1
			return &tu, nil
		},
		getUserByTelegramID: func(_ context.Context, telegramID int64) (*models.User, error) {
			require.Equal(t, int64(55), telegramID)
			return worker, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/accounts/telegram-login/",
		`{"id": 55, "first_name": "Иван", "photo_url": "https://t.me/i/userpic/320/ivan.jpg"}`)
	c := e.NewContext(req, rec)

	require.NoError(t, h.TelegramLoginWidget(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(55), saved.TelegramID)
	assert.Equal(t, "https://t.me/i/userpic/320/ivan.jpg", saved.PhotoURL)
}

func TestExpenseItemHistoryMemberOnly(t *testing.T) {
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10}, nil
		},
		isProjectMember: func(_ context.Context, _, _ int64) (bool, error) {
			return false, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/kanban/api/expense-history/5/", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, worker)

	require.NoError(t, h.ExpenseItemHistory(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExpenseItemHistorySuccess(t *testing.T) {
	store := &fakeStore{
		getExpenseItem: func(_ context.Context, itemID int64) (*models.ExpenseItem, error) {
			return &models.ExpenseItem{ID: itemID, ProjectID: 10}, nil
		},
		listExpenseHistory: func(_ context.Context, itemID int64) ([]models.ExpenseHistory, error) {
			return []models.ExpenseHistory{
				{ExpenseItemID: itemID, Action: models.ActionMoved, FieldName: "column",
					OldValue: "Колонка: Новые", NewValue: "Колонка: В работе"},
			}, nil
		},
	}
	h, _ := newTestHandler(store)

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/kanban/api/expense-history/5/", "")
	c := e.NewContext(req, rec)
	c.SetParamNames("item_id")
	c.SetParamValues("5")
	asUser(c, worker)

	require.NoError(t, h.ExpenseItemHistory(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Колонка: В работе")
}

func TestPendingStatusChangesForbidden(t *testing.T) {
	h, _ := newTestHandler(&fakeStore{})

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/kanban/api/pending-status-changes/", "")
	c := e.NewContext(req, rec)
	asUser(c, worker)

	require.NoError(t, h.PendingStatusChanges(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
