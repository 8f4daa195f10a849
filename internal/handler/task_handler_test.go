package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"taskflow/internal/cache"
	"taskflow/internal/events"
	"taskflow/internal/handler"
	"taskflow/internal/middleware"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/sync"
)

// Мок сервисного слоя
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) List(ctx context.Context, q sync.ListQuery) ([]model.Task, model.Pagination, error) {
	args := m.Called(ctx, q)
	var tasks []model.Task
	if v := args.Get(0); v != nil {
		tasks = v.([]model.Task)
	}
	return tasks, args.Get(1).(model.Pagination), args.Error(2)
}

func (m *MockTaskService) Create(ctx context.Context, draft *model.Task) (*model.Task, error) {
	args := m.Called(ctx, draft)
	if v := args.Get(0); v != nil {
		return v.(*model.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) Update(ctx context.Context, id uuid.UUID, patch model.TaskPatch) (*model.Task, error) {
	args := m.Called(ctx, id, patch)
	if v := args.Get(0); v != nil {
		return v.(*model.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) ChangeStatus(ctx context.Context, id uuid.UUID, status model.TaskStatus) (*model.Task, error) {
	args := m.Called(ctx, id, status)
	if v := args.Get(0); v != nil {
		return v.(*model.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskService) BulkAssign(ctx context.Context, templates []model.Task, userIDs []uuid.UUID) (*sync.BulkResult, error) {
	args := m.Called(ctx, templates, userIDs)
	if v := args.Get(0); v != nil {
		return v.(*sync.BulkResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// Мок репозитория задач (нужен только проверке владения задачей)
type MockTaskRepo struct {
	mock.Mock
}

func (m *MockTaskRepo) Create(ctx context.Context, task *model.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*model.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTaskRepo) List(ctx context.Context, filter repository.TaskFilter) ([]model.Task, int64, error) {
	args := m.Called(ctx, filter)
	var tasks []model.Task
	if v := args.Get(0); v != nil {
		tasks = v.([]model.Task)
	}
	return tasks, args.Get(1).(int64), args.Error(2)
}

func (m *MockTaskRepo) Save(ctx context.Context, task *model.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRepo) ListExpiring(ctx context.Context, filter repository.DeadlineFilter) ([]model.Task, error) {
	args := m.Called(ctx, filter)
	var tasks []model.Task
	if v := args.Get(0); v != nil {
		tasks = v.([]model.Task)
	}
	return tasks, args.Error(1)
}

func setupRouter(t *testing.T) (*gin.Engine, *MockTaskService, *MockTaskRepo) {
	gin.SetMode(gin.TestMode)
	svc := new(MockTaskService)
	taskRepo := new(MockTaskRepo)

	store := cache.NewStore(time.Minute)
	bus := events.NewBus()
	coordinator := sync.NewCoordinator(store, svc, bus, sync.NewDebouncer(time.Hour))
	t.Cleanup(coordinator.Close)

	taskHandler := handler.NewTaskHandler(coordinator, taskRepo)

	r := gin.New()
	authorized := r.Group("/")
	authorized.Use(middleware.Identity())
	{
		authorized.GET("/tasks", taskHandler.List(cache.ScopeUser))
		authorized.POST("/tasks", taskHandler.Create(cache.ScopeUser))
		authorized.POST("/tasks/:id/status", taskHandler.ChangeStatus(cache.ScopeUser))

		admin := authorized.Group("/admin")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/tasks", taskHandler.List(cache.ScopeAdmin))
			admin.POST("/tasks/bulk-assign", taskHandler.BulkAssign(cache.ScopeAdmin))
			admin.DELETE("/tasks/:id", taskHandler.Delete(cache.ScopeAdmin))
		}
	}
	return r, svc, taskRepo
}

func doRequest(r *gin.Engine, method, path string, body interface{}, userID uuid.UUID, role model.UserRole) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		buf = bytes.NewBuffer(raw)
	} else {
		buf = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
		req.Header.Set("X-User-Role", string(role))
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListTasks_Success(t *testing.T) {
	// Arrange
	router, svc, _ := setupRouter(t)
	userID := uuid.New()
	task := model.Task{ID: uuid.New(), Name: "Visible", Status: model.StatusTodo, CreatedBy: userID}
	svc.On("List", mock.Anything, mock.MatchedBy(func(q sync.ListQuery) bool {
		// Пользовательский scope всегда ограничен собственными задачами
		return q.Viewer != nil && *q.Viewer == userID
	})).Return([]model.Task{task}, model.Pagination{Page: 1, Limit: 10, Total: 1, TotalPages: 1}, nil)

	// Act
	resp := doRequest(router, "GET", "/tasks", nil, userID, model.RoleUser)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Success    bool             `json:"success"`
		Data       []model.Task     `json:"data"`
		Pagination model.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, task.ID, body.Data[0].ID)
	assert.Equal(t, int64(1), body.Pagination.Total)
}

func TestListTasks_MissingIdentity(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := doRequest(router, "GET", "/tasks", nil, uuid.Nil, "")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateTask_Success(t *testing.T) {
	// Arrange
	router, svc, _ := setupRouter(t)
	userID := uuid.New()
	confirmed := model.Task{
		ID:        uuid.New(),
		Name:      "My task",
		Status:    model.StatusTodo,
		Priority:  model.PriorityMedium,
		CreatedBy: userID,
	}
	svc.On("Create", mock.Anything, mock.MatchedBy(func(draft *model.Task) bool {
		// В пользовательском scope задача назначается самому автору
		return draft.AssignedTo != nil && *draft.AssignedTo == userID && draft.CreatedBy == userID
	})).Return(&confirmed, nil)

	// Act
	resp := doRequest(router, "POST", "/tasks", handler.TaskRequest{Name: "My task"}, userID, model.RoleUser)

	// Assert
	assert.Equal(t, http.StatusCreated, resp.Code)
	var body struct {
		Success bool       `json:"success"`
		Data    model.Task `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, confirmed.ID, body.Data.ID)
}

func TestCreateTask_MissingName(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := doRequest(router, "POST", "/tasks", map[string]string{"description": "no name"}, uuid.New(), model.RoleUser)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChangeStatus_OwnershipEnforced(t *testing.T) {
	// Arrange: задача принадлежит другому пользователю
	router, _, taskRepo := setupRouter(t)
	caller := uuid.New()
	stranger := uuid.New()
	task := &model.Task{ID: uuid.New(), Name: "Not yours", CreatedBy: stranger}
	taskRepo.On("GetByID", mock.Anything, task.ID).Return(task, nil)

	// Act
	resp := doRequest(router, "POST", "/tasks/"+task.ID.String()+"/status",
		handler.StatusRequest{Status: model.StatusInProgress}, caller, model.RoleUser)

	// Assert
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestChangeStatus_UnknownStatusRejected(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := doRequest(router, "POST", "/tasks/"+uuid.New().String()+"/status",
		map[string]string{"status": "NOT_A_STATUS"}, uuid.New(), model.RoleUser)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChangeStatus_AssigneeAllowed(t *testing.T) {
	// Arrange: вызывающий — исполнитель задачи
	router, svc, taskRepo := setupRouter(t)
	caller := uuid.New()
	task := &model.Task{ID: uuid.New(), Name: "Mine to move", CreatedBy: uuid.New(), AssignedTo: &caller}
	taskRepo.On("GetByID", mock.Anything, task.ID).Return(task, nil)

	confirmed := task.Clone()
	confirmed.Status = model.StatusInProgress
	svc.On("ChangeStatus", mock.Anything, task.ID, model.StatusInProgress).Return(&confirmed, nil)

	// Act
	resp := doRequest(router, "POST", "/tasks/"+task.ID.String()+"/status",
		handler.StatusRequest{Status: model.StatusInProgress}, caller, model.RoleUser)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminRoutes_RequireAdminRole(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp := doRequest(router, "GET", "/admin/tasks", nil, uuid.New(), model.RoleUser)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestDeleteTask_AdminSuccess(t *testing.T) {
	router, svc, _ := setupRouter(t)
	admin := uuid.New()
	taskID := uuid.New()
	svc.On("Delete", mock.Anything, taskID).Return(nil)

	resp := doRequest(router, "DELETE", "/admin/tasks/"+taskID.String(), nil, admin, model.RoleAdmin)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestBulkAssign_Success(t *testing.T) {
	// Arrange
	router, svc, _ := setupRouter(t)
	admin := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	result := &sync.BulkResult{
		Created: []model.Task{{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()}},
		PerUser: []sync.BulkUserCount{{UserID: userA, Count: 2}, {UserID: userB, Count: 1}},
	}
	svc.On("BulkAssign", mock.Anything, mock.Anything, mock.Anything).Return(result, nil)

	body := handler.BulkAssignRequest{
		Tasks: []handler.TaskRequest{
			{Name: "t1"}, {Name: "t2"}, {Name: "t3"},
		},
		UserIDs: []string{userA.String(), userB.String()},
	}

	// Act
	resp := doRequest(router, "POST", "/admin/tasks/bulk-assign", body, admin, model.RoleAdmin)

	// Assert
	assert.Equal(t, http.StatusCreated, resp.Code)
	var response struct {
		Success      bool                 `json:"success"`
		PerUser      []sync.BulkUserCount `json:"assigned_per_user"`
		CreatedCount int                  `json:"created_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, 3, response.CreatedCount)
	require.Len(t, response.PerUser, 2)
	assert.Equal(t, 2, response.PerUser[0].Count)
}
