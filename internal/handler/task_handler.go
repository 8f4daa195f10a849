package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskflow/internal/cache"
	"taskflow/internal/middleware"
	"taskflow/internal/model"
	"taskflow/internal/repository"
	"taskflow/internal/sync"
)

type TaskHandler struct {
	coordinator *sync.Coordinator
	taskRepo    repository.TaskRepositoryInterface
}

func NewTaskHandler(coordinator *sync.Coordinator, taskRepo repository.TaskRepositoryInterface) *TaskHandler {
	return &TaskHandler{
		coordinator: coordinator,
		taskRepo:    taskRepo,
	}
}

// TaskRequest представляет запрос на создание задачи
type TaskRequest struct {
	Name           string                `json:"name" binding:"required"`
	Description    string                `json:"description"`
	Status         *model.TaskStatus     `json:"status"`
	Priority       *model.TaskPriority   `json:"priority"`
	AssignedTo     *string               `json:"assigned_to" binding:"omitempty,uuid"`
	StartDate      *time.Time            `json:"start_date"`
	EndDate        *time.Time            `json:"end_date"`
	Tags           []string              `json:"tags"`
	EstimatedHours float64               `json:"estimated_hours" binding:"omitempty,min=0"`
	Checklist      []model.ChecklistItem `json:"checklist"`
}

// TaskUpdateRequest представляет запрос на частичное обновление задачи
type TaskUpdateRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Status         *model.TaskStatus      `json:"status"`
	Priority       *model.TaskPriority    `json:"priority"`
	AssignedTo     *string                `json:"assigned_to" binding:"omitempty,uuid"`
	Unassign       bool                   `json:"unassign"`
	StartDate      *time.Time             `json:"start_date"`
	EndDate        *time.Time             `json:"end_date"`
	Tags           *[]string              `json:"tags"`
	EstimatedHours *float64               `json:"estimated_hours" binding:"omitempty,min=0"`
	Checklist      *[]model.ChecklistItem `json:"checklist"`
}

// StatusRequest представляет запрос на смену статуса задачи
type StatusRequest struct {
	Status model.TaskStatus `json:"status" binding:"required"`
}

// BulkAssignRequest представляет запрос на массовое назначение задач
type BulkAssignRequest struct {
	Tasks   []TaskRequest `json:"tasks" binding:"required,min=1,dive"`
	UserIDs []string      `json:"user_ids" binding:"required,min=1,dive,uuid"`
}

// List обрабатывает чтение списка задач через кэш своего scope
// @Summary List tasks
// @Tags Tasks
// @Produce json
// @Success 200 {object} map[string]interface{}
func (h *TaskHandler) List(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		q := sync.ListQuery{
			Search:   c.Query("search"),
			Status:   model.TaskStatus(c.Query("status")),
			Priority: model.TaskPriority(c.Query("priority")),
		}
		q.Page = intQuery(c, "page", 1)
		q.Limit = intQuery(c, "limit", 10)
		if assignee := c.Query("assignee"); assignee != "" {
			id, err := uuid.Parse(assignee)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid assignee ID format"})
				return
			}
			q.Assignee = &id
		}
		// Пользовательский scope видит только собственные задачи
		if scope == cache.ScopeUser {
			q.Viewer = &userID
		}

		entry, err := h.coordinator.List(c.Request.Context(), scope, q)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"data":       entry.Tasks,
			"pagination": entry.Pagination,
			"stale":      entry.Stale,
		})
	}
}

// Create создает новую задачу; в пользовательском scope она назначается самому автору
func (h *TaskHandler) Create(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		var req TaskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}

		draft, err := draftFromRequest(&req, userID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		if scope == cache.ScopeUser {
			draft.AssignedTo = model.UUIDPtr(userID)
		}

		settlement := h.coordinator.Create(c.Request.Context(), scope, userID, *draft)
		task, err := settlement.Wait(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "data": task})
	}
}

// Update обновляет поля существующей задачи (только админский scope)
func (h *TaskHandler) Update(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		taskID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid task ID format"})
			return
		}

		var req TaskUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}

		patch, err := patchFromRequest(&req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		settlement := h.coordinator.Update(c.Request.Context(), scope, userID, taskID, *patch)
		task, err := settlement.Wait(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": task})
	}
}

// ChangeStatus меняет статус задачи; пользователь может менять только свои задачи
func (h *TaskHandler) ChangeStatus(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		taskID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid task ID format"})
			return
		}

		var req StatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}
		if !req.Status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unknown task status"})
			return
		}

		// Проверяем, что задача принадлежит пользователю
		if scope == cache.ScopeUser {
			task, err := h.taskRepo.GetByID(c.Request.Context(), taskID)
			if err != nil {
				if errors.Is(err, repository.ErrTaskNotFound) {
					c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Task not found"})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to retrieve task"})
				return
			}
			owned := task.CreatedBy == userID ||
				(task.AssignedTo != nil && *task.AssignedTo == userID)
			if !owned {
				c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "You can only update your own tasks"})
				return
			}
		}

		settlement := h.coordinator.ChangeStatus(c.Request.Context(), scope, userID, taskID, req.Status)
		task, err := settlement.Wait(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": task})
	}
}

// Delete удаляет задачу (только админский scope)
func (h *TaskHandler) Delete(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		taskID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid task ID format"})
			return
		}

		settlement := h.coordinator.Delete(c.Request.Context(), scope, userID, taskID)
		if _, err := settlement.Wait(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// BulkAssign распределяет шаблоны задач между выбранными пользователями
func (h *TaskHandler) BulkAssign(scope cache.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authenticated"})
			return
		}

		var req BulkAssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
			return
		}

		templates := make([]model.Task, 0, len(req.Tasks))
		for i := range req.Tasks {
			draft, err := draftFromRequest(&req.Tasks[i], userID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			templates = append(templates, *draft)
		}
		userIDs := make([]uuid.UUID, 0, len(req.UserIDs))
		for _, raw := range req.UserIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid user ID format"})
				return
			}
			userIDs = append(userIDs, id)
		}

		result, err := h.coordinator.BulkAssign(c.Request.Context(), scope, userID, templates, userIDs)
		if err != nil {
			respondError(c, err)
			return
		}

		response := gin.H{
			"success":           result.Err == nil,
			"assigned_per_user": result.PerUser,
			"created_count":     len(result.Created),
		}
		// Частичный сбой: успешно созданные задачи сохраняются
		if result.Err != nil {
			response["error"] = result.Err.Error()
			c.JSON(http.StatusMultiStatus, response)
			return
		}
		c.JSON(http.StatusCreated, response)
	}
}

func draftFromRequest(req *TaskRequest, creator uuid.UUID) (*model.Task, error) {
	draft := &model.Task{
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      creator,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Tags:           req.Tags,
		EstimatedHours: req.EstimatedHours,
		Checklist:      req.Checklist,
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, errNewUnknownStatus
		}
		draft.Status = *req.Status
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, errNewUnknownPriority
		}
		draft.Priority = *req.Priority
	}
	if req.AssignedTo != nil {
		id, err := uuid.Parse(*req.AssignedTo)
		if err != nil {
			return nil, errBadAssignee
		}
		draft.AssignedTo = &id
	}
	return draft, nil
}

func patchFromRequest(req *TaskUpdateRequest) (*model.TaskPatch, error) {
	patch := &model.TaskPatch{
		Name:           req.Name,
		Description:    req.Description,
		Unassign:       req.Unassign,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Tags:           req.Tags,
		EstimatedHours: req.EstimatedHours,
		Checklist:      req.Checklist,
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return nil, errNewUnknownStatus
		}
		patch.Status = req.Status
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, errNewUnknownPriority
		}
		patch.Priority = req.Priority
	}
	if req.AssignedTo != nil {
		id, err := uuid.Parse(*req.AssignedTo)
		if err != nil {
			return nil, errBadAssignee
		}
		patch.AssignedTo = &id
	}
	return patch, nil
}

var (
	errNewUnknownStatus   = errors.New("unknown task status")
	errNewUnknownPriority = errors.New("unknown task priority")
	errBadAssignee        = errors.New("invalid assignee ID format")
)

func intQuery(c *gin.Context, name string, defaultVal int) int {
	value, err := strconv.Atoi(c.Query(name))
	if err != nil || value < 1 {
		return defaultVal
	}
	return value
}

// respondError маппит классы ошибок синхронизации на HTTP статусы
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sync.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, sync.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
