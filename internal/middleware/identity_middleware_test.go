package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"taskflow/internal/middleware"
	"taskflow/internal/model"
)

func setupIdentityRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	r.GET("/whoami", func(c *gin.Context) {
		id, ok := middleware.CallerID(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}
		role, _ := c.Get(middleware.UserRoleKey)
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "role": role})
	})
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r
}

func request(r *gin.Engine, path, userID, role string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestIdentity_MissingHeader(t *testing.T) {
	router := setupIdentityRouter()

	resp := request(router, "/whoami", "", "")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestIdentity_MalformedID(t *testing.T) {
	router := setupIdentityRouter()

	resp := request(router, "/whoami", "not-a-uuid", string(model.RoleUser))

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestIdentity_ValidCaller(t *testing.T) {
	router := setupIdentityRouter()
	id := uuid.New()

	resp := request(router, "/whoami", id.String(), string(model.RoleUser))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), id.String())
}

func TestIdentity_UnknownRoleDowngradedToUser(t *testing.T) {
	// Неизвестная роль не должна давать админских прав
	router := setupIdentityRouter()

	resp := request(router, "/admin/ping", uuid.New().String(), "SUPERUSER")

	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	router := setupIdentityRouter()

	resp := request(router, "/admin/ping", uuid.New().String(), string(model.RoleAdmin))

	assert.Equal(t, http.StatusOK, resp.Code)
}
