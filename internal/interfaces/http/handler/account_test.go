package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appacct "github.com/estatehq/backend/internal/application/accounting"
	"github.com/estatehq/backend/internal/infrastructure/persistence"
	"github.com/estatehq/backend/internal/interfaces/http/dto"
	"github.com/estatehq/backend/internal/interfaces/http/middleware"
	"github.com/estatehq/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(gormDB))

	db := persistence.NewDatabaseFromGorm(gormDB)
	engine := gin.New()
	router.NewRouter(engine).
		Register(NewAccountHandler(appacct.NewAccountService(db, zap.NewNop()))).
		Setup()
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var resp dto.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestAccountHandler(t *testing.T) {
	engine := newTestServer(t)

	createBody := `{"code":"1000","name":"Cash","type":"ASSET"}`
	rec, resp := doJSON(t, engine, http.MethodPost, "/api/v1/accounts", createBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, resp.Success)

	created := resp.Data.(map[string]any)
	accountID := created["id"].(string)
	assert.Equal(t, "1000", created["code"])

	t.Run("duplicate code conflicts", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodPost, "/api/v1/accounts", createBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)
	})

	t.Run("missing fields rejected before the service runs", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodPost, "/api/v1/accounts", `{"code":"1100"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dto.ErrCodeInvalidRequest, resp.Error.Code)
	})

	t.Run("get by id", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/accounts/"+accountID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Cash", resp.Data.(map[string]any)["name"])
	})

	t.Run("malformed id is a bad request", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/accounts/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dto.ErrCodeInvalidRequest, resp.Error.Code)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/accounts/00000000-0000-0000-0000-000000000001", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("list filters by type", func(t *testing.T) {
		_, _ = doJSON(t, engine, http.MethodPost, "/api/v1/accounts", `{"code":"2000","name":"Payables","type":"LIABILITY"}`)

		rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/accounts?type=ASSET", "")
		require.Equal(t, http.StatusOK, rec.Code)
		rows := resp.Data.([]any)
		require.Len(t, rows, 1)
		assert.Equal(t, "1000", rows[0].(map[string]any)["code"])
	})

	t.Run("update then delete", func(t *testing.T) {
		rec, resp := doJSON(t, engine, http.MethodPut, "/api/v1/accounts/"+accountID, `{"name":"Cash on Hand"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Cash on Hand", resp.Data.(map[string]any)["name"])

		rec, _ = doJSON(t, engine, http.MethodDelete, "/api/v1/accounts/"+accountID, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec, _ = doJSON(t, engine, http.MethodGet, "/api/v1/accounts/"+accountID, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAccountHandler_Balance(t *testing.T) {
	engine := newTestServer(t)

	_, resp := doJSON(t, engine, http.MethodPost, "/api/v1/accounts", `{"code":"1000","name":"Cash","type":"ASSET"}`)
	accountID := resp.Data.(map[string]any)["id"].(string)

	rec, resp := doJSON(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/balance", accountID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", resp.Data.(map[string]any)["balance"])

	t.Run("bad as_of is rejected", func(t *testing.T) {
		rec, _ := doJSON(t, engine, http.MethodGet, fmt.Sprintf("/api/v1/accounts/%s/balance?as_of=yesterday", accountID), "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
