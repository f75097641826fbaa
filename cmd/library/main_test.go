package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Engine: config.EngineSQLite, SQLitePath: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func testConfig(debug bool) *config.Config {
	cfg := config.Default()
	cfg.Debug = debug
	cfg.Auth.Secret = "test-secret"
	return cfg
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := newRouter(testConfig(false), setupTestDB(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/manage/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "UP", response["status"])
}

func TestGetBooks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	category := models.Category{Name: "Fiction"}
	require.NoError(t, db.Create(&category).Error)
	require.NoError(t, db.Create(&models.Book{Title: "1984", ISBN: "9780451524935", CategoryID: category.ID, TotalCopies: 1, AvailableCopies: 1}).Error)
	router := newRouter(testConfig(false), db)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/books?title=198", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	items := response["results"].([]interface{})
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "1984", items[0].(map[string]interface{})["title"])
}

func TestCORSOnlyInDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)

	preflight := func(router http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/books", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "GET")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := preflight(newRouter(testConfig(true), db))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight(newRouter(testConfig(false), db))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(true)
	assert.True(t, logger.Enabled(context.Background(), -4))
	logger = setupLogger(false)
	assert.False(t, logger.Enabled(context.Background(), -4))
}

func TestMigrateLogsOnce(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Engine: config.EngineSQLite, SQLitePath: ":memory:"}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	require.NoError(t, migrate(context.Background(), db))
	assert.Equal(t, 1, strings.Count(buf.String(), "Database migrated"))
	assert.NotContains(t, buf.String(), "Database connected successfully")
	assert.True(t, db.Migrator().HasTable(&models.Book{}))
}
