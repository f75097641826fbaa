package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"library-api/pkg/auth"
	"library-api/pkg/circulation"
	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Engine: config.EngineSQLite, SQLitePath: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	tokens *auth.Issuer
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)
	db := setupTestDB(t)
	require.NoError(t, auth.SeedGroups(context.Background(), db))
	tokens := auth.NewIssuer("test-secret", time.Hour, 24*time.Hour)
	router := NewRouter(Options{
		DB:          db,
		Tokens:      tokens,
		Circulation: circulation.NewServiceWithClock(db, fixedClock{testNow}),
		PageSize:    3,
	})
	return &testEnv{t: t, db: db, tokens: tokens, router: router}
}

// userToken creates an active user holding codenames and returns its access token.
func (e *testEnv) userToken(email string, codenames ...string) (string, *models.User) {
	e.t.Helper()
	user := &models.User{Email: email, Password: "x", IsActive: true}
	require.NoError(e.t, e.db.Create(user).Error)
	require.NoError(e.t, e.db.Exec("DELETE FROM user_groups WHERE user_id = ?", user.ID).Error)
	if len(codenames) > 0 {
		require.NoError(e.t, auth.GrantPermissions(context.Background(), e.db, user, codenames...))
	}
	return e.token(user), user
}

func (e *testEnv) memberToken(email string) (string, *models.User) {
	e.t.Helper()
	user := &models.User{Email: email, Password: "x", IsActive: true}
	require.NoError(e.t, e.db.Create(user).Error)
	return e.token(user), user
}

func (e *testEnv) superToken() string {
	e.t.Helper()
	user := &models.User{Email: "root@example.com", Password: "x", IsActive: true, IsSuperuser: true}
	require.NoError(e.t, e.db.Create(user).Error)
	return e.token(user)
}

func (e *testEnv) token(user *models.User) string {
	pair, err := e.tokens.Issue(user.ID)
	require.NoError(e.t, err)
	return pair.Access
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "JWT "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) seedCategory(name string) models.Category {
	e.t.Helper()
	category := models.Category{Name: name}
	require.NoError(e.t, e.db.Create(&category).Error)
	return category
}

func (e *testEnv) seedAuthor(name string) models.Author {
	e.t.Helper()
	author := models.Author{Name: name}
	require.NoError(e.t, e.db.Create(&author).Error)
	return author
}

func (e *testEnv) seedBook(title, isbn string, copies int) models.Book {
	e.t.Helper()
	category := e.seedCategory("Category for " + title)
	book := models.Book{Title: title, ISBN: isbn, CategoryID: category.ID, TotalCopies: copies, AvailableCopies: copies}
	require.NoError(e.t, e.db.Create(&book).Error)
	return book
}

func (e *testEnv) available(id uuid.UUID) int {
	e.t.Helper()
	var book models.Book
	require.NoError(e.t, e.db.First(&book, "id = ?", id).Error)
	return book.AvailableCopies
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func results(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()
	list, ok := body["results"].([]interface{})
	require.True(t, ok, "results missing in %v", body)
	return list
}

func TestHealthCheck(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/manage/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", decode(t, w)["status"])
}

func TestAPIRoot(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/api/v1/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "http://example.com/api/v1/books", body["books"])
	assert.Equal(t, "http://example.com/api/v1/borrow-records", body["borrow-records"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/api/v1/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decode(t, w)["detail"])

	w = e.do(http.MethodPatch, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/manage/health", "", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/manage/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestSwaggerDocIsServed(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "2.0", body["swagger"])
	paths := body["paths"].(map[string]interface{})
	for _, path := range []string{"/books", "/books/{id}", "/books/{id}/borrow-records", "/members/{id}", "/borrow-records/mark-overdue", "/auth/jwt/create"} {
		assert.Contains(t, paths, path)
	}
	assert.Contains(t, paths["/books/{id}"], "patch")
	assert.Contains(t, body["definitions"], "pagination.Page-api_bookResponse")

	w = e.do(http.MethodGet, "/redoc/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/swagger/doc.json")
}

func TestInvalidPathIDIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	for _, path := range []string{"/api/v1/authors/not-a-uuid", "/api/v1/categories/abc", fmt.Sprintf("/api/v1/books/%s", uuid.New())} {
		w := e.do(http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}
