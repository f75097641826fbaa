package api

import (
	"net/http"
	"strings"
	"testing"

	"library-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndObtainTokens(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{
		"email": "Reader@Example.com", "password": "correct-horse", "first_name": "Ada",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "reader@example.com", body["email"])
	assert.Equal(t, []interface{}{models.MemberGroup}, body["groups"])
	assert.NotContains(t, body, "password")

	w = e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{"email": "reader@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{duplicateEmail}, decode(t, w)["email"])

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/create", "", map[string]string{"email": "reader@example.com", "password": "wrong-horse"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, noActiveAccount, decode(t, w)["detail"])

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/create", "", map[string]string{"email": "READER@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := decode(t, w)
	access, refresh := pair["access"].(string), pair["refresh"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	var user models.User
	require.NoError(t, e.db.Where("email = ?", "reader@example.com").First(&user).Error)
	assert.NotNil(t, user.LastLogin)

	w = e.do(http.MethodGet, "/api/v1/auth/users/me", access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decode(t, w)["first_name"])

	w = e.do(http.MethodGet, "/api/v1/auth/users/me", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh": refresh})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["access"])

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/refresh", "", map[string]string{"refresh": access})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/verify", "", map[string]string{"token": access})
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(http.MethodPost, "/api/v1/auth/jwt/verify", "", map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{"email": "reader@example.com", "password": "12345"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	problems := decode(t, w)["password"].([]interface{})
	assert.Contains(t, problems, "This password is entirely numeric.")

	w = e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{"email": "not-an-email", "password": "correct-horse"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"Enter a valid email address."}, decode(t, w)["email"])
}

func TestRegisterRejectsPasswordLongerThanBcryptLimit(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{
		"email": "reader@example.com", "password": strings.Repeat("horse", 16),
	})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	problems := decode(t, w)["password"].([]interface{})
	assert.Contains(t, problems, "This password is too long. It must contain at most 72 bytes.")

	var count int64
	require.NoError(t, e.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/v1/auth/users", "", map[string]string{"email": "gone@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, e.db.Model(&models.User{}).Where("email = ?", "gone@example.com").Update("is_active", false).Error)

	w = e.do(http.MethodPost, "/api/v1/auth/jwt/create", "", map[string]string{"email": "gone@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMeIgnoresIsActive(t *testing.T) {
	e := newTestEnv(t)
	token, user := e.memberToken("reader@example.com")

	w := e.do(http.MethodPatch, "/api/v1/auth/users/me", token, map[string]interface{}{"last_name": "Lovelace", "is_active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Lovelace", body["last_name"])
	assert.Equal(t, true, body["is_active"])

	var stored models.User
	require.NoError(t, e.db.First(&stored, "id = ?", user.ID).Error)
	assert.True(t, stored.IsActive)
	assert.Equal(t, "Lovelace", stored.LastName)
}

func TestMembersAliasManagesUsers(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()

	w := e.do(http.MethodPost, "/api/v1/members", token, map[string]string{"email": "new@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"].(string)

	w = e.do(http.MethodGet, "/api/v1/users/"+id, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new@example.com", decode(t, w)["email"])

	w = e.do(http.MethodPatch, "/api/v1/members/"+id, token, map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = e.do(http.MethodPatch, "/api/v1/members/"+id, token, map[string]interface{}{"email": "root@example.com"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "email")

	w = e.do(http.MethodGet, "/api/v1/users?email=NEW@", token, nil)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = e.do(http.MethodDelete, "/api/v1/members/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/v1/users/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUserReturnsHeldCopies(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	book := e.seedBook("Dune", "9780441172719", 1)
	memberToken, member := e.memberToken("reader@example.com")

	w := e.do(http.MethodPost, "/api/v1/borrow-records", memberToken, borrowBody(book.ID, "2024-03-24"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, 0, e.available(book.ID))

	w = e.do(http.MethodDelete, "/api/v1/users/"+member.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, e.available(book.ID))
}
