package api

import (
	"net/http"
	"testing"

	"library-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookBody(title, isbn string, category uint, authors []string, total int) map[string]interface{} {
	return map[string]interface{}{
		"title":        title,
		"isbn":         isbn,
		"category":     category,
		"authors":      authors,
		"total_copies": total,
	}
}

func TestCreateBook(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	category := e.seedCategory("Science")
	author := e.seedAuthor("Carl Sagan")

	w := e.do(http.MethodPost, "/api/v1/books", token, bookBody("Cosmos", "9780345539434", category.ID, []string{author.ID.String()}, 3))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Cosmos", body["title"])
	assert.Equal(t, float64(3), body["available_copies"])
	assert.Equal(t, []interface{}{author.ID.String()}, body["authors"])

	w = e.do(http.MethodGet, "/api/v1/books/"+body["id"].(string), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9780345539434", decode(t, w)["isbn"])
}

func TestDuplicateISBNRejected(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	category := e.seedCategory("Fiction")

	w := e.do(http.MethodPost, "/api/v1/books", token, bookBody("Dune", "9780441172719", category.ID, []string{}, 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(http.MethodPost, "/api/v1/books", token, bookBody("Dune again", "9780441172719", category.ID, []string{}, 1))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{duplicateISBN}, body["isbn"])
}

func TestBookValidation(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	category := e.seedCategory("Fiction")

	req := bookBody("Dune", "9780441172719", category.ID, []string{}, 1)
	req["available_copies"] = 2
	w := e.do(http.MethodPost, "/api/v1/books", token, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "available_copies")

	w = e.do(http.MethodPost, "/api/v1/books", token, bookBody("Dune", "9780441172719", 999, []string{"5b0c8a0e-7a43-4c59-9a1f-0f6b7d1c2e3f"}, 1))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "category")
	assert.Contains(t, body, "authors")

	w = e.do(http.MethodPost, "/api/v1/books", token, bookBody("Dune", "12345", category.ID, []string{}, 1))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "isbn")

	w = e.do(http.MethodPost, "/api/v1/books", token, map[string]interface{}{"isbn": "9780441172719"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, []interface{}{"This field is required."}, body["title"])
	assert.Contains(t, body, "total_copies")
}

func TestBooksAllowAnonymousRead(t *testing.T) {
	e := newTestEnv(t)
	e.seedBook("Dune", "9780441172719", 1)

	w := e.do(http.MethodGet, "/api/v1/books", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = e.do(http.MethodPost, "/api/v1/books", "", bookBody("X", "9780306406157", 1, []string{}, 1))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPatchBookNeedsChangePermission(t *testing.T) {
	e := newTestEnv(t)
	book := e.seedBook("Dune", "9780441172719", 2)
	author := e.seedAuthor("Frank Herbert")
	require.NoError(t, e.db.Model(&book).Association("Authors").Append(&author))

	viewer, _ := e.userToken("viewer@example.com", "view_book")
	w := e.do(http.MethodPatch, "/api/v1/books/"+book.ID.String(), viewer, map[string]interface{}{"title": "Changed"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "You do not have permission to perform this action.", decode(t, w)["detail"])

	editor, _ := e.userToken("editor@example.com", "change_book")
	w = e.do(http.MethodPatch, "/api/v1/books/"+book.ID.String(), editor, map[string]interface{}{"title": "Dune Messiah"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Dune Messiah", body["title"])
	assert.Equal(t, "9780441172719", body["isbn"])
	assert.Equal(t, []interface{}{author.ID.String()}, body["authors"])
	assert.Equal(t, float64(2), body["available_copies"])
}

func TestPutBookReplacesAuthors(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	book := e.seedBook("Dune", "9780441172719", 2)
	old := e.seedAuthor("Old")
	require.NoError(t, e.db.Model(&book).Association("Authors").Append(&old))
	fresh := e.seedAuthor("Fresh")

	w := e.do(http.MethodPut, "/api/v1/books/"+book.ID.String(), token,
		bookBody("Dune", "9780441172719", book.CategoryID, []string{fresh.ID.String()}, 4))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, []interface{}{fresh.ID.String()}, body["authors"])
	assert.Equal(t, float64(4), body["total_copies"])

	var count int64
	require.NoError(t, e.db.Table("book_authors").Where("book_id = ?", book.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFilterBooksByAuthorAndCategory(t *testing.T) {
	e := newTestEnv(t)
	dune := e.seedBook("Dune", "9780441172719", 1)
	e.seedBook("Cosmos", "9780345539434", 1)
	herbert := e.seedAuthor("Frank Herbert")
	require.NoError(t, e.db.Model(&dune).Association("Authors").Append(&herbert))

	w := e.do(http.MethodGet, "/api/v1/books?author_id="+herbert.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := results(t, decode(t, w))
	require.Len(t, list, 1)
	assert.Equal(t, dune.ID.String(), list[0].(map[string]interface{})["id"])

	w = e.do(http.MethodGet, "/api/v1/books?category_id="+uintString(dune.CategoryID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = e.do(http.MethodGet, "/api/v1/books?author_id=nope", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "author_id")
}

func TestDeleteBookRemovesBorrowRecords(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	book := e.seedBook("Dune", "9780441172719", 1)
	_, member := e.memberToken("reader@example.com")
	require.NoError(t, e.db.Create(&models.BorrowRecord{BookID: book.ID, UserID: member.ID, BorrowDate: testNow, DueDate: testNow}).Error)

	w := e.do(http.MethodDelete, "/api/v1/books/"+book.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	require.NoError(t, e.db.Model(&models.BorrowRecord{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUpdateBookKeepsCopiesOnLoan(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	book := e.seedBook("Dune", "9780441172719", 2)
	memberToken, _ := e.memberToken("reader@example.com")

	w := e.do(http.MethodPost, "/api/v1/borrow-records", memberToken, borrowBody(book.ID, "2024-03-24"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Equal(t, 1, e.available(book.ID))

	path := "/api/v1/books/" + book.ID.String()
	w = e.do(http.MethodPut, path, token, bookBody("Dune (2nd ed.)", "9780441172719", book.CategoryID, []string{}, 2))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["available_copies"])
	assert.Equal(t, 1, e.available(book.ID))

	w = e.do(http.MethodPatch, path, token, map[string]interface{}{"total_copies": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(4), decode(t, w)["available_copies"])

	w = e.do(http.MethodPatch, path, token, map[string]interface{}{"available_copies": 5})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "available_copies")

	w = e.do(http.MethodPatch, path, token, map[string]interface{}{"total_copies": 0})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w), "total_copies")
	assert.Equal(t, 4, e.available(book.ID))
}

func TestUpdateBookAcceptsMatchingAvailability(t *testing.T) {
	e := newTestEnv(t)
	token := e.superToken()
	book := e.seedBook("Dune", "9780441172719", 3)

	req := bookBody("Dune", "9780441172719", book.CategoryID, []string{}, 3)
	req["available_copies"] = 3
	w := e.do(http.MethodPut, "/api/v1/books/"+book.ID.String(), token, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(3), decode(t, w)["available_copies"])
}
