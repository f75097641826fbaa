package api

import (
	"fmt"
	"net/http"

	"library-api/pkg/apierror"
	"library-api/pkg/circulation"
	"library-api/pkg/database"
	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const duplicateISBN = "book with this isbn already exists."

type bookRequest struct {
	Title           string   `json:"title" binding:"required,max=200"`
	ISBN            string   `json:"isbn" binding:"required,max=13,isbn"`
	Authors         []string `json:"authors" binding:"required,dive,uuid"`
	Category        uint     `json:"category" binding:"required"`
	TotalCopies     *int     `json:"total_copies" binding:"required,gte=0"`
	AvailableCopies *int     `json:"available_copies" binding:"omitempty,gte=0"`
}

// listBooks godoc
// @Summary      List books
// @Tags         books
// @Produce      json
// @Security     JWT
// @Param        title  query  string  false  "Case-insensitive part of the title"
// @Param        isbn  query  string  false  "Exact ISBN"
// @Param        category_id  query  int  false  "Category ID"
// @Param        author_id  query  string  false  "Author ID"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[bookResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string  "Invalid page"
// @Router       /books [get]
func (h *Handler) listBooks(c *gin.Context) {
	listPage(c, h, listQuery{
		base:     func() *gorm.DB { return h.db.WithContext(c.Request.Context()).Model(&models.Book{}) },
		filters:  filters.Books,
		order:    "books.created_at, books.id",
		preloads: []string{"Authors"},
	}, toBook)
}

func (h *Handler) findBook(c *gin.Context) (*models.Book, error) {
	id, err := uuidParam(c, "id")
	if err != nil {
		return nil, err
	}
	var book models.Book
	if err := h.db.WithContext(c.Request.Context()).Preload("Authors").First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// getBook godoc
// @Summary      Get a book
// @Tags         books
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Book ID"
// @Success      200  {object}  bookResponse
// @Failure      404  {object}  map[string]string
// @Router       /books/{id} [get]
func (h *Handler) getBook(c *gin.Context) {
	book, err := h.findBook(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBook(book))
}

// createBook godoc
// @Summary      Create a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  bookRequest  true  "Book"
// @Success      201  {object}  bookResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /books [post]
func (h *Handler) createBook(c *gin.Context) {
	var req bookRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	book := models.Book{}
	authors, err := h.applyBook(h.db.WithContext(c.Request.Context()), &book, &req, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		book.Authors = authors
		return tx.Omit("Authors.*").Create(&book).Error
	})
	if err != nil {
		respondError(c, uniqueISBN(err))
		return
	}
	c.JSON(http.StatusCreated, toBook(&book))
}

// updateBook godoc
// @Summary      Update a book
// @Description  available_copies always equals total_copies minus the open loans of the book.
// @Description  PATCH keeps the stored value of every field left out of the body.
// @Tags         books
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Book ID"
// @Param        payload  body  bookRequest  true  "Book"
// @Success      200  {object}  bookResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /books/{id} [put]
// @Router       /books/{id} [patch]
func (h *Handler) updateBook(c *gin.Context) {
	book, err := h.findBook(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req bookRequest
	if isPartial(c) {
		total := book.TotalCopies
		req = bookRequest{
			Title:       book.Title,
			ISBN:        book.ISBN,
			Category:    book.CategoryID,
			TotalCopies: &total,
		}
		for _, id := range book.AuthorIDs() {
			req.Authors = append(req.Authors, id.String())
		}
		if req.Authors == nil {
			req.Authors = []string{}
		}
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	var authors []models.Author
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var locked models.Book
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, "id = ?", book.ID).Error; err != nil {
			return err
		}
		open, err := circulation.OpenLoans(tx, book.ID)
		if err != nil {
			return err
		}
		if authors, err = h.applyBook(tx, book, &req, open); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(book).Error; err != nil {
			return err
		}
		return tx.Model(book).Association("Authors").Replace(authors)
	})
	if err != nil {
		respondError(c, uniqueISBN(err))
		return
	}
	book.Authors = authors
	c.JSON(http.StatusOK, toBook(book))
}

// deleteBook removes the book together with its borrow records.
// @Summary      Delete a book
// @Tags         books
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Book ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /books/{id} [delete]
func (h *Handler) deleteBook(c *gin.Context) {
	book, err := h.findBook(c)
	if err != nil {
		respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", book.ID).Delete(&models.BorrowRecord{}).Error; err != nil {
			return err
		}
		return tx.Select("Authors").Delete(book).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// applyBook validates req against the stored data and copies it onto book.
// open is the number of copies currently lent out; available_copies always
// equals total_copies minus open. It returns the resolved authors.
func (h *Handler) applyBook(db *gorm.DB, book *models.Book, req *bookRequest, open int) ([]models.Author, error) {
	errs := apierror.Fields{}

	total := *req.TotalCopies
	available := total - open
	if available < 0 {
		errs.Add("total_copies", fmt.Sprintf("Ensure this value is greater than or equal to the number of open loans (%d).", open))
	}
	if req.AvailableCopies != nil {
		switch {
		case *req.AvailableCopies > total:
			errs.Add("available_copies", "Ensure this value is less than or equal to total_copies.")
		case *req.AvailableCopies != available:
			errs.Add("available_copies", fmt.Sprintf("Ensure this value equals total_copies minus open loans (%d).", open))
		}
	}

	var dup int64
	if err := db.Model(&models.Book{}).Where("isbn = ? AND id <> ?", req.ISBN, book.ID).Count(&dup).Error; err != nil {
		return nil, err
	}
	if dup > 0 {
		errs.Add("isbn", duplicateISBN)
	}

	var categories int64
	if err := db.Model(&models.Category{}).Where("id = ?", req.Category).Count(&categories).Error; err != nil {
		return nil, err
	}
	if categories == 0 {
		errs.Add("category", invalidPK(req.Category))
	}

	ids := make([]uuid.UUID, 0, len(req.Authors))
	seen := map[uuid.UUID]bool{}
	for _, raw := range req.Authors {
		id := uuid.MustParse(raw)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	authors := []models.Author{}
	if len(ids) > 0 {
		if err := db.Where("id IN ?", ids).Find(&authors).Error; err != nil {
			return nil, err
		}
	}
	if len(authors) != len(ids) {
		found := map[uuid.UUID]bool{}
		for _, a := range authors {
			found[a.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				errs.Add("authors", invalidPK(id))
			}
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	book.Title = req.Title
	book.ISBN = req.ISBN
	book.CategoryID = req.Category
	book.TotalCopies = *req.TotalCopies
	book.AvailableCopies = available
	return authors, nil
}

func uniqueISBN(err error) error {
	if database.IsUniqueViolation(err) {
		return apierror.Field("isbn", duplicateISBN)
	}
	return err
}
