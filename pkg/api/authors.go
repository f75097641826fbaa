package api

import (
	"net/http"

	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type authorRequest struct {
	Name string `json:"name" binding:"required,max=200"`
	Bio  string `json:"bio"`
}

// listAuthors godoc
// @Summary      List authors
// @Tags         authors
// @Produce      json
// @Security     JWT
// @Param        name  query  string  false  "Case-insensitive part of the name"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[authorResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string  "Invalid page"
// @Router       /authors [get]
func (h *Handler) listAuthors(c *gin.Context) {
	listPage(c, h, listQuery{
		base:    func() *gorm.DB { return h.db.WithContext(c.Request.Context()).Model(&models.Author{}) },
		filters: filters.Authors,
		order:   "authors.created_at, authors.id",
	}, toAuthor)
}

func (h *Handler) findAuthor(c *gin.Context) (*models.Author, error) {
	id, err := uuidParam(c, "id")
	if err != nil {
		return nil, err
	}
	var author models.Author
	if err := h.db.WithContext(c.Request.Context()).First(&author, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &author, nil
}

// createAuthor godoc
// @Summary      Create an author
// @Tags         authors
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  authorRequest  true  "Author"
// @Success      201  {object}  authorResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /authors [post]
func (h *Handler) createAuthor(c *gin.Context) {
	var req authorRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	author := models.Author{Name: req.Name, Bio: req.Bio}
	if err := h.db.WithContext(c.Request.Context()).Create(&author).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuthor(&author))
}

// getAuthor godoc
// @Summary      Get an author
// @Tags         authors
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Author ID"
// @Success      200  {object}  authorResponse
// @Failure      404  {object}  map[string]string
// @Router       /authors/{id} [get]
func (h *Handler) getAuthor(c *gin.Context) {
	author, err := h.findAuthor(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthor(author))
}

// updateAuthor godoc
// @Summary      Update an author
// @Description  PATCH keeps the stored value of every field left out of the body.
// @Tags         authors
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Author ID"
// @Param        payload  body  authorRequest  true  "Author"
// @Success      200  {object}  authorResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /authors/{id} [put]
// @Router       /authors/{id} [patch]
func (h *Handler) updateAuthor(c *gin.Context) {
	author, err := h.findAuthor(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req authorRequest
	if isPartial(c) {
		req = authorRequest{Name: author.Name, Bio: author.Bio}
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	author.Name, author.Bio = req.Name, req.Bio
	if err := h.db.WithContext(c.Request.Context()).Model(author).Select("name", "bio").Updates(author).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuthor(author))
}

// deleteAuthor drops the author from every book it wrote; the books stay.
// @Summary      Delete an author
// @Tags         authors
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Author ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /authors/{id} [delete]
func (h *Handler) deleteAuthor(c *gin.Context) {
	author, err := h.findAuthor(c)
	if err != nil {
		respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM book_authors WHERE author_id = ?", author.ID).Error; err != nil {
			return err
		}
		return tx.Delete(author).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
