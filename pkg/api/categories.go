package api

import (
	"net/http"
	"strconv"

	"library-api/pkg/apierror"
	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const protectedCategory = "Cannot delete category because books still reference it."

type categoryRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

// listCategories godoc
// @Summary      List categories
// @Tags         categories
// @Produce      json
// @Security     JWT
// @Param        name  query  string  false  "Case-insensitive part of the name"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[categoryResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string  "Invalid page"
// @Router       /categories [get]
func (h *Handler) listCategories(c *gin.Context) {
	listPage(c, h, listQuery{
		base:    func() *gorm.DB { return h.db.WithContext(c.Request.Context()).Model(&models.Category{}) },
		filters: filters.Categories,
		order:   "categories.id",
	}, toCategory)
}

func (h *Handler) findCategory(c *gin.Context) (*models.Category, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return nil, apierror.NotFound()
	}
	var category models.Category
	if err := h.db.WithContext(c.Request.Context()).First(&category, id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

// createCategory godoc
// @Summary      Create a category
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  categoryRequest  true  "Category"
// @Success      201  {object}  categoryResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /categories [post]
func (h *Handler) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	category := models.Category{Name: req.Name, Description: req.Description}
	if err := h.db.WithContext(c.Request.Context()).Create(&category).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCategory(&category))
}

// getCategory godoc
// @Summary      Get a category
// @Tags         categories
// @Produce      json
// @Security     JWT
// @Param        id  path  int  true  "Category ID"
// @Success      200  {object}  categoryResponse
// @Failure      404  {object}  map[string]string
// @Router       /categories/{id} [get]
func (h *Handler) getCategory(c *gin.Context) {
	category, err := h.findCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategory(category))
}

// updateCategory godoc
// @Summary      Update a category
// @Description  PATCH keeps the stored value of every field left out of the body.
// @Tags         categories
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  int  true  "Category ID"
// @Param        payload  body  categoryRequest  true  "Category"
// @Success      200  {object}  categoryResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /categories/{id} [put]
// @Router       /categories/{id} [patch]
func (h *Handler) updateCategory(c *gin.Context) {
	category, err := h.findCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req categoryRequest
	if isPartial(c) {
		req = categoryRequest{Name: category.Name, Description: category.Description}
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	category.Name, category.Description = req.Name, req.Description
	if err := h.db.WithContext(c.Request.Context()).Model(category).Select("name", "description").Updates(category).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCategory(category))
}

// deleteCategory refuses while any book is filed under the category.
// @Summary      Delete a category
// @Tags         categories
// @Produce      json
// @Security     JWT
// @Param        id  path  int  true  "Category ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "Books still reference the category"
// @Router       /categories/{id} [delete]
func (h *Handler) deleteCategory(c *gin.Context) {
	category, err := h.findCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var books int64
		if err := tx.Model(&models.Book{}).Where("category_id = ?", category.ID).Count(&books).Error; err != nil {
			return err
		}
		if books > 0 {
			return apierror.Conflict(protectedCategory)
		}
		return tx.Delete(category).Error
	})
	if err != nil {
		respondError(c, conflictOnFK(err, protectedCategory))
		return
	}
	c.Status(http.StatusNoContent)
}
