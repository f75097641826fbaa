package api

import (
	"context"
	"errors"
	"net/http"

	"library-api/pkg/apierror"
	"library-api/pkg/auth"
	"library-api/pkg/circulation"
	"library-api/pkg/database"
	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const duplicateEmail = "user with this email already exists."

type userCreateRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,max=128"`
	FirstName   string `json:"first_name" binding:"max=150"`
	LastName    string `json:"last_name" binding:"max=150"`
	PhoneNumber string `json:"phone_number" binding:"max=32"`
	IsActive    *bool  `json:"is_active"`
}

type userUpdateRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	FirstName   string `json:"first_name" binding:"max=150"`
	LastName    string `json:"last_name" binding:"max=150"`
	PhoneNumber string `json:"phone_number" binding:"max=32"`
	IsActive    *bool  `json:"is_active"`
}

// listUsers godoc
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     JWT
// @Param        email  query  string  false  "Case-insensitive part of the email"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[userResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string  "Invalid page"
// @Router       /users [get]
// @Router       /members [get]
func (h *Handler) listUsers(c *gin.Context) {
	listPage(c, h, listQuery{
		base:     func() *gorm.DB { return h.db.WithContext(c.Request.Context()).Model(&models.User{}) },
		filters:  filters.Users,
		order:    "users.date_joined, users.id",
		preloads: []string{"Groups"},
	}, toUser)
}

func (h *Handler) findUser(c *gin.Context) (*models.User, error) {
	id, err := uuidParam(c, "id")
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := h.db.WithContext(c.Request.Context()).Preload("Groups").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// createUser godoc
// @Summary      Create an user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  userCreateRequest  true  "User"
// @Success      201  {object}  userResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /users [post]
// @Router       /members [post]
func (h *Handler) createUser(c *gin.Context) {
	var req userCreateRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	user := &models.User{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
	if err := h.createAccount(c.Request.Context(), user, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUser(user))
}

// getUser godoc
// @Summary      Get an user
// @Tags         users
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  userResponse
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [get]
// @Router       /members/{id} [get]
func (h *Handler) getUser(c *gin.Context) {
	user, err := h.findUser(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUser(user))
}

// updateUser godoc
// @Summary      Update an user
// @Description  PATCH keeps the stored value of every field left out of the body.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "User ID"
// @Param        payload  body  userUpdateRequest  true  "User"
// @Success      200  {object}  userResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [put]
// @Router       /users/{id} [patch]
// @Router       /members/{id} [put]
// @Router       /members/{id} [patch]
func (h *Handler) updateUser(c *gin.Context) {
	user, err := h.findUser(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.applyUserUpdate(c, user, true); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUser(user))
}

// deleteUser removes the account and its borrow records, returning any
// copies the user still held.
// @Summary      Delete an user
// @Tags         users
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "User ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id} [delete]
// @Router       /members/{id} [delete]
func (h *Handler) deleteUser(c *gin.Context) {
	user, err := h.findUser(c)
	if err != nil {
		respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var records []models.BorrowRecord
		if err := tx.Where("user_id = ?", user.ID).Find(&records).Error; err != nil {
			return err
		}
		for i := range records {
			if err := circulation.Release(tx, &records[i]); err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.BorrowRecord{}).Error; err != nil {
			return err
		}
		return tx.Select(clause.Associations).Delete(user).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// createAccount validates the password, hashes it and stores user.
func (h *Handler) createAccount(ctx context.Context, user *models.User, password string) error {
	user.Email = auth.NormalizeEmail(user.Email)
	errs := apierror.Fields{}
	for _, msg := range auth.ValidatePassword(password, user.Email) {
		errs.Add("password", msg)
	}
	taken, err := h.emailTaken(ctx, user.Email, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		errs.Add("email", duplicateEmail)
	}
	if err := errs.Err(); err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apierror.Field("password", "This password is too long. It must contain at most 72 bytes.")
	}
	if err != nil {
		return err
	}
	user.Password = hash
	if err := h.db.WithContext(ctx).Create(user).Error; err != nil {
		return uniqueEmail(err)
	}
	return h.db.WithContext(ctx).Model(user).Association("Groups").Find(&user.Groups)
}

// applyUserUpdate binds a PUT or PATCH body onto user and saves it.
// is_active is only writable when manage is set.
func (h *Handler) applyUserUpdate(c *gin.Context, user *models.User, manage bool) error {
	var req userUpdateRequest
	if isPartial(c) {
		active := user.IsActive
		req = userUpdateRequest{
			Email:       user.Email,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			PhoneNumber: user.PhoneNumber,
			IsActive:    &active,
		}
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ctx := c.Request.Context()
	email := auth.NormalizeEmail(req.Email)
	taken, err := h.emailTaken(ctx, email, user.ID)
	if err != nil {
		return err
	}
	if taken {
		return apierror.Field("email", duplicateEmail)
	}

	user.Email = email
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.PhoneNumber = req.PhoneNumber
	columns := []string{"email", "first_name", "last_name", "phone_number"}
	if manage && req.IsActive != nil {
		user.IsActive = *req.IsActive
		columns = append(columns, "is_active")
	}
	err = h.db.WithContext(ctx).Model(user).Select(columns).Omit(clause.Associations).Updates(user).Error
	return uniqueEmail(err)
}

func (h *Handler) emailTaken(ctx context.Context, email string, except uuid.UUID) (bool, error) {
	var count int64
	err := h.db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", email, except).Count(&count).Error
	return count > 0, err
}

func uniqueEmail(err error) error {
	if err != nil && database.IsUniqueViolation(err) {
		return apierror.Field("email", duplicateEmail)
	}
	return err
}
