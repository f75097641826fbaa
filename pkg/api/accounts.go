package api

import (
	"net/http"
	"time"

	"library-api/pkg/apierror"
	"library-api/pkg/auth"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
)

const noActiveAccount = "No active account found with the given credentials"

type registerRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Password    string `json:"password" binding:"required,max=128"`
	FirstName   string `json:"first_name" binding:"max=150"`
	LastName    string `json:"last_name" binding:"max=150"`
	PhoneNumber string `json:"phone_number" binding:"max=32"`
}

type tokenObtainRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type tokenVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) mountAuth(g *gin.RouterGroup) {
	g.POST("/users", h.register)
	g.GET("/users/me", auth.RequireAuth(), h.me)
	g.PUT("/users/me", auth.RequireAuth(), h.updateMe)
	g.PATCH("/users/me", auth.RequireAuth(), h.updateMe)
	g.POST("/jwt/create", h.createToken)
	g.POST("/jwt/refresh", h.refreshToken)
	g.POST("/jwt/verify", h.verifyToken)
}

// register godoc
// @Summary      Register
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  registerRequest  true  "Account"
// @Success      201  {object}  userResponse
// @Failure      400  {object}  map[string][]string
// @Router       /auth/users [post]
func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	user := &models.User{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		IsActive:    true,
	}
	if err := h.createAccount(c.Request.Context(), user, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUser(user))
}

// me godoc
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     JWT
// @Success      200  {object}  userResponse
// @Failure      401  {object}  map[string]string
// @Router       /auth/users/me [get]
func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, toUser(auth.CurrentUser(c)))
}

// updateMe godoc
// @Summary      Update the current user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  userUpdateRequest  true  "Profile"
// @Success      200  {object}  userResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/users/me [put]
// @Router       /auth/users/me [patch]
func (h *Handler) updateMe(c *gin.Context) {
	user := auth.CurrentUser(c)
	if err := h.applyUserUpdate(c, user, false); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUser(user))
}

// createToken godoc
// @Summary      Obtain a token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  tokenObtainRequest  true  "Credentials"
// @Success      200  {object}  auth.TokenPair
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/jwt/create [post]
func (h *Handler) createToken(c *gin.Context) {
	var req tokenObtainRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	var user models.User
	err := h.db.WithContext(ctx).Where("email = ?", auth.NormalizeEmail(req.Email)).Limit(1).Find(&user).Error
	if err != nil {
		respondError(c, err)
		return
	}
	if user.Email == "" || !user.IsActive || !auth.CheckPassword(user.Password, req.Password) {
		respondError(c, apierror.Unauthorized(noActiveAccount))
		return
	}

	pair, err := h.tokens.Issue(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	now := time.Now().UTC()
	if err := h.db.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// refreshToken godoc
// @Summary      Refresh the access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  tokenRefreshRequest  true  "Refresh token"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/jwt/refresh [post]
func (h *Handler) refreshToken(c *gin.Context) {
	var req tokenRefreshRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	access, err := h.tokens.Refresh(req.Refresh)
	if err != nil {
		respondError(c, apierror.Unauthorized("Token is invalid or expired"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

// verifyToken godoc
// @Summary      Verify a token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  tokenVerifyRequest  true  "Token"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/jwt/verify [post]
func (h *Handler) verifyToken(c *gin.Context) {
	var req tokenVerifyRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.tokens.Parse(req.Token, ""); err != nil {
		respondError(c, apierror.Unauthorized("Token is invalid or expired"))
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
