package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"library-api/pkg/apierror"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const ctxUserKey = "auth.user"

// HeaderTypes are the accepted Authorization schemes.
var HeaderTypes = []string{"JWT", "Bearer"}

// Authenticate resolves the user behind an access token. Requests without
// an Authorization header pass through anonymously; a bad header is a 401.
func Authenticate(issuer *Issuer, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || token == "" || !acceptedScheme(scheme) {
			abort(c, apierror.Unauthorized("Authorization header must contain two space-delimited values"))
			return
		}

		claims, err := issuer.Parse(token, TokenAccess)
		if err != nil {
			abort(c, apierror.Unauthorized("Given token not valid for any token type"))
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			abort(c, apierror.Unauthorized("Token contained no recognizable user identification"))
			return
		}

		user, err := LoadUser(c.Request.Context(), db, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abort(c, apierror.Unauthorized("User not found"))
				return
			}
			_ = c.Error(err)
			abort(c, apierror.Internal())
			return
		}
		if !user.IsActive {
			abort(c, apierror.Unauthorized("User is inactive"))
			return
		}

		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// LoadUser fetches a user together with everything permission checks need.
func LoadUser(ctx context.Context, db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).
		Preload("Groups.Permissions").
		Preload("Permissions").
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// SetUser is used by handlers that authenticate inline.
func SetUser(c *gin.Context, user *models.User) {
	c.Set(ctxUserKey, user)
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			abort(c, apierror.NotAuthenticated())
			return
		}
		c.Next()
	}
}

func acceptedScheme(scheme string) bool {
	for _, t := range HeaderTypes {
		if strings.EqualFold(scheme, t) {
			return true
		}
	}
	return false
}

func abort(c *gin.Context, err *apierror.Error) {
	if err.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `JWT realm="api"`)
	}
	c.AbortWithStatusJSON(err.Status, err.Body())
}
