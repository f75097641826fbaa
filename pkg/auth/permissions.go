package auth

import (
	"net/http"

	"library-api/pkg/apierror"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
)

// HasPerm reports whether an active user holds codename directly or through
// one of their groups. Superusers hold every permission.
func HasPerm(u *models.User, codename string) bool {
	if u == nil || !u.IsActive {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p.Codename == codename {
			return true
		}
	}
	for _, g := range u.Groups {
		for _, p := range g.Permissions {
			if p.Codename == codename {
				return true
			}
		}
	}
	return false
}

func ActionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return models.ActionAdd
	case http.MethodPut, http.MethodPatch:
		return models.ActionChange
	case http.MethodDelete:
		return models.ActionDelete
	}
	return models.ActionView
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

type PermissionOption func(*permissionPolicy)

type permissionPolicy struct {
	anonymousRead bool
}

// AllowAnonymousRead lets unauthenticated clients use safe methods.
func AllowAnonymousRead() PermissionOption {
	return func(p *permissionPolicy) { p.anonymousRead = true }
}

// ModelPermissions maps the request method to add/change/delete/view on
// model and requires the current user to hold it.
func ModelPermissions(model string, opts ...PermissionOption) gin.HandlerFunc {
	var policy permissionPolicy
	for _, o := range opts {
		o(&policy)
	}
	return func(c *gin.Context) {
		if policy.anonymousRead && isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		check(c, models.Codename(ActionForMethod(c.Request.Method), model))
	}
}

// RequirePerm requires one fixed permission regardless of method.
func RequirePerm(codename string) gin.HandlerFunc {
	return func(c *gin.Context) {
		check(c, codename)
	}
}

func check(c *gin.Context, codename string) {
	user := CurrentUser(c)
	if user == nil {
		abort(c, apierror.NotAuthenticated())
		return
	}
	if !HasPerm(user, codename) {
		abort(c, apierror.Forbidden())
		return
	}
	c.Next()
}
