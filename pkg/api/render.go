package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"library-api/pkg/apierror"
	"library-api/pkg/database"
	"library-api/pkg/filters"
	"library-api/pkg/pagination"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var validatorsOnce sync.Once

// registerValidators makes validation errors use json field names.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func respondError(c *gin.Context, err error) {
	if apiErr, ok := apierror.As(err); ok {
		c.AbortWithStatusJSON(apiErr.Status, apiErr.Body())
		return
	}
	if database.IsNotFound(err) {
		c.AbortWithStatusJSON(http.StatusNotFound, apierror.NotFound().Body())
		return
	}
	slog.ErrorContext(c.Request.Context(), "request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"req_id", requestID(c),
		"error", err,
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.Internal().Body())
}

func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apierror.FromBinding(err)
	}
	return nil
}

// isPartial reports whether absent fields keep their stored values.
func isPartial(c *gin.Context) bool {
	return c.Request.Method == http.MethodPatch
}

// uuidParam parses a path id. Malformed ids cannot match a row, so they 404.
func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apierror.NotFound()
	}
	return id, nil
}

func invalidPK(value interface{}) string {
	return fmt.Sprintf("Invalid pk \"%v\" - object does not exist.", value)
}

func absoluteBase(r *http.Request) string {
	u := pagination.AbsoluteURL(r)
	return u.Scheme + "://" + u.Host
}

// listQuery describes one paginated collection. base must return a fresh
// query each call, since count and fetch run separately.
type listQuery struct {
	base     func() *gorm.DB
	filters  filters.FilterSet
	order    string
	preloads []string
}

func listPage[M any, R any](c *gin.Context, h *Handler, q listQuery, render func(*M) R) {
	values := c.Request.URL.Query()
	scopes, err := q.filters.Scopes(values)
	if err != nil {
		respondError(c, err)
		return
	}
	req, err := pagination.Parse(values, h.pageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	var count int64
	if err := q.base().Scopes(scopes...).Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	if req, err = req.Resolve(count); err != nil {
		respondError(c, err)
		return
	}

	var rows []M
	find := q.base().Scopes(scopes...)
	for _, p := range q.preloads {
		find = find.Preload(p)
	}
	if err := find.Order(q.order).Offset(req.Offset()).Limit(req.Size).Find(&rows).Error; err != nil {
		respondError(c, err)
		return
	}

	results := make([]R, len(rows))
	for i := range rows {
		results[i] = render(&rows[i])
	}
	c.JSON(http.StatusOK, pagination.New(pagination.AbsoluteURL(c.Request), req, count, results))
}

// conflictOnFK maps a foreign key violation to 409 and passes other errors on.
func conflictOnFK(err error, detail string) error {
	if err != nil && database.IsForeignKeyViolation(err) {
		return apierror.Conflict(detail)
	}
	return err
}
