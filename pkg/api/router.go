// Package api exposes the library models over a JSON REST API.
package api

import (
	"net/http"
	"time"

	"library-api/pkg/apierror"
	"library-api/pkg/auth"
	"library-api/pkg/circulation"
	"library-api/pkg/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Options struct {
	DB          *gorm.DB
	Tokens      *auth.Issuer
	Circulation *circulation.Service
	PageSize    int
	Debug       bool
	CORSOrigins []string
}

type Handler struct {
	db       *gorm.DB
	tokens   *auth.Issuer
	circ     *circulation.Service
	pageSize int
}

func NewHandler(opts Options) *Handler {
	circ := opts.Circulation
	if circ == nil {
		circ = circulation.NewService(opts.DB)
	}
	size := opts.PageSize
	if size < 1 {
		size = 10
	}
	return &Handler{db: opts.DB, tokens: opts.Tokens, circ: circ, pageSize: size}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(opts Options) *gin.Engine {
	registerValidators()
	h := NewHandler(opts)

	server := gin.New()
	server.HandleMethodNotAllowed = true
	server.Use(gin.Recovery(), RequestLogger())
	if mw := corsMiddleware(opts); mw != nil {
		server.Use(mw)
	}
	server.NoRoute(func(c *gin.Context) {
		respondError(c, apierror.NotFound())
	})
	server.NoMethod(func(c *gin.Context) {
		respondError(c, apierror.New(http.StatusMethodNotAllowed, "Method \""+c.Request.Method+"\" not allowed."))
	})

	server.GET("/manage/health", h.healthCheck)
	mountDocs(server)

	v1 := server.Group("/api/v1", auth.Authenticate(h.tokens, h.db))
	v1.GET("/", h.apiRoot)
	h.mountAuth(v1.Group("/auth"))

	crud(v1, "/authors", auth.ModelPermissions(models.ModelAuthor), resource{
		list: h.listAuthors, create: h.createAuthor, get: h.getAuthor, update: h.updateAuthor, remove: h.deleteAuthor,
	})
	crud(v1, "/categories", auth.ModelPermissions(models.ModelCategory), resource{
		list: h.listCategories, create: h.createCategory, get: h.getCategory, update: h.updateCategory, remove: h.deleteCategory,
	})
	crud(v1, "/books", auth.ModelPermissions(models.ModelBook, auth.AllowAnonymousRead()), resource{
		list: h.listBooks, create: h.createBook, get: h.getBook, update: h.updateBook, remove: h.deleteBook,
	})
	users := resource{
		list: h.listUsers, create: h.createUser, get: h.getUser, update: h.updateUser, remove: h.deleteUser,
	}
	crud(v1, "/users", auth.ModelPermissions(models.ModelUser), users)
	crud(v1, "/members", auth.ModelPermissions(models.ModelUser), users)

	h.mountBorrowRecords(v1.Group("/borrow-records"), nil, "id", h.listBorrowRecords, h.createBorrowRecord)
	h.mountBorrowRecords(v1.Group("/books/:id/borrow-records"), h.bookParent, "record_id", h.listBookBorrowRecords, h.borrowBook)
	h.mountBorrowRecords(v1.Group("/users/:id/borrow-records"), h.userParent, "record_id", h.listUserBorrowRecords, h.borrowForUser)
	h.mountBorrowRecords(v1.Group("/members/:id/borrow-records"), h.userParent, "record_id", h.listUserBorrowRecords, h.borrowForUser)

	return server
}

type resource struct {
	list, create, get, update, remove gin.HandlerFunc
}

func crud(g *gin.RouterGroup, path string, guard gin.HandlerFunc, r resource) {
	g.GET(path, guard, r.list)
	g.POST(path, guard, r.create)
	g.GET(path+"/:id", guard, r.get)
	g.PUT(path+"/:id", guard, r.update)
	g.PATCH(path+"/:id", guard, r.update)
	g.DELETE(path+"/:id", guard, r.remove)
}

func corsMiddleware(opts Options) gin.HandlerFunc {
	if len(opts.CORSOrigins) == 0 && !opts.Debug {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.CORSOrigins) > 0 {
		cfg.AllowOrigins = opts.CORSOrigins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return true }
	}
	return cors.New(cfg)
}

// apiRoot godoc
// @Summary      API root
// @Tags         root
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       / [get]
func (h *Handler) apiRoot(c *gin.Context) {
	base := absoluteBase(c.Request)
	c.JSON(http.StatusOK, gin.H{
		"authors":        base + "/api/v1/authors",
		"categories":     base + "/api/v1/categories",
		"books":          base + "/api/v1/books",
		"users":          base + "/api/v1/users",
		"members":        base + "/api/v1/members",
		"borrow-records": base + "/api/v1/borrow-records",
	})
}

func (h *Handler) healthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Host " + c.Request.Host + " is active",
	})
}
