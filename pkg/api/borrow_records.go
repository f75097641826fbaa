package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"library-api/pkg/apierror"
	"library-api/pkg/auth"
	"library-api/pkg/circulation"
	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ctxParentKey = "api.parent"

// parent is the book or user a nested borrow-record route is scoped to.
type parent struct {
	field string
	id    uuid.UUID
}

type borrowRecordRequest struct {
	Book       string     `json:"book" binding:"required,uuid"`
	User       string     `json:"user" binding:"omitempty,uuid"`
	BorrowDate *time.Time `json:"borrow_date"`
	DueDate    string     `json:"due_date" binding:"required,datetime=2006-01-02"`
	Status     string     `json:"status" binding:"omitempty,oneof=Active Returned Overdue"`
}

// bookLoanRequest is the body of a borrow under /books/{id}. The path names
// the book, so a "book" key in the body is ignored.
type bookLoanRequest struct {
	User       string     `json:"user" binding:"omitempty,uuid"`
	BorrowDate *time.Time `json:"borrow_date"`
	DueDate    string     `json:"due_date" binding:"required,datetime=2006-01-02"`
	Status     string     `json:"status" binding:"omitempty,oneof=Active Returned Overdue"`
}

type returnRequest struct {
	ReturnDate *time.Time `json:"return_date"`
}

type markOverdueRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

type markOverdueResponse struct {
	Updated int64  `json:"updated"`
	Date    string `json:"date" format:"date"`
}

// mountBorrowRecords registers the borrow-record routes on g. scope loads the
// parent of a nested group; list and create are the collection handlers.
func (h *Handler) mountBorrowRecords(g *gin.RouterGroup, scope gin.HandlerFunc, idParam string, list, create gin.HandlerFunc) {
	chain := func(guard gin.HandlerFunc, handler gin.HandlerFunc) []gin.HandlerFunc {
		out := []gin.HandlerFunc{guard}
		if scope != nil {
			out = append(out, scope)
		}
		return append(out, handler)
	}
	guard := auth.ModelPermissions(models.ModelBorrowRecord)
	change := auth.RequirePerm(models.Codename(models.ActionChange, models.ModelBorrowRecord))
	item := "/:" + idParam

	g.GET("", chain(guard, list)...)
	g.POST("", chain(guard, create)...)
	g.GET(item, chain(guard, h.getBorrowRecord)...)
	g.PUT(item, chain(guard, h.updateBorrowRecord)...)
	g.PATCH(item, chain(guard, h.updateBorrowRecord)...)
	g.DELETE(item, chain(guard, h.deleteBorrowRecord)...)
	g.POST(item+"/return", chain(change, h.returnBorrowRecord)...)
	if scope == nil {
		g.POST("/mark-overdue", change, h.markOverdue)
	}
}

func (h *Handler) bookParent(c *gin.Context) {
	h.loadParent(c, &models.Book{}, "book")
}

func (h *Handler) userParent(c *gin.Context) {
	h.loadParent(c, &models.User{}, "user")
}

func (h *Handler) loadParent(c *gin.Context, model interface{}, field string) {
	id, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	if count == 0 {
		respondError(c, apierror.NotFound())
		return
	}
	c.Set(ctxParentKey, &parent{field: field, id: id})
	c.Next()
}

func parentOf(c *gin.Context) *parent {
	v, ok := c.Get(ctxParentKey)
	if !ok {
		return nil
	}
	p, _ := v.(*parent)
	return p
}

// recordScope narrows borrow-record queries to the route's parent, if any.
func recordScope(c *gin.Context) func(*gorm.DB) *gorm.DB {
	p := parentOf(c)
	return func(db *gorm.DB) *gorm.DB {
		if p == nil {
			return db
		}
		return db.Where("borrow_records."+p.field+"_id = ?", p.id)
	}
}

func recordID(c *gin.Context) (uuid.UUID, error) {
	if c.Param("record_id") != "" {
		return uuidParam(c, "record_id")
	}
	return uuidParam(c, "id")
}

// listBorrowRecords godoc
// @Summary      List borrow records
// @Tags         borrow-records
// @Produce      json
// @Security     JWT
// @Param        status  query  string  false  "Active, Returned or Overdue"
// @Param        user_id  query  string  false  "User ID"
// @Param        book_id  query  string  false  "Book ID"
// @Param        due_date_after  query  string  false  "Earliest due date, YYYY-MM-DD"
// @Param        due_date_before  query  string  false  "Latest due date, YYYY-MM-DD"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[borrowRecordResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string  "Invalid page"
// @Router       /borrow-records [get]
func (h *Handler) listBorrowRecords(c *gin.Context) {
	listPage(c, h, listQuery{
		base: func() *gorm.DB {
			return h.db.WithContext(c.Request.Context()).Model(&models.BorrowRecord{}).Scopes(recordScope(c))
		},
		filters: filters.BorrowRecords,
		order:   "borrow_records.created_at, borrow_records.id",
	}, toBorrowRecord)
}

func (h *Handler) findBorrowRecord(c *gin.Context) (*models.BorrowRecord, error) {
	id, err := recordID(c)
	if err != nil {
		return nil, err
	}
	var rec models.BorrowRecord
	err = h.db.WithContext(c.Request.Context()).
		Scopes(recordScope(c)).
		Where("borrow_records.id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// getBorrowRecord godoc
// @Summary      Get a borrow record
// @Tags         borrow-records
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Borrow record ID"
// @Success      200  {object}  borrowRecordResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /borrow-records/{id} [get]
func (h *Handler) getBorrowRecord(c *gin.Context) {
	rec, err := h.findBorrowRecord(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBorrowRecord(rec))
}

// createBorrowRecord lends a copy of the book. The parent of a nested route
// wins over the body; user defaults to the caller.
// @Summary      Borrow a book
// @Description  Takes one copy of the book. user defaults to the caller.
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  borrowRecordRequest  true  "Loan"
// @Success      201  {object}  borrowRecordResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "No available copies"
// @Router       /borrow-records [post]
func (h *Handler) createBorrowRecord(c *gin.Context) {
	var req borrowRecordRequest
	p := parentOf(c)
	if p != nil && p.field == "book" {
		var loan bookLoanRequest
		if err := bindJSON(c, &loan); err != nil {
			respondError(c, err)
			return
		}
		req = borrowRecordRequest{
			Book:       p.id.String(),
			User:       loan.User,
			BorrowDate: loan.BorrowDate,
			DueDate:    loan.DueDate,
			Status:     loan.Status,
		}
	} else if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	rec := &models.BorrowRecord{BookID: uuid.MustParse(req.Book)}
	switch {
	case p != nil && p.field == "user":
		rec.UserID = p.id
	case req.User != "":
		rec.UserID = uuid.MustParse(req.User)
	default:
		rec.UserID = auth.CurrentUser(c).ID
	}
	if req.Status != "" && models.BorrowStatus(req.Status) != models.StatusActive {
		respondError(c, apierror.Field("status", "New borrow records are always Active."))
		return
	}
	if req.BorrowDate != nil {
		rec.BorrowDate = *req.BorrowDate
	}
	rec.DueDate = mustDate(req.DueDate)

	if err := h.circ.Borrow(c.Request.Context(), rec); err != nil {
		respondError(c, circulationError(err, rec))
		return
	}
	c.JSON(http.StatusCreated, toBorrowRecord(rec))
}

// listBookBorrowRecords godoc
// @Summary      List the borrow records of a book
// @Tags         borrow-records
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Book ID"
// @Param        status  query  string  false  "Active, Returned or Overdue"
// @Param        user_id  query  string  false  "User ID"
// @Param        book_id  query  string  false  "Book ID"
// @Param        due_date_after  query  string  false  "Earliest due date, YYYY-MM-DD"
// @Param        due_date_before  query  string  false  "Latest due date, YYYY-MM-DD"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[borrowRecordResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string
// @Router       /books/{id}/borrow-records [get]
func (h *Handler) listBookBorrowRecords(c *gin.Context) {
	h.listBorrowRecords(c)
}

// borrowBook godoc
// @Summary      Borrow this book
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Book ID"
// @Param        payload  body  bookLoanRequest  true  "Loan"
// @Success      201  {object}  borrowRecordResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "No available copies"
// @Failure      404  {object}  map[string]string
// @Router       /books/{id}/borrow-records [post]
func (h *Handler) borrowBook(c *gin.Context) {
	h.createBorrowRecord(c)
}

// listUserBorrowRecords godoc
// @Summary      List the borrow records of a user
// @Tags         borrow-records
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "User ID"
// @Param        status  query  string  false  "Active, Returned or Overdue"
// @Param        user_id  query  string  false  "User ID"
// @Param        book_id  query  string  false  "Book ID"
// @Param        due_date_after  query  string  false  "Earliest due date, YYYY-MM-DD"
// @Param        due_date_before  query  string  false  "Latest due date, YYYY-MM-DD"
// @Param        page  query  int  false  "Page number, or last"
// @Success      200  {object}  pagination.Page[borrowRecordResponse]
// @Failure      400  {object}  map[string][]string
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/borrow-records [get]
// @Router       /members/{id}/borrow-records [get]
func (h *Handler) listUserBorrowRecords(c *gin.Context) {
	h.listBorrowRecords(c)
}

// borrowForUser godoc
// @Summary      Borrow a book for this user
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "User ID"
// @Param        payload  body  borrowRecordRequest  true  "Loan"
// @Success      201  {object}  borrowRecordResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "No available copies"
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/borrow-records [post]
// @Router       /members/{id}/borrow-records [post]
func (h *Handler) borrowForUser(c *gin.Context) {
	h.createBorrowRecord(c)
}

// updateBorrowRecord only reschedules a loan. Book and user are fixed, and
// status moves through return and the overdue sweep.
// @Summary      Reschedule a borrow record
// @Description  Book, user and status cannot change here.
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Borrow record ID"
// @Param        payload  body  borrowRecordRequest  true  "Loan"
// @Success      200  {object}  borrowRecordResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /borrow-records/{id} [put]
// @Router       /borrow-records/{id} [patch]
func (h *Handler) updateBorrowRecord(c *gin.Context) {
	rec, err := h.findBorrowRecord(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req borrowRecordRequest
	if isPartial(c) {
		borrowed := rec.BorrowDate
		req = borrowRecordRequest{
			Book:       rec.BookID.String(),
			User:       rec.UserID.String(),
			BorrowDate: &borrowed,
			DueDate:    rec.DueDate.Format(filters.DateLayout),
			Status:     string(rec.Status),
		}
	} else if p := parentOf(c); p != nil && p.field == "book" {
		req.Book = p.id.String()
	}
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	errs := apierror.Fields{}
	if uuid.MustParse(req.Book) != rec.BookID {
		errs.Add("book", "This field cannot be changed.")
	}
	if req.User != "" && uuid.MustParse(req.User) != rec.UserID {
		errs.Add("user", "This field cannot be changed.")
	}
	if req.Status != "" && models.BorrowStatus(req.Status) != rec.Status {
		errs.Add("status", "Status changes through the return endpoint or the overdue sweep.")
	}
	if req.BorrowDate != nil {
		rec.BorrowDate = req.BorrowDate.UTC()
	}
	rec.DueDate = mustDate(req.DueDate)
	if rec.DueDate.Before(circulation.Day(rec.BorrowDate)) {
		errs.Add("due_date", "Due date cannot be before the borrow date.")
	}
	if err := errs.Err(); err != nil {
		respondError(c, err)
		return
	}

	if rec.Status == models.StatusOverdue && !rec.DueDate.Before(circulation.Day(h.circ.Now())) {
		rec.Status = models.StatusActive
	}
	err = h.db.WithContext(c.Request.Context()).Model(rec).
		Select("borrow_date", "due_date", "status").
		Updates(rec).Error
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBorrowRecord(rec))
}

// deleteBorrowRecord removes the record and gives back a copy it still held.
// @Summary      Delete a borrow record
// @Tags         borrow-records
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Borrow record ID"
// @Success      204
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /borrow-records/{id} [delete]
func (h *Handler) deleteBorrowRecord(c *gin.Context) {
	id, err := recordID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var rec models.BorrowRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(recordScope(c)).
			Where("borrow_records.id = ?", id).
			First(&rec).Error
		if err != nil {
			return err
		}
		if err := circulation.Release(tx, &rec); err != nil {
			return err
		}
		return tx.Delete(&rec).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// returnBorrowRecord godoc
// @Summary      Return a borrowed copy
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        id  path  string  true  "Borrow record ID"
// @Param        payload  body  returnRequest  false  "Return date, defaults to now"
// @Success      200  {object}  borrowRecordResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "Already returned"
// @Router       /borrow-records/{id}/return [post]
func (h *Handler) returnBorrowRecord(c *gin.Context) {
	id, err := recordID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apierror.FromBinding(err))
		return
	}
	rec, err := h.circ.Return(c.Request.Context(), id, recordScope(c), req.ReturnDate)
	if err != nil {
		respondError(c, circulationError(err, nil))
		return
	}
	c.JSON(http.StatusOK, toBorrowRecord(rec))
}

// markOverdue godoc
// @Summary      Flag overdue loans
// @Description  Marks every Active record due before the given day, today by default, as Overdue.
// @Tags         borrow-records
// @Accept       json
// @Produce      json
// @Security     JWT
// @Param        payload  body  markOverdueRequest  false  "Day to check against"
// @Success      200  {object}  markOverdueResponse
// @Failure      400  {object}  map[string][]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /borrow-records/mark-overdue [post]
func (h *Handler) markOverdue(c *gin.Context) {
	var req markOverdueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apierror.FromBinding(err))
		return
	}
	asOf := h.circ.Now()
	if req.Date != "" {
		asOf = mustDate(req.Date)
	}
	n, err := h.circ.MarkOverdue(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, markOverdueResponse{Updated: n, Date: circulation.Day(asOf).Format(filters.DateLayout)})
}

// mustDate parses a date the binding layer has already validated.
func mustDate(s string) time.Time {
	t, err := time.Parse(filters.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func circulationError(err error, rec *models.BorrowRecord) error {
	switch {
	case errors.Is(err, circulation.ErrNoCopies):
		return apierror.Conflict("No available copies.")
	case errors.Is(err, circulation.ErrAlreadyReturned):
		return apierror.Conflict("Borrow record is already returned.")
	case errors.Is(err, circulation.ErrBookNotFound) && rec != nil:
		return apierror.Field("book", invalidPK(rec.BookID))
	case errors.Is(err, circulation.ErrUserNotFound) && rec != nil:
		return apierror.Field("user", invalidPK(rec.UserID))
	case errors.Is(err, circulation.ErrDueBeforeBorrow):
		return apierror.Field("due_date", "Due date cannot be before the borrow date.")
	case errors.Is(err, circulation.ErrReturnTooEarly):
		return apierror.Field("return_date", "Return date cannot be before the borrow date.")
	}
	return err
}
