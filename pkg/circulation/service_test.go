package circulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"library-api/pkg/config"
	"library-api/pkg/database"
	"library-api/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Engine: config.EngineSQLite, SQLitePath: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

type fixture struct {
	db   *gorm.DB
	svc  *Service
	book models.Book
	user models.User
	now  time.Time
}

func newFixture(t *testing.T, copies int) *fixture {
	db := setupTestDB(t)
	category := models.Category{Name: "Fiction"}
	require.NoError(t, db.Create(&category).Error)
	book := models.Book{Title: "Dune", ISBN: "9780441172719", CategoryID: category.ID, TotalCopies: copies, AvailableCopies: copies}
	require.NoError(t, db.Create(&book).Error)
	user := models.User{Email: "reader@example.com", Password: "x", IsActive: true}
	require.NoError(t, db.Create(&user).Error)

	now := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)
	return &fixture{db: db, svc: NewServiceWithClock(db, fixedClock{now}), book: book, user: user, now: now}
}

func (f *fixture) available(t *testing.T) int {
	var b models.Book
	require.NoError(t, f.db.First(&b, "id = ?", f.book.ID).Error)
	return b.AvailableCopies
}

func (f *fixture) borrow(t *testing.T, due time.Time) *models.BorrowRecord {
	rec := &models.BorrowRecord{BookID: f.book.ID, UserID: f.user.ID, DueDate: due}
	require.NoError(t, f.svc.Borrow(context.Background(), rec))
	return rec
}

func TestBorrowTakesACopy(t *testing.T) {
	f := newFixture(t, 2)
	rec := f.borrow(t, f.now.AddDate(0, 0, 14))

	assert.Equal(t, models.StatusActive, rec.Status)
	assert.Equal(t, f.now, rec.BorrowDate)
	assert.Equal(t, time.Date(2024, 3, 24, 0, 0, 0, 0, time.UTC), rec.DueDate)
	assert.Equal(t, 1, f.available(t))
}

func TestBorrowWithoutCopiesFails(t *testing.T) {
	f := newFixture(t, 1)
	f.borrow(t, f.now.AddDate(0, 0, 7))

	err := f.svc.Borrow(context.Background(), &models.BorrowRecord{BookID: f.book.ID, UserID: f.user.ID, DueDate: f.now.AddDate(0, 0, 7)})
	assert.ErrorIs(t, err, ErrNoCopies)
	assert.Equal(t, 0, f.available(t))

	var count int64
	require.NoError(t, f.db.Model(&models.BorrowRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBorrowValidatesReferences(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.svc.Borrow(ctx, &models.BorrowRecord{BookID: uuid.New(), UserID: f.user.ID, DueDate: f.now})
	assert.ErrorIs(t, err, ErrBookNotFound)

	err = f.svc.Borrow(ctx, &models.BorrowRecord{BookID: f.book.ID, UserID: uuid.New(), DueDate: f.now})
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = f.svc.Borrow(ctx, &models.BorrowRecord{BookID: f.book.ID, UserID: f.user.ID, DueDate: f.now.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, ErrDueBeforeBorrow)
	assert.Equal(t, 1, f.available(t))
}

func TestReturnGivesCopyBack(t *testing.T) {
	f := newFixture(t, 1)
	rec := f.borrow(t, f.now.AddDate(0, 0, 7))
	require.Equal(t, 0, f.available(t))

	returned, err := f.svc.Return(context.Background(), rec.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, f.now, *returned.ReturnDate)
	assert.Equal(t, 1, f.available(t))

	_, err = f.svc.Return(context.Background(), rec.ID, nil, nil)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
	assert.Equal(t, 1, f.available(t))
}

func TestReturnRespectsScope(t *testing.T) {
	f := newFixture(t, 1)
	rec := f.borrow(t, f.now.AddDate(0, 0, 7))

	otherBook := func(db *gorm.DB) *gorm.DB { return db.Where("book_id = ?", uuid.New()) }
	_, err := f.svc.Return(context.Background(), rec.ID, otherBook, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	early := f.now.Add(-time.Hour)
	_, err = f.svc.Return(context.Background(), rec.ID, nil, &early)
	assert.ErrorIs(t, err, ErrReturnTooEarly)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t, 3)
	late := f.borrow(t, f.now)
	onTime := f.borrow(t, f.now.AddDate(0, 0, 3))
	done := f.borrow(t, f.now)
	_, err := f.svc.Return(context.Background(), done.ID, nil, nil)
	require.NoError(t, err)

	n, err := f.svc.MarkOverdue(context.Background(), f.now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	statusOf := func(id uuid.UUID) models.BorrowStatus {
		var rec models.BorrowRecord
		require.NoError(t, f.db.First(&rec, "id = ?", id).Error)
		return rec.Status
	}
	assert.Equal(t, models.StatusOverdue, statusOf(late.ID))
	assert.Equal(t, models.StatusActive, statusOf(onTime.ID))
	assert.Equal(t, models.StatusReturned, statusOf(done.ID))

	// an overdue loan can still be returned
	_, err = f.svc.Return(context.Background(), late.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.available(t))
}

func TestConcurrentBorrowsNeverOversubscribe(t *testing.T) {
	f := newFixture(t, 3)
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.Borrow(context.Background(), &models.BorrowRecord{BookID: f.book.ID, UserID: f.user.ID, DueDate: f.now})
		}()
	}
	wg.Wait()
	close(errs)

	ok, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrNoCopies):
			conflicts++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 7, conflicts)
	assert.Equal(t, 0, f.available(t))
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 5, 6, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), Day(in))
}
