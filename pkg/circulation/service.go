// Package circulation keeps borrow record status and book availability in
// step: borrowing takes a copy, returning gives it back, and overdue loans
// are flagged once their due date has passed.
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"library-api/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNoCopies        = errors.New("no available copies")
	ErrAlreadyReturned = errors.New("borrow record already returned")
	ErrBookNotFound    = errors.New("book not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrDueBeforeBorrow = errors.New("due date is before borrow date")
	ErrReturnTooEarly  = errors.New("return date is before borrow date")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

type Service struct {
	db    *gorm.DB
	clock Clock
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, clock: realClock{}}
}

func NewServiceWithClock(db *gorm.DB, clock Clock) *Service {
	return &Service{db: db, clock: clock}
}

// Borrow stores a new Active record and takes one copy of its book.
func (s *Service) Borrow(ctx context.Context, rec *models.BorrowRecord) error {
	if rec.BorrowDate.IsZero() {
		rec.BorrowDate = s.clock.Now()
	}
	rec.BorrowDate = rec.BorrowDate.UTC()
	rec.DueDate = Day(rec.DueDate)
	rec.Status = models.StatusActive
	rec.ReturnDate = nil
	if rec.DueDate.Before(Day(rec.BorrowDate)) {
		return ErrDueBeforeBorrow
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &models.User{}, rec.UserID, ErrUserNotFound); err != nil {
			return err
		}
		if err := takeCopy(tx, rec.BookID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(rec).Error
	})
}

// Return closes an outstanding record and gives its copy back. scope narrows
// the lookup, e.g. to a parent book; at defaults to now.
func (s *Service) Return(ctx context.Context, id uuid.UUID, scope func(*gorm.DB) *gorm.DB, at *time.Time) (*models.BorrowRecord, error) {
	var rec models.BorrowRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if scope != nil {
			q = q.Scopes(scope)
		}
		if err := q.Where("borrow_records.id = ?", id).First(&rec).Error; err != nil {
			return err
		}
		if !rec.Status.Outstanding() {
			return ErrAlreadyReturned
		}

		returned := s.clock.Now()
		if at != nil {
			returned = at.UTC()
		}
		if returned.Before(rec.BorrowDate) {
			return ErrReturnTooEarly
		}

		if err := giveBack(tx, rec.BookID); err != nil {
			return err
		}
		rec.Status = models.StatusReturned
		rec.ReturnDate = &returned
		return tx.Model(&rec).Select("status", "return_date").Updates(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Release gives back the copy held by an outstanding record that is about
// to be deleted. tx must be the deleting transaction.
func Release(tx *gorm.DB, rec *models.BorrowRecord) error {
	if !rec.Status.Outstanding() {
		return nil
	}
	return giveBack(tx, rec.BookID)
}

// OpenLoans counts the Active and Overdue records of a book. Run it in the
// transaction that holds the book row so the count cannot go stale.
func OpenLoans(tx *gorm.DB, bookID uuid.UUID) (int, error) {
	var n int64
	err := tx.Model(&models.BorrowRecord{}).
		Where("book_id = ? AND status IN ?", bookID, []models.BorrowStatus{models.StatusActive, models.StatusOverdue}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count open loans: %w", err)
	}
	return int(n), nil
}

// MarkOverdue flags every Active record due before asOf's day.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.BorrowRecord{}).
		Where("status = ? AND due_date < ?", models.StatusActive, Day(asOf)).
		Update("status", models.StatusOverdue)
	if res.Error != nil {
		return 0, fmt.Errorf("mark overdue: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func takeCopy(tx *gorm.DB, bookID uuid.UUID) error {
	res := tx.Model(&models.Book{}).
		Where("id = ? AND available_copies > 0", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := exists(tx, &models.Book{}, bookID, ErrBookNotFound); err != nil {
		return err
	}
	return ErrNoCopies
}

func giveBack(tx *gorm.DB, bookID uuid.UUID) error {
	return tx.Model(&models.Book{}).
		Where("id = ? AND available_copies < total_copies", bookID).
		UpdateColumn("available_copies", gorm.Expr("available_copies + 1")).Error
}

func exists(tx *gorm.DB, model interface{}, id uuid.UUID, notFound error) error {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
