package api

import (
	"time"

	"library-api/pkg/filters"
	"library-api/pkg/models"

	"github.com/google/uuid"
)

type authorResponse struct {
	ID        uuid.UUID `json:"id" swaggertype:"string" format:"uuid"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
}

func toAuthor(a *models.Author) authorResponse {
	return authorResponse{ID: a.ID, Name: a.Name, Bio: a.Bio, CreatedAt: a.CreatedAt}
}

type categoryResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func toCategory(c *models.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}

type bookResponse struct {
	ID              uuid.UUID   `json:"id" swaggertype:"string" format:"uuid"`
	Title           string      `json:"title"`
	ISBN            string      `json:"isbn"`
	Authors         []uuid.UUID `json:"authors" swaggertype:"array,string"`
	Category        uint        `json:"category"`
	TotalCopies     int         `json:"total_copies"`
	AvailableCopies int         `json:"available_copies"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func toBook(b *models.Book) bookResponse {
	return bookResponse{
		ID:              b.ID,
		Title:           b.Title,
		ISBN:            b.ISBN,
		Authors:         b.AuthorIDs(),
		Category:        b.CategoryID,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type userResponse struct {
	ID          uuid.UUID  `json:"id" swaggertype:"string" format:"uuid"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	PhoneNumber string     `json:"phone_number"`
	IsActive    bool       `json:"is_active"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	DateJoined  time.Time  `json:"date_joined"`
	LastLogin   *time.Time `json:"last_login"`
	Groups      []string   `json:"groups"`
}

func toUser(u *models.User) userResponse {
	groups := u.GroupNames()
	if groups == nil {
		groups = []string{}
	}
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined,
		LastLogin:   u.LastLogin,
		Groups:      groups,
	}
}

type borrowRecordResponse struct {
	ID         uuid.UUID           `json:"id" swaggertype:"string" format:"uuid"`
	Book       uuid.UUID           `json:"book" swaggertype:"string" format:"uuid"`
	User       uuid.UUID           `json:"user" swaggertype:"string" format:"uuid"`
	BorrowDate time.Time           `json:"borrow_date"`
	DueDate    string              `json:"due_date" format:"date"`
	ReturnDate *time.Time          `json:"return_date"`
	Status     models.BorrowStatus `json:"status" swaggertype:"string" enums:"Active,Returned,Overdue"`
}

func toBorrowRecord(r *models.BorrowRecord) borrowRecordResponse {
	return borrowRecordResponse{
		ID:         r.ID,
		Book:       r.BookID,
		User:       r.UserID,
		BorrowDate: r.BorrowDate.UTC(),
		DueDate:    r.DueDate.UTC().Format(filters.DateLayout),
		ReturnDate: r.ReturnDate,
		Status:     r.Status,
	}
}
