package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BorrowStatus string

const (
	StatusActive   BorrowStatus = "Active"
	StatusReturned BorrowStatus = "Returned"
	StatusOverdue  BorrowStatus = "Overdue"
)

func (s BorrowStatus) Valid() bool {
	switch s {
	case StatusActive, StatusReturned, StatusOverdue:
		return true
	}
	return false
}

// Outstanding reports whether the record still holds a copy of its book.
func (s BorrowStatus) Outstanding() bool {
	return s == StatusActive || s == StatusOverdue
}

type Author struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:200;not null;index"`
	Bio       string    `gorm:"type:text"`
	CreatedAt time.Time
}

func (a *Author) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type Category struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null"`
	Description string `gorm:"type:text"`
}

type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Title           string    `gorm:"size:200;not null"`
	ISBN            string    `gorm:"column:isbn;size:13;not null;uniqueIndex"`
	CategoryID      uint      `gorm:"not null;index"`
	TotalCopies     int       `gorm:"not null;check:total_copies >= 0"`
	AvailableCopies int       `gorm:"not null;check:available_copies >= 0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Authors  []Author  `gorm:"many2many:book_authors;constraint:OnDelete:CASCADE"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b *Book) AuthorIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(b.Authors))
	for i, a := range b.Authors {
		ids[i] = a.ID
	}
	return ids
}

type BorrowRecord struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey"`
	BookID     uuid.UUID    `gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID    `gorm:"type:uuid;not null;index"`
	BorrowDate time.Time    `gorm:"not null"`
	DueDate    time.Time    `gorm:"type:date;not null;index"`
	ReturnDate *time.Time
	Status     BorrowStatus `gorm:"size:10;not null;index"`
	CreatedAt  time.Time

	Book *Book `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (r *BorrowRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusActive
	}
	return nil
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Permission{},
		&Group{},
		&User{},
		&Author{},
		&Category{},
		&Book{},
		&BorrowRecord{},
	}
}
