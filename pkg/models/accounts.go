package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MemberGroup    = "Member"
	LibrarianGroup = "Librarian"
)

// Model names used in permission codenames, e.g. "change_book".
const (
	ModelAuthor       = "author"
	ModelCategory     = "category"
	ModelBook         = "book"
	ModelUser         = "user"
	ModelBorrowRecord = "borrowrecord"
)

const (
	ActionAdd    = "add"
	ActionChange = "change"
	ActionDelete = "delete"
	ActionView   = "view"
)

var (
	PermissionModels  = []string{ModelAuthor, ModelCategory, ModelBook, ModelUser, ModelBorrowRecord}
	PermissionActions = []string{ActionAdd, ActionChange, ActionDelete, ActionView}
)

func Codename(action, model string) string {
	return action + "_" + model
}

type Permission struct {
	ID       uint   `gorm:"primaryKey"`
	Codename string `gorm:"size:100;not null;uniqueIndex"`
	Name     string `gorm:"size:255;not null"`
}

type Group struct {
	ID          uint         `gorm:"primaryKey"`
	Name        string       `gorm:"size:150;not null;uniqueIndex"`
	Permissions []Permission `gorm:"many2many:group_permissions;constraint:OnDelete:CASCADE"`
}

type User struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email       string    `gorm:"size:254;not null;uniqueIndex"`
	Password    string    `gorm:"size:128;not null"`
	FirstName   string    `gorm:"size:150"`
	LastName    string    `gorm:"size:150"`
	PhoneNumber string    `gorm:"size:32"`
	IsActive    bool      `gorm:"not null"`
	IsStaff     bool      `gorm:"not null"`
	IsSuperuser bool      `gorm:"not null"`
	DateJoined  time.Time `gorm:"not null"`
	LastLogin   *time.Time

	Groups      []Group      `gorm:"many2many:user_groups;constraint:OnDelete:CASCADE"`
	Permissions []Permission `gorm:"many2many:user_permissions;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = time.Now().UTC()
	}
	return nil
}

// AfterCreate puts every new account into the Member group when that group exists.
func (u *User) AfterCreate(tx *gorm.DB) error {
	var member Group
	db := tx.Session(&gorm.Session{NewDB: true})
	if err := db.Where("name = ?", MemberGroup).Limit(1).Find(&member).Error; err != nil {
		return err
	}
	if member.ID == 0 {
		return nil
	}
	return db.Model(u).Association("Groups").Append(&member)
}

func (u *User) GroupNames() []string {
	names := make([]string, len(u.Groups))
	for i, g := range u.Groups {
		names[i] = g.Name
	}
	return names
}
