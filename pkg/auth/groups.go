package auth

import (
	"context"
	"fmt"

	"library-api/pkg/models"

	"gorm.io/gorm"
)

// DefaultGroups describes the groups created by SeedGroups.
var DefaultGroups = map[string][]string{
	models.MemberGroup: {
		models.Codename(models.ActionView, models.ModelBook),
		models.Codename(models.ActionView, models.ModelAuthor),
		models.Codename(models.ActionView, models.ModelCategory),
		models.Codename(models.ActionAdd, models.ModelBorrowRecord),
		models.Codename(models.ActionView, models.ModelBorrowRecord),
	},
	models.LibrarianGroup: librarianPermissions(),
}

func librarianPermissions() []string {
	var out []string
	for _, model := range models.PermissionModels {
		for _, action := range models.PermissionActions {
			out = append(out, models.Codename(action, model))
		}
	}
	return out
}

// SeedGroups creates the default groups and sets their permissions.
// Permissions must already exist.
func SeedGroups(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for name, codenames := range DefaultGroups {
			group := models.Group{Name: name}
			if err := tx.Where(models.Group{Name: name}).FirstOrCreate(&group).Error; err != nil {
				return fmt.Errorf("create group %s: %w", name, err)
			}
			var perms []models.Permission
			if err := tx.Where("codename IN ?", codenames).Find(&perms).Error; err != nil {
				return err
			}
			if len(perms) != len(codenames) {
				return fmt.Errorf("group %s: %d of %d permissions exist, run migrate first", name, len(perms), len(codenames))
			}
			if err := tx.Model(&group).Association("Permissions").Replace(perms); err != nil {
				return fmt.Errorf("set permissions of %s: %w", name, err)
			}
		}
		return nil
	})
}

// AddToGroup puts the user with email into the named group.
func AddToGroup(ctx context.Context, db *gorm.DB, email, groupName string) error {
	var user models.User
	if err := db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		return fmt.Errorf("find user %s: %w", email, err)
	}
	var group models.Group
	if err := db.WithContext(ctx).Where("name = ?", groupName).First(&group).Error; err != nil {
		return fmt.Errorf("find group %s: %w", groupName, err)
	}
	return db.WithContext(ctx).Model(&user).Association("Groups").Append(&group)
}

// GrantPermissions adds codenames directly to a user.
func GrantPermissions(ctx context.Context, db *gorm.DB, user *models.User, codenames ...string) error {
	var perms []models.Permission
	if err := db.WithContext(ctx).Where("codename IN ?", codenames).Find(&perms).Error; err != nil {
		return err
	}
	if len(perms) != len(codenames) {
		return fmt.Errorf("unknown permission in %v", codenames)
	}
	return db.WithContext(ctx).Model(user).Association("Permissions").Append(perms)
}

// CreateSuperuser stores an active staff superuser.
func CreateSuperuser(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:       email,
		Password:    hash,
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
	}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create superuser %s: %w", email, err)
	}
	return user, nil
}
