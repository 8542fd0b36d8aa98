package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/stagelink/internal/common"
	"github.com/example/stagelink/internal/models"
)

// Directory is the relational user directory. It owns user rows and their
// location/taxonomy relations; the profile cache reads through it on miss.
type Directory struct {
	db *gorm.DB
}

// New constructs a Directory over the given connection.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// InsertPendingUser creates a pending user row for the phone. A pending row
// already on the phone is refreshed in place so sign-up stays re-callable; an
// active row, or a concurrent insert losing the unique-phone race, surfaces
// common.ErrDuplicatePhone.
func (d *Directory) InsertPendingUser(ctx context.Context, phone, username, fullName string) (*models.User, error) {
	var existing models.User
	err := d.db.WithContext(ctx).Where("phone = ?", phone).First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == models.StatusActive {
			return nil, common.ErrDuplicatePhone
		}
		existing.Username = username
		existing.FullName = fullName
		if err := d.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("refresh pending user %s: %w", phone, err)
		}
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return nil, fmt.Errorf("look up user %s: %w", phone, err)
	}

	user := models.User{
		Phone:    phone,
		Username: username,
		FullName: fullName,
		Status:   models.StatusPending,
	}
	if err := d.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.ErrDuplicatePhone
		}
		return nil, fmt.Errorf("insert pending user %s: %w", phone, err)
	}
	return &user, nil
}

// ActivateUser flips the user's status to active and returns the row.
func (d *Directory) ActivateUser(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("activate user %s: %w", phone, err)
	}

	if user.Status != models.StatusActive {
		user.Status = models.StatusActive
		if err := d.db.WithContext(ctx).Model(&user).Update("status", models.StatusActive).Error; err != nil {
			return nil, fmt.Errorf("activate user %s: %w", phone, err)
		}
	}
	return &user, nil
}

// FetchUserWithRelations loads the user row together with its location and
// category/subcategory sets.
func (d *Directory) FetchUserWithRelations(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Preload("Location").
		Preload("Categories").
		Preload("Subcategories").
		First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &user, nil
}

// UpdateDeviceToken stores the push device token on the user row.
func (d *Directory) UpdateDeviceToken(ctx context.Context, id uuid.UUID, deviceToken string) error {
	res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("device_token", deviceToken)
	if res.Error != nil {
		return fmt.Errorf("update device token for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return common.ErrUserNotFound
	}
	return nil
}
