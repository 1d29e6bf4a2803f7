package device

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository interface for device record operations
type Repository interface {
	FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*Device, error)
	Create(ctx context.Context, d *Device) error
	Update(ctx context.Context, d *Device) error
	Upsert(ctx context.Context, d *Device) error
	ListByUser(ctx context.Context, userID string) ([]Device, error)
	Delete(ctx context.Context, userID, deviceID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new device repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) Create(ctx context.Context, d *Device) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *repository) Update(ctx context.Context, d *Device) error {
	res := r.db.WithContext(ctx).Model(&Device{}).
		Where("user_id = ? AND device_id = ?", d.UserID, d.DeviceID).
		Updates(map[string]any{
			"last_used":  d.LastUsed,
			"user_agent": d.UserAgent,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Upsert inserts the record or, when (user_id, device_id) already exists,
// overwrites last_used and user_agent in the same statement.
func (r *repository) Upsert(ctx context.Context, d *Device) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_used":  d.LastUsed,
			"user_agent": d.UserAgent,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(d).Error
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	var devices []Device
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_used DESC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *repository) Delete(ctx context.Context, userID, deviceID string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&Device{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
