package device

import (
	"time"

	"github.com/Anvoria/alumnet/internal/database"
)

// Device is a remembered (user, device) pair
type Device struct {
	database.BaseModel

	UserID     string    `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_user_devices_user_device"`
	DeviceID   string    `gorm:"column:device_id;not null;uniqueIndex:idx_user_devices_user_device"`
	DeviceName *string   `gorm:"column:device_name"`
	UserAgent  string    `gorm:"column:user_agent;type:text"`
	LastUsed   time.Time `gorm:"column:last_used;not null"`
}

func (Device) TableName() string {
	return "user_devices"
}

// DeviceResponse is the public view of a remembered device
type DeviceResponse struct {
	DeviceID   string    `json:"device_id"`
	DeviceName *string   `json:"device_name"`
	UserAgent  string    `json:"user_agent"`
	LastUsed   time.Time `json:"last_used"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d *Device) ToResponse() DeviceResponse {
	return DeviceResponse{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		UserAgent:  d.UserAgent,
		LastUsed:   d.LastUsed,
		CreatedAt:  d.CreatedAt,
	}
}
