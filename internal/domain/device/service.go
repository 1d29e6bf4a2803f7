package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// KnownDeviceCache caches the outcome of IsKnownDevice lookups
type KnownDeviceCache interface {
	Get(ctx context.Context, userID, deviceID string) (known bool, found bool)
	Set(ctx context.Context, userID, deviceID string, known bool) error
	Invalidate(ctx context.Context, userID, deviceID string) error
}

// Service interface for the device registry
type Service interface {
	RecordDevice(ctx context.Context, userID, deviceID, label string) error
	IsKnownDevice(ctx context.Context, userID, deviceID string) (bool, error)
	ListDevices(ctx context.Context, userID string) ([]Device, error)
	ForgetDevice(ctx context.Context, userID, deviceID string) error
}

type service struct {
	repo  Repository
	cache KnownDeviceCache
	now   func() time.Time
}

// NewService creates a device registry without a cache
func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

// NewServiceWithCache creates a device registry backed by the given cache.
// A nil cache, including a typed nil pointer, behaves like NewService.
func NewServiceWithCache(repo Repository, cache KnownDeviceCache) Service {
	if isNilCache(cache) {
		cache = nil
	}
	return &service{repo: repo, cache: cache, now: time.Now}
}

func isNilCache(cache KnownDeviceCache) bool {
	if cache == nil {
		return true
	}
	v := reflect.ValueOf(cache)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// RecordDevice upserts the (user, device) record with the current time as last_used.
// Repeating the call leaves exactly one record.
func (s *service) RecordDevice(ctx context.Context, userID, deviceID, label string) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return ErrDeviceIDRequired
	}

	d := &Device{
		UserID:    userID,
		DeviceID:  deviceID,
		UserAgent: label,
		LastUsed:  s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, d); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, deviceID, true); err != nil {
			slog.Warn("Failed to cache known device", "user_id", userID, "device_id", deviceID, "error", err)
		}
	}

	return nil
}

// IsKnownDevice reports whether the user has previously remembered this device
func (s *service) IsKnownDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	if strings.TrimSpace(deviceID) == "" {
		return false, nil
	}

	if s.cache != nil {
		if known, found := s.cache.Get(ctx, userID, deviceID); found {
			return known, nil
		}
	}

	_, err := s.repo.FindByUserAndDevice(ctx, userID, deviceID)
	known := err == nil
	if err != nil && !errors.Is(err, ErrDeviceNotFound) {
		return false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, deviceID, known); err != nil {
			slog.Warn("Failed to cache device lookup", "user_id", userID, "device_id", deviceID, "error", err)
		}
	}

	return known, nil
}

func (s *service) ListDevices(ctx context.Context, userID string) ([]Device, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ForgetDevice removes a remembered device. Later sign-ins from it are untrusted
// until the user opts in again.
func (s *service) ForgetDevice(ctx context.Context, userID, deviceID string) error {
	if err := s.repo.Delete(ctx, userID, deviceID); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID, deviceID); err != nil {
			slog.Warn("Failed to invalidate device cache", "user_id", userID, "device_id", deviceID, "error", err)
		}
	}

	return nil
}
