package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/domain/device"
	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func testPrivateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func newTestKeyStore(t *testing.T) *KeyStore {
	t.Helper()
	ks, err := NewKeyStoreFromRSA(testPrivateKey(t), "test")
	require.NoError(t, err)
	return ks
}

func newTestIssuer() *Issuer {
	return NewIssuer("alumnet-test", &config.SessionConfig{})
}

// testClock is a manually advanced clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func approvedUser() *user.User {
	u := &user.User{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "hash",
		Role:     user.RoleUser,
		Status:   user.StatusApproved,
	}
	u.ID = uuid.New()
	return u
}

// MockUserService is a mock implementation of user.Service
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, req user.RegisterRequest) (*user.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetByID(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) Approve(ctx context.Context, id string) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) SetStatus(ctx context.Context, id string, status user.Status) (*user.User, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id string, update user.ProfileUpdate) (*user.User, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) VerifyPassword(u *user.User, password string) bool {
	args := m.Called(u, password)
	return args.Bool(0)
}

// MockDeviceService is a mock implementation of device.Service
type MockDeviceService struct {
	mock.Mock
}

func (m *MockDeviceService) RecordDevice(ctx context.Context, userID, deviceID, label string) error {
	args := m.Called(ctx, userID, deviceID, label)
	return args.Error(0)
}

func (m *MockDeviceService) IsKnownDevice(ctx context.Context, userID, deviceID string) (bool, error) {
	args := m.Called(ctx, userID, deviceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeviceService) ListDevices(ctx context.Context, userID string) ([]device.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]device.Device), args.Error(1)
}

func (m *MockDeviceService) ForgetDevice(ctx context.Context, userID, deviceID string) error {
	args := m.Called(ctx, userID, deviceID)
	return args.Error(0)
}

// memoryRevocations is an in-memory RevocationStore
type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{revoked: map[string]time.Duration{}}
}

func (r *memoryRevocations) RevokeSession(_ context.Context, sid string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[sid] = ttl
	return nil
}

func (r *memoryRevocations) IsRevoked(_ context.Context, sid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[sid]
	return ok, nil
}
