package driver

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jimyag/vcp/internal/vcp/entity"
)

// MockDriver 测试用的 Driver 实现
type MockDriver struct {
	mock.Mock
}

var _ Driver = (*MockDriver)(nil)

func (m *MockDriver) Bless(ctx context.Context, sourceName string, inst *entity.Instance, migrationURL string) (string, string, []string, error) {
	ret := m.Called(ctx, sourceName, inst, migrationURL)
	var files []string
	if ret.Get(2) != nil {
		files = ret.Get(2).([]string)
	}
	return ret.String(0), ret.String(1), files, ret.Error(3)
}

func (m *MockDriver) PostBless(ctx context.Context, inst *entity.Instance, blessedFiles []string) ([]string, error) {
	ret := m.Called(ctx, inst, blessedFiles)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]string), ret.Error(1)
}

func (m *MockDriver) BlessCleanup(ctx context.Context, blessedFiles []string) error {
	ret := m.Called(ctx, blessedFiles)
	return ret.Error(0)
}

func (m *MockDriver) Discard(ctx context.Context, name string, imageRefs []string) error {
	ret := m.Called(ctx, name, imageRefs)
	return ret.Error(0)
}

func (m *MockDriver) Launch(ctx context.Context, sourceName string, inst *entity.Instance, netInfo *entity.NetworkInfo, targetPages uint64, migrationURL string, imageRefs []string, params map[string]string) error {
	ret := m.Called(ctx, sourceName, inst, netInfo, targetPages, migrationURL, imageRefs, params)
	return ret.Error(0)
}

func (m *MockDriver) PreMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error {
	ret := m.Called(ctx, inst, netInfo, migrationURL)
	return ret.Error(0)
}

func (m *MockDriver) PostMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error {
	ret := m.Called(ctx, inst, netInfo, migrationURL)
	return ret.Error(0)
}

func (m *MockDriver) ListRunning(ctx context.Context) ([]string, error) {
	ret := m.Called(ctx)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]string), ret.Error(1)
}
