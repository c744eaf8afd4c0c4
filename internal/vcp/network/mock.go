package network

import (
	"context"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/stretchr/testify/mock"
)

// MockService 是 Service 的 mock 实现，测试用
type MockService struct {
	mock.Mock
}

// NewMockService 创建 mock 网络服务
func NewMockService() *MockService {
	return &MockService{}
}

var _ Service = (*MockService)(nil)

func (m *MockService) AllocateForInstance(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error) {
	args := m.Called(ctx, inst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NetworkInfo), args.Error(1)
}

func (m *MockService) GetInstanceNetworkInfo(ctx context.Context, inst *entity.Instance) (*entity.NetworkInfo, error) {
	args := m.Called(ctx, inst)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.NetworkInfo), args.Error(1)
}

func (m *MockService) SetupNetwork(ctx context.Context, networkName string) error {
	args := m.Called(ctx, networkName)
	return args.Error(0)
}

func (m *MockService) TeardownHostNetworking(ctx context.Context, inst *entity.Instance) error {
	args := m.Called(ctx, inst)
	return args.Error(0)
}
