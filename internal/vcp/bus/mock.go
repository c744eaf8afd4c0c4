package bus

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBus 测试用的 Bus 实现
type MockBus struct {
	mock.Mock
}

var _ Bus = (*MockBus)(nil)

func (m *MockBus) Call(ctx context.Context, queue, method string, args any, reply any) error {
	ret := m.Called(ctx, queue, method, args, reply)
	return ret.Error(0)
}
