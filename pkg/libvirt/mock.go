package libvirt

import (
	"github.com/stretchr/testify/mock"
)

// MockClient 是 LibvirtClient 的 mock 实现
// 用于测试，不需要真实的 libvirt 连接
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建 mock 客户端
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LibvirtClient = (*MockClient)(nil)

func (m *MockClient) DomainIsRunning(name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) ListRunningDomains() ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockClient) GetDomainXML(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *MockClient) SaveDomain(name, path string) error {
	args := m.Called(name, path)
	return args.Error(0)
}

func (m *MockClient) RestoreDomainWithXML(path, domainXML string) error {
	args := m.Called(path, domainXML)
	return args.Error(0)
}

func (m *MockClient) DeleteDomain(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockClient) GetStoragePool(poolName string) (*StoragePoolInfo, error) {
	args := m.Called(poolName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StoragePoolInfo), args.Error(1)
}

func (m *MockClient) CreateVolumeWithBackingStore(poolName, volumeName string, sizeGB uint64, format, backingPath, backingFormat string) (*VolumeInfo, error) {
	args := m.Called(poolName, volumeName, sizeGB, format, backingPath, backingFormat)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*VolumeInfo), args.Error(1)
}

func (m *MockClient) DeleteVolume(poolName, volumeName string) error {
	args := m.Called(poolName, volumeName)
	return args.Error(0)
}
