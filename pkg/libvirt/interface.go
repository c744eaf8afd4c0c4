package libvirt

// LibvirtClient 定义 libvirt 客户端接口
// 用于抽象 libvirt 操作，便于测试和 mock
type LibvirtClient interface {
	// Domain 操作
	DomainIsRunning(name string) (bool, error)
	ListRunningDomains() ([]string, error)
	GetDomainXML(name string) (string, error)
	SaveDomain(name, path string) error
	RestoreDomainWithXML(path, domainXML string) error
	DeleteDomain(name string) error

	// Storage 操作
	GetStoragePool(poolName string) (*StoragePoolInfo, error)
	CreateVolumeWithBackingStore(poolName, volumeName string, sizeGB uint64, format, backingPath, backingFormat string) (*VolumeInfo, error)
	DeleteVolume(poolName, volumeName string) error
}

var _ LibvirtClient = (*Client)(nil)
