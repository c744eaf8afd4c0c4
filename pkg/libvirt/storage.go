package libvirt

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
)

// StoragePoolInfo 存储池信息
type StoragePoolInfo struct {
	Name        string
	State       string
	CapacityB   uint64
	AllocationB uint64
	AvailableB  uint64
	Path        string
}

// VolumeInfo 存储卷信息
type VolumeInfo struct {
	Name        string
	Path        string
	CapacityB   uint64
	AllocationB uint64
	Format      string
}

// VolumeXML 存储卷 XML 结构
// Reference: https://libvirt.org/formatstorage.html#StorageVol
type VolumeXML struct {
	XMLName      xml.Name            `xml:"volume"`
	Type         string              `xml:"type,attr"`
	Name         string              `xml:"name"`
	Capacity     VolumeSize          `xml:"capacity"`
	Allocation   VolumeSize          `xml:"allocation"`
	Target       VolumeTarget        `xml:"target"`
	BackingStore *VolumeBackingStore `xml:"backingStore,omitempty"`
}

// VolumeSize 存储卷大小配置
type VolumeSize struct {
	Unit  string `xml:"unit,attr"`
	Value uint64 `xml:",chardata"`
}

// VolumeTarget 存储卷目标配置
type VolumeTarget struct {
	Format VolumeFormat `xml:"format"`
}

// VolumeFormat 存储卷格式配置
type VolumeFormat struct {
	Type string `xml:"type,attr"`
}

// VolumeBackingStore 增量卷的 backing 配置
type VolumeBackingStore struct {
	Path   string       `xml:"path"`
	Format VolumeFormat `xml:"format"`
}

// mapStoragePoolState 将 libvirt 的 pool 状态转换为字符串
func mapStoragePoolState(s uint8) string {
	switch libvirt.StoragePoolState(s) {
	case libvirt.StoragePoolInactive:
		return "Inactive"
	case libvirt.StoragePoolBuilding:
		return "Building"
	case libvirt.StoragePoolRunning:
		return "Active"
	case libvirt.StoragePoolDegraded:
		return "Degraded"
	case libvirt.StoragePoolInaccessible:
		return "Inaccessible"
	default:
		return "Unknown"
	}
}

// GetStoragePool 获取存储池信息
func (c *Client) GetStoragePool(poolName string) (*StoragePoolInfo, error) {
	pool, err := c.conn.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("lookup storage pool %s: %w", poolName, err)
	}

	state, capacity, allocation, available, err := c.conn.StoragePoolGetInfo(pool)
	if err != nil {
		return nil, fmt.Errorf("get pool info: %w", err)
	}

	// 获取 pool 路径
	xmlDesc, err := c.conn.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		return nil, fmt.Errorf("get pool XML: %w", err)
	}

	return &StoragePoolInfo{
		Name:        poolName,
		State:       mapStoragePoolState(state),
		CapacityB:   capacity,
		AllocationB: allocation,
		AvailableB:  available,
		Path:        extractPoolPath(xmlDesc),
	}, nil
}

// CreateVolumeWithBackingStore 创建以模板磁盘为 backing 的增量卷
func (c *Client) CreateVolumeWithBackingStore(poolName, volumeName string, sizeGB uint64, format, backingPath, backingFormat string) (*VolumeInfo, error) {
	if format == "" {
		format = "qcow2" // 默认格式
	}
	if backingFormat == "" {
		backingFormat = "qcow2"
	}

	pool, err := c.conn.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("lookup storage pool %s: %w", poolName, err)
	}

	volumeXML := &VolumeXML{
		Type: "file",
		Name: volumeName,
		Capacity: VolumeSize{
			Unit:  "G",
			Value: sizeGB,
		},
		Allocation: VolumeSize{
			Unit:  "G",
			Value: 0,
		},
		Target: VolumeTarget{
			Format: VolumeFormat{Type: format},
		},
		BackingStore: &VolumeBackingStore{
			Path:   backingPath,
			Format: VolumeFormat{Type: backingFormat},
		},
	}

	xmlBytes, err := xml.MarshalIndent(volumeXML, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal volume XML: %w", err)
	}

	vol, err := c.conn.StorageVolCreateXML(pool, string(xmlBytes), 0)
	if err != nil {
		return nil, fmt.Errorf("create volume: %w", err)
	}

	path, err := c.conn.StorageVolGetPath(vol)
	if err != nil {
		return nil, fmt.Errorf("get volume path: %w", err)
	}

	_, capacity, allocation, err := c.conn.StorageVolGetInfo(vol)
	if err != nil {
		return nil, fmt.Errorf("get volume info: %w", err)
	}

	return &VolumeInfo{
		Name:        volumeName,
		Path:        path,
		CapacityB:   capacity,
		AllocationB: allocation,
		Format:      format,
	}, nil
}

// DeleteVolume 删除存储卷
func (c *Client) DeleteVolume(poolName, volumeName string) error {
	pool, err := c.conn.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("lookup storage pool %s: %w", poolName, err)
	}

	vol, err := c.conn.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("lookup volume %s: %w", volumeName, err)
	}

	if err := c.conn.StorageVolDelete(vol, libvirt.StorageVolDeleteNormal); err != nil {
		return fmt.Errorf("delete volume: %w", err)
	}
	return nil
}

// extractPoolPath 从 pool XML 中提取路径
func extractPoolPath(xmlDesc string) string {
	pathStart := strings.Index(xmlDesc, "<path>")
	if pathStart == -1 {
		return ""
	}
	pathStart += len("<path>")
	pathEnd := strings.Index(xmlDesc[pathStart:], "</path>")
	if pathEnd == -1 {
		return ""
	}
	return xmlDesc[pathStart : pathStart+pathEnd]
}
