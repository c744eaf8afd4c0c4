package libvirt

import (
	"encoding/xml"
	"fmt"
)

// DomainXML 域 XML 定义
// 只建模克隆需要改写的节，未建模的配置在克隆域上由
// hypervisor 默认值补齐
// Reference: https://libvirt.org/formatdomain.html
type DomainXML struct {
	XMLName xml.Name `xml:"domain"`
	Type    string   `xml:"type,attr"`

	Name        string `xml:"name"`
	UUID        string `xml:"uuid,omitempty"`
	Title       string `xml:"title,omitempty"`
	Description string `xml:"description,omitempty"`

	Memory        DomainMemory  `xml:"memory"`
	CurrentMemory *DomainMemory `xml:"currentMemory,omitempty"`

	VCPU DomainVCPU `xml:"vcpu"`

	OS DomainOS `xml:"os"`

	OnPoweroff string `xml:"on_poweroff,omitempty"`
	OnReboot   string `xml:"on_reboot,omitempty"`
	OnCrash    string `xml:"on_crash,omitempty"`

	Devices DomainDevices `xml:"devices"`
}

// DomainMemory 内存配置
type DomainMemory struct {
	Unit  string `xml:"unit,attr"`
	Value uint64 `xml:",chardata"`
}

// DomainVCPU 虚拟 CPU 配置
type DomainVCPU struct {
	Placement string `xml:"placement,attr,omitempty"`
	Value     int    `xml:",chardata"`
}

// DomainOS 操作系统和引导配置
type DomainOS struct {
	Type DomainOSType `xml:"type"`
	Boot *DomainBoot  `xml:"boot,omitempty"`
}

// DomainOSType OS 类型
type DomainOSType struct {
	Arch    string `xml:"arch,attr,omitempty"`
	Machine string `xml:"machine,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// DomainBoot 引导设备
type DomainBoot struct {
	Dev string `xml:"dev,attr"`
}

// DomainDevices 域设备
type DomainDevices struct {
	Emulator   string            `xml:"emulator,omitempty"`
	Disks      []DomainDisk      `xml:"disk"`
	Interfaces []DomainInterface `xml:"interface"`
	Graphics   []DomainGraphics  `xml:"graphics,omitempty"`
}

// DomainDisk 磁盘设备
type DomainDisk struct {
	Type   string           `xml:"type,attr"`
	Device string           `xml:"device,attr"`
	Driver DomainDiskDriver `xml:"driver"`
	Source DomainDiskSource `xml:"source"`
	Target DomainDiskTarget `xml:"target"`
}

// DomainDiskDriver 磁盘驱动配置
type DomainDiskDriver struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// DomainDiskSource 磁盘来源
type DomainDiskSource struct {
	File   string `xml:"file,attr,omitempty"`
	Pool   string `xml:"pool,attr,omitempty"`
	Volume string `xml:"volume,attr,omitempty"`
}

// DomainDiskTarget 磁盘在客户机中的呈现
type DomainDiskTarget struct {
	Dev string `xml:"dev,attr"`
	Bus string `xml:"bus,attr,omitempty"`
}

// DomainInterface 虚拟网卡
type DomainInterface struct {
	Type   string                `xml:"type,attr"`
	MAC    *DomainInterfaceMAC   `xml:"mac,omitempty"`
	Source DomainInterfaceSource `xml:"source"`
	Model  *DomainInterfaceModel `xml:"model,omitempty"`
}

// DomainInterfaceMAC MAC 地址
type DomainInterfaceMAC struct {
	Address string `xml:"address,attr"`
}

// DomainInterfaceSource 网卡接入点
type DomainInterfaceSource struct {
	Network string `xml:"network,attr,omitempty"`
	Bridge  string `xml:"bridge,attr,omitempty"`
}

// DomainInterfaceModel 网卡型号
type DomainInterfaceModel struct {
	Type string `xml:"type,attr"`
}

// DomainGraphics 图形设备
type DomainGraphics struct {
	Type     string `xml:"type,attr"`
	Port     int    `xml:"port,attr,omitempty"`
	Autoport string `xml:"autoport,attr,omitempty"`
}

// ParseDomainXML 解析域 XML
func ParseDomainXML(xmlDesc string) (*DomainXML, error) {
	var d DomainXML
	if err := xml.Unmarshal([]byte(xmlDesc), &d); err != nil {
		return nil, fmt.Errorf("parse domain XML: %w", err)
	}
	return &d, nil
}

// Marshal 序列化为域 XML
func (d *DomainXML) Marshal() (string, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal domain XML: %w", err)
	}
	return string(out), nil
}
