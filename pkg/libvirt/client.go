// Package libvirt 封装 digitalocean/go-libvirt 客户端
// 只暴露克隆编排需要的域和存储卷操作，便于测试和 mock
package libvirt

import (
	"fmt"
	"net/url"

	"github.com/digitalocean/go-libvirt"
)

type Client struct {
	conn *libvirt.Libvirt
}

// New 连接 libvirt
// uri 为空时使用本地系统连接 qemu:///system
func New(uri string) (*Client, error) {
	if uri == "" {
		uri = string(libvirt.QEMUSystem)
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri: %w", err)
	}
	l, err := libvirt.ConnectToURI(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}
	return &Client{conn: l}, nil
}

// DomainIsRunning 判断指定名称的域是否正在运行
// 域不存在视为未运行
func (c *Client) DomainIsRunning(name string) (bool, error) {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return false, nil
	}
	state, _, err := c.conn.DomainGetState(domain, 0)
	if err != nil {
		return false, fmt.Errorf("get domain state: %w", err)
	}
	return libvirt.DomainState(state) == libvirt.DomainRunning, nil
}

// ListRunningDomains 列出本机所有活跃域的名称
func (c *Client) ListRunningDomains() ([]string, error) {
	domains, _, err := c.conn.ConnectListAllDomains(1000, libvirt.ConnectListDomainsActive)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	names := make([]string, 0, len(domains))
	for _, d := range domains {
		names = append(names, d.Name)
	}
	return names, nil
}

// GetDomainXML 获取域的 XML 定义
func (c *Client) GetDomainXML(name string) (string, error) {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return "", fmt.Errorf("lookup domain %s: %w", name, err)
	}
	xmlDesc, err := c.conn.DomainGetXMLDesc(domain, 0)
	if err != nil {
		return "", fmt.Errorf("get domain XML: %w", err)
	}
	return xmlDesc, nil
}

// SaveDomain 将运行中的域保存到文件并停止它
// 保存后域不再运行，恢复使用 RestoreDomain
func (c *Client) SaveDomain(name, path string) error {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("lookup domain %s: %w", name, err)
	}
	if err := c.conn.DomainSave(domain, path); err != nil {
		return fmt.Errorf("save domain %s: %w", name, err)
	}
	return nil
}

// RestoreDomainWithXML 从保存文件恢复域，同时用新的 XML 覆盖域定义
// 多个克隆可以共享同一个保存文件，各自带不同的名称和设备
func (c *Client) RestoreDomainWithXML(path, domainXML string) error {
	if err := c.conn.DomainRestoreFlags(path, libvirt.OptString{domainXML}, 0); err != nil {
		return fmt.Errorf("restore domain from %s: %w", path, err)
	}
	return nil
}

// DeleteDomain 删除域定义，运行中的域先强制关闭
func (c *Client) DeleteDomain(name string) error {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return fmt.Errorf("lookup domain %s: %w", name, err)
	}

	state, _, err := c.conn.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get domain state: %v", err)
	}
	if libvirt.DomainState(state) == libvirt.DomainRunning {
		if err := c.conn.DomainDestroy(domain); err != nil {
			return fmt.Errorf("failed to destroy running domain: %v", err)
		}
	}

	if err := c.conn.DomainUndefineFlags(domain, libvirt.DomainUndefineManagedSave); err != nil {
		return fmt.Errorf("failed to undefine domain: %v", err)
	}
	return nil
}
