package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/libvirt"
)

// 模板产物的扩展名
const (
	memorySuffix = ".mem" // 保存的内存镜像
	descSuffix   = ".xml" // 域定义
)

// 克隆磁盘的默认容量，实际占用随写入增长
const defaultCloneDiskGB = 20

// Config libvirt 驱动配置
type Config struct {
	StateDir      string // bless 产物的暂存目录，迁移时需要宿主机间共享
	ImagesDir     string // 模板镜像归档目录
	InstancesPool string // 实例增量磁盘所在的存储池
}

// LibvirtDriver 基于 libvirt 的驱动实现
// 模板由保存的内存镜像、域定义和磁盘文件组成，克隆磁盘一律以
// 模板磁盘为 backing 的增量卷
type LibvirtDriver struct {
	client libvirt.LibvirtClient
	cfg    Config
}

var _ Driver = (*LibvirtDriver)(nil)

// NewLibvirtDriver 创建 libvirt 驱动
func NewLibvirtDriver(client libvirt.LibvirtClient, cfg Config) *LibvirtDriver {
	return &LibvirtDriver{client: client, cfg: cfg}
}

// Bless 冻结源域
// 先取域定义再保存内存，SaveDomain 之后源域停止运行
func (d *LibvirtDriver) Bless(ctx context.Context, sourceName string, inst *entity.Instance, migrationURL string) (string, string, []string, error) {
	running, err := d.client.DomainIsRunning(sourceName)
	if err != nil {
		return "", "", nil, fmt.Errorf("bless %s: %w", sourceName, err)
	}
	if !running {
		return "", "", nil, fmt.Errorf("bless %s: domain is not running", sourceName)
	}

	xmlDesc, err := d.client.GetDomainXML(sourceName)
	if err != nil {
		return "", "", nil, fmt.Errorf("bless %s: %w", sourceName, err)
	}
	dom, err := libvirt.ParseDomainXML(xmlDesc)
	if err != nil {
		return "", "", nil, fmt.Errorf("bless %s: %w", sourceName, err)
	}

	if err := os.MkdirAll(d.cfg.StateDir, 0o755); err != nil {
		return "", "", nil, fmt.Errorf("prepare state dir: %w", err)
	}

	memPath := filepath.Join(d.cfg.StateDir, inst.Name+memorySuffix)
	if err := d.client.SaveDomain(sourceName, memPath); err != nil {
		return "", "", nil, fmt.Errorf("bless %s: %w", sourceName, err)
	}

	descPath := filepath.Join(d.cfg.StateDir, inst.Name+descSuffix)
	if err := os.WriteFile(descPath, []byte(xmlDesc), 0o600); err != nil {
		return "", "", nil, fmt.Errorf("write domain desc: %w", err)
	}

	blessedFiles := []string{memPath, descPath}
	for _, disk := range dom.Devices.Disks {
		if disk.Device == "disk" && disk.Source.File != "" {
			blessedFiles = append(blessedFiles, disk.Source.File)
		}
	}

	url := ""
	if migrationURL != "" {
		// 迁移时目标端直接从共享暂存目录取内存镜像
		url = "file://" + memPath
	}

	zerolog.Ctx(ctx).Info().
		Str("source", sourceName).
		Str("name", inst.Name).
		Strs("blessed_files", blessedFiles).
		Msg("Domain blessed")
	return inst.Name, url, blessedFiles, nil
}

// PostBless 把产物归档到镜像目录，返回镜像引用
func (d *LibvirtDriver) PostBless(ctx context.Context, inst *entity.Instance, blessedFiles []string) ([]string, error) {
	if err := os.MkdirAll(d.cfg.ImagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare images dir: %w", err)
	}

	refs := make([]string, 0, len(blessedFiles))
	for _, f := range blessedFiles {
		ref := filepath.Base(f)
		if err := moveFile(f, filepath.Join(d.cfg.ImagesDir, ref)); err != nil {
			return nil, fmt.Errorf("archive %s: %w", f, err)
		}
		refs = append(refs, ref)
	}

	zerolog.Ctx(ctx).Info().
		Str("name", inst.Name).
		Strs("image_refs", refs).
		Msg("Blessed files archived")
	return refs, nil
}

// BlessCleanup 删除暂存目录中的 bless 产物
// 文件不存在不算失败，补偿路径可能重复调用
func (d *LibvirtDriver) BlessCleanup(ctx context.Context, blessedFiles []string) error {
	for _, f := range blessedFiles {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cleanup %s: %w", f, err)
		}
	}
	return nil
}

// Discard 释放模板，删除归档镜像和残留的域定义
func (d *LibvirtDriver) Discard(ctx context.Context, name string, imageRefs []string) error {
	for _, ref := range imageRefs {
		path := filepath.Join(d.cfg.ImagesDir, ref)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("discard %s: %w", ref, err)
		}
	}

	// bless 之后源域的定义还留在 libvirt 中，一并清掉
	if err := d.client.DeleteDomain(name); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("name", name).
			Msg("Delete blessed domain definition failed, ignoring")
	}
	return nil
}

// Launch 从模板启动新域
func (d *LibvirtDriver) Launch(ctx context.Context, sourceName string, inst *entity.Instance, netInfo *entity.NetworkInfo, targetPages uint64, migrationURL string, imageRefs []string, params map[string]string) error {
	if migrationURL != "" {
		return d.launchMigration(ctx, inst, netInfo, migrationURL)
	}
	return d.launchClone(ctx, sourceName, inst, netInfo, targetPages, imageRefs, params)
}

// launchClone 普通克隆：增量磁盘 + 从归档内存镜像恢复
func (d *LibvirtDriver) launchClone(ctx context.Context, sourceName string, inst *entity.Instance, netInfo *entity.NetworkInfo, targetPages uint64, imageRefs []string, params map[string]string) error {
	memRef, descRef, diskRefs := splitImageRefs(imageRefs)
	if memRef == "" || descRef == "" {
		return fmt.Errorf("launch %s: incomplete image refs %v", inst.Name, imageRefs)
	}

	raw, err := os.ReadFile(filepath.Join(d.cfg.ImagesDir, descRef))
	if err != nil {
		return fmt.Errorf("read domain desc: %w", err)
	}
	dom, err := libvirt.ParseDomainXML(string(raw))
	if err != nil {
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}

	dom.Name = inst.Name
	dom.UUID = "" // 由 libvirt 重新分配
	if targetPages > 0 {
		dom.CurrentMemory = &libvirt.DomainMemory{Unit: "KiB", Value: targetPages * 4}
	}

	volumes, err := d.attachCloneDisks(ctx, inst, dom, diskRefs, params)
	if err != nil {
		return err
	}
	applyNetworkInfo(dom, netInfo)

	xmlDesc, err := dom.Marshal()
	if err != nil {
		d.removeCloneVolumes(ctx, volumes)
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}

	memPath := filepath.Join(d.cfg.ImagesDir, memRef)
	if err := d.client.RestoreDomainWithXML(memPath, xmlDesc); err != nil {
		// 恢复失败时刚建的增量卷会留在存储池里，顺手清掉
		d.removeCloneVolumes(ctx, volumes)
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("name", inst.Name).
		Str("source", sourceName).
		Uint64("target_pages", targetPages).
		Msg("Clone launched")
	return nil
}

// launchMigration 迁移接收端：域名称和磁盘不变，只换网络接入点
func (d *LibvirtDriver) launchMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error {
	memPath := strings.TrimPrefix(migrationURL, "file://")
	descPath := strings.TrimSuffix(memPath, memorySuffix) + descSuffix

	raw, err := os.ReadFile(descPath)
	if err != nil {
		return fmt.Errorf("read domain desc: %w", err)
	}
	dom, err := libvirt.ParseDomainXML(string(raw))
	if err != nil {
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}
	applyNetworkInfo(dom, netInfo)

	xmlDesc, err := dom.Marshal()
	if err != nil {
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}
	if err := d.client.RestoreDomainWithXML(memPath, xmlDesc); err != nil {
		return fmt.Errorf("launch %s: %w", inst.Name, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("name", inst.Name).
		Str("migration_url", migrationURL).
		Msg("Migrated domain launched")
	return nil
}

// removeCloneVolumes 删除克隆启动中途创建的增量卷
func (d *LibvirtDriver) removeCloneVolumes(ctx context.Context, volumeNames []string) {
	for _, name := range volumeNames {
		if err := d.client.DeleteVolume(d.cfg.InstancesPool, name); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("volume", name).
				Msg("Delete clone volume failed, ignoring")
		}
	}
}

// attachCloneDisks 为克隆创建增量卷并改写域定义中的磁盘来源
// 返回创建的卷名，启动失败时调用方负责清理
func (d *LibvirtDriver) attachCloneDisks(ctx context.Context, inst *entity.Instance, dom *libvirt.DomainXML, diskRefs []string, params map[string]string) ([]string, error) {
	refSet := make(map[string]struct{}, len(diskRefs))
	for _, r := range diskRefs {
		refSet[r] = struct{}{}
	}

	sizeGB := uint64(defaultCloneDiskGB)
	if v, ok := params["disk_gb"]; ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid disk_gb %q: %w", v, err)
		}
		sizeGB = n
	}

	var created []string
	for i := range dom.Devices.Disks {
		disk := &dom.Devices.Disks[i]
		if disk.Device != "disk" || disk.Source.File == "" {
			continue
		}
		base := filepath.Base(disk.Source.File)
		if _, ok := refSet[base]; !ok {
			continue
		}
		vol, err := d.client.CreateVolumeWithBackingStore(
			d.cfg.InstancesPool,
			inst.Name+"-"+base,
			sizeGB,
			"qcow2",
			filepath.Join(d.cfg.ImagesDir, base),
			"qcow2",
		)
		if err != nil {
			d.removeCloneVolumes(ctx, created)
			return nil, fmt.Errorf("create clone disk for %s: %w", base, err)
		}
		created = append(created, vol.Name)
		disk.Source.File = vol.Path
		disk.Driver.Type = "qcow2"
	}
	return created, nil
}

// PreMigration 迁移前在目标端做可行性检查
func (d *LibvirtDriver) PreMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error {
	if err := os.MkdirAll(d.cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("prepare state dir: %w", err)
	}
	if _, err := d.client.GetStoragePool(d.cfg.InstancesPool); err != nil {
		return fmt.Errorf("storage pool %s unavailable: %w", d.cfg.InstancesPool, err)
	}
	zerolog.Ctx(ctx).Info().
		Str("name", inst.Name).
		Str("migration_url", migrationURL).
		Msg("Pre migration checks passed")
	return nil
}

// PostMigration 迁移收尾，失败只影响本次调用方的补偿决策
func (d *LibvirtDriver) PostMigration(ctx context.Context, inst *entity.Instance, netInfo *entity.NetworkInfo, migrationURL string) error {
	zerolog.Ctx(ctx).Info().
		Str("name", inst.Name).
		Str("migration_url", migrationURL).
		Msg("Post migration done")
	return nil
}

// ListRunning 列出本机正在运行的域名称
func (d *LibvirtDriver) ListRunning(ctx context.Context) ([]string, error) {
	names, err := d.client.ListRunningDomains()
	if err != nil {
		return nil, fmt.Errorf("list running domains: %w", err)
	}
	return names, nil
}

// splitImageRefs 按扩展名把镜像引用拆成内存镜像、域定义和磁盘
func splitImageRefs(imageRefs []string) (memRef, descRef string, diskRefs []string) {
	for _, ref := range imageRefs {
		switch {
		case strings.HasSuffix(ref, memorySuffix):
			memRef = ref
		case strings.HasSuffix(ref, descSuffix):
			descRef = ref
		default:
			diskRefs = append(diskRefs, ref)
		}
	}
	return memRef, descRef, diskRefs
}

// applyNetworkInfo 按分配结果改写域定义中的网卡
func applyNetworkInfo(dom *libvirt.DomainXML, netInfo *entity.NetworkInfo) {
	if netInfo == nil {
		return
	}
	for i, nic := range netInfo.NICs {
		iface := libvirt.DomainInterface{
			Type:   "bridge",
			MAC:    &libvirt.DomainInterfaceMAC{Address: nic.MAC},
			Source: libvirt.DomainInterfaceSource{Bridge: nic.Bridge},
			Model:  &libvirt.DomainInterfaceModel{Type: "virtio"},
		}
		if i < len(dom.Devices.Interfaces) {
			dom.Devices.Interfaces[i] = iface
		} else {
			dom.Devices.Interfaces = append(dom.Devices.Interfaces, iface)
		}
	}
}

// moveFile 移动文件，跨文件系统时退化为复制加删除
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
