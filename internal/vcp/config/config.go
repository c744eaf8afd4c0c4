// Package config 加载 VCP 的运行配置
// 先读可选的 YAML 配置文件，再用环境变量覆盖，宿主机名之外的项都有
// 可用的默认值
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Host 本宿主机名称，也是消息队列的宿主机段
	// 可以通过环境变量 VCP_HOST 配置，默认取操作系统主机名
	Host string `yaml:"host"`

	// Address HTTP 服务绑定地址
	// 可以通过环境变量 VCP_ADDRESS 配置
	Address string `yaml:"address"`

	// DBPath 库存数据库路径
	// 可以通过环境变量 VCP_DB_PATH 配置
	DBPath string `yaml:"db_path"`

	// LibvirtURI libvirt 连接 URI
	// 支持以下格式：
	// - qemu:///system (本地系统连接，默认)
	// - qemu+ssh://user@host/system (SSH 远程连接)
	// - qemu+tcp://host/system (TCP 远程连接)
	// 可以通过环境变量 LIBVIRT_URI 配置
	LibvirtURI string `yaml:"libvirt_uri"`

	// DataDir 数据目录，bless 暂存产物和镜像归档都放在它下面
	// 可以通过环境变量 VCP_DATA_DIR 配置
	DataDir string `yaml:"data_dir"`

	// InstancesPool 实例增量磁盘所在的 libvirt 存储池
	InstancesPool string `yaml:"instances_pool"`

	// NetworkName / Bridge 内置静态网络服务的参数
	NetworkName string `yaml:"network_name"`
	Bridge      string `yaml:"bridge"`

	// Peers 宿主机名到对端基地址的映射，消息总线用
	Peers map[string]string `yaml:"peers"`

	// OutboundMigrationAddress 对外迁移地址，设置后跳过路由探测
	// 可以通过环境变量 VCP_MIGRATION_ADDRESS 配置
	OutboundMigrationAddress string `yaml:"outbound_migration_address"`

	// ReconcileInterval 宿主机对账周期
	ReconcileInterval Duration `yaml:"reconcile_interval"`
}

// Duration 支持 "30s" 这类写法的时长
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// New 加载配置
// 配置文件路径来自环境变量 VCP_CONFIG，未设置时只用默认值和环境变量
func New() (*Config, error) {
	cfg := &Config{
		Address:           "0.0.0.0:7780",
		LibvirtURI:        "qemu:///system",
		DataDir:           defaultDataDir(),
		InstancesPool:     "default",
		ReconcileInterval: Duration(time.Minute),
	}

	if path := os.Getenv("VCP_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("determine host name: %w", err)
		}
		cfg.Host = hostname
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "vcp.db")
	}
	return cfg, nil
}

// applyEnv 环境变量优先于配置文件
func applyEnv(cfg *Config) {
	if v := os.Getenv("VCP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("VCP_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("VCP_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LIBVIRT_URI"); v != "" {
		cfg.LibvirtURI = v
	}
	if v := os.Getenv("VCP_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VCP_MIGRATION_ADDRESS"); v != "" {
		cfg.OutboundMigrationAddress = v
	}
}

// StateDir bless 产物的暂存目录，迁移时需要宿主机间共享
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir, "state")
}

// ImagesDir 模板镜像归档目录
func (c *Config) ImagesDir() string {
	return filepath.Join(c.DataDir, "images")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "vcp")
	}
	return filepath.Join(".", "data")
}
