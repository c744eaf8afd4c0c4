// Package vcp 提供 VCP 服务器的主入口和初始化逻辑
package vcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jimmicro/grace"
	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/api"
	"github.com/jimyag/vcp/internal/vcp/bus"
	"github.com/jimyag/vcp/internal/vcp/config"
	"github.com/jimyag/vcp/internal/vcp/driver"
	"github.com/jimyag/vcp/internal/vcp/inventory"
	"github.com/jimyag/vcp/internal/vcp/manager"
	"github.com/jimyag/vcp/internal/vcp/network"
	"github.com/jimyag/vcp/internal/vcp/repository"
	"github.com/jimyag/vcp/pkg/libvirt"
)

type Server struct {
	cfg        *config.Config
	api        *api.API
	repo       *repository.Repository
	reconciler *reconciler
}

func New(cfg *config.Config) (*Server, error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	// 1. 库存网关，底层是 SQLite
	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	inv := inventory.New(repo)

	// 2. Hypervisor 驱动
	libvirtClient, err := libvirt.New(cfg.LibvirtURI)
	if err != nil {
		return nil, fmt.Errorf("connect libvirt: %w", err)
	}
	drv := driver.NewLibvirtDriver(libvirtClient, driver.Config{
		StateDir:      cfg.StateDir(),
		ImagesDir:     cfg.ImagesDir(),
		InstancesPool: cfg.InstancesPool,
	})

	// 3. 宿主机间消息总线与网络服务
	hostBus := bus.NewHTTPBus(cfg.Peers)
	netSvc := network.NewStaticService(cfg.NetworkName, cfg.Bridge)

	// 4. 编排核心
	m := manager.New(manager.Config{
		Host:                     cfg.Host,
		Node:                     cfg.Host,
		OutboundMigrationAddress: cfg.OutboundMigrationAddress,
	}, inv, drv, hostBus, netSvc, manager.NewLogNotifier(cfg.Host))

	// 5. 本机承接的队列方法
	dispatcher := bus.NewDispatcher()
	registerBusHandlers(dispatcher, m, inv, netSvc)

	// 6. API
	apiInstance, err := api.New(cfg.Address, m, dispatcher)
	if err != nil {
		return nil, err
	}

	server := &Server{
		cfg:        cfg,
		api:        apiInstance,
		repo:       repo,
		reconciler: newReconciler(m, time.Duration(cfg.ReconcileInterval)),
	}
	return server, nil
}

// registerBusHandlers 挂载其他宿主机会调用到本机的队列方法
func registerBusHandlers(dispatcher *bus.Dispatcher, m *manager.Manager, inv *inventory.Gateway, netSvc network.Service) {
	// 迁移目的端的 launch，由源端跨宿主机调用
	dispatcher.Register(bus.TopicVCP, "launch_instance", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args manager.LaunchCallArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return nil, m.LaunchMigration(ctx, args.InstanceID, args.MigrationURL, args.NetworkInfo)
	})

	dispatcher.Register(bus.TopicNetwork, "setup_network", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Network string `json:"network"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return nil, netSvc.SetupNetwork(ctx, args.Network)
	})

	// 迁移目的端预先准备实例的所有网络
	dispatcher.Register(bus.TopicCompute, "pre_live_migration", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			InstanceID string `json:"instance_id"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		inst, err := inv.Get(ctx, args.InstanceID)
		if err != nil {
			return nil, err
		}
		netInfo, err := netSvc.GetInstanceNetworkInfo(ctx, inst)
		if err != nil {
			return nil, err
		}
		for _, nic := range netInfo.NICs {
			if err := netSvc.SetupNetwork(ctx, nic.Network); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	dispatcher.Register(bus.TopicCompute, "rollback_live_migration", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			InstanceID string `json:"instance_id"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		inst, err := inv.Get(ctx, args.InstanceID)
		if err != nil {
			return nil, err
		}
		return nil, netSvc.TeardownHostNetworking(ctx, inst)
	})

	// 卷服务在独立部署时会校验卷可被远端挂载，这里只确认请求可达
	dispatcher.Register(bus.TopicVolume, "check_for_export", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			InstanceID string `json:"instance_id"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		zerolog.Ctx(ctx).Info().
			Str("instance_id", args.InstanceID).
			Msg("check_for_export acknowledged")
		return nil, nil
	})
}

func (s *Server) Run(ctx context.Context) error {
	services := []grace.Grace{
		s.api,
		s.reconciler,
	}

	shepherd := grace.NewShepherd(
		services,
		grace.WithTimeout(30*time.Second),
		grace.WithLogger(&zerologLogger{}),
	)

	shepherd.Start(ctx)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.api.Shutdown(ctx); err != nil {
		return err
	}
	return s.repo.Close()
}

// Name 实现 grace.Grace 接口
func (s *Server) Name() string {
	return "VCP Server"
}

// reconciler 周期性地对账本宿主机上处于迁移中的实例
type reconciler struct {
	m        *manager.Manager
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func newReconciler(m *manager.Manager, interval time.Duration) *reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &reconciler{
		m:        m,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *reconciler) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.m.RefreshHost(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("Host reconciliation failed")
			}
		case <-r.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *reconciler) Shutdown(ctx context.Context) error {
	close(r.stop)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name 实现 grace.Grace 接口
func (r *reconciler) Name() string {
	return "Host Reconciler"
}

// zerologLogger 实现 grace.Logger 接口
type zerologLogger struct{}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Info()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Error()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
