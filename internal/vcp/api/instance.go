package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/vcp/internal/vcp/entity"
	"github.com/jimyag/vcp/pkg/ginx"
)

// Orchestrator 定义编排核心对 API 层暴露的操作
type Orchestrator interface {
	Bless(ctx context.Context, sourceID string) (*entity.Instance, error)
	Launch(ctx context.Context, blessedID, target string, params map[string]string) (*entity.Instance, error)
	Migrate(ctx context.Context, instanceID, dest string) error
	Discard(ctx context.Context, instanceID string) error
	Describe(ctx context.Context, instanceID string) (*entity.Instance, map[string]string, error)
	ListLaunched(ctx context.Context, blessedID string) ([]*entity.Instance, error)
	ListBlessed(ctx context.Context, sourceID string) ([]*entity.Instance, error)
}

type Instance struct {
	orchestrator Orchestrator
}

func NewInstance(orchestrator Orchestrator) *Instance {
	return &Instance{orchestrator: orchestrator}
}

func (i *Instance) RegisterRoutes(router *gin.RouterGroup) {
	instanceRouter := router.Group("/instances")
	instanceRouter.POST("/bless", ginx.Adapt5(i.BlessInstance))
	instanceRouter.POST("/launch", ginx.Adapt5(i.LaunchInstance))
	instanceRouter.POST("/migrate", ginx.Adapt4(i.MigrateInstance))
	instanceRouter.POST("/discard", ginx.Adapt4(i.DiscardInstance))
	instanceRouter.POST("/describe", ginx.Adapt5(i.DescribeInstance))
	instanceRouter.POST("/list_launched", ginx.Adapt5(i.ListLaunchedInstances))
	instanceRouter.POST("/list_blessed", ginx.Adapt5(i.ListBlessedInstances))
}

func (i *Instance) BlessInstance(ctx *gin.Context, req *entity.BlessInstanceRequest) (*entity.BlessInstanceResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("instance_id", req.InstanceID).Msg("BlessInstance called")

	inst, err := i.orchestrator.Bless(ctx.Request.Context(), req.InstanceID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to bless instance")
		return nil, err
	}
	return &entity.BlessInstanceResponse{Instance: inst}, nil
}

func (i *Instance) LaunchInstance(ctx *gin.Context, req *entity.LaunchInstanceRequest) (*entity.LaunchInstanceResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("instance_id", req.InstanceID).Str("target", req.Target).Msg("LaunchInstance called")

	inst, err := i.orchestrator.Launch(ctx.Request.Context(), req.InstanceID, req.Target, req.Params)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to launch instance")
		return nil, err
	}
	return &entity.LaunchInstanceResponse{Instance: inst}, nil
}

func (i *Instance) MigrateInstance(ctx *gin.Context, req *entity.MigrateInstanceRequest) error {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("instance_id", req.InstanceID).Str("dest", req.Dest).Msg("MigrateInstance called")

	if err := i.orchestrator.Migrate(ctx.Request.Context(), req.InstanceID, req.Dest); err != nil {
		logger.Error().Err(err).Msg("Failed to migrate instance")
		return err
	}
	return nil
}

func (i *Instance) DiscardInstance(ctx *gin.Context, req *entity.DiscardInstanceRequest) error {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("instance_id", req.InstanceID).Msg("DiscardInstance called")

	if err := i.orchestrator.Discard(ctx.Request.Context(), req.InstanceID); err != nil {
		logger.Error().Err(err).Msg("Failed to discard instance")
		return err
	}
	return nil
}

func (i *Instance) ListLaunchedInstances(ctx *gin.Context, req *entity.ListLaunchedInstancesRequest) (*entity.ListLaunchedInstancesResponse, error) {
	instances, err := i.orchestrator.ListLaunched(ctx.Request.Context(), req.InstanceID)
	if err != nil {
		zerolog.Ctx(ctx.Request.Context()).Error().Err(err).Msg("Failed to list launched instances")
		return nil, err
	}
	return &entity.ListLaunchedInstancesResponse{Instances: instances}, nil
}

func (i *Instance) ListBlessedInstances(ctx *gin.Context, req *entity.ListBlessedInstancesRequest) (*entity.ListBlessedInstancesResponse, error) {
	instances, err := i.orchestrator.ListBlessed(ctx.Request.Context(), req.InstanceID)
	if err != nil {
		zerolog.Ctx(ctx.Request.Context()).Error().Err(err).Msg("Failed to list blessed instances")
		return nil, err
	}
	return &entity.ListBlessedInstancesResponse{Instances: instances}, nil
}

func (i *Instance) DescribeInstance(ctx *gin.Context, req *entity.DescribeInstanceRequest) (*entity.DescribeInstanceResponse, error) {
	inst, md, err := i.orchestrator.Describe(ctx.Request.Context(), req.InstanceID)
	if err != nil {
		zerolog.Ctx(ctx.Request.Context()).Error().Err(err).Msg("Failed to describe instance")
		return nil, err
	}
	return &entity.DescribeInstanceResponse{Instance: inst, Metadata: md}, nil
}
