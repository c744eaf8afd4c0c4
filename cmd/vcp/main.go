package main

import (
	"context"

	_ "github.com/jimmicro/version"
	"github.com/rs/zerolog/log"

	"github.com/jimyag/vcp/internal/vcp"
	"github.com/jimyag/vcp/internal/vcp/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create config")
	}
	server, err := vcp.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}
	if err := server.Run(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to run server")
	}
}
