package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"

	"comic-vault/api/internal/config"
	"comic-vault/api/internal/handle"
	"comic-vault/api/internal/httpserver"
	"comic-vault/api/internal/identify"
	"comic-vault/api/internal/logging"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/vision/provider"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	log.Infof("%s %s starting up", handle.ServiceName, handle.Version)
	if cfg.OpenAIConfigured() {
		log.Infof("OPENAI_API_KEY is configured (starts with: %s)", config.MaskedKey(cfg.OpenAIAPIKey))
	} else {
		log.Warn("OPENAI_API_KEY is not set; identification will fail until it is")
	}

	eng, err := provider.NewEngine(cfg)
	if err != nil {
		log.WithError(err).Fatal("vision engine")
	}
	parse, err := metadata.ParserFor(cfg.ParseMode)
	if err != nil {
		log.WithError(err).Fatal("parser")
	}

	svc := identify.New(
		provider.NewClient(cfg, eng),
		identify.WithParser(parse),
		identify.WithAllowedFormats(cfg.AllowedFormats),
		identify.WithMaxPixels(cfg.ImageMaxPixels),
	)

	router := httpserver.NewRouter(cfg, handle.New(svc, cfg))
	httpserver.LogRoutes(router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpserver.Run(ctx, cfg.Addr(), router, 15*time.Second); err != nil {
		log.WithError(err).Fatal("server")
	}
	log.Infof("%s stopped", handle.ServiceName)
}
