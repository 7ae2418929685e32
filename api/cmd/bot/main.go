package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comic-vault/api/internal/config"
	"comic-vault/api/internal/httpserver"
	"comic-vault/api/internal/identify"
	"comic-vault/api/internal/logging"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/metrics"
	"comic-vault/api/internal/telegram"
	"comic-vault/api/internal/vision/provider"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
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

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.WithError(err).Fatal("telegram")
	}
	bot.Debug = false
	log.Infof("authorized as @%s", bot.Self.UserName)

	r := &telegram.Router{
		Bot:         bot,
		Identifier:  svc,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		Timeout:     cfg.VisionTimeout,
		EngineName:  eng.Name(),
		EngineModel: eng.GetModel(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	mux := gin.New()
	mux.Use(httpserver.RequestID(), gin.Recovery())
	mux.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	mux.GET("/metrics", gin.WrapH(promhttp.Handler()))

	dispatch := func(upd tgbotapi.Update) { r.HandleUpdate(ctx, upd) }

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		path := telegram.WebhookPath(bot.Token)
		public := strings.TrimRight(webhookURL, "/") + path

		wh, err := tgbotapi.NewWebhook(public)
		if err != nil {
			log.WithError(err).Fatal("webhook")
		}
		wh.DropPendingUpdates = true
		if _, err := bot.Request(wh); err != nil {
			log.WithError(err).Fatal("set webhook")
		}
		mux.POST(path, telegram.WebhookHandler(bot.HandleUpdate, dispatch))
		log.Infof("webhook mode: %s", path)
	} else {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Warn("delete webhook")
		}
		go telegram.RunPolling(ctx, bot, dispatch)
		log.Info("polling mode")
	}

	if err := httpserver.Run(ctx, cfg.Addr(), mux, 10*time.Second); err != nil {
		log.WithError(err).Fatal("server")
	}
}
