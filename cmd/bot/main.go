package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/zhouzirui/z-relay/internal/config"
	"github.com/zhouzirui/z-relay/internal/handler"
	"github.com/zhouzirui/z-relay/internal/handler/ops"
	"github.com/zhouzirui/z-relay/internal/handler/slackbot"
	"github.com/zhouzirui/z-relay/internal/logger"
	"github.com/zhouzirui/z-relay/internal/metrics"
	"github.com/zhouzirui/z-relay/internal/service/relay"
	"github.com/zhouzirui/z-relay/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("no .env file loaded, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	store := session.NewStore(cfg.Session.TTL)
	metrics.RegisterSessionGauge(store.Size)

	sweeper := session.NewSweeper(store, cfg.Session.SweepInterval, log.WithField("component", "session"))
	sweeper.Start(ctx)
	defer sweeper.Stop()

	relayClient := relay.NewClient(cfg.Agent, log.WithField("component", "relay"))

	api := slack.New(
		cfg.Slack.BotToken,
		slack.OptionAppLevelToken(cfg.Slack.AppToken),
		slack.OptionDebug(cfg.Slack.Debug),
	)
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		log.WithError(err).Fatal("Slack auth test failed")
	}
	log.WithFields(logrus.Fields{
		"user": auth.User,
		"team": auth.Team,
	}).Info("authenticated with Slack")

	botLog := log.WithField("component", "slackbot")
	botHandler := slackbot.NewHandler(api, relayClient, store, auth.UserID, botLog)
	runtime := slackbot.NewRuntime(socketmode.New(api), botHandler, botLog)

	go func() {
		if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Slack runtime stopped")
			stop()
		}
	}()

	opsHandler := ops.New(store, auth.User)
	router := handler.NewRouter(opsHandler)

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log *logrus.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", serverCfg.Addr).Info("z-relay ops server listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
