package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lq216/gonopbx/internal/ami"
	"github.com/lq216/gonopbx/internal/api"
	"github.com/lq216/gonopbx/internal/asterisk"
	"github.com/lq216/gonopbx/internal/config"
	"github.com/lq216/gonopbx/internal/database"
	"github.com/lq216/gonopbx/internal/database/models"
	"github.com/lq216/gonopbx/internal/metrics"
	"github.com/lq216/gonopbx/internal/mqtt"
	"github.com/lq216/gonopbx/internal/ws"
)

func main() {
	// A .env file is optional; real env vars take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting gonopbx",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"asterisk_dir", cfg.AsteriskDir,
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := database.NewAdminUserRepository(db)
	peers := database.NewSIPPeerRepository(db)
	trunks := database.NewSIPTrunkRepository(db)
	routes := database.NewInboundRouteRepository(db)
	forwards := database.NewCallForwardRepository(db)
	mailboxes := database.NewVoicemailMailboxRepository(db)
	ringGroups := database.NewRingGroupRepository(db)
	ivrMenus := database.NewIVRMenuRepository(db)
	contacts := database.NewContactRepository(db)
	cdrs := database.NewCDRRepository(db)
	settings := database.NewSystemSettingRepository(db)
	audit := database.NewAuditLogRepository(db)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := seedAdminUser(startCtx, users, cfg.AdminPassword); err != nil {
		slog.Error("failed to seed admin user", "error", err)
		startCancel()
		os.Exit(1)
	}
	if err := backfillMailboxes(startCtx, peers, mailboxes); err != nil {
		slog.Error("failed to backfill mailboxes", "error", err)
	}
	startCancel()

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to decode jwt secret", "error", err)
		os.Exit(1)
	}

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Render and apply all Asterisk config files before accepting traffic
	// so the engine matches the database from the first request on.
	manager := asterisk.NewManager(
		peers, trunks, routes, forwards, mailboxes, ringGroups, ivrMenus, settings,
		asterisk.NewFileApplier(cfg.AsteriskDir, cfg.AsteriskBin, logger),
		logger,
	)
	if err := manager.ApplyAll(appCtx); err != nil {
		slog.Warn("initial asterisk apply incomplete", "error", err)
	}

	// MQTT is optional; a nil publisher is a working no-op.
	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled() {
		publisher, err = mqtt.Connect(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword, logger)
		if err != nil {
			slog.Warn("mqtt disabled, broker unreachable", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	hub := ws.NewHub(logger)
	defer hub.Close()

	amiClient := ami.NewClient(ami.Config{
		Address:  cfg.AMIAddr,
		Username: cfg.AMIUsername,
		Password: cfg.AMISecret,
	}, logger)
	correlator := ami.NewCorrelator(cdrs, publisher, hub, logger)

	go amiClient.Run(appCtx)
	go correlator.Run(appCtx, amiClient.Events())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(correlator, amiClient, cdrs, hub, time.Now()),
	)

	handler := api.NewServer(api.Deps{
		Logger:     logger,
		Users:      users,
		Peers:      peers,
		Trunks:     trunks,
		Routes:     routes,
		Forwards:   forwards,
		Mailboxes:  mailboxes,
		RingGroups: ringGroups,
		IVRMenus:   ivrMenus,
		Contacts:   contacts,
		CDRs:       cdrs,
		Settings:   settings,
		Audit:      audit,
		Manager:    manager,
		Correlator: correlator,
		AMI:        amiClient,
		Hub:        hub,
		Metrics:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		JWTSecret:  jwtSecret,
		APIKey:     cfg.APIKey,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("gonopbx stopped")
}

// seedAdminUser creates the initial admin account when the user table is
// empty. Without a configured bootstrap password the server still starts,
// but no one can log in until a user is created out of band.
func seedAdminUser(ctx context.Context, users database.AdminUserRepository, password string) error {
	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting admin users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		slog.Warn("no admin users exist and no admin-password configured; logins will fail")
		return nil
	}

	hash, err := database.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	user := &models.AdminUser{
		Username:     "admin",
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         "admin",
	}
	if err := users.Create(ctx, user); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	slog.Info("seeded initial admin user", "username", user.Username)
	return nil
}

// backfillMailboxes ensures every peer has a mailbox record so voicemail
// branches in the dialplan always resolve, covering rows created before
// mailboxes were provisioned automatically.
func backfillMailboxes(ctx context.Context, peers database.SIPPeerRepository, mailboxes database.VoicemailMailboxRepository) error {
	all, err := peers.List(ctx)
	if err != nil {
		return fmt.Errorf("listing peers: %w", err)
	}
	for _, peer := range all {
		box, err := mailboxes.GetByExtension(ctx, peer.Extension)
		if err != nil {
			return fmt.Errorf("loading mailbox %s: %w", peer.Extension, err)
		}
		if box != nil {
			continue
		}
		box = &models.VoicemailMailbox{
			Extension:   peer.Extension,
			Enabled:     true,
			Name:        peer.CallerID,
			RingTimeout: 20,
		}
		if err := mailboxes.Upsert(ctx, box); err != nil {
			return fmt.Errorf("creating mailbox %s: %w", peer.Extension, err)
		}
		slog.Info("backfilled mailbox", "extension", peer.Extension)
	}
	return nil
}
