package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/business"
	"github.com/warshatech/trustgate/internal/cache"
	"github.com/warshatech/trustgate/internal/config"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/http/controllers"
	"github.com/warshatech/trustgate/internal/http/router"
	"github.com/warshatech/trustgate/internal/http/server"
	"github.com/warshatech/trustgate/internal/license"
	"github.com/warshatech/trustgate/internal/mfa"
	"github.com/warshatech/trustgate/internal/notify"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/observability/metrics"
	"github.com/warshatech/trustgate/internal/permission"
	"github.com/warshatech/trustgate/internal/rate"
	"github.com/warshatech/trustgate/internal/security/fingerprint"
	"github.com/warshatech/trustgate/internal/security/secretbox"
	"github.com/warshatech/trustgate/internal/session"
	"github.com/warshatech/trustgate/internal/store/adapters/memory"
	"github.com/warshatech/trustgate/internal/store/adapters/pg"
)

// dataStore es lo que el wiring necesita de cualquier backend.
type dataStore interface {
	Sessions() repository.SessionRepository
	MFA() repository.MFARepository
	Alerts() repository.AlertRepository
	Audit() repository.AuditRepository
	License() repository.LicenseRepository
	Business() repository.BusinessRepository
	Users() repository.UserRepository
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfgPath := os.Getenv("TRUSTGATE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	})
	defer func() { _ = logger.Sync() }()
	l := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	var st dataStore
	switch cfg.Storage.Driver {
	case "postgres":
		pgStore, err := pg.New(ctx, cfg.Storage.DSN)
		if err != nil {
			l.Fatal("postgres connect failed", logger.Err(err))
		}
		defer pgStore.Close()
		st = pgStore
		l.Info("storage ready", logger.String("driver", "postgres"))
	default:
		st = memory.New()
		l.Info("storage ready", logger.String("driver", "memory"))
	}

	// --- cache, contadores y rate limiting ---
	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.App.Name,
	})
	if err != nil {
		l.Fatal("cache init failed", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	var counter alert.Counter
	var limiter rate.MultiLimiter
	if cfg.Cache.Driver == "redis" {
		rc := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer func() { _ = rc.Close() }()
		counter = alert.NewRedisCounter(rc, cfg.App.Name)
		limiter = rate.NewMultiRedisLimiter(rc, cfg.App.Name)
	} else {
		counter = alert.NewMemoryCounter()
		limiter = rate.NewMemoryLimiter()
	}
	if !cfg.Rate.Enabled {
		limiter = nil
	}

	// --- auditoría y notificaciones ---
	auditor := audit.NewRecorder(st.Audit())
	auditSummary := audit.NewSummary(st.Audit())

	var senders []notify.Sender
	if cfg.SMTP.Host != "" {
		senders = append(senders, notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password))
	}
	if cfg.SMS.GatewayURL != "" {
		senders = append(senders, notify.NewSMSSender(cfg.SMS.GatewayURL, cfg.SMS.APIKey))
	}
	if cfg.WhatsApp.GatewayURL != "" {
		senders = append(senders, notify.NewWhatsAppSender(cfg.WhatsApp.GatewayURL, cfg.WhatsApp.APIKey))
	}
	dispatcher := notify.NewDispatcher(senders...)

	alertEngine := alert.NewEngine(alert.Config{
		Rules:       alert.RulesFromConfig(cfg.Alerts.Rules),
		Counter:     counter,
		Repo:        st.Alerts(),
		Auditor:     auditor,
		Dispatcher:  dispatcher,
		NotifyEmail: cfg.Alerts.NotifyEmail,
		NotifyPhone: cfg.Alerts.NotifyPhone,
	})

	// --- sesiones ---
	idleTimeout := config.Dur(cfg.Session.IdleTimeout, 0)
	sessions := session.NewManager(st.Sessions(), auditor, alertEngine, session.Options{
		MaxConcurrent: cfg.Session.MaxConcurrent,
		IdleTimeout:   idleTimeout,
		AbsoluteTTL:   config.Dur(cfg.Session.AbsoluteTTL, 0),
		TokenBytes:    cfg.Session.TokenBytes,
	})
	sweeper := session.NewSweeper(sessions, config.Dur(cfg.Session.SweepInterval, 0))
	go sweeper.Run(ctx)

	// --- mfa ---
	masterKey := cfg.MFA.MasterKey
	if masterKey == "" {
		// Sin key configurada los secretos TOTP no sobreviven un
		// reinicio. Suficiente para dev, inaceptable en prod.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			l.Fatal("master key generation failed", logger.Err(err))
		}
		masterKey = base64.StdEncoding.EncodeToString(buf)
		l.Warn("mfa master key not configured, using ephemeral key")
	}
	box, err := secretbox.New(masterKey)
	if err != nil {
		l.Fatal("mfa master key invalid", logger.Err(err))
	}
	mfaManager := mfa.NewManager(st.MFA(), st.Users(), cacheClient, box, auditor, alertEngine, dispatcher, mfa.Options{
		Issuer:          cfg.MFA.Issuer,
		OOBCodeTTL:      config.Dur(cfg.MFA.OOBCodeTTL, 0),
		BackupCodeCount: cfg.MFA.BackupCodeCount,
	})

	// --- permisos y negocio ---
	permEngine := permission.NewEngine(cfg.Permissions, auditor, idleTimeout)
	binder := business.NewBinder(st.Business(), auditor)

	// --- licencia ---
	var licenseCtrl *controllers.LicenseController
	var reval *license.Revalidator
	if cfg.License.Key != "" {
		verifier, err := license.NewVerifier(cfg.License.PublicKeyPath)
		if err != nil {
			l.Fatal("license public key load failed", logger.Err(err))
		}
		client := license.NewClient(cfg.License.ServerURL, config.Dur(cfg.License.RequestTimeout, 0))
		validator := license.NewValidator(st.License(), client, verifier, auditor, license.Options{
			GracePeriod: config.Dur(cfg.License.GracePeriod, 0),
		})
		fps := fingerprint.New()
		reval = license.NewRevalidator(validator, fps, cfg.License.Key, config.Dur(cfg.License.RevalidateInterval, 0))
		go reval.Run(ctx)
		licenseCtrl = controllers.NewLicenseController(validator, fps, cfg.License.Key)
	} else {
		l.Warn("no license key configured, license endpoints disabled")
	}

	// --- http ---
	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		l.Fatal("metrics registration failed", logger.Err(err))
	}

	handler := router.New(router.Deps{
		Auth:        controllers.NewAuthController(st.Users(), sessions, alertEngine, auditor),
		Sessions:    controllers.NewSessionsController(sessions, permEngine),
		MFA:         controllers.NewMFAController(mfaManager, sessions),
		Alerts:      controllers.NewAlertsController(alertEngine),
		Audit:       controllers.NewAuditController(auditor, auditSummary, st.Audit()),
		Permissions: controllers.NewPermissionsController(permEngine, st.Users()),
		License:     licenseCtrl,
		Business:    controllers.NewBusinessController(binder),
		Health:      controllers.NewHealthController(cfg.App.Version, reval),

		SessionManager: sessions,
		Users:          st.Users(),
		Limiter:        limiter,
		RateLimits: router.RateLimits{
			Alerts:   router.Limit{Limit: cfg.Rate.Alerts.Limit, Window: config.Dur(cfg.Rate.Alerts.Window, 0)},
			Sessions: router.Limit{Limit: cfg.Rate.Sessions.Limit, Window: config.Dur(cfg.Rate.Sessions.Window, 0)},
			MFA:      router.Limit{Limit: cfg.Rate.MFA.Limit, Window: config.Dur(cfg.Rate.MFA.Window, 0)},
			Audit:    router.Limit{Limit: cfg.Rate.Audit.Limit, Window: config.Dur(cfg.Rate.Audit.Window, 0)},
		},
		AdminKey: cfg.Server.AdminAPIKey,
		Metrics:  metricsHandler,
	})

	err = server.Run(ctx, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     config.Dur(cfg.Server.ReadTimeout, 0),
		WriteTimeout:    config.Dur(cfg.Server.WriteTimeout, 0),
		ShutdownTimeout: config.Dur(cfg.Server.ShutdownTimeout, 0),
	}, handler)
	if err != nil {
		l.Fatal("server failed", logger.Err(err))
	}
	l.Info("shutdown complete")
}
