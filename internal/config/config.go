// Package config carga la configuración YAML de trustgate con overrides
// por variables de entorno. Toda la configuración se inyecta explícitamente
// a los componentes en el wiring: ningún componente lee estado global.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env     string `yaml:"env"`
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		// AdminAPIKey protege operaciones administrativas (re-binding).
		AdminAPIKey string `yaml:"admin_api_key"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// driver: "postgres" | "memory"
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		// driver: "memory" | "redis"
		Driver   string `yaml:"driver"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	License struct {
		Key           string `yaml:"key"`
		ServerURL     string `yaml:"server_url"`
		PublicKeyPath string `yaml:"public_key_path"`
		// GracePeriod: ventana offline tras la última validación exitosa.
		GracePeriod        string `yaml:"grace_period"`
		RevalidateInterval string `yaml:"revalidate_interval"`
		RequestTimeout     string `yaml:"request_timeout"`
	} `yaml:"license"`

	Session struct {
		MaxConcurrent int    `yaml:"max_concurrent"`
		IdleTimeout   string `yaml:"idle_timeout"`
		AbsoluteTTL   string `yaml:"absolute_ttl"`
		SweepInterval string `yaml:"sweep_interval"`
		TokenBytes    int    `yaml:"token_bytes"`
	} `yaml:"session"`

	MFA struct {
		Issuer          string `yaml:"issuer"`
		OOBCodeTTL      string `yaml:"oob_code_ttl"`
		BackupCodeCount int    `yaml:"backup_code_count"`
		// MasterKey: 32 bytes base64, cifra los secretos TOTP en reposo.
		MasterKey string `yaml:"master_key"`
	} `yaml:"mfa"`

	Alerts struct {
		// Rules threshold: tipo de evento, cuántos en qué ventana.
		Rules []AlertRule `yaml:"rules"`

		// Destinatarios del escalamiento.
		NotifyEmail string `yaml:"notify_email"`
		NotifyPhone string `yaml:"notify_phone"`
	} `yaml:"alerts"`

	Rate struct {
		Enabled bool `yaml:"enabled"`

		Alerts   CategoryLimit `yaml:"alerts"`
		Sessions CategoryLimit `yaml:"sessions"`
		MFA      CategoryLimit `yaml:"mfa"`
		Audit    CategoryLimit `yaml:"audit"`
	} `yaml:"rate"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"smtp"`

	SMS struct {
		GatewayURL string `yaml:"gateway_url"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"sms"`

	WhatsApp struct {
		GatewayURL string `yaml:"gateway_url"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"whatsapp"`

	// Permissions: tabla estática rol → recurso → acciones.
	Permissions []PermissionRule `yaml:"permissions"`
}

// AlertRule define un umbral del motor de alertas.
type AlertRule struct {
	EventType       string `yaml:"event_type"`
	Count           int    `yaml:"count"`
	Window          string `yaml:"window"`
	Severity        string `yaml:"severity"`
	EscalationLevel string `yaml:"escalation_level"`
}

// CategoryLimit define el límite de una categoría de endpoints.
type CategoryLimit struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

// PermissionRule define qué acciones habilita un rol sobre un recurso.
type PermissionRule struct {
	Role      string   `yaml:"role"`
	Resource  string   `yaml:"resource"`
	Actions   []string `yaml:"actions"`
	OwnerOnly bool     `yaml:"owner_only"`
}

// Load lee el YAML (si existe), aplica defaults y overrides de entorno.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "trustgate"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.License.GracePeriod == "" {
		c.License.GracePeriod = "168h" // 7 días
	}
	if c.License.RevalidateInterval == "" {
		c.License.RevalidateInterval = "6h"
	}
	if c.License.RequestTimeout == "" {
		c.License.RequestTimeout = "10s"
	}
	if c.Session.MaxConcurrent <= 0 {
		c.Session.MaxConcurrent = 3
	}
	if c.Session.IdleTimeout == "" {
		c.Session.IdleTimeout = "30m"
	}
	if c.Session.AbsoluteTTL == "" {
		c.Session.AbsoluteTTL = "12h"
	}
	if c.Session.SweepInterval == "" {
		c.Session.SweepInterval = "5m"
	}
	if c.Session.TokenBytes <= 0 {
		c.Session.TokenBytes = 32
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = "TrustGate"
	}
	if c.MFA.OOBCodeTTL == "" {
		c.MFA.OOBCodeTTL = "5m"
	}
	if c.MFA.BackupCodeCount <= 0 {
		c.MFA.BackupCodeCount = 10
	}
	if len(c.Alerts.Rules) == 0 {
		c.Alerts.Rules = []AlertRule{
			{EventType: "failed_login", Count: 3, Window: "10m", Severity: "medium", EscalationLevel: "supervisor"},
			{EventType: "failed_login", Count: 5, Window: "15m", Severity: "high", EscalationLevel: "manager"},
			{EventType: "mfa_failed", Count: 5, Window: "10m", Severity: "high", EscalationLevel: "manager"},
			{EventType: "mfa_disabled", Count: 1, Window: "1m", Severity: "critical", EscalationLevel: "emergency"},
			{EventType: "permission_change", Count: 3, Window: "1h", Severity: "medium", EscalationLevel: "supervisor"},
			{EventType: "session_limit", Count: 5, Window: "30m", Severity: "medium", EscalationLevel: "supervisor"},
		}
	}
	if len(c.Permissions) == 0 {
		c.Permissions = []PermissionRule{
			{Role: "admin", Resource: "*", Actions: []string{"*"}},
			{Role: "supervisor", Resource: "session", Actions: []string{"read", "manage"}},
			{Role: "supervisor", Resource: "work_order", Actions: []string{"read", "update", "assign"}},
			{Role: "supervisor", Resource: "invoice", Actions: []string{"read"}},
			{Role: "technician", Resource: "work_order", Actions: []string{"read", "update"}, OwnerOnly: true},
		}
	}
	if c.Rate.Alerts.Limit <= 0 {
		c.Rate.Alerts = CategoryLimit{Limit: 100, Window: "1h"}
	}
	if c.Rate.Sessions.Limit <= 0 {
		c.Rate.Sessions = CategoryLimit{Limit: 200, Window: "1h"}
	}
	if c.Rate.MFA.Limit <= 0 {
		c.Rate.MFA = CategoryLimit{Limit: 50, Window: "1h"}
	}
	if c.Rate.Audit.Limit <= 0 {
		c.Rate.Audit = CategoryLimit{Limit: 500, Window: "1h"}
	}
}

// applyEnv pisa valores con TRUSTGATE_* si están presentes.
func (c *Config) applyEnv() {
	if v := os.Getenv("TRUSTGATE_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("TRUSTGATE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRUSTGATE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TRUSTGATE_ADMIN_API_KEY"); v != "" {
		c.Server.AdminAPIKey = v
	}
	if v := os.Getenv("TRUSTGATE_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("TRUSTGATE_DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("TRUSTGATE_CACHE_DRIVER"); v != "" {
		c.Cache.Driver = v
	}
	if v := os.Getenv("TRUSTGATE_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("TRUSTGATE_LICENSE_KEY"); v != "" {
		c.License.Key = v
	}
	if v := os.Getenv("TRUSTGATE_LICENSE_SERVER_URL"); v != "" {
		c.License.ServerURL = v
	}
	if v := os.Getenv("TRUSTGATE_MFA_MASTER_KEY"); v != "" {
		c.MFA.MasterKey = v
	}
	if v := os.Getenv("TRUSTGATE_SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("TRUSTGATE_SESSION_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Session.MaxConcurrent = n
		}
	}
}

// Dur parsea un string de duración con fallback.
func Dur(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
