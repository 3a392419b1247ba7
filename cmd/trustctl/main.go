// trustctl es el CLI de operación contra la API HTTP de trustgate.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL  string
	Token    string // Bearer de sesión
	AdminKey string
	HTTP     *http.Client
}

func (c *client) do(method, path string, payload any) (int, []byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
	}

	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.AdminKey != "" {
		req.Header.Set("X-Admin-Key", c.AdminKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) run(method, path string, payload any) error {
	status, body, err := c.do(method, path, payload)
	if err != nil {
		return err
	}
	c.print(status, body)
	if status/100 != 2 {
		return fmt.Errorf("status=%d", status)
	}
	return nil
}

func (c *client) print(status int, body []byte) {
	var v any
	if json.Unmarshal(body, &v) == nil {
		p, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(p))
		return
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cl := &client{
		BaseURL:  envOr("TRUSTGATE_URL", "http://localhost:8080"),
		Token:    envOr("TRUSTGATE_TOKEN", ""),
		AdminKey: envOr("TRUSTGATE_ADMIN_API_KEY", ""),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}

	root := &cobra.Command{
		Use:           "trustctl",
		Short:         "CLI de operación para trustgate",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cl.BaseURL, "url", cl.BaseURL, "URL base de la API (env TRUSTGATE_URL)")
	root.PersistentFlags().StringVar(&cl.Token, "token", cl.Token, "token de sesión Bearer (env TRUSTGATE_TOKEN)")
	root.PersistentFlags().StringVar(&cl.AdminKey, "admin-key", cl.AdminKey, "API key administrativa (env TRUSTGATE_ADMIN_API_KEY)")

	// --- auth ---
	var loginEmail, loginPassword string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Autenticarse y obtener un token de sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loginEmail == "" || loginPassword == "" {
				return fmt.Errorf("--email y --password son requeridos")
			}
			return cl.run("POST", "/v1/auth/login", map[string]any{
				"email":    loginEmail,
				"password": loginPassword,
			})
		},
	}
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email del usuario")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password del usuario")
	root.AddCommand(loginCmd)

	// --- sessions ---
	sessionsCmd := &cobra.Command{Use: "sessions", Short: "Gestión de sesiones"}

	var statusUser string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Sesiones activas del usuario autenticado",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/sessions/status"
			if statusUser != "" {
				path += "?user_email=" + url.QueryEscape(statusUser)
			}
			return cl.run("GET", path, nil)
		},
	}
	statusCmd.Flags().StringVar(&statusUser, "user", "", "consultar sesiones de otro usuario (requiere session/read)")
	sessionsCmd.AddCommand(statusCmd)

	var revokeID, revokeReason string
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revocar una sesión por ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revokeID == "" {
				return fmt.Errorf("--id es requerido")
			}
			return cl.run("POST", "/v1/sessions/revoke", map[string]any{
				"session_id": revokeID,
				"reason":     revokeReason,
			})
		},
	}
	revokeCmd.Flags().StringVar(&revokeID, "id", "", "session ID")
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "motivo de la revocación")
	sessionsCmd.AddCommand(revokeCmd)

	var keepCurrent bool
	var revokeAllUser string
	revokeAllCmd := &cobra.Command{
		Use:   "revoke-all",
		Short: "Revocar todas las sesiones del usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("POST", "/v1/sessions/revoke-all", map[string]any{
				"keep_current": keepCurrent,
				"user_email":   revokeAllUser,
			})
		},
	}
	revokeAllCmd.Flags().BoolVar(&keepCurrent, "keep-current", true, "preservar la sesión actual")
	revokeAllCmd.Flags().StringVar(&revokeAllUser, "user", "", "revocar las sesiones de otro usuario (requiere session/manage)")
	sessionsCmd.AddCommand(revokeAllCmd)

	var statsDays int
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Estadísticas de sesiones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("GET", fmt.Sprintf("/v1/sessions/statistics?days=%d", statsDays), nil)
		},
	}
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "ventana en días")
	sessionsCmd.AddCommand(statsCmd)
	root.AddCommand(sessionsCmd)

	// --- mfa ---
	mfaCmd := &cobra.Command{Use: "mfa", Short: "Segundo factor"}

	var mfaMethod string
	enableCmd := &cobra.Command{
		Use:   "enable",
		Short: "Enrolar MFA (imprime secreto y backup codes una única vez)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("POST", "/v1/mfa/enable", map[string]any{"method": mfaMethod})
		},
	}
	enableCmd.Flags().StringVar(&mfaMethod, "method", "totp", "totp|sms|whatsapp|email")
	mfaCmd.AddCommand(enableCmd)

	mfaCmd.AddCommand(&cobra.Command{
		Use:   "send-code",
		Short: "Enviar código out-of-band por el canal enrolado",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("POST", "/v1/mfa/send-code", map[string]any{})
		},
	})

	var mfaCode string
	var mfaBackup bool
	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verificar un código y elevar la sesión",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mfaCode == "" {
				return fmt.Errorf("--code es requerido")
			}
			return cl.run("POST", "/v1/mfa/verify", map[string]any{
				"code":           mfaCode,
				"is_backup_code": mfaBackup,
			})
		},
	}
	verifyCmd.Flags().StringVar(&mfaCode, "code", "", "código TOTP/OOB o backup code")
	verifyCmd.Flags().BoolVar(&mfaBackup, "backup", false, "el código es un backup code")
	mfaCmd.AddCommand(verifyCmd)

	mfaCmd.AddCommand(&cobra.Command{
		Use:   "backup-codes",
		Short: "Rotar el set completo de backup codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("POST", "/v1/mfa/backup-codes", map[string]any{})
		},
	})

	var disableCode string
	var disableBackup bool
	disableCmd := &cobra.Command{
		Use:   "disable",
		Short: "Deshabilitar MFA (exige un código válido)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if disableCode == "" {
				return fmt.Errorf("--code es requerido")
			}
			return cl.run("POST", "/v1/mfa/disable", map[string]any{
				"code":           disableCode,
				"is_backup_code": disableBackup,
			})
		},
	}
	disableCmd.Flags().StringVar(&disableCode, "code", "", "código vigente")
	disableCmd.Flags().BoolVar(&disableBackup, "backup", false, "el código es un backup code")
	mfaCmd.AddCommand(disableCmd)
	root.AddCommand(mfaCmd)

	// --- alerts ---
	alertsCmd := &cobra.Command{Use: "alerts", Short: "Alertas de seguridad"}

	var trType, trSeverity, trDetails, trUser string
	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Emitir una alerta manualmente",
		RunE: func(cmd *cobra.Command, args []string) error {
			if trType == "" {
				return fmt.Errorf("--type es requerido")
			}
			return cl.run("POST", "/v1/alerts/trigger", map[string]any{
				"alert_type": trType,
				"severity":   trSeverity,
				"details":    trDetails,
				"user_email": trUser,
			})
		},
	}
	triggerCmd.Flags().StringVar(&trType, "type", "", "tipo de alerta")
	triggerCmd.Flags().StringVar(&trSeverity, "severity", "info", "info|medium|high|critical")
	triggerCmd.Flags().StringVar(&trDetails, "details", "", "detalle")
	triggerCmd.Flags().StringVar(&trUser, "user", "", "usuario afectado")
	alertsCmd.AddCommand(triggerCmd)

	var alertDays int
	alertSummaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Resumen de alertas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("GET", fmt.Sprintf("/v1/alerts/summary?days=%d", alertDays), nil)
		},
	}
	alertSummaryCmd.Flags().IntVar(&alertDays, "days", 7, "ventana en días")
	alertsCmd.AddCommand(alertSummaryCmd)

	var resolveID, resolveNotes string
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolver una alerta",
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolveID == "" {
				return fmt.Errorf("--id es requerido")
			}
			return cl.run("POST", "/v1/alerts/"+resolveID+"/resolve", map[string]any{
				"notes": resolveNotes,
			})
		},
	}
	resolveCmd.Flags().StringVar(&resolveID, "id", "", "alert ID")
	resolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "notas de resolución")
	alertsCmd.AddCommand(resolveCmd)
	root.AddCommand(alertsCmd)

	// --- audit ---
	auditCmd := &cobra.Command{Use: "audit", Short: "Audit trail"}

	var auditDays int
	var auditTypes string
	auditEventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Consultar eventos de auditoría",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/audit/events?days=%d", auditDays)
			if auditTypes != "" {
				path += "&types=" + auditTypes
			}
			return cl.run("GET", path, nil)
		},
	}
	auditEventsCmd.Flags().IntVar(&auditDays, "days", 7, "ventana en días")
	auditEventsCmd.Flags().StringVar(&auditTypes, "types", "", "tipos separados por coma")
	auditCmd.AddCommand(auditEventsCmd)

	var auditSummaryDays int
	auditSummaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Resumen del audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("GET", fmt.Sprintf("/v1/audit/summary?days=%d", auditSummaryDays), nil)
		},
	}
	auditSummaryCmd.Flags().IntVar(&auditSummaryDays, "days", 7, "ventana en días")
	auditCmd.AddCommand(auditSummaryCmd)
	root.AddCommand(auditCmd)

	// --- permissions ---
	var permResource, permAction, permOwner, permUser string
	permCmd := &cobra.Command{
		Use:   "check",
		Short: "Chequear un permiso",
		RunE: func(cmd *cobra.Command, args []string) error {
			if permResource == "" || permAction == "" {
				return fmt.Errorf("--resource y --action son requeridos")
			}
			return cl.run("POST", "/v1/permissions/check", map[string]any{
				"user_email":     permUser,
				"resource":       permResource,
				"action":         permAction,
				"resource_owner": permOwner,
			})
		},
	}
	permCmd.Flags().StringVar(&permResource, "resource", "", "recurso")
	permCmd.Flags().StringVar(&permAction, "action", "", "acción")
	permCmd.Flags().StringVar(&permOwner, "owner", "", "dueño del recurso (reglas owner-only)")
	permCmd.Flags().StringVar(&permUser, "user", "", "consultar los permisos de otro usuario (requiere user_permissions/read)")
	root.AddCommand(permCmd)

	// --- license ---
	licenseCmd := &cobra.Command{Use: "license", Short: "Licencia local"}
	licenseCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validar la licencia contra el hardware actual",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("POST", "/v1/license/validate", map[string]any{})
		},
	})
	licenseCmd.AddCommand(&cobra.Command{
		Use:   "rebind",
		Short: "Transferir la licencia al hardware actual (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cl.AdminKey == "" {
				return fmt.Errorf("falta admin key (--admin-key o env TRUSTGATE_ADMIN_API_KEY)")
			}
			return cl.run("POST", "/v1/license/rebind", map[string]any{})
		},
	})
	root.AddCommand(licenseCmd)

	// --- business ---
	businessCmd := &cobra.Command{Use: "business", Short: "Registro de negocio (admin)"}

	var regFile string
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Registrar un negocio desde un archivo JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if regFile == "" {
				return fmt.Errorf("--file es requerido")
			}
			b, err := os.ReadFile(regFile)
			if err != nil {
				return err
			}
			var payload map[string]any
			if err := json.Unmarshal(b, &payload); err != nil {
				return fmt.Errorf("json inválido en %s: %w", regFile, err)
			}
			return cl.run("POST", "/v1/business/register", payload)
		},
	}
	registerCmd.Flags().StringVar(&regFile, "file", "", "archivo JSON con los datos del negocio")
	businessCmd.AddCommand(registerCmd)

	var verifyBusinessID string
	businessVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verificar la integridad de un registro",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verifyBusinessID == "" {
				return fmt.Errorf("--id es requerido")
			}
			return cl.run("POST", "/v1/business/"+verifyBusinessID+"/verify", map[string]any{})
		},
	}
	businessVerifyCmd.Flags().StringVar(&verifyBusinessID, "id", "", "business ID")
	businessCmd.AddCommand(businessVerifyCmd)
	root.AddCommand(businessCmd)

	// --- health ---
	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Health check del servidor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("GET", "/healthz", nil)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
