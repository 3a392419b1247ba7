// Package dto define los contratos JSON de la API HTTP. Los tipos de
// dominio nunca se serializan directamente: todo pasa por acá.
package dto

import "time"

// ---- auth ----

// LoginRequest es el body de POST /v1/auth/login.
type LoginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// LoginResponse retorna el token opaco de sesión. El token viaja una
// sola vez; el cliente lo presenta como Bearer en requests siguientes.
type LoginResponse struct {
	SessionToken   string          `json:"session_token"`
	SessionID      string          `json:"session_id"`
	ExpiresAt      time.Time       `json:"expires_at"`
	MFARequired    bool            `json:"mfa_required"`
	EvictedSession *EvictedSession `json:"evicted_session,omitempty"`
}

// EvictedSession informa al cliente que su login desplazó a la sesión
// más antigua por límite de concurrencia.
type EvictedSession struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// ---- sessions ----

// SessionInfo describe una sesión activa en el status del usuario.
type SessionInfo struct {
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Elevated     bool      `json:"elevated"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStatusResponse es la respuesta de GET /v1/sessions/status.
type SessionStatusResponse struct {
	UserEmail     string        `json:"user_email"`
	Sessions      []SessionInfo `json:"sessions"`
	ActiveCount   int           `json:"active_count"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// RevokeSessionRequest es el body de POST /v1/sessions/revoke.
type RevokeSessionRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// RevokeSessionResponse confirma la revocación.
type RevokeSessionResponse struct {
	SessionID string    `json:"session_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

// RevokeAllRequest es el body de POST /v1/sessions/revoke-all.
type RevokeAllRequest struct {
	// UserEmail apunta a otra cuenta (flujo de respuesta a incidentes);
	// vacío opera sobre el caller. Cruzar de cuenta exige permiso.
	UserEmail string `json:"user_email,omitempty"`
	// KeepCurrent preserva la sesión del caller.
	KeepCurrent bool   `json:"keep_current"`
	Reason      string `json:"reason"`
}

// RevokeAllResponse informa cuántas sesiones se revocaron.
type RevokeAllResponse struct {
	RevokedCount int `json:"revoked_count"`
}

// SessionStatsResponse es la respuesta de GET /v1/sessions/statistics.
type SessionStatsResponse struct {
	ActiveSessions  int           `json:"active_sessions"`
	Logins          int           `json:"logins"`
	UniqueUsers     int           `json:"unique_users"`
	AvgDurationSecs float64       `json:"avg_duration_seconds"`
	TopDevices      []DeviceCount `json:"top_devices"`
	WindowDays      int           `json:"window_days"`
}

// DeviceCount es un conteo por dispositivo.
type DeviceCount struct {
	Device string `json:"device"`
	Count  int    `json:"count"`
}

// ---- mfa ----

// MFAEnableRequest es el body de POST /v1/mfa/enable.
type MFAEnableRequest struct {
	Method string `json:"method"` // totp | sms | whatsapp | email
}

// MFAEnableResponse retorna el material de enrolamiento. Solo se emite
// una vez; la respuesta lleva Cache-Control: no-store.
type MFAEnableResponse struct {
	Method       string   `json:"method"`
	SecretBase32 string   `json:"secret,omitempty"`
	OTPAuthURL   string   `json:"otpauth_url,omitempty"`
	BackupCodes  []string `json:"backup_codes"`
}

// MFASendCodeRequest es el body de POST /v1/mfa/send-code.
type MFASendCodeRequest struct{}

// MFAVerifyRequest es el body de POST /v1/mfa/verify.
type MFAVerifyRequest struct {
	Code         string `json:"code"`
	IsBackupCode bool   `json:"is_backup_code"`
}

// MFAVerifyResponse confirma la verificación y la elevación de la sesión.
type MFAVerifyResponse struct {
	Verified             bool `json:"verified"`
	SessionElevated      bool `json:"session_elevated"`
	RemainingBackupCodes int  `json:"remaining_backup_codes"`
}

// MFABackupCodesResponse retorna el set nuevo de backup codes.
type MFABackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// MFADisableRequest es el body de POST /v1/mfa/disable.
type MFADisableRequest struct {
	Code         string `json:"code"`
	IsBackupCode bool   `json:"is_backup_code"`
}

// ---- alerts ----

// TriggerAlertRequest es el body de POST /v1/alerts/trigger.
type TriggerAlertRequest struct {
	AlertType string `json:"alert_type"`
	UserEmail string `json:"user_email"`
	SourceIP  string `json:"source_ip"`
	Details   string `json:"details"`
	Severity  string `json:"severity"`
}

// AlertResponse describe una alerta emitida.
type AlertResponse struct {
	AlertID          string    `json:"alert_id"`
	AlertType        string    `json:"alert_type"`
	Severity         string    `json:"severity"`
	UserEmail        string    `json:"user_email,omitempty"`
	SourceIP         string    `json:"source_ip,omitempty"`
	Details          string    `json:"details,omitempty"`
	EscalationLevel  string    `json:"escalation_level,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Resolved         bool      `json:"resolved"`
	ChannelsNotified []string  `json:"channels_notified,omitempty"`
}

// ResolveAlertRequest es el body de POST /v1/alerts/{id}/resolve.
type ResolveAlertRequest struct {
	Notes string `json:"notes"`
}

// ResolveAlertResponse confirma la resolución.
type ResolveAlertResponse struct {
	AlertID    string    `json:"alert_id"`
	ResolvedAt time.Time `json:"resolved_at"`
	ResolvedBy string    `json:"resolved_by"`
}

// AlertSummaryResponse es la respuesta de GET /v1/alerts/summary.
type AlertSummaryResponse struct {
	Total          int             `json:"total"`
	Unresolved     int             `json:"unresolved"`
	Critical       int             `json:"critical"`
	ByType         map[string]int  `json:"by_type"`
	RecentCritical []AlertResponse `json:"recent_critical"`
	WindowDays     int             `json:"window_days"`
}

// ---- audit ----

// AuditEventRequest es el body de POST /v1/audit/events.
type AuditEventRequest struct {
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"`
	UserEmail   string         `json:"user_email"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details"`
}

// AuditEventResponse describe un evento registrado.
type AuditEventResponse struct {
	EventID     string         `json:"event_id"`
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"`
	UserEmail   string         `json:"user_email,omitempty"`
	Description string         `json:"description,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// AuditSummaryResponse es la respuesta de GET /v1/audit/summary.
type AuditSummaryResponse struct {
	Total          int                  `json:"total"`
	ByType         map[string]int       `json:"by_type"`
	BySeverity     map[string]int       `json:"by_severity"`
	TopUsers       []UserEventCount     `json:"top_users"`
	RecentCritical []AuditEventResponse `json:"recent_critical"`
	WindowDays     int                  `json:"window_days"`
}

// UserEventCount es un conteo de eventos por usuario.
type UserEventCount struct {
	UserEmail string `json:"user_email"`
	Count     int    `json:"count"`
}

// ---- permissions ----

// PermissionCheckRequest es el body de POST /v1/permissions/check.
// UserEmail consulta por otra cuenta (forma administrativa); vacío evalúa
// al caller con su sesión actual.
type PermissionCheckRequest struct {
	UserEmail     string `json:"user_email,omitempty"`
	Resource      string `json:"resource"`
	Action        string `json:"action"`
	ResourceOwner string `json:"resource_owner"`
}

// PermissionCheckResponse detalla la decisión condición por condición.
type PermissionCheckResponse struct {
	Allowed    bool                  `json:"allowed"`
	Reason     string                `json:"reason"`
	Conditions []PermissionCondition `json:"conditions"`
}

// PermissionCondition es una condición evaluada.
type PermissionCondition struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ---- license ----

// LicenseValidateResponse es la respuesta de POST /v1/license/validate.
type LicenseValidateResponse struct {
	State       string     `json:"state"`
	Reason      string     `json:"reason"`
	LicenseKey  string     `json:"license_key,omitempty"`
	BusinessID  string     `json:"business_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUsers    int        `json:"max_users,omitempty"`
	Features    []string   `json:"features,omitempty"`
	Degraded    bool       `json:"degraded_fingerprint"`
	ValidatedAt time.Time  `json:"validated_at"`
}

// LicenseRebindResponse confirma la transferencia de hardware.
type LicenseRebindResponse struct {
	LicenseKey string `json:"license_key"`
	Rebound    bool   `json:"rebound"`
}

// ---- business ----

// BusinessRegisterRequest es el body de POST /v1/business/register.
type BusinessRegisterRequest struct {
	OwnerName        string `json:"owner_name"`
	CivilID          string `json:"civil_id"`
	Phone            string `json:"phone"`
	RegistrationDate string `json:"registration_date"` // YYYY-MM-DD
	ActivityType     string `json:"business_activity_type"`

	TradeLicenseNumber string `json:"trade_license_number,omitempty"`
	Email              string `json:"email,omitempty"`
}

// BusinessResponse describe un registro de negocio.
type BusinessResponse struct {
	BusinessID       string    `json:"business_id"`
	OwnerName        string    `json:"owner_name"`
	CivilID          string    `json:"civil_id"`
	Phone            string    `json:"phone"`
	RegistrationDate string    `json:"registration_date"`
	ActivityType     string    `json:"business_activity_type"`
	TradeLicense     string    `json:"trade_license_number,omitempty"`
	Email            string    `json:"email,omitempty"`
	VerificationHash string    `json:"verification_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

// BusinessVerifyResponse es la respuesta de POST /v1/business/{id}/verify.
type BusinessVerifyResponse struct {
	BusinessID string `json:"business_id"`
	Verified   bool   `json:"verified"`
}

// ---- health ----

// HealthResponse es la respuesta de GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	License string `json:"license_state,omitempty"`
}
