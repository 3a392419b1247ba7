// Package mfa implementa enrolamiento y verificación de segundo factor:
// TOTP, códigos out-of-band (SMS / WhatsApp / email) y backup codes de
// un solo uso.
package mfa

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warshatech/trustgate/internal/alert"
	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/cache"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/notify"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/security/password"
	"github.com/warshatech/trustgate/internal/security/secretbox"
	tokens "github.com/warshatech/trustgate/internal/security/token"
	"github.com/warshatech/trustgate/internal/security/totp"
)

// ErrInvalidCode es el único error que ve el caller ante una verificación
// fallida: no se distingue expirado / incorrecto / reusado para no filtrar
// información al atacante.
var ErrInvalidCode = errors.New("invalid code")

// ErrNotEnrolled indica que el usuario no tiene MFA configurado.
var ErrNotEnrolled = errors.New("mfa not enrolled")

// Options parametriza el manager.
type Options struct {
	Issuer          string
	OOBCodeTTL      time.Duration
	BackupCodeCount int
}

// EnrollResult es el resultado de Enable. El secreto y los backup codes
// viajan al cliente una sola vez.
type EnrollResult struct {
	Method       repository.MFAMethod
	SecretBase32 string
	OTPAuthURL   string
	BackupCodes  []string
}

// VerifyResult informa el resultado de una verificación exitosa.
type VerifyResult struct {
	Verified             bool
	RemainingBackupCodes int
}

// Manager implementa el ciclo MFA completo.
type Manager struct {
	repo     repository.MFARepository
	users    repository.UserRepository
	cache    cache.Client
	box      *secretbox.Box
	auditor  audit.Recorder
	alerts   *alert.Engine
	dispatch *notify.Dispatcher
	opts     Options
}

// NewManager construye el manager.
func NewManager(repo repository.MFARepository, users repository.UserRepository, c cache.Client, box *secretbox.Box, auditor audit.Recorder, alerts *alert.Engine, dispatch *notify.Dispatcher, opts Options) *Manager {
	if opts.Issuer == "" {
		opts.Issuer = "TrustGate"
	}
	if opts.OOBCodeTTL <= 0 {
		opts.OOBCodeTTL = 5 * time.Minute
	}
	if opts.BackupCodeCount <= 0 {
		opts.BackupCodeCount = 10
	}
	return &Manager{
		repo: repo, users: users, cache: c, box: box,
		auditor: auditor, alerts: alerts, dispatch: dispatch, opts: opts,
	}
}

// Enable inicia el enrolamiento. Queda deshabilitado hasta la primera
// verificación exitosa (Confirm dentro de Verify).
func (m *Manager) Enable(ctx context.Context, userEmail string, method repository.MFAMethod) (*EnrollResult, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("mfa: unsupported method %q", method)
	}

	res := &EnrollResult{Method: method}
	enrollment := &repository.MFAEnrollment{
		UserEmail: userEmail,
		Method:    method,
	}

	if method == repository.MFAMethodTOTP {
		_, b32, err := totp.GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("mfa: generate secret: %w", err)
		}
		enc, err := m.box.Encrypt(b32)
		if err != nil {
			return nil, fmt.Errorf("mfa: encrypt secret: %w", err)
		}
		enrollment.SecretEncrypted = enc
		res.SecretBase32 = b32
		res.OTPAuthURL = totp.OTPAuthURL(m.opts.Issuer, userEmail, b32)
	}

	if err := m.repo.Upsert(ctx, enrollment); err != nil {
		return nil, err
	}

	codes, err := m.storeBackupCodes(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	res.BackupCodes = codes

	m.auditor.Record(ctx, audit.Entry{
		EventType:   "mfa_enrollment_started",
		Severity:    repository.SeverityInfo,
		UserEmail:   userEmail,
		Description: "MFA enrollment started",
		Details:     map[string]any{"method": string(method)},
	})
	return res, nil
}

// SendCode despacha un código OOB de un solo uso por el canal enrolado.
// Solo aplica a métodos SMS/WhatsApp/email.
func (m *Manager) SendCode(ctx context.Context, userEmail string) error {
	e, err := m.repo.Get(ctx, userEmail)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrNotEnrolled
		}
		return err
	}
	if e.Method == repository.MFAMethodTOTP {
		return fmt.Errorf("mfa: totp does not use dispatched codes")
	}

	code, err := numericCode(6)
	if err != nil {
		return err
	}
	if err := m.cache.Set(ctx, oobKey(userEmail), tokens.SHA256Base64URL(code), m.opts.OOBCodeTTL); err != nil {
		return fmt.Errorf("mfa: store oob code: %w", err)
	}

	to := userEmail
	ch := notify.ChannelEmail
	switch e.Method {
	case repository.MFAMethodSMS:
		ch = notify.ChannelSMS
	case repository.MFAMethodWhatsApp:
		ch = notify.ChannelWhatsApp
	}
	if ch != notify.ChannelEmail {
		u, err := m.users.Get(ctx, userEmail)
		if err != nil || u.Phone == "" {
			return fmt.Errorf("mfa: no phone on file for %s", userEmail)
		}
		to = u.Phone
	}

	m.dispatch.Dispatch(ctx, []notify.Channel{ch}, notify.Message{
		To:      to,
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.", m.opts.Issuer, code, int(m.opts.OOBCodeTTL.Minutes())),
	})
	return nil
}

// Verify valida un código TOTP, OOB o backup. Cualquier falla retorna
// ErrInvalidCode; el detalle real solo va al motor de alertas.
func (m *Manager) Verify(ctx context.Context, userEmail, code string, isBackup bool) (*VerifyResult, error) {
	e, err := m.repo.Get(ctx, userEmail)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}

	var ok bool
	if isBackup {
		ok, err = m.verifyBackupCode(ctx, userEmail, code)
	} else {
		switch e.Method {
		case repository.MFAMethodTOTP:
			ok, err = m.verifyTOTP(ctx, e, code)
		default:
			ok, err = m.verifyOOB(ctx, userEmail, code)
		}
	}
	if err != nil {
		return nil, err
	}

	if !ok {
		m.reportFailure(ctx, userEmail)
		return nil, ErrInvalidCode
	}

	if !e.Enabled {
		if err := m.repo.Confirm(ctx, userEmail); err != nil {
			return nil, err
		}
		if err := m.users.SetMFARequired(ctx, userEmail, true); err != nil && !repository.IsNotFound(err) {
			logger.From(ctx).Warn("set mfa required failed", logger.UserEmail(userEmail), logger.Err(err))
		}
		m.auditor.Record(ctx, audit.Entry{
			EventType:   "mfa_enabled",
			Severity:    repository.SeverityInfo,
			UserEmail:   userEmail,
			Description: "MFA enrollment confirmed",
			Details:     map[string]any{"method": string(e.Method)},
		})
	}

	remaining, err := m.repo.CountBackupCodes(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Verified: true, RemainingBackupCodes: remaining}, nil
}

// GenerateBackupCodes reemplaza el set completo por uno nuevo.
func (m *Manager) GenerateBackupCodes(ctx context.Context, userEmail string) ([]string, error) {
	if _, err := m.repo.Get(ctx, userEmail); err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotEnrolled
		}
		return nil, err
	}
	codes, err := m.storeBackupCodes(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	m.auditor.Record(ctx, audit.Entry{
		EventType:   "mfa_backup_codes_rotated",
		Severity:    repository.SeverityMedium,
		UserEmail:   userEmail,
		Description: "backup codes regenerated, old set invalidated",
	})
	return codes, nil
}

// Disable exige un código válido antes de apagar MFA y dispara la alerta
// crítica de inmediato: deshabilitar MFA es siempre un evento de umbral 1.
func (m *Manager) Disable(ctx context.Context, userEmail, code string, isBackup bool) error {
	if _, err := m.Verify(ctx, userEmail, code, isBackup); err != nil {
		return err
	}
	if err := m.repo.Disable(ctx, userEmail); err != nil {
		return err
	}
	if err := m.users.SetMFARequired(ctx, userEmail, false); err != nil && !repository.IsNotFound(err) {
		logger.From(ctx).Warn("clear mfa required failed", logger.UserEmail(userEmail), logger.Err(err))
	}

	m.auditor.Record(ctx, audit.Entry{
		EventType:   "mfa_disabled",
		Severity:    repository.SeverityCritical,
		UserEmail:   userEmail,
		Description: "MFA disabled for account",
	})
	if m.alerts != nil {
		_, _ = m.alerts.Observe(ctx, alert.Event{
			Type:      "mfa_disabled",
			UserEmail: userEmail,
			Details:   "MFA disabled",
		})
	}
	return nil
}

// ─── internals ───

func (m *Manager) verifyTOTP(ctx context.Context, e *repository.MFAEnrollment, code string) (bool, error) {
	b32, err := m.box.Decrypt(e.SecretEncrypted)
	if err != nil {
		return false, fmt.Errorf("mfa: decrypt secret: %w", err)
	}
	raw, err := totp.DecodeSecret(b32)
	if err != nil {
		return false, fmt.Errorf("mfa: decode secret: %w", err)
	}
	ok, counter := totp.Verify(raw, code, time.Now(), 1, e.LastCounterUsed)
	if !ok {
		return false, nil
	}
	if err := m.repo.UpdateLastCounter(ctx, e.UserEmail, counter); err != nil {
		return false, err
	}
	return true, nil
}

// verifyOOB compara contra el código despachado. El código se invalida en
// el primer intento, correcto o no: un segundo intento siempre falla.
func (m *Manager) verifyOOB(ctx context.Context, userEmail, code string) (bool, error) {
	key := oobKey(userEmail)
	stored, err := m.cache.Get(ctx, key)
	if err != nil {
		if cache.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_ = m.cache.Delete(ctx, key)
	return stored == tokens.SHA256Base64URL(strings.TrimSpace(code)), nil
}

// verifyBackupCode compara contra los hashes argon2id almacenados. El hash
// es salteado, así que no hay lookup directo: se recorre el set y el delete
// atómico del hash que matcheó decide el ganador entre intentos concurrentes.
func (m *Manager) verifyBackupCode(ctx context.Context, userEmail, code string) (bool, error) {
	plain := normalizeBackupCode(code)
	hashes, err := m.repo.ListBackupCodes(ctx, userEmail)
	if err != nil {
		return false, err
	}
	for _, phc := range hashes {
		if !password.Verify(plain, phc) {
			continue
		}
		consumed, err := m.repo.ConsumeBackupCode(ctx, userEmail, phc)
		if err != nil || !consumed {
			return false, err
		}
		m.auditor.Record(ctx, audit.Entry{
			EventType:   "mfa_backup_code_used",
			Severity:    repository.SeverityMedium,
			UserEmail:   userEmail,
			Description: "single-use backup code consumed",
		})
		return true, nil
	}
	return false, nil
}

func (m *Manager) storeBackupCodes(ctx context.Context, userEmail string) ([]string, error) {
	codes := make([]string, 0, m.opts.BackupCodeCount)
	hashes := make([]string, 0, m.opts.BackupCodeCount)
	for i := 0; i < m.opts.BackupCodeCount; i++ {
		c, err := backupCode()
		if err != nil {
			return nil, err
		}
		phc, err := password.Hash(password.Default, normalizeBackupCode(c))
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
		hashes = append(hashes, phc)
	}
	if err := m.repo.SetBackupCodes(ctx, userEmail, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (m *Manager) reportFailure(ctx context.Context, userEmail string) {
	m.auditor.Record(ctx, audit.Entry{
		EventType:   "mfa_failed",
		Severity:    repository.SeverityMedium,
		UserEmail:   userEmail,
		Description: "MFA verification failed",
	})
	if m.alerts != nil {
		_, _ = m.alerts.Observe(ctx, alert.Event{
			Type:      "mfa_failed",
			UserEmail: userEmail,
			Details:   "MFA verification failed",
		})
	}
}

// alfabeto sin caracteres ambiguos (0/O, 1/I/L)
const backupAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// backupCode genera un código con formato XXXX-XXXX.
func backupCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, x := range b {
		if i == 4 {
			sb.WriteByte('-')
		}
		sb.WriteByte(backupAlphabet[int(x)%len(backupAlphabet)])
	}
	return sb.String(), nil
}

func normalizeBackupCode(c string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(c), "-", ""))
}

func oobKey(userEmail string) string {
	return "mfa:oob:" + userEmail
}

func numericCode(digits int) (string, error) {
	b := make([]byte, digits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, x := range b {
		sb.WriteByte('0' + x%10)
	}
	return sb.String(), nil
}
