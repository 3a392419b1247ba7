package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/warshatech/trustgate/internal/audit"
	"github.com/warshatech/trustgate/internal/domain/repository"
	"github.com/warshatech/trustgate/internal/observability/logger"
	"github.com/warshatech/trustgate/internal/security/fingerprint"
)

// State es el estado de validación de la licencia.
type State string

const (
	StateUnvalidated  State = "unvalidated"
	StateValid        State = "valid"
	StateGraceOffline State = "grace_offline"
	StateInvalid      State = "invalid"
	StateExpired      State = "expired"
	StateRevoked      State = "revoked"
)

// Reason codes de un resultado de validación.
const (
	ReasonOK                = "OK"
	ReasonGraceOffline      = "GRACE_OFFLINE"
	ReasonExpired           = "EXPIRED"
	ReasonHardwareMismatch  = "HARDWARE_MISMATCH"
	ReasonServerUnreachable = "SERVER_UNREACHABLE"
	ReasonRevoked           = "REVOKED"
)

// Result es el resultado de una validación.
type Result struct {
	State   State
	Reason  string
	License *repository.License
}

// Allowed indica si la licencia habilita operar.
func (r *Result) Allowed() bool {
	return r.State == StateValid || r.State == StateGraceOffline
}

// ServerClient abstrae el cliente del servidor de licencias.
type ServerClient interface {
	Validate(ctx context.Context, licenseKey, fingerprintHash string) (string, error)
}

// Options parametriza el validador.
type Options struct {
	// GracePeriod: ventana offline medida desde la emisión del último
	// token cacheado.
	GracePeriod time.Duration
}

// Validator implementa la máquina de estados de la licencia.
type Validator struct {
	repo     repository.LicenseRepository
	client   ServerClient
	verifier *Verifier
	auditor  audit.Recorder
	opts     Options

	// Colapsa re-validaciones concurrentes contra el servidor: N requests
	// simultáneos producen un único round-trip.
	sf  singleflight.Group
	now func() time.Time
}

// NewValidator construye el validador.
func NewValidator(repo repository.LicenseRepository, client ServerClient, verifier *Verifier, auditor audit.Recorder, opts Options) *Validator {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 7 * 24 * time.Hour
	}
	return &Validator{
		repo: repo, client: client, verifier: verifier,
		auditor: auditor, opts: opts, now: time.Now,
	}
}

// Validate corre los pasos de validación en orden estricto: expiración,
// hardware, servidor, gracia. Toda denegación se audita ANTES de
// retornarse: si la auditoría falla, la denegación igual se devuelve.
func (v *Validator) Validate(ctx context.Context, licenseKey string, fp fingerprint.Fingerprint) (*Result, error) {
	log := logger.From(ctx).Named("license")

	lic, err := v.repo.Get(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	now := v.now().UTC()

	// 1. expiración local: gana sobre cualquier otra condición
	if now.After(lic.ExpiresAt) {
		if lic.Status != repository.LicenseExpired {
			if err := v.repo.UpdateStatus(ctx, licenseKey, repository.LicenseExpired); err != nil {
				log.Error("update license status failed", logger.LicenseKey(licenseKey), logger.Err(err))
			}
		}
		return v.deny(ctx, lic, StateExpired, ReasonExpired, "license past its expiry date")
	}

	// 2. hardware binding
	switch {
	case lic.HardwareFingerprint == "":
		// primer arranque: la licencia se liga a este hardware
		if err := v.repo.BindFingerprint(ctx, licenseKey, fp.Hash, fp.ReducedHash); err != nil {
			return nil, err
		}
		lic.HardwareFingerprint = fp.Hash
		lic.ReducedFingerprint = fp.ReducedHash
		v.auditor.Record(ctx, audit.Entry{
			EventType:   "license_bound",
			Severity:    repository.SeverityMedium,
			Description: "license bound to hardware fingerprint",
			Details:     map[string]any{"license_key": licenseKey, "degraded": fp.Degraded},
		})
	case fp.Hash == lic.HardwareFingerprint:
		// match exacto
	case fp.Degraded && fp.ReducedHash == lic.ReducedFingerprint:
		// política degradada: algunos identificadores no se pudieron leer,
		// el subconjunto reducido coincide
		log.Warn("degraded fingerprint accepted on reduced match",
			logger.LicenseKey(licenseKey), logger.Count(len(fp.Components)))
	default:
		return v.deny(ctx, lic, StateInvalid, ReasonHardwareMismatch, "hardware fingerprint does not match bound fingerprint")
	}

	// 3. re-validación contra el servidor
	token, err := v.revalidate(ctx, licenseKey, fp.Hash)
	switch {
	case err == nil:
		claims, perr := v.verifier.Parse(token)
		if perr != nil {
			return v.deny(ctx, lic, StateInvalid, ReasonServerUnreachable, "server token failed verification")
		}
		if claims.Status == "revoked" {
			return v.revoke(ctx, lic)
		}
		issuedAt := now
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		expiresAt := now.Add(v.opts.GracePeriod)
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := v.repo.SaveCachedToken(ctx, licenseKey, token, issuedAt, expiresAt); err != nil {
			log.Error("save cached token failed", logger.LicenseKey(licenseKey), logger.Err(err))
		}
		lic.CachedToken = token
		lic.CachedTokenIssuedAt = &issuedAt
		lic.CachedTokenExpiresAt = &expiresAt
		v.auditor.Record(ctx, audit.Entry{
			EventType:   "license_validated",
			Severity:    repository.SeverityInfo,
			Description: "license validated against server",
			Details:     map[string]any{"license_key": licenseKey},
		})
		return &Result{State: StateValid, Reason: ReasonOK, License: lic}, nil

	case errors.Is(err, ErrRevokedByServer):
		// revocación explícita: ignora el cache
		return v.revoke(ctx, lic)

	case errors.Is(err, ErrServerUnreachable):
		// 4. gracia offline sobre el último token cacheado
		if v.withinGrace(lic, now) {
			v.auditor.Record(ctx, audit.Entry{
				EventType:   "license_grace_offline",
				Severity:    repository.SeverityMedium,
				Description: "license server unreachable, operating on grace period",
				Details:     map[string]any{"license_key": licenseKey},
			})
			return &Result{State: StateGraceOffline, Reason: ReasonGraceOffline, License: lic}, nil
		}
		return v.deny(ctx, lic, StateInvalid, ReasonServerUnreachable, "server unreachable and no cached validation within grace period")

	default:
		return nil, err
	}
}

// Rebind transfiere la licencia a otro hardware. Operación administrativa
// explícita: el binding normal es inmutable.
func (v *Validator) Rebind(ctx context.Context, licenseKey string, fp fingerprint.Fingerprint, adminEmail string) error {
	if err := v.repo.Rebind(ctx, licenseKey, fp.Hash, fp.ReducedHash); err != nil {
		return err
	}
	v.auditor.Record(ctx, audit.Entry{
		EventType:   "license_rebind",
		Severity:    repository.SeverityHigh,
		UserEmail:   adminEmail,
		Description: "license re-bound to new hardware",
		Details:     map[string]any{"license_key": licenseKey, "degraded": fp.Degraded},
	})
	return nil
}

func (v *Validator) revalidate(ctx context.Context, licenseKey, fpHash string) (string, error) {
	out, err, _ := v.sf.Do(licenseKey, func() (any, error) {
		return v.client.Validate(ctx, licenseKey, fpHash)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (v *Validator) withinGrace(lic *repository.License, now time.Time) bool {
	if lic.CachedToken == "" || lic.CachedTokenIssuedAt == nil {
		return false
	}
	if _, err := v.verifier.ParseExpired(lic.CachedToken); err != nil {
		// cache manipulado o de otra clave: no sostiene gracia
		return false
	}
	return now.Sub(*lic.CachedTokenIssuedAt) <= v.opts.GracePeriod
}

func (v *Validator) revoke(ctx context.Context, lic *repository.License) (*Result, error) {
	if lic.Status != repository.LicenseSuspended {
		if err := v.repo.UpdateStatus(ctx, lic.LicenseKey, repository.LicenseSuspended); err != nil {
			logger.L().Error("update license status failed", logger.LicenseKey(lic.LicenseKey), logger.Err(err))
		}
	}
	return v.deny(ctx, lic, StateRevoked, ReasonRevoked, "license revoked by server")
}

// deny audita la denegación antes de devolverla. Una falla de auditoría se
// loguea pero nunca convierte una denegación en error.
func (v *Validator) deny(ctx context.Context, lic *repository.License, state State, reason, description string) (*Result, error) {
	if _, err := v.auditor.RecordStrict(ctx, audit.Entry{
		EventType:   "license_denied",
		Severity:    repository.SeverityHigh,
		Description: fmt.Sprintf("license validation denied: %s", description),
		Details:     map[string]any{"license_key": lic.LicenseKey, "reason": reason, "state": string(state)},
	}); err != nil {
		logger.From(ctx).Error("audit license denial failed", logger.LicenseKey(lic.LicenseKey), logger.Err(err))
	}
	return &Result{State: state, Reason: reason, License: lic}, nil
}
