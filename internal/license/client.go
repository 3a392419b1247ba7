package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Errores del cliente del servidor de licencias.
var (
	// ErrServerUnreachable: falla de red o 5xx. Habilita el período de
	// gracia si hay un token cacheado vigente.
	ErrServerUnreachable = errors.New("license: server unreachable")

	// ErrRevokedByServer: el servidor reportó la licencia revocada.
	// Es definitivo, ignora cualquier cache local.
	ErrRevokedByServer = errors.New("license: revoked by server")
)

// Client habla con el servidor de licencias.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient construye el cliente. timeout acota cada request completo.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	LicenseKey          string `json:"license_key"`
	HardwareFingerprint string `json:"hardware_fingerprint"`
}

type validateResponse struct {
	Token string `json:"token"`
	Code  string `json:"code,omitempty"`
}

// Validate pide al servidor un token de validación firmado.
func (c *Client) Validate(ctx context.Context, licenseKey, fingerprintHash string) (string, error) {
	body, err := json.Marshal(validateRequest{
		LicenseKey:          licenseKey,
		HardwareFingerprint: fingerprintHash,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/licenses/validate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrServerUnreachable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("license: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if out.Code == "REVOKED" {
			return "", ErrRevokedByServer
		}
		return "", fmt.Errorf("license: server rejected validation: status %d code %s", resp.StatusCode, out.Code)
	}
	if out.Token == "" {
		return "", fmt.Errorf("license: empty token in response")
	}
	return out.Token, nil
}
