// Package metrics define las métricas Prometheus del subsistema. Viven en
// un paquete propio para evitar ciclos de import entre los servicios de
// dominio y la capa HTTP.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Las métricas se construyen en la declaración: los controllers pueden
// incrementarlas aunque Register todavía no haya corrido (tests incluidos).
var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})

	LicenseValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "license_validations_total",
		Help: "Resultados de validación de licencia por estado",
	}, []string{"state", "reason"})

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Sesiones creadas",
	})

	SessionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_evicted_total",
		Help: "Sesiones desplazadas por límite de concurrencia",
	})

	MFAVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_verifications_total",
		Help: "Verificaciones MFA por resultado",
	}, []string{"result"}) // result: ok|failed

	AlertsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "security_alerts_total",
		Help: "Alertas de seguridad emitidas por severidad",
	}, []string{"severity"})

	AuditEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_total",
		Help: "Eventos de auditoría registrados vía API",
	})
)

// Register registra todas las métricas en el registry indicado y devuelve
// el handler para /metrics. Registros duplicados se ignoran.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal, httpRequestDuration, httpInflight,
		LicenseValidations, SessionsCreated, SessionsEvicted,
		MFAVerifications, AlertsEmitted, AuditEventsTotal,
	} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return promhttp.Handler(), nil
}

func register(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// WithHTTP instrumenta requests con contadores, latencia e inflight.
func WithHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// normalizePath colapsa segmentos con IDs para acotar la cardinalidad
// de labels: /v1/alerts/3f2a.../resolve → /v1/alerts/{id}/resolve.
func normalizePath(p string) string {
	parts := strings.Split(p, "/")
	for i, seg := range parts {
		if len(seg) >= 16 || isNumeric(seg) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
