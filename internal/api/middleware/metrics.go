// metrics.go — Prometheus HTTP метрики для Vault Module.
// Регистрирует метрики: vm_http_requests_total, vm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vm_http_requests_total",
			Help: "Общее количество HTTP-запросов к Vault Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Vault Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем идентификаторы на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет динамические сегменты пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/files/a1b2c3d4-... → /api/v1/files/{id}
// /api/v1/share-codes/AB12-CD3 → /api/v1/share-codes/{code}
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files",
		"/api/v1/files/search",
		"/api/v1/admin/stats":
		return path
	}

	// Динамические пути с UUID файла (36 символов)
	const filesPrefix = "/api/v1/files/"
	if strings.HasPrefix(path, filesPrefix) && len(path) >= len(filesPrefix)+36 {
		suffix := path[len(filesPrefix)+36:]
		switch suffix {
		case "/download":
			return "/api/v1/files/{id}/download"
		case "/share-code":
			return "/api/v1/files/{id}/share-code"
		case "/expiry":
			return "/api/v1/files/{id}/expiry"
		default:
			return "/api/v1/files/{id}"
		}
	}

	// Пути с кодом публикации
	const codesPrefix = "/api/v1/share-codes/"
	if strings.HasPrefix(path, codesPrefix) {
		if strings.HasSuffix(path, "/deliver") {
			return "/api/v1/share-codes/{code}/deliver"
		}
		return "/api/v1/share-codes/{code}"
	}

	// Квоты пользователей
	const quotasPrefix = "/api/v1/quotas/"
	if strings.HasPrefix(path, quotasPrefix) {
		switch {
		case strings.HasSuffix(path, "/limits"):
			return "/api/v1/quotas/{owner_id}/limits"
		case strings.HasSuffix(path, "/token/verify"):
			return "/api/v1/quotas/{owner_id}/token/verify"
		case strings.HasSuffix(path, "/token"):
			return "/api/v1/quotas/{owner_id}/token"
		default:
			return "/api/v1/quotas/{owner_id}"
		}
	}

	// Админские карточки пользователей
	const adminUsersPrefix = "/api/v1/admin/users/"
	if strings.HasPrefix(path, adminUsersPrefix) {
		return "/api/v1/admin/users/{owner_id}"
	}

	return path
}
