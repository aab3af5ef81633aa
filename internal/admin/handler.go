// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/pedrozc90/tenantusers/internal/core"
	"github.com/pedrozc90/tenantusers/internal/middleware"
)

// TokenPurger removes refresh tokens that can no longer be presented.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	DBPing     func(ctx context.Context) error
	RedisPing  func(ctx context.Context) error
	Tokens     TokenPurger
}

type Handler struct {
	cfg HandlerConfig
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// RegisterRoutes mounts /admin. Every route needs a MASTER bearer.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(middleware.RequireMaster)

		r.Get("/stats", h.SystemStats)
		r.Get("/stats/db", h.DatabaseStats)
		r.Get("/stats/redis", h.RedisStats)
		r.Get("/stats/runtime", h.RuntimeStats)
		r.Post("/tokens/purge", h.PurgeTokens)
	})
}

func (h *Handler) SystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	core.OK(w, SystemStatsResponse{
		Database: DatabaseStatus{
			Healthy: pingOK(ctx, h.cfg.DBPing),
			Stats:   h.dbStats(),
		},
		Redis: RedisStatus{
			Healthy: pingOK(ctx, h.cfg.RedisPing),
			Stats:   h.redisStats(),
		},
		Runtime: readRuntimeStats(),
	})
}

func (h *Handler) DatabaseStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.dbStats())
}

func (h *Handler) RedisStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, h.redisStats())
}

func (h *Handler) RuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, readRuntimeStats())
}

func (h *Handler) PurgeTokens(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Tokens == nil {
		core.NotFound(w, "token store")
		return
	}

	deleted, err := h.cfg.Tokens.PurgeExpired(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	userID, _ := middleware.CurrentUserID(r.Context())
	slog.Info("expired refresh tokens purged",
		"deleted", deleted,
		"by_user_id", userID,
	)

	core.OK(w, PurgeResponse{Deleted: deleted})
}

func pingOK(ctx context.Context, ping func(context.Context) error) bool {
	if ping == nil {
		return false
	}
	return ping(ctx) == nil
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) dbStats() *DBPoolStats {
	if h.cfg.DBStats == nil {
		return nil
	}

	stats := h.cfg.DBStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}

func (h *Handler) redisStats() *RedisPoolStats {
	if h.cfg.RedisStats == nil {
		return nil
	}

	stats := h.cfg.RedisStats()
	if stats == nil {
		return nil
	}

	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
		StaleConns: stats.StaleConns,
	}
}

type SystemStatsResponse struct {
	Database DatabaseStatus `json:"database"`
	Redis    RedisStatus    `json:"redis"`
	Runtime  RuntimeStats   `json:"runtime"`
}

type DatabaseStatus struct {
	Healthy bool         `json:"healthy"`
	Stats   *DBPoolStats `json:"stats,omitempty"`
}

type RedisStatus struct {
	Healthy bool            `json:"healthy"`
	Stats   *RedisPoolStats `json:"stats,omitempty"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
	MaxIdleClosed      int64  `json:"max_idle_closed"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}
