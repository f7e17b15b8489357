package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aegisgate/aegisgate/ratelimit"
	"github.com/aegisgate/aegisgate/upstream"
)

// HealthHandler reports composite gateway health: upstream provider
// reachability plus redis connectivity.
type HealthHandler struct {
	dispatcher *upstream.Dispatcher
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(dispatcher *upstream.Dispatcher, limiter *ratelimit.Limiter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger,
	}
}

// healthStatus is the health endpoint's response body.
type healthStatus struct {
	OK         bool           `json:"ok"`
	UpstreamOK bool           `json:"upstream_ok"`
	RedisOK    bool           `json:"redis_ok"`
	Details    map[string]any `json:"details"`
}

// HandleHealth probes both dependencies concurrently. A status below 500
// counts as upstream-reachable: an auth error still proves connectivity.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		upstreamDetail = map[string]any{}
		redisDetail    = map[string]any{}
		upstreamOK     bool
		redisOK        bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, err := h.dispatcher.CheckModels(gctx)
		if err != nil {
			upstreamDetail["reachable"] = false
			upstreamDetail["error"] = err.Error()
			return nil
		}
		upstreamOK = status < 500
		upstreamDetail["reachable"] = upstreamOK
		upstreamDetail["status_code"] = status
		return nil
	})
	g.Go(func() error {
		if err := h.limiter.Ping(gctx); err != nil {
			redisDetail["reachable"] = false
			redisDetail["error"] = err.Error()
			return nil
		}
		redisOK = true
		redisDetail["reachable"] = true
		return nil
	})
	_ = g.Wait()

	status := healthStatus{
		OK:         upstreamOK && redisOK,
		UpstreamOK: upstreamOK,
		RedisOK:    redisOK,
		Details: map[string]any{
			"upstream": upstreamDetail,
			"redis":    redisDetail,
		},
	}

	code := http.StatusOK
	if !status.OK {
		code = http.StatusServiceUnavailable
		h.logger.Warn("health check degraded",
			zap.Bool("upstream_ok", upstreamOK),
			zap.Bool("redis_ok", redisOK),
		)
	}
	WriteJSON(w, code, status)
}
