package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/services/metrics"
)

const objectKey = "object"

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// staffMiddleware lets teachers and admins through.
func staffMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.IsAdmin || claims.IsTeacher {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// metricsMiddleware records the request count and latency per route pattern.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)

		status := ctx.Response().Status
		if err != nil {
			if herr, ok := errors.Cause(err).(*echo.HTTPError); ok {
				status = herr.Code
			} else if status < 400 {
				status = statusOf(err)
			}
		}
		metrics.ObserveRequest(ctx.Request().Method, ctx.Path(), status, time.Since(start))
		return err
	}
}

func statusOf(err error) int {
	switch errors.Cause(err).(type) {
	case *core.ValidationError:
		return 400
	case *core.ForbiddenError:
		return 403
	case *core.NotFoundError:
		return 404
	case *core.ConflictError:
		return 409
	case *core.UpstreamError:
		return 502
	}
	return 500
}

const (
	visitorTTL      = 3 * time.Minute
	visitorSweepGap = time.Minute
)

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter keeps a token bucket per client IP. Visitors idle for visitorTTL are dropped.
type rateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	visitors  map[string]*visitor
	lastSweep time.Time
	nowFunc   func() time.Time
}

func newRateLimiter(conf core.RateLimitConfig) *rateLimiter {
	limit := rate.Limit(conf.RPS)
	if conf.RPS <= 0 {
		limit = rate.Inf
	}
	burst := conf.Burst
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limit:    limit,
		burst:    burst,
		visitors: make(map[string]*visitor),
		nowFunc:  time.Now,
	}
}

func (rl *rateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	if now.Sub(rl.lastSweep) >= visitorSweepGap {
		for k, v := range rl.visitors {
			if now.Sub(v.seen) > visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.seen = now
	return v.lim
}

func (rl *rateLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !rl.limiter(ctx.RealIP()).Allow() {
			return errTooManyRequests
		}
		return next(ctx)
	}
}
