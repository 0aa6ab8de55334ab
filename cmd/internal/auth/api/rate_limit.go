package authapi

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"accessgate/cmd/internal/auth/throttle"
)

const (
	routeRequestCode = "request_code"
	routeVerifyCode  = "verify_code"

	// phoneCapRetryAfter matches the trailing window of the per-phone code cap.
	phoneCapRetryAfter = time.Hour
)

func (h *Handler) limitFor(route string) throttle.Limit {
	switch route {
	case routeRequestCode:
		return throttle.Limit{Max: h.cfg.RequestCodeIPMax, Window: h.cfg.RequestCodeIPWindow}
	case routeVerifyCode:
		return throttle.Limit{Max: h.cfg.VerifyCodeIPMax, Window: h.cfg.VerifyCodeIPWindow}
	default:
		return throttle.Limit{}
	}
}

// checkIPThrottle fails open: the per-phone cap and attempt lockout still hold
// when the throttle backend is unreachable.
func (h *Handler) checkIPThrottle(ctx context.Context, route string, ip net.IP) (bool, time.Duration) {
	limit := h.limitFor(route)
	if ip == nil || !limit.Enabled() {
		return false, 0
	}

	d, err := h.limiter.Allow(ctx, route+":"+ip.String(), limit)
	if err != nil {
		h.log.WarnContext(ctx, "auth.throttle.fail", "route", route, "err", err)
		return false, 0
	}
	if d.Allowed {
		return false, 0
	}
	return true, d.RetryAfter
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration, msg string) {
	if retryAfter > 0 {
		secs := int64(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", msg)
}
