package llm

import "golang.org/x/time/rate"

// newRateLimiter builds the per-provider limiter; non-positive rps means one per second.
func newRateLimiter(rps int) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}

	return rate.NewLimiter(rate.Limit(float64(rps)), rateLimiterBurst)
}

func maxOutputTokens(req Request) int {
	if req.MaxOutputTokens > 0 {
		return req.MaxOutputTokens
	}

	return defaultMaxOutputTokens
}
