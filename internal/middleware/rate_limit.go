package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"agrirent/internal/pkg/response"
)

// RateLimit limits requests per route. rate uses the limiter format, e.g.
// "20-M". Authenticated callers are keyed by user id, others by client IP.
// A nil client keeps counters in process memory.
func RateLimit(routeID, rate string, client *redis.Client) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q for %s: %w", rate, routeID, err)
	}

	prefix := "rate_limiter:" + routeID
	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:   prefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store for route %s: %w", routeID, err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	return ginlimiter.NewMiddleware(
		limiter.New(store, r),
		ginlimiter.WithKeyGetter(rateKey),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down")
		}),
	), nil
}

func rateKey(c *gin.Context) string {
	if id := c.GetInt64("user_id"); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + c.ClientIP()
}
