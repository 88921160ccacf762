package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, gatherer prometheus.Gatherer, cfg ServerConfig) {
	e.HTTPErrorHandler = JSONErrorHandler()

	e.Use(SetNoCacheHeaders)

	// health and metrics stay reachable for load balancers and scrapers
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/metrics" || strings.HasSuffix(p, "/health")
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/tokens", h.Tokens)

	pools := v1.Group("/pools")
	pools.GET("", h.Pools)
	pools.POST("/rescan", h.RescanPools)

	quotes := v1.Group("/quote")
	if cfg.QuoteRateLimit > 0 {
		quotes.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.QuoteRateLimit),
			Burst:     max(1, int(cfg.QuoteRateLimit)),
			ExpiresIn: 2 * time.Minute,
		})))
	}
	quotes.GET("", h.Quote)

	swaps := v1.Group("/swaps")
	swaps.POST("/build", h.BuildSwap)
	swaps.POST("/submit", h.SubmitSwap)
	swaps.GET("/recent", h.RecentSwaps)

	balances := v1.Group("/balances")
	balances.GET("/:holder", h.Balances)
	balances.POST("/:holder/refresh", h.RefreshBalances)

	halt := v1.Group("/trading/halt")
	halt.GET("", h.HaltStatus)
	halt.POST("", h.Halt)
	halt.DELETE("", h.Resume)

	v1.GET("/flags", h.Flags)
	v1.DELETE("/flags/:key", h.DeleteFlag)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
