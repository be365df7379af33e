package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/translatekit/chatbridge/config"
	"github.com/translatekit/chatbridge/internal/browser"
	"github.com/translatekit/chatbridge/internal/chat"
	"github.com/translatekit/chatbridge/internal/fetcher"
	"github.com/translatekit/chatbridge/internal/translate"
)

// Run wires the whole service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Shared dependencies (top-level DI): one browser session manager,
	// one orchestrator, one fetch cache.
	profile, err := chat.ProfileFor(cfg.Chat.Surface)
	if err != nil {
		return err
	}
	cookies := browser.NewCookieStore(cfg.Browser.CookieFile)
	mgr := browser.NewManager(cfg.Browser, profile.Origin, cookies)
	auth := browser.NewAuthenticator(profile.Origin, profile.LoggedInJS, cookies, cfg.Chat.AuthWait)

	surface, err := translate.NewBrowserSurface(cfg, mgr, auth)
	if err != nil {
		return err
	}
	orch := translate.NewOrchestrator(surface, cfg.Translate, cfg.Chat.SettleDelay)

	cache, err := fetcher.NewCache(cfg.Cache)
	if err != nil {
		return err
	}
	fetch := fetcher.New(mgr, cache, cfg.Browser.NavTimeout, cfg.Browser.RestartRetries)

	api := e.Group("/api")
	NewTranslateHandler(orch).Register(api.Group("/translate"))
	NewChaptersHandler(fetch).Register(api.Group("/chapters"))
	NewSessionHandler(mgr, auth, cfg.Browser.HeadfulLogin).Register(api.Group("/session"))

	return e.Start(cfg.Server.Listen)
}
