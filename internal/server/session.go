package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/translatekit/chatbridge/internal/browser"
)

// SessionHandler exposes the manual login trigger and the non-mutating
// login verification.
type SessionHandler struct {
	Manager      *browser.Manager
	Auth         *browser.Authenticator
	HeadfulLogin bool
	logger       *log.Logger
}

func NewSessionHandler(mgr *browser.Manager, auth *browser.Authenticator, headfulLogin bool) *SessionHandler {
	return &SessionHandler{
		Manager:      mgr,
		Auth:         auth,
		HeadfulLogin: headfulLogin,
		logger:       log.New(log.Writer(), "[LOGIN] ", log.LstdFlags),
	}
}

func (h *SessionHandler) Register(g *echo.Group) {
	g.POST("/start", h.start)
	g.GET("/verify", h.verify)
}

// start drives the full authentication flow, including the unbounded
// manual login fallback. The request blocks until the human completes
// the login or disconnects; on success cookies are persisted.
func (h *SessionHandler) start(c echo.Context) error {
	ctx := c.Request().Context()

	sess, err := h.acquire(c)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "browser unavailable: " + err.Error()})
	}
	page := sess.NewPage()
	defer page.Close()

	if err := h.Auth.EnsureAuthenticated(ctx, page); err != nil {
		h.logger.Printf("session start failed: %v", err)
		return c.JSON(http.StatusUnauthorized, messageResponse{Message: "login failed: " + err.Error()})
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "session authenticated, cookies persisted"})
}

// verify evaluates the login predicate without touching the persisted
// cookie file.
func (h *SessionHandler) verify(c echo.Context) error {
	ctx := c.Request().Context()

	sess, err := h.Manager.Acquire(ctx)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, messageResponse{Message: "browser unavailable: " + err.Error()})
	}
	page := sess.NewPage()
	defer page.Close()

	ok, err := h.Auth.Verify(ctx, page)
	if err != nil {
		h.logger.Printf("verify failed: %v", err)
		return c.JSON(http.StatusBadGateway, messageResponse{Message: "verification failed: " + err.Error()})
	}
	if !ok {
		return c.JSON(http.StatusOK, messageResponse{Message: "not logged in"})
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "logged in"})
}

func (h *SessionHandler) acquire(c echo.Context) (*browser.Session, error) {
	if h.HeadfulLogin {
		return h.Manager.AcquireHeadful(c.Request().Context())
	}
	return h.Manager.Acquire(c.Request().Context())
}
