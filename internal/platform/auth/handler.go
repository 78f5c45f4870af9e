package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HandlerConfig struct {
	CookieName        string
	CookieSecure      bool
	AllowRegistration bool
}

type Handler struct {
	svc         *Service
	revocations *TokenRevocationStore
	cfg         HandlerConfig
}

func NewHandler(svc *Service, revocations *TokenRevocationStore, cfg HandlerConfig) *Handler {
	return &Handler{svc: svc, revocations: revocations, cfg: cfg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
}

type credentials struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) Register(c echo.Context) error {
	if !h.cfg.AllowRegistration {
		return echo.NewHTTPError(http.StatusForbidden, "registration is disabled")
	}
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.Register(c.Request().Context(), req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	c.SetCookie(h.cookie(sess.Token, sess.ExpiresAt))
	return c.JSON(http.StatusOK, sess)
}

// Logout clears the cookie and revokes every valid token the request
// carried, so a copied bearer token stops working too.
func (h *Handler) Logout(c echo.Context) error {
	if h.revocations != nil {
		for _, tokenStr := range tokensFromRequest(c, h.cfg.CookieName) {
			if claims, err := h.svc.tokens.Parse(tokenStr); err == nil && claims.ExpiresAt != nil {
				h.revocations.Revoke(claims.ID, claims.ExpiresAt.Time)
			}
		}
	}
	expired := h.cookie("", time.Unix(0, 0))
	expired.MaxAge = -1
	c.SetCookie(expired)
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.GetUser(c.Request().Context(), UserIDFromContext(c.Request().Context()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
