package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"messagely/internal/auth"
	"messagely/internal/config"
	"messagely/internal/guard"
	"messagely/internal/metrics"
	"messagely/internal/mw"
	"messagely/internal/service"
	"messagely/internal/store"
	"messagely/internal/ws"
)

// Deps is everything the router serves. Close releases the rate limiter.
type Deps struct {
	Auth     *service.AuthService
	Messages *service.MessageService
	Users    *service.UserService
	Guard    *guard.Guard
	Hub      *ws.Hub
	Limiter  *mw.RL
}

// NewDeps builds the core on top of the given stores.
func NewDeps(cfg config.Config, users store.Credentials, messages store.Messages) (Deps, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	if err != nil {
		return Deps{}, errors.Wrap(err, "token service")
	}
	hasher := auth.NewHasher(cfg.BcryptWorkFactor, cfg.HashWorkers)
	hub := ws.NewHub()

	return Deps{
		Auth:     service.NewAuthService(users, hasher, tokens),
		Messages: service.NewMessageService(messages, users, hub),
		Users:    service.NewUserService(users, messages),
		Guard:    guard.New(tokens, messages),
		Hub:      hub,
		Limiter:  mw.NewRateLimiter(rate.Every(time.Second/5), 10, 10*time.Minute),
	}, nil
}

func (d Deps) Close() {
	if d.Limiter != nil {
		d.Limiter.Stop()
	}
}

// SetupRouter wires middleware, the REST API and the websocket endpoint.
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	h := NewHandler(d)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.RequestLogger())
	r.Use(mw.CORS(cfg.Env))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	if d.Limiter != nil {
		authGroup.Use(d.Limiter.Middleware())
	}
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)

	api := r.Group("")
	api.Use(h.requireAuth)

	api.GET("/messages/:id", h.GetMessage)
	api.POST("/messages", h.SendMessage)
	api.POST("/messages/:id/read", h.MarkRead)

	api.GET("/users", h.ListUsers)
	own := api.Group("/users/:username")
	own.Use(h.ownUser)
	own.GET("", h.GetUser)
	own.GET("/to", h.MessagesTo)
	own.GET("/from", h.MessagesFrom)

	r.GET("/ws", ws.Serve(d.Hub, d.Guard))
	return r
}
