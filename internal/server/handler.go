package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"messagely/internal/guard"
	"messagely/internal/service"
)

const identityKey = "identity"

// Handler adapts the core services to gin.
type Handler struct {
	auth     *service.AuthService
	messages *service.MessageService
	users    *service.UserService
	guard    *guard.Guard
}

func NewHandler(d Deps) *Handler {
	return &Handler{auth: d.Auth, messages: d.Messages, users: d.Users, guard: d.Guard}
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingField), errors.Is(err, service.ErrSecretTooLong):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// requireAuth verifies the bearer token and stores the identity on the context.
func (h *Handler) requireAuth(c *gin.Context) {
	id, err := h.guard.AuthenticateRequest(guard.BearerToken(c.GetHeader("Authorization")))
	if err != nil {
		fail(c, err)
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) service.Identity {
	id, _ := c.Get(identityKey)
	v, _ := id.(service.Identity)
	return v
}

// messageID parses :id. Anything that is not a positive integer cannot name a
// message and is reported as not found.
func messageID(c *gin.Context) (uint, error) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, service.ErrNotFound
	}
	return uint(n), nil
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *Handler) Register(c *gin.Context) {
	var in service.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	token, err := h.auth.Register(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bindJSON(c, &req) {
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) GetMessage(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	m, err := h.guard.AuthorizeMessage(ctx, identity(c), id, guard.ActionRead)
	if err != nil {
		fail(c, err)
		return
	}
	detail, err := h.messages.Detail(ctx, m)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": detail})
}

func (h *Handler) SendMessage(c *gin.Context) {
	var in service.SendInput
	if !bindJSON(c, &in) {
		return
	}
	sum, err := h.messages.Send(c.Request.Context(), identity(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": sum})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := messageID(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()
	m, err := h.guard.AuthorizeMessage(ctx, identity(c), id, guard.ActionMarkRead)
	if err != nil {
		fail(c, err)
		return
	}
	receipt, err := h.messages.MarkRead(ctx, m)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": receipt})
}

func (h *Handler) ListUsers(c *gin.Context) {
	if err := guard.EnsureLoggedIn(identity(c)); err != nil {
		fail(c, err)
		return
	}
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ownUser rejects requests for another user's :username.
func (h *Handler) ownUser(c *gin.Context) {
	if err := guard.EnsureCorrectUser(identity(c), c.Param("username")); err != nil {
		fail(c, err)
		return
	}
	c.Next()
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *Handler) MessagesTo(c *gin.Context) {
	msgs, err := h.users.MessagesTo(c.Request.Context(), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *Handler) MessagesFrom(c *gin.Context) {
	msgs, err := h.users.MessagesFrom(c.Request.Context(), c.Param("username"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
