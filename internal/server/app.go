package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"personachat/backend/internal/config"
	"personachat/backend/internal/enrichment"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/pricing"
	"personachat/backend/internal/profile"
	"personachat/backend/internal/ratelimit"
	"personachat/backend/internal/relay"
	"personachat/backend/internal/store"
)

type App struct {
	cfg       config.Config
	store     store.Store
	relay     *relay.Orchestrator
	catalog   *pricing.Catalog
	extractor enrichment.Extractor
	limiter   ratelimit.Limiter
	caps      profile.Caps
	log       *logger.Logger
}

// Deps are the collaborators built by the process entrypoint. Extractor and
// Limiter may be nil.
type Deps struct {
	Store     store.Store
	Relay     *relay.Orchestrator
	Catalog   *pricing.Catalog
	Extractor enrichment.Extractor
	Limiter   ratelimit.Limiter
	Log       *logger.Logger
}

type AuthUser struct {
	ID    string
	Email string
	Name  string
}

func New(cfg config.Config, deps Deps) *App {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		cfg:       cfg,
		store:     deps.Store,
		relay:     deps.Relay,
		catalog:   deps.Catalog,
		extractor: deps.Extractor,
		limiter:   deps.Limiter,
		caps:      profile.CapsFromConfig(cfg.ProfileFieldCaps),
		log:       log.With("component", "HTTP"),
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(otelgin.Middleware(a.cfg.OTelServiceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.GET("/me", a.getMe)
	api.GET("/me/transactions", a.listMyTransactions)

	api.GET("/chats", a.listChats)
	api.POST("/chats", a.createChat)
	api.GET("/chats/:id", a.getChat)
	api.PATCH("/chats/:id", a.updateChat)
	api.DELETE("/chats/:id", a.deleteChat)
	api.POST("/chats/:id/favorite", a.toggleFavorite)

	api.GET("/profile", a.getProfile)
	api.PUT("/profile", a.replaceProfile)
	api.POST("/profile/analyze", a.analyzeProfile)

	api.GET("/llm/models", a.listModels)
	turns := api.Group("/llm/chat")
	turns.Use(a.rateLimitMiddleware())
	turns.POST("/:id/message", a.sendMessage)
	turns.POST("/:id/message/stream", a.streamMessage)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "personachat-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func claimString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func (a *App) getOrCreateUser(ctx context.Context, userID string, claims jwt.MapClaims) (AuthUser, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err == nil {
		return AuthUser{ID: user.ID, Email: user.Email, Name: user.Name}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return AuthUser{}, err
	}
	if !a.cfg.AuthAutoCreateUser {
		return AuthUser{}, errors.New("User not found")
	}

	name := claimString(claims, "name")
	if name == "" {
		name = fmt.Sprintf("user-%s", truncate(userID, 8))
	}
	created, err := a.store.CreateUser(ctx, store.User{
		ID:      userID,
		Email:   claimString(claims, "email"),
		Name:    name,
		Balance: a.cfg.SignupBalance,
	})
	if err != nil {
		return AuthUser{}, err
	}
	a.log.Info("User auto-created", "user_id", created.ID)
	return AuthUser{ID: created.ID, Email: created.Email, Name: created.Name}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func mustAuthUser(c *gin.Context) (AuthUser, bool) {
	user, ok := authUserFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "Authentication required")
	}
	return user, ok
}

// rateLimitMiddleware keys on the authenticated user. A limiter backend error
// lets the request through.
func (a *App) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if user, ok := authUserFromContext(c); ok {
			key = user.ID
		}
		decision, err := a.limiter.Allow(c.Request.Context(), key)
		if err != nil {
			a.log.Warn("Rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			writeError(c, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Next()
	}
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
