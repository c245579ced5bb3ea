package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/navigation"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/registration"
)

const (
	contextKey      = "pubids_context"
	principalKey    = "pubids_principal"
	requestIDHeader = "X-Request-ID"
)

var (
	errMissingContextResolver = errors.New("context resolver dependency required")
	errMissingDoiRepository   = errors.New("doi repository dependency required")
	errMissingRegistration    = errors.New("registration dependency required")
	errMissingNavigation      = errors.New("navigation dependency required")
	errMissingSessionVerifier = errors.New("session validator dependency required")
)

// ContextResolver finds the context addressed by a request path.
type ContextResolver interface {
	GetByPath(ctx context.Context, path string) (contexts.Context, error)
}

// SessionValidator authenticates a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.Principal, error)
}

// RegistrationPerformer runs registration actions.
type RegistrationPerformer interface {
	Perform(ctx context.Context, action registration.Action, current contexts.Context, ids []int64) (registration.Outcome, error)
}

// NavigationReader renders public navigation menus.
type NavigationReader interface {
	Public(ctx context.Context, id, contextID int64, locale string) (navigation.PublicMenu, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Contexts         ContextResolver
	Dois             DoiRepository
	Registration     RegistrationPerformer
	Navigation       NavigationReader
	SessionValidator SessionValidator
	Metrics          *metrics.Metrics
	OpenAPI          []byte
	AllowedOrigins   []string
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin router serving the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Contexts == nil {
		return nil, errMissingContextResolver
	}
	if deps.Dois == nil {
		return nil, errMissingDoiRepository
	}
	if deps.Registration == nil {
		return nil, errMissingRegistration
	}
	if deps.Navigation == nil {
		return nil, errMissingNavigation
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowedOrigins := deps.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(assignRequestID)
	router.Use(logging.RequestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	handler := &httpHandler{
		contexts:     deps.Contexts,
		dois:         deps.Dois,
		registration: deps.Registration,
		navigation:   deps.Navigation,
		sessions:     deps.SessionValidator,
		logger:       logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if len(deps.OpenAPI) > 0 {
		document := deps.OpenAPI
		router.GET("/openapi.json", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", document)
		})
	}

	tenant := router.Group("/api/v1/:contextPath")
	tenant.Use(handler.resolveContext)
	tenant.GET("/navigations/:navigationId/public", handler.handlePublicNavigation)

	allRoles := []auth.Role{auth.RoleManager, auth.RoleSubEditor, auth.RoleAssistant, auth.RoleReviewer, auth.RoleAuthor}
	editors := []auth.Role{auth.RoleManager, auth.RoleSubEditor}

	protected := tenant.Group("/dois")
	protected.Use(handler.authorizeRequest)
	protected.GET("", handler.requireRoles(allRoles...), handler.handleListDois)
	protected.GET("/:doiId", handler.requireRoles(allRoles...), handler.handleGetDoi)
	protected.POST("", handler.requireRoles(editors...), handler.handleAddDoi)
	protected.PUT("/:doiId", handler.requireRoles(allRoles...), handler.handleEditDoi)
	protected.DELETE("/:doiId", handler.requireRoles(allRoles...), handler.handleDeleteDoi)
	protected.PUT("/submissions/:action", handler.requireRoles(editors...), handler.handleRegistrationAction)

	return router, nil
}

type httpHandler struct {
	contexts     ContextResolver
	dois         DoiRepository
	registration RegistrationPerformer
	navigation   NavigationReader
	sessions     SessionValidator
	logger       *zap.Logger
}

func assignRequestID(c *gin.Context) {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(logging.RequestIDKey, requestID)
	c.Header(requestIDHeader, requestID)
	c.Next()
}

func (h *httpHandler) resolveContext(c *gin.Context) {
	current, err := h.contexts.GetByPath(c.Request.Context(), c.Param("contextPath"))
	if err != nil {
		if errors.Is(err, contexts.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "context_not_found"})
			return
		}
		h.logger.Error("context resolution failed", zap.String("context_path", c.Param("contextPath")), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": "contexts.resolve.lookup_failed"})
		return
	}
	c.Set(contextKey, current)
	c.Next()
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	principal, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(principalKey, principal)
	c.Next()
}

func (h *httpHandler) requireRoles(allowed ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, ok := currentContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
			return
		}
		value, exists := c.Get(principalKey)
		principal, ok := value.(auth.Principal)
		if !exists || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !principal.HasAnyRole(current.Path, allowed...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func currentContext(c *gin.Context) (contexts.Context, bool) {
	value, exists := c.Get(contextKey)
	if !exists {
		return contexts.Context{}, false
	}
	current, ok := value.(contexts.Context)
	return current, ok
}

// respondInternal logs err and answers 500 with the service error code when
// one is available.
func (h *httpHandler) respondInternal(c *gin.Context, fallbackCode, message string, err error) {
	code := fallbackCode
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		code = coded.Code()
	}
	h.logger.Error(message,
		zap.String("code", code),
		zap.String("request_id", c.GetString(logging.RequestIDKey)),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": code})
}
