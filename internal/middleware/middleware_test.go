package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/query-kb-api/internal/models"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

type validatorStub struct {
	claims map[string]*models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/queries/:id", handlers...)
	return r
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := newTestRouter(JWT(validatorStub{}), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer nope"} {
		req := httptest.NewRequest(http.MethodPost, "/queries/q-1", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestJWTAndRolesAllowPrivilegedCaller(t *testing.T) {
	v := validatorStub{claims: map[string]*models.JWTClaims{
		"admin": {UserID: "adm-1", Role: models.RoleAdmin},
		"sales": {UserID: "sales-1", Role: models.RoleSalesExecutive},
	}}
	r := newTestRouter(JWT(v), RequireRoles(models.RoleAdmin, models.RoleManager), func(c *gin.Context) {
		assert.Equal(t, "adm-1", Claims(c).UserID)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/queries/q-1", nil)
	req.Header.Set("Authorization", "Bearer admin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/queries/q-1", nil)
	req.Header.Set("Authorization", "Bearer sales")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	r := newTestRouter(RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/queries/q-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuditLogsSuccessfulMutationsOnly(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	status := http.StatusCreated
	r := newTestRouter(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "mgr-1", Role: models.RoleManager})
	}, Audit(zap.New(core), "query.answer"), func(c *gin.Context) {
		if status >= 400 {
			_ = c.Error(errors.New("boom"))
		}
		c.Status(status)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/queries/q-9", nil))
	status = http.StatusUnprocessableEntity
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/queries/q-9", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "query.answer", fields["action"])
	assert.Equal(t, "q-9", fields["resource_id"])
	assert.Equal(t, "mgr-1", fields["actor_id"])
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, method+" "+path)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	obs := &observerStub{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics(obs, "/metrics"))
	r.GET("/queries/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/queries/q-1", "/queries/q-2", "/metrics", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, []string{"GET /queries/:id", "GET /queries/:id", "GET unmatched"}, obs.paths)
}
