package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/authgate/internal/pkg/cookie"
	"github.com/mx-space/authgate/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerRecordsRouteClassAndSubject(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	codec, err := jwt.NewCodec(jwt.Keys{Current: strings.Repeat("k", jwt.MinSecretLength)})
	require.NoError(t, err)
	token, _, err := codec.Issue(jwt.SessionPayload{SubjectID: "583231"}, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.Use(Guard(GuardConfig{Codec: codec, Cookies: cookie.New(time.Hour), Routes: DefaultRoutes()}))
	r.GET("/history", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	req.AddCookie(&http.Cookie{Name: cookie.DefaultName, Value: token})
	r.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "protected", fields["route_class"])
	assert.Equal(t, "583231", fields["subject"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	for _, v := range fields {
		if s, ok := v.(string); ok {
			assert.NotContains(t, s, token, "token must never be logged")
		}
	}
}
