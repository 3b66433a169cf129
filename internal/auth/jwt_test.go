package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("rfidattend", "secret", time.Minute, time.Hour)

	pair, err := iss.Issue("door-1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "door-1", claims.Subject)
	assert.Equal(t, RoleDevice, claims.Role)

	_, err = iss.Issue("")
	assert.Error(t, err)
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("rfidattend", "secret", time.Minute, time.Hour)

	expired := NewIssuer("rfidattend", "secret", time.Minute, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("door-1")
	require.NoError(t, err)

	other, err := NewIssuer("someone-else", "secret", time.Minute, time.Hour).Issue("door-1")
	require.NoError(t, err)

	wrongKey, err := NewIssuer("rfidattend", "other-secret", time.Minute, time.Hour).Issue("door-1")
	require.NoError(t, err)

	admin, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "rfidattend", Subject: "u1"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", old.AccessToken},
		{"foreign issuer", other.AccessToken},
		{"wrong key", wrongKey.AccessToken},
		{"not a device", admin},
		{"garbage", "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := iss.Parse(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestDeviceAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("rfidattend", "secret", time.Minute, time.Hour)
	pair, err := iss.Issue("door-7")
	require.NoError(t, err)

	r := gin.New()
	r.Use(DeviceAuth(iss))
	r.POST("/scan", func(c *gin.Context) { c.String(http.StatusOK, DeviceID(c)) })
	r.OPTIONS("/scan", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name     string
		method   string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "missing", method: http.MethodPost, wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", method: http.MethodPost, header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodPost, header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "valid", method: http.MethodPost, header: "Bearer " + pair.AccessToken, wantCode: http.StatusOK, wantBody: "door-7"},
		{name: "lower-case scheme", method: http.MethodPost, header: "bearer " + pair.AccessToken, wantCode: http.StatusOK, wantBody: "door-7"},
		{name: "preflight skips auth", method: http.MethodOptions, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/scan", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestDeviceAuth_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(DeviceAuth(nil))
	r.POST("/scan", func(c *gin.Context) { c.String(http.StatusOK, "id=%s", DeviceID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scan", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "id=", w.Body.String())
}
