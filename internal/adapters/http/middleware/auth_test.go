package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-sync/internal/platform/config"
)

func TestClaims_Roles(t *testing.T) {
	t.Parallel()

	claims := &Claims{Subject: "ana", Roles: []string{"viewer", "editor"}}

	assert.True(t, claims.HasRole("editor"))
	assert.False(t, claims.HasRole("admin"))
	assert.True(t, claims.HasAnyRole("admin", "viewer"))
	assert.False(t, claims.HasAnyRole("admin", "owner"))
}

func TestExtractClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.AuthConfig
		headers map[string]string
		want    *Claims
	}{
		{
			name:    "default headers when config is nil",
			headers: map[string]string{defaultSubjectHeader: "ana", defaultRolesHeader: "editor, viewer"},
			want:    &Claims{Subject: "ana", Roles: []string{"editor", "viewer"}},
		},
		{
			name:    "configured headers",
			cfg:     &config.AuthConfig{SubjectHeader: "X-Sub", RolesHeader: "X-Groups"},
			headers: map[string]string{"X-Sub": "bo", "X-Groups": "editor"},
			want:    &Claims{Subject: "bo", Roles: []string{"editor"}},
		},
		{
			name: "no headers",
			want: &Claims{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, ExtractClaims(c, tt.cfg))
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		subject    string
		roles      string
		wantStatus int
		wantCode   string
	}{
		{name: "editor passes", subject: "ana", roles: "viewer,editor", wantStatus: http.StatusNoContent},
		{name: "viewer is forbidden", subject: "ana", roles: "viewer", wantStatus: http.StatusForbidden, wantCode: dto.ErrorCodeForbidden},
		{name: "anonymous is unauthorized", roles: "editor", wantStatus: http.StatusUnauthorized, wantCode: dto.ErrorCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.POST("/sync/resolve", RequireRole(nil, "editor"), func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodPost, "/sync/resolve", nil)
			if tt.subject != "" {
				req.Header.Set(defaultSubjectHeader, tt.subject)
			}

			req.Header.Set(defaultRolesHeader, tt.roles)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantCode != "" {
				var resp dto.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestRequireAuth_StoresClaimsForLaterChecks(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(RequireAuth(nil), RequireAnyRole(nil, "owner", "editor"))
	router.GET("/", func(c *gin.Context) {
		claims := GetClaims(c)
		require.NotNil(t, claims)
		c.String(http.StatusOK, claims.Subject)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(defaultSubjectHeader, "ana")
	req.Header.Set(defaultRolesHeader, "editor")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana", w.Body.String())
}

func TestParseCommaSeparated(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"editor", "viewer"}, parseCommaSeparated(" editor, ,viewer "))
	assert.Empty(t, parseCommaSeparated(""))
}
