package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/internal/mocks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		setupAuth  func(*http.Request)
		expect     func(v *mocks.MockIdentityVerifier)
		wantStatus int
	}{
		{
			name: "Valid bearer token",
			setupAuth: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer good")
			},
			expect: func(v *mocks.MockIdentityVerifier) {
				v.EXPECT().Authenticate(gomock.Any(), interfaces.Credentials{Token: "good"}).Return(uint(5), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Valid cookie",
			setupAuth: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"})
			},
			expect: func(v *mocks.MockIdentityVerifier) {
				v.EXPECT().Authenticate(gomock.Any(), interfaces.Credentials{Token: "from-cookie"}).Return(uint(5), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Missing auth header",
			setupAuth:  func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Invalid auth format",
			setupAuth: func(r *http.Request) {
				r.Header.Set("Authorization", "InvalidFormat token")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Malformed header falls back to cookie",
			setupAuth: func(r *http.Request) {
				r.Header.Set("Authorization", "Token abc")
				r.AddCookie(&http.Cookie{Name: "jwt", Value: "from-cookie"})
			},
			expect: func(v *mocks.MockIdentityVerifier) {
				v.EXPECT().Authenticate(gomock.Any(), interfaces.Credentials{Token: "from-cookie"}).Return(uint(5), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Invalid token",
			setupAuth: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer invalid.token.here")
			},
			expect: func(v *mocks.MockIdentityVerifier) {
				v.EXPECT().Authenticate(gomock.Any(), gomock.Any()).
					Return(uint(0), &apperr.AuthError{Err: apperr.ErrUnauthenticated})
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := mocks.NewMockIdentityVerifier(gomock.NewController(t))
			if tt.expect != nil {
				tt.expect(verifier)
			}

			// 创建测试路由
			r := gin.New()
			r.Use(GinZapLogger(), AuthMiddleware(verifier, "jwt"))
			r.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint(UserIDKey)})
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			tt.setupAuth(req)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"user_id":5}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), "error")
			}
		})
	}
}
