package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		Name       string
		origins    []string
		origin     string
		preflight  bool
		wantAllow  string
		wantStatus int
	}{
		{
			Name:       "configured origin",
			origins:    []string{"http://localhost:3000"},
			origin:     "http://localhost:3000",
			wantAllow:  "http://localhost:3000",
			wantStatus: http.StatusOK,
		},
		{
			Name:       "unknown origin",
			origins:    []string{"http://localhost:3000"},
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			Name:       "no origins configured",
			origin:     "https://any.example.com",
			wantAllow:  "https://any.example.com",
			wantStatus: http.StatusOK,
		},
		{
			Name:       "preflight",
			origins:    []string{"http://localhost:3000"},
			origin:     "http://localhost:3000",
			preflight:  true,
			wantAllow:  "http://localhost:3000",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/api/health", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			rec := httptest.NewRecorder()

			CORS(tt.origins)(ok).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
