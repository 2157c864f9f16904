package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveAuth(keys []string, path, header string) *httptest.ResponseRecorder {
	h := BearerAuthMiddleware(keys)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBearerAuth(t *testing.T) {
	keys := []string{"key1", "", "key2"}

	tests := []struct {
		name   string
		keys   []string
		path   string
		header string
		want   int
	}{
		{"no keys configured", nil, "/v1/cache", "", http.StatusOK},
		{"only empty keys", []string{"", ""}, "/v1/cache", "", http.StatusOK},
		{"missing header", keys, "/v1/cache", "", http.StatusUnauthorized},
		{"basic scheme", keys, "/v1/cache", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"scheme without token", keys, "/v1/cache", "Bearer", http.StatusUnauthorized},
		{"wrong key", keys, "/v1/cache", "Bearer wrong-key", http.StatusUnauthorized},
		{"key prefix", keys, "/v1/cache", "Bearer key", http.StatusUnauthorized},
		{"key with suffix", keys, "/v1/cache", "Bearer key12", http.StatusUnauthorized},
		{"empty token", keys, "/v1/cache", "Bearer ", http.StatusUnauthorized},
		{"first key", keys, "/v1/cache", "Bearer key1", http.StatusOK},
		{"second key", keys, "/v1/ask", "Bearer key2", http.StatusOK},
		{"lowercase scheme", keys, "/v1/usage", "bearer key1", http.StatusOK},
		{"health is public", keys, "/health", "", http.StatusOK},
		{"metrics is public", keys, "/metrics", "", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuth(tc.keys, tc.path, tc.header)
			if rr.Code != tc.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tc.want)
			}
			if tc.want != http.StatusUnauthorized {
				return
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 must carry a WWW-Authenticate challenge")
			}
			var resp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != codeUnauthorized || resp.Message == "" {
				t.Errorf("error body: got %+v", resp)
			}
		})
	}
}
