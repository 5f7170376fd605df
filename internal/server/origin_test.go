package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tyrowin/roomrelay/internal/logging"
)

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws", http.NoBody)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"https://Chat.Example.com", "not a url", "", "http://localhost:10000"}, logging.Discard())

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact match", "https://chat.example.com", true},
		{"case-insensitive host", "HTTPS://CHAT.EXAMPLE.COM", true},
		{"localhost", "http://localhost:10000", true},
		{"other port", "http://localhost:3000", false},
		{"scheme mismatch", "http://chat.example.com", false},
		{"missing origin", "", false},
		{"garbage origin", "::::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.checkOrigin(requestWithOrigin(tt.origin)))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, logging.Discard())

	assert.True(t, p.allows(requestWithOrigin("https://anywhere.example")))
	assert.False(t, p.allows(requestWithOrigin("")))
}

func TestNormalizeOrigins_DropsInvalid(t *testing.T) {
	normalized, allowAll := normalizeOrigins([]string{"http://A.test", "bogus", " *"}, logging.Discard())

	assert.Equal(t, []string{"http://a.test"}, normalized)
	assert.True(t, allowAll)
}
