package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted TrustedProxies
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr ipv4", nil, nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote addr ipv6", nil, nil, "[::1]:5555", "::1"},
		{"forwarded header from untrusted peer", nil, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.3:1234", "198.51.100.3"},
		{"real ip from untrusted peer", proxies, map[string]string{"X-Real-IP": "203.0.113.7"}, "198.51.100.3:1234", "198.51.100.3"},
		{"forwarded through trusted proxy", proxies, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:1234", "203.0.113.7"},
		{"rightmost untrusted hop wins", proxies, map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.7, 10.0.0.9"}, "10.0.0.2:1234", "203.0.113.7"},
		{"single trusted address", proxies, map[string]string{"X-Forwarded-For": "203.0.113.8"}, "192.168.1.1:80", "203.0.113.8"},
		{"real ip through trusted proxy", proxies, map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "198.51.100.4"},
		{"garbage header falls back to peer", proxies, map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.2:1234", "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r, tt.trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{" 10.0.0.0/8 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientMetadataPopulatesContext(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:80"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.9", gotIP)
	assert.Equal(t, "Mozilla/5.0", gotUA)
}
