package billing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// mockPrefixes mirrors the provider's id prefixes so ids minted in mock mode
// pass the same format checks as real ones.
var mockPrefixes = map[string]string{
	customersPath: "0cu",
	vendorsPath:   "009",
	invoicesPath:  "00e",
	billsPath:     "0bi",
}

// mockTransport answers provider endpoints in-process.
type mockTransport struct{}

func newMockTransport() http.RoundTripper {
	return mockTransport{}
}

// RoundTrip implements http.RoundTripper
func (mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}

	status := http.StatusOK
	var body any
	switch path := req.URL.Path; {
	case strings.HasSuffix(path, loginPath):
		body = map[string]string{"sessionId": "mock-session-" + uuid.NewString()}
	default:
		prefix := ""
		for suffix, p := range mockPrefixes {
			if strings.HasSuffix(path, suffix) {
				prefix = p
				break
			}
		}
		if prefix == "" {
			status = http.StatusNotFound
			body = map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "unknown mock endpoint " + path}}
			break
		}
		body = map[string]string{"id": prefix + "MOCK" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])}
	}

	payload, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(payload)),
		Request:    req,
	}, nil
}
