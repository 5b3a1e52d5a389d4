package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag/v2"
)

func TestSwaggerDocument(t *testing.T) {
	raw, err := swag.ReadDoc()
	require.NoError(t, err)

	var doc struct {
		Info     map[string]any            `json:"info"`
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	assert.Equal(t, "LabFix Marketplace API", doc.Info["title"])
	assert.Equal(t, "/api/v1", doc.BasePath)
	for _, path := range []string{
		"/billing/ar-invoices",
		"/billing/initial-fee-invoices",
		"/billing/vendor-payments",
		"/billing/webhook",
		"/invoices/{id}/mark-paid",
		"/work-orders/{id}/claim",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}
