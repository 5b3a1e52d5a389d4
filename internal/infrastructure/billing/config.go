package billing

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the provider's production API gateway.
const DefaultBaseURL = "https://gateway.prod.bill.com/connect"

// Config holds configuration for the billing provider client
type Config struct {
	// BaseURL is the provider API root; paths such as /v3/login are appended
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// Username and Password are the API user's login credentials
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`

	// OrganizationID identifies the provider organization to log into
	OrganizationID string `json:"organization_id" mapstructure:"organization_id"`

	// DevKey is the developer key sent on every request
	DevKey string `json:"-" mapstructure:"dev_key"`

	// MockMode answers every provider call in-process. Used in development
	// so the billing flow runs without live credentials.
	MockMode bool `json:"mock_mode" mapstructure:"mock_mode"`

	// Timeout bounds every remote call
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns a mock-mode configuration for development/testing
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  DefaultBaseURL,
		MockMode: true,
		Timeout:  30 * time.Second,
	}
}

// Validate validates the billing configuration
func (c *Config) Validate() error {
	if c.MockMode {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("billing: base URL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("billing: base URL %q is not an absolute URL", c.BaseURL)
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("billing: username and password are required")
	}
	if c.OrganizationID == "" {
		return fmt.Errorf("billing: organization ID is required")
	}
	if c.DevKey == "" {
		return fmt.Errorf("billing: dev key is required")
	}
	return nil
}

func (c *Config) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Timeout
}
