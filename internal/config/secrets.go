package config

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
)

// Secrets are the credentials read once from the environment at startup.
// They are passed by value into the components that need them and are
// never looked up again while serving.
type Secrets struct {
	// AdminToken guards the configuration endpoints.
	AdminToken string
	// ManagementToken is the bearer token for the store's management API.
	ManagementToken string
	// StoreID identifies the edge config store.
	StoreID string
	// ReadConnection is the edge config connection string used for reads,
	// e.g. https://edge-config.vercel.com/ecfg_abc?token=xyz
	ReadConnection string
	// TeamID scopes management calls to a team when set.
	TeamID string
}

// LoadSecrets reads secrets from the process environment.
func LoadSecrets() Secrets {
	return Secrets{
		AdminToken:      getEnv("ADMIN_TOKEN", ""),
		ManagementToken: getEnv("VERCEL_TOKEN", ""),
		StoreID:         getEnv("EDGE_CONFIG_ID", ""),
		ReadConnection:  getEnv("EDGE_CONFIG", ""),
		TeamID:          getEnv("VERCEL_TEAM_ID", ""),
	}
}

// AdminTokenMatches compares token against the admin secret byte for byte.
// An unset admin secret matches nothing.
func (s Secrets) AdminTokenMatches(token string) bool {
	if s.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminToken)) == 1
}

// ManagementAvailable reports whether writes through the management API are possible.
func (s Secrets) ManagementAvailable() bool {
	return s.ManagementToken != "" && s.StoreID != ""
}

// ReadEndpoint splits the read connection string into the item base URL and
// its read token.
func (s Secrets) ReadEndpoint() (baseURL, token string, err error) {
	if s.ReadConnection == "" {
		return "", "", fmt.Errorf("EDGE_CONFIG is not set")
	}

	u, err := url.Parse(s.ReadConnection)
	if err != nil {
		return "", "", fmt.Errorf("invalid EDGE_CONFIG connection string: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid EDGE_CONFIG connection string: missing scheme or host")
	}

	token = u.Query().Get("token")
	if token == "" {
		return "", "", fmt.Errorf("invalid EDGE_CONFIG connection string: missing token")
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/"), token, nil
}

// String hides secret values so Secrets can be logged safely.
func (s Secrets) String() string {
	return fmt.Sprintf("Secrets{admin_token:%t management_token:%t store_id:%t read_connection:%t team_id:%t}",
		s.AdminToken != "", s.ManagementToken != "", s.StoreID != "", s.ReadConnection != "", s.TeamID != "")
}
