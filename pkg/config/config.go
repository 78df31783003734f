// Package config loads the Vectra API credentials and endpoint from an
// env-style configuration file.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
)

// Environment keys expected in the credentials file.
const (
	KeyClientID     = "CLIENT_ID"
	KeyClientSecret = "CLIENT_SECRET"
	KeyVectraURL    = "VECTRA_URL"
)

// Credentials holds the client identity and target endpoint.
// Loaded once at process start and immutable afterwards.
type Credentials struct {
	ClientID     string
	ClientSecret string

	// BaseURL is the platform endpoint, normalized to end with
	// exactly one trailing slash.
	BaseURL string
}

// ConfigError indicates missing or invalid local configuration.
// It is fatal and never retried.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Load reads credentials from the env file at path.
// It fails when the file is missing, any required key is absent or empty,
// or the endpoint URL is not syntactically valid.
func Load(path string) (*Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Message: "cannot read credentials file", Err: err}
	}

	var missing []string
	for _, key := range []string{KeyClientID, KeyClientSecret, KeyVectraURL} {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &ConfigError{
			Path:    path,
			Message: fmt.Sprintf("missing required keys: %s", strings.Join(missing, ", ")),
		}
	}

	base, err := normalizeBaseURL(values[KeyVectraURL])
	if err != nil {
		return nil, &ConfigError{Path: path, Message: "invalid " + KeyVectraURL, Err: err}
	}

	return &Credentials{
		ClientID:     values[KeyClientID],
		ClientSecret: values[KeyClientSecret],
		BaseURL:      base,
	}, nil
}

// normalizeBaseURL validates the endpoint and guarantees a single trailing slash.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q (want http or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}

	return strings.TrimRight(raw, "/") + "/", nil
}
