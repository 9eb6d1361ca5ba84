package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment
// variables. It is read-only and mainly serves CI and one-off runs.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve builds a profile from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	proxyToken := os.Getenv("AGENTHARVEST_PROXY_API_TOKEN")
	sessionCookie := os.Getenv("AGENTHARVEST_SESSION_COOKIE")

	if proxyToken == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "default"
	}

	return &Profile{
		Name:          name,
		ProxyToken:    proxyToken,
		SessionCookie: sessionCookie,
		LastModified:  time.Now(),
	}, nil
}

// List returns a single profile if environment variables are set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("AGENTHARVEST_PROXY_API_TOKEN") != ""
}
