package repositories

import "context"

// CredentialSelector asks the host for a new API credential. Select blocks
// until one is available, or returns an error if the user cancels.
type CredentialSelector interface {
	Select(ctx context.Context) error
}

// CredentialSource hands out the current API key along with a version that
// changes every time the key is replaced.
type CredentialSource interface {
	APIKey() (key string, version uint64)
}
