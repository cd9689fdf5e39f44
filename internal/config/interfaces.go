package config

import "context"

// SecretProvider resolves secret references to plaintext values. The loader
// uses it for every NAME_FILE variable whose NAME is not already set.
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Keys that cannot be
	// found are omitted from the result rather than failing the batch.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
