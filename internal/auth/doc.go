// Package auth provides API key authentication for the entropyd HTTP API.
//
// APIKey(mode, header, key, open...) wraps an http.Handler. The expected
// key is read from the environment variable named in the auth config, so
// it never appears in the config file.
package auth
