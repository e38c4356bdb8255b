// Package config loads and watches the entropyd configuration file.
//
// Top-level types:
//   - Config: log_level, http_port, collect_interval, result_ttl,
//     default_base, auth, sources [], alerts
//   - Source: id, type (prometheus|postgres|file), base, and the
//     type-specific fields (endpoints+family, dsn_env+query+count_column,
//     paths+schema), plus auth and tls for HTTP endpoints
//   - AuthConfig, ServerAuthConfig, WebhookConfig: secrets are never stored
//     in the file, only the names of the environment variables holding them
//
// Load(path) reads the YAML file, applies defaults (30s collect interval,
// 5m result TTL, port 8080, natural log), then validates. Every log base
// token is parsed during validation, so an unknown base is fatal at load.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory and
// calls onChange with each successfully reloaded Config.
package config
