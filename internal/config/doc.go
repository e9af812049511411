// Package config loads and validates the dartup configuration file.
//
// Configuration sections by subsystem:
//   - Paths: state directory, backup root, and log directory
//   - Caller / WLED: per-extension repository, service, venv, and override
//     file settings
//   - WebPanel: download source and install locations for the companion
//     web panel plus its transfer timeouts
//   - Logging: log format and level
//
// Values are merged over repository defaults, path fields are expanded and
// normalized, and the result is validated before any stage runs.
package config
