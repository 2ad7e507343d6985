// Package secrets scans generated site content for credentials before it is
// accepted. Detection is delegated to the gitleaks rule set; an optional
// TOML allowlist suppresses known-safe matches such as demo keys.
package secrets
