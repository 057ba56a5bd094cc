// Package auth provides authentication and authorisation for Hearth Core.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Short-lived JWT access tokens, HS256-signed, validated statelessly
//   - Accounts declared in the config file, verified at startup
//
// There is no user database: a home installation has a handful of
// accounts, and keeping them in config means backup, review, and
// deployment all go through the same file as the schedules. Tokens
// carry the role, so request authorisation never touches storage.
package auth
