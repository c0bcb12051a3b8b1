// Package redishost implements sessions.Host on top of Redis so every
// instance of the real-time service resolves the same session records.
//
// Design Notes
//   - Records: JSON blob per session under <prefix>session:<id>
//   - Expiry: key TTL mirrors ExpiresAt; Validate still checks the timestamp
//   - Revocation: read/modify/write that keeps the remaining TTL (KEEPTTL)
//
// Example:
//
//	host, err := redishost.NewFromEnv()
//	if err != nil { /* handle */ }
//	defer host.Close()
//
// Use memoryhost for ephemeral development; use redishost where more than one
// process serves connections.
package redishost
