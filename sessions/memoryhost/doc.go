// Package memoryhost provides an in-memory sessions.Host implementation
// suitable for tests, development, and single-process servers. All state is
// ephemeral and discarded on process exit.
//
// Characteristics
//
//	Durability        : none (RAM only)
//	Horizontal scale  : no (process local)
//	Expiry            : lazy, checked on read
//	Concurrency       : safe (RWMutex)
//
// Example:
//
//	host := memoryhost.New()
//	_ = host.CreateSession(ctx, &sessions.Session{UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)})
//
// For production multi-node deployments prefer a shared host like redishost.
package memoryhost
