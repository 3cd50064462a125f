// Package session holds the client's access/refresh token pair.
//
// # Consistency
//
// [Store] keeps the current [Session] in memory behind an RWMutex. Reads never
// touch the backend. Writes update memory and persist to the configured
// [Backend] before returning, so a value set is visible to every reader in the
// process as soon as Set returns and survives a restart.
//
// Backend failures are logged and never surfaced from Get, Set or Clear.
//
// # Backends
//
//   - nil backend: memory only.
//   - session/filestore: YAML file written atomically with 0600 permissions.
//   - session/redisstore: two Redis keys written in one MULTI/EXEC.
//
// # What this package must NOT do
//
//   - Import authpipe, endpoint or transport.
//   - Interpret tokens.
package session
