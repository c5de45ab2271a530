// Package services ties the staging store to the upload protocol.
//
// SessionManager owns the handshake that turns a staged Study into a remote
// upload and keeps its scoped token valid. TransferEngine drains a study's
// unsent chunks. Sweeper reclaims staging space. UploadService is the
// facade callers use.
//
// Neither SessionManager nor TransferEngine retries on its own beyond one
// token refresh after an auth rejection. Re-running a drain is always safe:
// chunks already recorded are skipped and the server accepts a repeated
// chunk.
package services
