// Package client contains the uploader's outward-facing building blocks.
//
// # Overview
//
// The package provides:
//  1. The UploadAPI contract for the RelayPACS upload protocol and an HTTP
//     implementation (HTTPClient) that maps status codes to sentinel errors.
//  2. Authenticators that supply the user bearer used for session init and
//     upload-token refresh, with one transparent re-login on 401.
//  3. Local persistence bootstrap (OpenDatabase, RunMigrations) wiring an
//     SQLite staging database and applying the embedded goose migrations.
//
// # Error Handling
//
// Non-2xx replies are returned as *APIError, which unwraps to one of
// ErrUnauthorized, ErrPayloadTooLarge, ErrUnavailable or ErrRejected.
// Transport failures unwrap to ErrUnavailable. Match with errors.Is.
package client
