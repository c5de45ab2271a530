// Package files persists staged file records and their content.
//
// Content lives in a BLOB column next to the record and is read back one
// chunk window at a time with substr, so a multi-megabyte file is never
// loaded whole to send a single chunk. PurgeContent drops the bytes once a
// study is complete while keeping the row for history.
package files
