// Package studies persists Study rows of the staging store.
//
// # Overview
//
// The Repository interface covers creation, lookup by id, remote upload id
// and status, lifecycle updates and age-based deletion. SQLiteRepository
// implements it over a dbx.DBTX (*sqlx.DB or *sqlx.Tx), so the staging store
// can compose several calls into one transaction.
//
// Metadata is stored as a JSON document exactly as given. Field encryption
// happens one layer up, in the gate package, which decorates a Repository.
//
// Deleting a Study cascades to its files and chunk markers.
package studies
