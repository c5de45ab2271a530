// Package cli implements the relaypacs command-line uploader.
//
// Commands stage studies into the local database, drive resumable uploads
// against the server, and run retention sweeps:
//
//	relaypacs stage --patient "Doe^Jane" --date 2024-05-01 --modality CT a.dcm b.dcm
//	relaypacs upload 1
//	relaypacs list --status failed
//	relaypacs status 1
//	relaypacs sweep --watch
//	relaypacs replay
//	relaypacs end-session
//
// Every command shares the persistent flags registered by config.BindFlags.
package cli
