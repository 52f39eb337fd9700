// Package upload moves optimized items to the upload queue and delivers them
// to the upload endpoint.
//
// Each item is sent as one or more multipart requests. Requests are bounded
// by the max_file_uploads attachment cap and flagged partial while URLs
// remain; the first failing request ends the transfer. Server and transport
// failures are recorded on the item rather than returned.
package upload
