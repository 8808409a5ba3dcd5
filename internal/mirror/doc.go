// Package mirror walks a Drive folder tree depth-first and reproduces it on
// the local filesystem. Folders become directories named after their
// sanitized titles; files are fetched only when the remote copy is strictly
// newer than the local one; Google's native documents are saved as exports.
//
// Each run recomputes local paths from titles. Nothing is persisted between
// runs beyond the mirrored files themselves and their modification times.
package mirror
