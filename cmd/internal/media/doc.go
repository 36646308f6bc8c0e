// Package media stores user-uploaded images (avatars and cover images).
//
// Two backends exist: S3Store writes to any S3-compatible bucket (AWS, MinIO)
// and LocalStore copies files under a directory served by the HTTP server.
// Neither backend removes the caller's local temp file; that stays the
// caller's responsibility.
package media
