// Package filestore is a file storage layer with pluggable backends.
//
// Drivers implement the low-level [StorageEngine] contract and register
// themselves by name. A [Filesystem] wraps an engine and exposes the
// key-oriented backend operations (has, get, create stream, delete, list keys)
// consumed by the manager package, which adds chunked stream copies,
// guaranteed flush-and-close and temporary file staging on top.
//
// # Drivers
//
//   - local   — local disk via afero (import _ "github.com/nuln/filestore/driver/local")
//   - sharded — content-addressed chunks (import _ "github.com/nuln/filestore/driver/sharded")
//   - rclone  — any rclone remote (import _ "github.com/nuln/filestore/driver/rclone")
//   - s3      — S3 and compatible stores (import _ "github.com/nuln/filestore/driver/s3")
//
// # Quick Start
//
//	import (
//	    "github.com/nuln/filestore"
//	    "github.com/nuln/filestore/manager"
//	    _ "github.com/nuln/filestore/driver/local"
//	)
//
//	fs, err := filestore.Open("attachments", &filestore.Config{Driver: "local", BasePath: "./data"})
//	m, err := manager.New(fs, manager.Config{Name: "attachments"})
//	err = m.WriteToStorage(ctx, []byte("hello"), "greeting.txt")
//
// # All Drivers
//
//	import _ "github.com/nuln/filestore/drivers"
package filestore
