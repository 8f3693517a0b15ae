// Package drivers registers every built-in storage driver. Import it with a
// blank identifier:
//
//	import _ "github.com/nuln/filestore/drivers"
//
// The rclone driver still needs the rclone backends a program wants to reach,
// e.g. _ "github.com/rclone/rclone/backend/all".
package drivers

import (
	"github.com/nuln/filestore"
	_ "github.com/nuln/filestore/driver/local"
	_ "github.com/nuln/filestore/driver/rclone"
	_ "github.com/nuln/filestore/driver/s3"
	_ "github.com/nuln/filestore/driver/sharded"
)

// List returns the names of all registered drivers.
func List() []string {
	return filestore.Drivers()
}
