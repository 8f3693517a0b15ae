// Package manager is the storage manager facade: one named [Backend] plus the
// operations applications actually call. It builds native-style paths, copies
// streams in bounded batches, always flushes and closes what it opens and
// stages data in local temporary files.
//
//	fs, err := filestore.Open("uploads", &filestore.Config{Driver: "local", BasePath: "./data"})
//	if err != nil {
//	    return err
//	}
//	m, err := manager.New(fs, manager.Config{Name: "uploads", Protocol: "app"})
//	if err != nil {
//	    return err
//	}
//	wrote, err := m.WriteStreamToStorage(ctx, filestore.NewReaderStream(r), "avatar.png", true)
//
// All operations are synchronous. The manager adds no locking of its own, so
// concurrent writers to the same name need outside coordination.
package manager
