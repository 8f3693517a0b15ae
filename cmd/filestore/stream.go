package main

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/nuln/filestore"
	"github.com/nuln/filestore/manager"
)

func sourceStream(local string) filestore.Stream {
	if local == "-" {
		return filestore.NewReaderStream(os.Stdin)
	}
	return filestore.NewLocalStream(afero.NewOsFs(), local)
}

// copyToWriter drains an unopened stream into w and closes it.
func copyToWriter(s filestore.Stream, w io.Writer) (err error) {
	if err := s.Open(filestore.ModeRead); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	for !s.EOF() {
		chunk, err := s.Read(manager.DefaultBatchSize)
		if err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
