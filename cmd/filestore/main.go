// Command filestore manages files in any configured storage backend.
//
//	filestore --driver local --base-path ./data put report.pdf reports/2024.pdf
//	filestore --driver s3 ls reports/
//
// Flags default from FILESTORE_* environment variables; a .env file in the
// working directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/webdav"
	"github.com/urfave/cli/v2"

	"github.com/nuln/filestore"
	"github.com/nuln/filestore/drivers"
	"github.com/nuln/filestore/manager"
)

func main() {
	// Environment-backed flag defaults need the .env values up front.
	if err := loadDotEnv(); err != nil {
		log.Fatal(err)
	}
	if err := newApp().Run(os.Args); err != nil {
		log.Print(err)
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "filestore",
		Usage: "store, list and stage files in a pluggable backend",
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "list stored files",
				ArgsUsage: "[prefix]",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					names, err := m.FindFiles(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					for _, name := range names {
						fmt.Fprintln(cCtx.App.Writer, name)
					}
					return nil
				}),
			},
			{
				Name:      "put",
				Usage:     "store a local file (\"-\" reads stdin)",
				ArgsUsage: "<local> <name>",
				Flags:     []cli.Flag{flagSkipEmpty},
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					local, name, err := twoArgs(cCtx)
					if err != nil {
						return err
					}
					wrote, err := m.WriteStreamToStorage(cCtx.Context, sourceStream(local), name, cCtx.Bool(flagSkipEmpty.Name))
					if err != nil {
						return err
					}
					if !wrote {
						fmt.Fprintf(cCtx.App.ErrWriter, "%s is empty, nothing stored\n", local)
					}
					return nil
				}),
			},
			{
				Name:      "cat",
				Usage:     "write a stored file to stdout",
				ArgsUsage: "<name>",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					name, err := oneArg(cCtx)
					if err != nil {
						return err
					}
					s, err := m.GetStream(cCtx.Context, name)
					if err != nil {
						return err
					}
					return copyToWriter(s, cCtx.App.Writer)
				}),
			},
			{
				Name:      "rm",
				Usage:     "delete a stored file",
				ArgsUsage: "<name>",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					name, err := oneArg(cCtx)
					if err != nil {
						return err
					}
					return m.DeleteFile(cCtx.Context, name)
				}),
			},
			{
				Name:  "purge",
				Usage: "delete every stored file",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					return m.DeleteAllFiles(cCtx.Context)
				}),
			},
			{
				Name:      "path",
				Usage:     "print the native path of a file",
				ArgsUsage: "<name>",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					name, err := oneArg(cCtx)
					if err != nil {
						return err
					}
					p, err := m.FilePath(name)
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, p)
					return nil
				}),
			},
			{
				Name:      "stage",
				Usage:     "copy a stored file to a local temporary file and print its path",
				ArgsUsage: "<name>",
				Action: withManager(func(cCtx *cli.Context, m *manager.Manager) error {
					name, err := oneArg(cCtx)
					if err != nil {
						return err
					}
					s, err := m.GetStream(cCtx.Context, name)
					if err != nil {
						return err
					}
					tmp, err := m.WriteStreamToTemporaryFile(s, name)
					if err != nil {
						return err
					}
					fmt.Fprintln(cCtx.App.Writer, tmp.Path)
					return nil
				}),
			},
			{
				Name:  "drivers",
				Usage: "list the registered storage drivers",
				Action: func(cCtx *cli.Context) error {
					for _, name := range drivers.List() {
						fmt.Fprintln(cCtx.App.Writer, name)
					}
					return nil
				},
			},
		},
	}
}

// exitCode distinguishes a missing file from other failures for scripts.
func exitCode(err error) int {
	if errors.Is(err, filestore.ErrNotFound) {
		return 2
	}
	return 1
}

func withManager(fn func(*cli.Context, *manager.Manager) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		m, err := newManager(cCtx)
		if err != nil {
			return err
		}
		return fn(cCtx, m)
	}
}

func oneArg(cCtx *cli.Context) (string, error) {
	if cCtx.NArg() != 1 {
		return "", fmt.Errorf("%s: expected 1 argument, got %d", cCtx.Command.Name, cCtx.NArg())
	}
	return cCtx.Args().First(), nil
}

func twoArgs(cCtx *cli.Context) (string, string, error) {
	if cCtx.NArg() != 2 {
		return "", "", fmt.Errorf("%s: expected 2 arguments, got %d", cCtx.Command.Name, cCtx.NArg())
	}
	return cCtx.Args().Get(0), cCtx.Args().Get(1), nil
}
