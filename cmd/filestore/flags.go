package main

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var (
	flagDriver = &cli.StringFlag{
		Name:    "driver",
		Value:   "local",
		Usage:   "storage driver (see the drivers command)",
		EnvVars: []string{"FILESTORE_DRIVER"},
	}
	flagBasePath = &cli.StringFlag{
		Name:    "base-path",
		Usage:   "root directory or key prefix for the driver",
		EnvVars: []string{"FILESTORE_BASE_PATH"},
	}
	flagRemote = &cli.StringFlag{
		Name:    "remote",
		Usage:   "rclone remote, e.g. \":webdav,url='http://host':\"",
		EnvVars: []string{"FILESTORE_RCLONE_REMOTE"},
	}
	flagName = &cli.StringFlag{
		Name:    "name",
		Usage:   "logical backend name",
		EnvVars: []string{"FILESTORE_NAME"},
	}
	flagProtocol = &cli.StringFlag{
		Name:    "protocol",
		Usage:   "protocol used to build native paths",
		EnvVars: []string{"FILESTORE_PROTOCOL"},
	}
	flagLogJSON = &cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	}
	flagLogDebug = &cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	}
	flagLogUID = &cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	}
	flagSkipEmpty = &cli.BoolFlag{
		Name:  "skip-empty",
		Usage: "do not create the file when the source is empty",
	}
)

var globalFlags = []cli.Flag{
	flagDriver,
	flagBasePath,
	flagRemote,
	flagName,
	flagProtocol,
	flagLogJSON,
	flagLogDebug,
	flagLogUID,
}

// setupLogger writes to stderr so command output on stdout stays clean.
func setupLogger(cCtx *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if cCtx.Bool(flagLogDebug.Name) {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cCtx.Bool(flagLogJSON.Name) {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	log := slog.New(handler)

	if cCtx.Bool(flagLogUID.Name) {
		id := uuid.Must(uuid.NewRandom())
		log = log.With("uid", id.String())
	}
	return log
}
