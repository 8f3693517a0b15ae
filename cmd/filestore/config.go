package main

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/nuln/filestore"
	"github.com/nuln/filestore/driver/s3"
	"github.com/nuln/filestore/manager"
)

var loadDotEnv = sync.OnceValue(func() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
})

// storageConfig assembles the driver config from flags and, for s3, from the
// FILESTORE_S3_* variables.
func storageConfig(cCtx *cli.Context) (*filestore.Config, error) {
	cfg := &filestore.Config{
		Driver:   cCtx.String(flagDriver.Name),
		BasePath: cCtx.String(flagBasePath.Name),
		Options:  map[string]any{},
	}
	switch cfg.Driver {
	case "rclone":
		if remote := cCtx.String(flagRemote.Name); remote != "" {
			cfg.Options["remote"] = remote
		}
	case "s3":
		s3cfg, err := env.ParseAs[s3.Config]()
		if err != nil {
			return nil, fmt.Errorf("parse s3 config: %w", err)
		}
		cfg.Options["bucket"] = s3cfg.Bucket
		cfg.Options["region"] = s3cfg.Region
		cfg.Options["endpoint"] = s3cfg.Endpoint
		cfg.Options["accessKeyId"] = s3cfg.AccessKeyID
		cfg.Options["secretKey"] = s3cfg.SecretKey
		cfg.Options["forcePathStyle"] = s3cfg.ForcePathStyle
		if s3cfg.Prefix != "" {
			cfg.Options["prefix"] = s3cfg.Prefix
		}
	}
	return cfg, nil
}

// managerConfig reads FILESTORE_* variables and lets flags override them.
func managerConfig(cCtx *cli.Context) (manager.Config, error) {
	cfg, err := manager.LoadConfig()
	if err != nil {
		return manager.Config{}, err
	}
	if cCtx.IsSet(flagName.Name) {
		cfg.Name = cCtx.String(flagName.Name)
	}
	if cCtx.IsSet(flagProtocol.Name) {
		cfg.Protocol = cCtx.String(flagProtocol.Name)
	}
	return cfg, nil
}

func newManager(cCtx *cli.Context) (*manager.Manager, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	log := setupLogger(cCtx)

	mcfg, err := managerConfig(cCtx)
	if err != nil {
		return nil, err
	}
	scfg, err := storageConfig(cCtx)
	if err != nil {
		return nil, err
	}
	backend, err := filestore.Open(mcfg.Name, scfg)
	if err != nil {
		return nil, err
	}
	log.Debug("backend opened", "driver", scfg.Driver, "name", mcfg.Name)
	return manager.New(backend, mcfg, manager.WithLogger(log))
}
