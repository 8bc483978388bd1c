package main

import (
	"context"

	"github.com/sbportal/editlock/pkg/cli"
	"github.com/sbportal/editlock/pkg/config"
	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/server"
)

func main() {
	cmd := cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "editlockd",
		Description: "Edit-locking and version-checked save service",
		EnvPrefix:   "EDITLOCK",
		RunServer: func(ctx context.Context, cfg *config.Config, log logger.Logger) error {
			app, err := server.Build(cfg)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	})
	cli.Execute(cmd)
}
