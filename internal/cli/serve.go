package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/server"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the application manager",
		Long:  `Run the REST, WebSocket and gRPC health endpoints. Configuration comes from the environment.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if v.IsSet("params") {
				cfg.Params.File = v.GetString("params")
			}

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			defer srv.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}
