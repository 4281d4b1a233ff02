// Package cli implements the appmgr command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apihttp "github.com/GriffinCanCode/AgentOS/appmgr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/client"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/config"
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree. Flags fall back to APPMGR_*
// environment variables.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("appmgr")
	v.AutomaticEnv()
	v.SetDefault("addr", client.DefaultAddr)

	root := &cobra.Command{
		Use:          "appmgr",
		Short:        "Application process manager",
		Long:         `Manage application processes and the warm process cache.`,
		Version:      apihttp.Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("addr", client.DefaultAddr, "Manager REST address")
	root.PersistentFlags().String("params", config.Default().Params.File, "System parameter file")
	v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))
	v.BindPFlag("params", root.PersistentFlags().Lookup("params"))

	serve := newServeCommand(v)
	root.AddCommand(
		serve,
		newPsCommand(v),
		newCacheCommand(v),
		newParamCommand(v),
	)
	root.RunE = serve.RunE
	return root
}

func newClient(v *viper.Viper) *client.Client {
	return client.New(v.GetString("addr"))
}
