package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	apihttp "github.com/GriffinCanCode/AgentOS/appmgr/internal/api/http"
)

func newCacheCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the warm process cache",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show capacity and queued processes, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := newClient(v).Cache(cmd.Context())
				if err != nil {
					return err
				}
				return printCache(cmd.OutOrStdout(), status)
			},
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Re-read the cache capacity from the system parameters",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := newClient(v).RefreshCache(cmd.Context())
				if err != nil {
					return err
				}
				return printCache(cmd.OutOrStdout(), status)
			},
		},
	)
	return cmd
}

func printCache(out io.Writer, status *apihttp.CacheStatus) error {
	fmt.Fprintf(out, "enabled: %t\ncapacity: %d\nsize: %d\n", status.Enabled, status.Capacity, status.Size)
	if len(status.Queue) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	return printProcesses(out, status.Queue)
}
