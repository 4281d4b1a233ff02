package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/sysparam"
)

func newParamCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param",
		Short: "Read and write persisted system parameters",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one parameter, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := sysparam.Open(v.GetString("params"))
				if err != nil {
					return err
				}

				if len(args) == 1 {
					value, err := store.Get(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), value)
					return nil
				}

				all := store.All()
				keys := make([]string, 0, len(all))
				for key := range all {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", key, all[key])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Persist a parameter",
			Long:  `Persist a parameter. A running manager watching the file picks it up; otherwise run "appmgr cache refresh".`,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := sysparam.Open(v.GetString("params"))
				if err != nil {
					return err
				}

				var value any = args[1]
				if n, err := strconv.Atoi(args[1]); err == nil {
					value = n
				}
				if err := store.Set(args[0], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", args[0], value)
				return nil
			},
		},
	)
	return cmd
}
