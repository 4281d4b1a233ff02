package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

func newPsCommand(v *viper.Viper) *cobra.Command {
	var (
		state  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List application processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			procs, err := newClient(v).Processes(cmd.Context(), state)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), procs)
			}
			return printProcesses(cmd.OutOrStdout(), procs)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Only list processes in this state")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func printProcesses(out io.Writer, procs []types.ProcessInfo) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPID\tNAME\tSTATE\tABILITIES\tKEEP-ALIVE\tAGE")
	for _, p := range procs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%t\t%s\n",
			p.ID, p.PID, p.Name, p.State, len(p.Abilities), p.KeepAlive,
			time.Since(p.CreatedAt).Round(time.Second),
		)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
