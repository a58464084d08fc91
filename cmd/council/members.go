package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the configured council members",
	Args:  cobra.NoArgs,
	RunE:  runMembers,
}

func init() {
	rootCmd.AddCommand(membersCmd)
}

func runMembers(cmd *cobra.Command, args []string) error {
	app, _, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := app.Init(cmd.Context()); err != nil {
		return err
	}
	defer app.Shutdown(cmd.Context())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tSELECTOR\tTEMP\tPERSPECTIVES")
	for _, m := range app.Registry().List() {
		perspectives := strings.Join(m.Perspectives, ",")
		if perspectives == "" {
			perspectives = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			m.ID, m.Name, m.Role, m.ReasoningSelector, m.Temperature, perspectives)
	}
	return w.Flush()
}
