package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/iterview/pkg/schema"
)

func newStagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the backend pipeline states and their display labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			stages := schema.AllStages()

			format, _ := cmd.Flags().GetString("format")
			if format == formatJSON {
				data, _ := json.MarshalIndent(stages, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-5s %-22s %-12s %s\n", "ORDER", "STATE", "GROUP", "LABEL")
			fmt.Fprintf(w, "%-5s %-22s %-12s %s\n",
				strings.Repeat("-", 5),
				strings.Repeat("-", 22),
				strings.Repeat("-", 12),
				strings.Repeat("-", 5))
			for _, st := range stages {
				fmt.Fprintf(w, "%-5d %-22s %-12s %s\n", st.Order, st.State, st.Group, st.Label)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "text", "Output format: text or json")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the iterview version",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}
