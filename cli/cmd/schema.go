package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/filterkit/cli/output"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the server's view of the database schema",
}

var schemaRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Inspect the database again on every server instance",
	Long: `Ask the server to inspect the database schema again and rebuild its
definitions. The invalidation is broadcast to every instance sharing the
same invalidation backend.`,
	PreRunE: initializeClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := apiClient.RefreshSchema(cmd.Context())
		if err != nil {
			return err
		}
		if formatter.Format != output.FormatTable {
			return formatter.Print(map[string]interface{}{"definitions": names})
		}
		formatter.PrintSuccess(fmt.Sprintf("Schema refreshed, %d definitions:", len(names)))
		formatter.PrintList(names)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Show server health",
	PreRunE: initializeClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := apiClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		if formatter.Format != output.FormatTable {
			return formatter.Print(status)
		}

		keys := make([]string, 0, len(status))
		for k := range status {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		data := output.TableData{Headers: []string{"KEY", "VALUE"}}
		for _, k := range keys {
			data.Rows = append(data.Rows, []string{k, output.Cell(status[k])})
		}
		formatter.PrintTable(data)
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaRefreshCmd)
}
