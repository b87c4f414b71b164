package cmd

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/filterkit/cli/client"
	"github.com/fluxbase-eu/filterkit/cli/output"
)

var (
	evalOffset int
	evalLimit  int
)

var filtersCmd = &cobra.Command{
	Use:     "filters",
	Aliases: []string{"filter", "f"},
	Short:   "List and evaluate filter definitions",
}

var filtersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the definitions served by the server",
	Example: `  filterctl filters list
  filterctl filters list -o json`,
	PreRunE: initializeClient,
	RunE:    runFiltersList,
}

var filtersEvalCmd = &cobra.Command{
	Use:   "eval NAME [KEY=VALUE...]",
	Short: "Evaluate a definition against query data",
	Long: `Evaluate a definition against query data given as KEY=VALUE pairs.

Repeat a key to send several values, as multiple choice filters expect.
Without any pairs the definition is evaluated unbound and initial values apply.`,
	Example: `  filterctl filters eval users status=1
  filterctl filters eval users status=0 status=1 o=-username
  filterctl filters eval books price_0=10 price_1=lt --limit 5`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: initializeClient,
	RunE:    runFiltersEval,
}

var filtersFormCmd = &cobra.Command{
	Use:     "form NAME [KEY=VALUE...]",
	Short:   "Print the HTML form of a definition",
	Args:    cobra.MinimumNArgs(1),
	PreRunE: initializeClient,
	RunE:    runFiltersForm,
}

func init() {
	filtersEvalCmd.Flags().IntVar(&evalOffset, "offset", 0, "skip this many results")
	filtersEvalCmd.Flags().IntVar(&evalLimit, "limit", 0, "return at most this many results (server default when 0)")

	filtersCmd.AddCommand(filtersListCmd)
	filtersCmd.AddCommand(filtersEvalCmd)
	filtersCmd.AddCommand(filtersFormCmd)
}

func runFiltersList(cmd *cobra.Command, args []string) error {
	defs, err := apiClient.ListDefinitions(cmd.Context())
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(defs)
	}

	data := output.TableData{Headers: []string{"NAME", "MODEL", "FILTERS", "ORDERING"}}
	for _, d := range defs {
		data.Rows = append(data.Rows, []string{
			d.Name,
			d.Model,
			strings.Join(d.Filters, ", "),
			strings.Join(d.Ordering, ", "),
		})
	}
	formatter.PrintTable(data)
	return nil
}

func runFiltersEval(cmd *cobra.Command, args []string) error {
	data, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}

	result, err := apiClient.Evaluate(cmd.Context(), args[0], data, client.Page{Offset: evalOffset, Limit: evalLimit})
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(result)
	}

	keys := make([]string, 0, len(result.Errors))
	for k := range result.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		formatter.PrintWarning(fmt.Sprintf("%s ignored: %s", k, result.Errors[k]))
	}

	formatter.PrintTable(output.RecordTable(result.Results))
	if !noHeaders {
		formatter.PrintSuccess(fmt.Sprintf("\n%d of %d %s", len(result.Results), result.Count, result.Model))
	}
	return nil
}

func runFiltersForm(cmd *cobra.Command, args []string) error {
	data, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	html, err := apiClient.RenderForm(cmd.Context(), args[0], data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), html)
	return err
}

// parseAssignments turns KEY=VALUE arguments into query data. Repeated keys
// accumulate; no arguments yield nil so the evaluation stays unbound.
func parseAssignments(args []string) (url.Values, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected KEY=VALUE", arg)
		}
		data.Add(key, value)
	}
	return data, nil
}
