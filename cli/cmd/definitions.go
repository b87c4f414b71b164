package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/filterkit/cli/output"
	"github.com/fluxbase-eu/filterkit/internal/config"
	"github.com/fluxbase-eu/filterkit/internal/database"
	"github.com/fluxbase-eu/filterkit/internal/filtertool"
	"github.com/fluxbase-eu/filterkit/internal/schema"
	"github.com/fluxbase-eu/filterkit/internal/testutil"
)

var useSample bool

var definitionsCmd = &cobra.Command{
	Use:     "definitions",
	Aliases: []string{"defs"},
	Short:   "Check definition files against a schema",
	Long: `Check definition files locally, without a running server.

Models come from the database configured for the server (filterkit.yaml or
FILTERKIT_DATABASE_* variables), or from the built-in sample dataset with --sample.`,
}

var definitionsValidateCmd = &cobra.Command{
	Use:     "validate FILE",
	Short:   "Build every definition in a file and report the first error",
	Example: `  filterctl definitions validate filters.yaml --sample`,
	Args:    cobra.ExactArgs(1),
	PreRunE: initializeFormatter,
	RunE:    runDefinitionsValidate,
}

var definitionsModelsCmd = &cobra.Command{
	Use:     "models",
	Short:   "List the models definitions can reference",
	PreRunE: initializeFormatter,
	RunE:    runDefinitionsModels,
}

func init() {
	definitionsCmd.PersistentFlags().BoolVar(&useSample, "sample", false, "use the built-in sample models instead of the database")

	definitionsCmd.AddCommand(definitionsValidateCmd)
	definitionsCmd.AddCommand(definitionsModelsCmd)
}

func runDefinitionsValidate(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd.Context())
	if err != nil {
		return err
	}

	set, err := filtertool.LoadDefinitionsFile(args[0], registry)
	if err != nil {
		return err
	}

	if formatter.Format != output.FormatTable {
		return formatter.Print(map[string]interface{}{"valid": true, "definitions": set.Names()})
	}

	data := output.TableData{Headers: []string{"NAME", "MODEL", "FILTERS"}}
	for _, name := range set.Names() {
		def, _ := set.Get(name)
		model := ""
		if m := def.Model(); m != nil {
			model = m.Name
		}
		data.Rows = append(data.Rows, []string{name, model, strings.Join(def.Keys(), ", ")})
	}
	formatter.PrintTable(data)
	formatter.PrintSuccess(fmt.Sprintf("\n%s: %d definitions OK", args[0], set.Len()))
	return nil
}

func runDefinitionsModels(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cmd.Context())
	if err != nil {
		return err
	}

	data := output.TableData{Headers: []string{"MODEL", "TABLE", "FIELDS"}}
	for _, name := range registry.Names() {
		m, _ := registry.Get(name)
		fields := make([]string, 0, len(m.Fields))
		for _, f := range m.Fields {
			fields = append(fields, f.Name)
		}
		table := m.Table
		if m.Schema != "" {
			table = m.Schema + "." + table
		}
		data.Rows = append(data.Rows, []string{m.Name, table, strings.Join(fields, ", ")})
	}
	formatter.PrintTable(data)
	return nil
}

// loadRegistry returns the sample models or inspects the configured database.
func loadRegistry(ctx context.Context) (*schema.Registry, error) {
	if useSample {
		return testutil.NewFixture().Registry, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	conn, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tables, err := conn.Inspector().GetAllTables(ctx, cfg.Filters.Schemas...)
	if err != nil {
		return nil, err
	}
	return database.BuildModels(tables)
}
