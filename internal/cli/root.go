package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/canonical/sqlbind"
	"github.com/canonical/sqlbind/drivers/dqlite"
	// Registered for their dialects.
	_ "github.com/canonical/sqlbind/drivers/duckdb"
	_ "github.com/canonical/sqlbind/drivers/postgres"
	_ "github.com/canonical/sqlbind/drivers/sqlite"
	_ "github.com/canonical/sqlbind/drivers/sqlitego"
)

// Version is set at build time.
var Version = "dev"

// rootOptions are the flags shared by the commands opening a database.
type rootOptions struct {
	configPath  string
	driver      string
	url         string
	dqliteNodes []string
}

// NewRootCmd creates the sqlbind command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "sqlbind",
		Short: "Run SQL against a database configured for sqlbind",
		Long: `Run SQL against a database configured for sqlbind.

The database is described by a YAML file (--config) overlaid with the
database_* environment variables and then with the command line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.driver, "driver", "", "database/sql driver name (overrides the configuration)")
	flags.StringVar(&opts.url, "url", "", "data source name (overrides the configuration)")
	flags.StringSliceVar(&opts.dqliteNodes, "dqlite-node", nil, "address of a dqlite node, for the dqlite driver")

	cmd.AddCommand(newExecCmd(opts))
	cmd.AddCommand(newDemoCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("sqlbind version %s\n", Version)
		},
	}
}

// open opens the database described by the configuration and flags.
func (o *rootOptions) open(cmd *cobra.Command) (*sqlbind.DB, error) {
	cfg, err := sqlbind.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.driver != "" {
		cfg.Driver = o.driver
	}
	if o.url != "" {
		cfg.URL = o.url
	}
	if cfg.Driver == "" {
		return nil, fmt.Errorf("no database driver: use --driver or a configuration file")
	}
	if len(o.dqliteNodes) > 0 {
		logger := sqlbind.NewLogger(cfg.Log)
		if err := dqlite.Register(cmd.Context(), cfg.Driver, o.dqliteNodes, logger); err != nil {
			return nil, err
		}
	}
	return sqlbind.Open(cfg)
}
