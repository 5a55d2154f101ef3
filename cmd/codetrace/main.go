// codetrace is a thin command surface over the storage core: migrations,
// project registry inspection and store statistics. The real CLI and MCP
// front ends consume the same packages programmatically.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evanwhite/codetrace/pkg/db"
	"github.com/evanwhite/codetrace/pkg/db/migrations"
	"github.com/evanwhite/codetrace/pkg/logger"
	"github.com/evanwhite/codetrace/pkg/presenter"
	"github.com/evanwhite/codetrace/pkg/registry"
	"github.com/evanwhite/codetrace/pkg/version"
)

func init() {
	viper.SetEnvPrefix("CODETRACE")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.codetrace")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
}

var rootCmd = &cobra.Command{
	Use:   "codetrace",
	Short: "Storage core for indexed AI coding-assistant conversations",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetLogFormat(viper.GetString("log_format"))
		return logger.SetLogLevel(viper.GetString("log_level"))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func openRunner(ctx context.Context) (*db.MigrationRunner, func(), error) {
	dbPath := viper.GetString("db_path")
	if dbPath == "" {
		def, err := db.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
		dbPath = def
	}

	sqlDB, err := db.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrationRunner(sqlDB), func() { sqlDB.Close() }, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runner, done, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer done()

		if err := runner.ApplyAll(ctx, migrations.All()); err != nil {
			return err
		}
		current, err := runner.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("schema is current at version %d", current))
		return nil
	},
}

var rollbackTarget int

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back migrations above the target version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runner, done, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer done()

		if err := runner.RollbackTo(ctx, migrations.All(), rollbackTarget); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("rolled back to version %d", rollbackTarget))
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify applied migrations against the code",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runner, done, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer done()

		ok, err := runner.Verify(ctx, migrations.All())
		if err != nil {
			return err
		}
		if !ok {
			presenter.Warning("schema_version has drifted from the in-code migrations")
			os.Exit(1)
		}
		presenter.Success("schema history verified")
		return nil
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List registered projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := registry.Open(ctx, registry.Options{Path: viper.GetString("registry_path")})
		if err != nil {
			return err
		}
		defer reg.Close()

		registrations, err := reg.List(ctx, viper.GetString("source"))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(registrations, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate registry statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := registry.Open(ctx, registry.Options{Path: viper.GetString("registry_path")})
		if err != nil {
			return err
		}
		defer reg.Close()

		stats, err := reg.GlobalStats(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func main() {
	rollbackCmd.Flags().IntVar(&rollbackTarget, "to", 0, "target schema version")

	migrateCmd.AddCommand(rollbackCmd, verifyCmd)
	rootCmd.AddCommand(versionCmd, migrateCmd, projectsCmd, statsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "command failed")
		os.Exit(1)
	}
}
