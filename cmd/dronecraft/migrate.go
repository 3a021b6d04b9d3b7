package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Max-lab10/Dronecraft-archipelago/internal/flightlog"
)

var (
	flagMigrateDB  string
	flagMigrateDir string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the flight log database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFlightLog(func(db *flightlog.DB) error {
			if err := db.MigrateUp(flagMigrateDir); err != nil {
				return err
			}
			return printSchemaVersion(db)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFlightLog(func(db *flightlog.DB) error {
			if err := db.MigrateDown(flagMigrateDir); err != nil {
				return err
			}
			return printSchemaVersion(db)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFlightLog(printSchemaVersion)
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Overwrite the schema version after a failed migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withFlightLog(func(db *flightlog.DB) error {
			return db.MigrateForce(flagMigrateDir, v)
		})
	},
}

var migrateToCmd = &cobra.Command{
	Use:   "to <version>",
	Short: "Migrate up or down to an exact version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withFlightLog(func(db *flightlog.DB) error {
			if err := db.MigrateTo(flagMigrateDir, uint(v)); err != nil {
				return err
			}
			return printSchemaVersion(db)
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&flagMigrateDB, "db", "flight.db", "flight log SQLite database")
	migrateCmd.PersistentFlags().StringVar(&flagMigrateDir, "migrations", "db/migrations", "schema migrations directory")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd, migrateForceCmd, migrateToCmd)
	rootCmd.AddCommand(migrateCmd)
}

func withFlightLog(fn func(db *flightlog.DB) error) error {
	db, err := flightlog.NewDB(flagMigrateDB)
	if err != nil {
		return fmt.Errorf("open flight log %s: %w", flagMigrateDB, err)
	}
	defer db.Close()
	return fn(db)
}

func printSchemaVersion(db *flightlog.DB) error {
	v, dirty, err := db.MigrateVersion(flagMigrateDir)
	if err != nil {
		return err
	}
	if v == 0 {
		fmt.Println("no migrations applied")
		return nil
	}
	if dirty {
		fmt.Printf("version %d (dirty)\n", v)
		return nil
	}
	fmt.Printf("version %d\n", v)
	return nil
}
