/*
Package main provides the CLI commands for managing database migrations.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/apnabank/corebank"
	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/database"
)

func migrateCommands(_ *bankInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run corebank schema migrations",
	}

	cmd.AddCommand(migrateDirectionCommand("up", "Applied %d migrations!\n", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand("down", "Rolled back %d migrations!\n", migrate.Down))

	return cmd
}

func migrateDirectionCommand(use, done string, direction migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			migrations := migrate.EmbedFileSystemMigrationSource{
				FileSystem: corebank.SQLFiles,
				Root:       "sql",
			}

			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}
			if cnf.DataSource.Driver != config.DriverPostgres {
				log.Printf("Nothing to migrate for the %s driver", cnf.DataSource.Driver)
				return
			}

			db, err := database.ConnectDB(cnf.DataSource)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			migrate.SetSchema("corebank")

			n, err := migrate.Exec(db, "postgres", migrations, direction)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			fmt.Printf(done, n)
		},
	}
}
