/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/apnabank/corebank"
	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/database"
	"github.com/apnabank/corebank/internal/archive"
	"github.com/apnabank/corebank/internal/notification"
	redis_db "github.com/apnabank/corebank/internal/redis-db"
)

// CoreBank represents the CLI application, encapsulating the root Cobra command.
type CoreBank struct {
	cmd *cobra.Command
}

// bankInstance holds the runtime bank and its configuration, filled in by preRun.
type bankInstance struct {
	bank  *corebank.Bank
	queue *corebank.Queue
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the bank before any command runs.
func preRun(app *bankInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		bank, queue, err := setupBank(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.bank = bank
		app.queue = queue
		app.cnf = cnf
		return nil
	}
}

// setupBank wires the datasource, Redis, the notification fan-out and the
// statement archive into a Bank.
func setupBank(cfg *config.Configuration) (*corebank.Bank, *corebank.Queue, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	rc, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	queue, err := corebank.NewQueue(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating queue: %v", err)
	}

	notifiers := notification.Multi{}
	if cfg.Notification.Webhook.Url != "" {
		notifiers = append(notifiers, corebank.NewWebhookNotifier(queue))
	}
	if cfg.Notification.Nats.Url != "" {
		conn, err := notification.ConnectNats(cfg.Notification.Nats.Url)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to nats: %v", err)
		}
		notifiers = append(notifiers, notification.NewNatsNotifier(conn, cfg.Notification.Nats.SubjectPrefix))
	}

	opts := []corebank.Option{
		corebank.WithRedis(rc.Client()),
		corebank.WithNotifier(notifiers),
	}
	if cfg.Archive.S3BucketName != "" {
		archiver, err := archive.NewS3Archiver(cfg.Archive)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating statement archive: %v", err)
		}
		opts = append(opts, corebank.WithArchiver(archiver))
	}

	bank, err := corebank.NewBank(db, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating bank: %v", err)
	}
	return bank, queue, nil
}

// NewCLI creates the root command with the migrate, workers and cycle subcommands.
func NewCLI() *CoreBank {
	var configFile string
	b := &bankInstance{}

	var rootCmd = &cobra.Command{
		Use:   "corebank",
		Short: "Retail banking core",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./corebank.json", "Configuration file for corebank")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(cycleCommands(b))

	return &CoreBank{cmd: rootCmd}
}

func (w CoreBank) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
