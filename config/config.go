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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_CURRENCY        = "INR"
	DEFAULT_DUE_CYCLE_CRON  = "@every 1m"
	DriverPostgres          = "postgres"
	DriverMemory            = "memory"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Driver                string `json:"driver" envconfig:"COREBANK_DATA_SOURCE_DRIVER"`
	Dns                   string `json:"dns" envconfig:"COREBANK_DATA_SOURCE_DNS"`
	MaxOpenConns          int    `json:"max_open_conns" envconfig:"COREBANK_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns          int    `json:"max_idle_conns" envconfig:"COREBANK_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinute int    `json:"conn_max_lifetime_minute" envconfig:"COREBANK_DATA_SOURCE_CONN_MAX_LIFETIME_MINUTE"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"COREBANK_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"COREBANK_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	NotificationQueue string `json:"notification_queue" envconfig:"COREBANK_QUEUE_NOTIFICATION"`
	SchedulerQueue    string `json:"scheduler_queue" envconfig:"COREBANK_QUEUE_SCHEDULER"`
	DueCycleCron      string `json:"due_cycle_cron" envconfig:"COREBANK_QUEUE_DUE_CYCLE_CRON"`
	Concurrency       int    `json:"concurrency" envconfig:"COREBANK_QUEUE_CONCURRENCY"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"COREBANK_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"COREBANK_QUEUE_MONITORING_PORT"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"COREBANK_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type NatsConfig struct {
	Url           string `json:"url" envconfig:"COREBANK_NATS_URL"`
	SubjectPrefix string `json:"subject_prefix" envconfig:"COREBANK_NATS_SUBJECT_PREFIX"`
}

type NotificationConfig struct {
	Webhook WebhookConfig `json:"webhook"`
	Nats    NatsConfig    `json:"nats"`
}

type ArchiveConfig struct {
	S3Endpoint         string `json:"s3_endpoint" envconfig:"COREBANK_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"COREBANK_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"COREBANK_S3_REGION"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"COREBANK_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"COREBANK_AWS_SECRET_ACCESS_KEY"`
	Prefix             string `json:"prefix" envconfig:"COREBANK_S3_PREFIX"`
}

type IdentityConfig struct {
	AdminUserIDs []string `json:"admin_user_ids" envconfig:"COREBANK_ADMIN_USER_IDS"`
}

type BankConfig struct {
	Currency                 string `json:"currency" envconfig:"COREBANK_CURRENCY"`
	AccountNumberMaxAttempts int    `json:"account_number_max_attempts" envconfig:"COREBANK_ACCOUNT_NUMBER_MAX_ATTEMPTS"`
	ConflictRetries          int    `json:"conflict_retries" envconfig:"COREBANK_CONFLICT_RETRIES"`
	RunLockTTLSeconds        int    `json:"run_lock_ttl_seconds" envconfig:"COREBANK_RUN_LOCK_TTL_SECONDS"`
	IdempotencyTTLHours      int    `json:"idempotency_ttl_hours" envconfig:"COREBANK_IDEMPOTENCY_TTL_HOURS"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"COREBANK_TRACING_ENABLED"`
	Endpoint    string `json:"endpoint" envconfig:"COREBANK_TRACING_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"COREBANK_TRACING_SERVICE_NAME"`
	Insecure    bool   `json:"insecure" envconfig:"COREBANK_TRACING_INSECURE"`
}

type Configuration struct {
	ProjectName  string             `json:"project_name" envconfig:"COREBANK_PROJECT_NAME"`
	DataSource   DataSourceConfig   `json:"data_source"`
	Redis        RedisConfig        `json:"redis"`
	Queue        QueueConfig        `json:"queue"`
	Notification NotificationConfig `json:"notification"`
	Archive      ArchiveConfig      `json:"archive"`
	Identity     IdentityConfig     `json:"identity"`
	Bank         BankConfig         `json:"bank"`
	Tracing      TracingConfig      `json:"tracing"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("corebank", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called corebank.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Corebank"
	}

	cnf.DataSource.Driver = strings.ToLower(strings.TrimSpace(cnf.DataSource.Driver))
	if cnf.DataSource.Driver == "" {
		cnf.DataSource.Driver = DriverPostgres
	}
	if cnf.DataSource.Driver != DriverPostgres && cnf.DataSource.Driver != DriverMemory {
		return errors.New("data source driver must be postgres or memory")
	}

	if cnf.DataSource.Driver == DriverPostgres && cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.MaxOpenConns == 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns == 0 {
		cnf.DataSource.MaxIdleConns = 5
	}
	if cnf.DataSource.ConnMaxLifetimeMinute == 0 {
		cnf.DataSource.ConnMaxLifetimeMinute = 5
	}

	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "corebank_notifications"
	}
	if cnf.Queue.SchedulerQueue == "" {
		cnf.Queue.SchedulerQueue = "corebank_scheduler"
	}
	if cnf.Queue.DueCycleCron == "" {
		cnf.Queue.DueCycleCron = DEFAULT_DUE_CYCLE_CRON
	}
	if cnf.Queue.Concurrency == 0 {
		cnf.Queue.Concurrency = 5
	}
	if cnf.Queue.MaxRetryAttempts == 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
		log.Printf("Warning: Monitoring port not specified in config. Setting default port: %s", DEFAULT_MONITORING_PORT)
	}

	if cnf.Notification.Nats.SubjectPrefix == "" {
		cnf.Notification.Nats.SubjectPrefix = "corebank"
	}

	if cnf.Bank.Currency == "" {
		cnf.Bank.Currency = DEFAULT_CURRENCY
	}
	if cnf.Bank.AccountNumberMaxAttempts == 0 {
		cnf.Bank.AccountNumberMaxAttempts = 10
	}
	if cnf.Bank.ConflictRetries == 0 {
		cnf.Bank.ConflictRetries = 3
	}
	if cnf.Bank.RunLockTTLSeconds == 0 {
		cnf.Bank.RunLockTTLSeconds = 300
	}
	if cnf.Bank.IdempotencyTTLHours == 0 {
		cnf.Bank.IdempotencyTTLHours = 24
	}

	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = "corebank"
	}

	for i, id := range cnf.Identity.AdminUserIDs {
		cnf.Identity.AdminUserIDs[i] = strings.TrimSpace(id)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
