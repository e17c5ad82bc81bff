package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/apnabank/corebank"
	"github.com/apnabank/corebank/config"
	redis_db "github.com/apnabank/corebank/internal/redis-db"
	trace "github.com/apnabank/corebank/internal/traces"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processDueCycle runs the due cycle handed over by the periodic scheduler.
func (b *bankInstance) processDueCycle(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("corebank.scheduler.worker").Start(ctx, "Process Due Cycle From Redis Queue")
	defer span.End()

	return b.bank.ProcessDueCycle(ctx, t)
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.NotificationQueue: 3,
		conf.Queue.SchedulerQueue:    1,
	}
}

func initializeWorkerServer(conf *config.Configuration, opt asynq.RedisClientOpt) *asynq.Server {
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      initializeQueues(conf),
	})
}

func initializeTaskHandlers(b *bankInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(corebank.TypeWebhook, corebank.ProcessWebhook)
	mux.HandleFunc(corebank.TypeDueCycle, b.processDueCycle)
}

// initializeScheduler registers the periodic due cycle trigger.
func initializeScheduler(conf *config.Configuration, opt asynq.RedisClientOpt) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})

	task, err := corebank.NewDueCycleTask(time.Time{})
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(conf.Queue.DueCycleCron, task, asynq.Queue(conf.Queue.SchedulerQueue), asynq.MaxRetry(0))
	if err != nil {
		return nil, fmt.Errorf("error registering due cycle %q: %v", conf.Queue.DueCycleCron, err)
	}
	logrus.WithFields(logrus.Fields{"entry_id": entryID, "cron": conf.Queue.DueCycleCron}).Info("due cycle registered")
	return scheduler, nil
}

// workerCommands defines the "workers" command: the webhook and due cycle
// workers, the periodic scheduler and the asynqmon dashboard.
func workerCommands(b *bankInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start corebank workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := b.cnf

			if conf.Tracing.Enabled {
				shutdown, err := trace.SetupOTelSDK(ctx, conf.Tracing)
				if err != nil {
					log.Fatal(err)
				}
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}

			opt, err := redis_db.AsynqClientOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			srv := initializeWorkerServer(conf, opt)
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			scheduler, err := initializeScheduler(conf, opt)
			if err != nil {
				log.Fatal(err)
			}
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			h := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: opt,
			})
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Start(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			<-sigs
			srv.Shutdown()
		},
	}

	return cmd
}
