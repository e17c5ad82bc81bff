package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
)

// cycleCommands defines the "cycle" command, a one-shot due cycle. With
// --enqueue the cycle is handed to the workers instead of running here.
func cycleCommands(b *bankInstance) *cobra.Command {
	var (
		at      string
		enqueue bool
	)

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "run the due cycle once",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					log.Fatalf("invalid --at value %q: %v", at, err)
				}
				now = parsed
			}

			if enqueue {
				if err := b.queue.EnqueueDueCycle(ctx, now); err != nil {
					log.Fatalf("could not enqueue due cycle: %v", err)
				}
				fmt.Println("Due cycle enqueued")
				return
			}

			report, err := b.bank.RunDueCycle(ctx, now)
			if err != nil {
				log.Fatalf("due cycle failed: %v", err)
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(string(out))
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "run the cycle as of this RFC3339 time")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the cycle to the workers")
	return cmd
}
