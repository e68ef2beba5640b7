package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/roost/internal/printer"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/store"
)

var (
	eventsType       string
	eventsSource     string
	eventsUnconsumed bool
	eventsLimit      int
	eventsFollow     bool
	eventsJSON       bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the workbench event bus",
	Long: `Show recent bus events, newest first.

The --type filter accepts a prefix pattern: a trailing '%' matches any
suffix, so --type 'workflow.%' shows every workflow event. With --follow
the command tails new events as they are published (Ctrl-C to stop).`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Event type pattern ('task.%' matches prefixes)")
	eventsCmd.Flags().StringVar(&eventsSource, "source", "", "Exact event source (e.g. 'agent:<id>')")
	eventsCmd.Flags().BoolVar(&eventsUnconsumed, "unconsumed", false, "Only events not yet consumed")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "Maximum events to show")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "Tail new events as they are published")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, cleanup, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := env.bus.Check(ctx, bus.Filter{
		Type:           eventsType,
		Source:         eventsSource,
		UnconsumedOnly: eventsUnconsumed,
		Limit:          eventsLimit,
	})
	if err != nil {
		return err
	}

	if eventsJSON {
		outputJSON(events)
	} else {
		// Oldest first reads naturally in a terminal.
		for i := len(events) - 1; i >= 0; i-- {
			printBusEvent(events[i])
		}
		if len(events) == 0 && !eventsFollow {
			printer.Println("No matching events.")
		}
	}

	if !eventsFollow {
		return nil
	}
	return followEvents(ctx, env)
}

// followEvents tails the bus via pub/sub until interrupted. The live feed
// applies the same filters as the initial listing.
func followEvents(ctx context.Context, env *env) error {
	sub, err := env.client.SubscribeBusEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if !store.MatchesPattern(event.Type, eventsType) {
				continue
			}
			if eventsSource != "" && event.Source != eventsSource {
				continue
			}
			printBusEvent(event)
		case err := <-sub.Errors():
			printer.Warning("subscription error: %v\n", err)
		case <-interrupt:
			return nil
		}
	}
}

func printBusEvent(event *store.BusEvent) {
	ts := time.UnixMilli(event.CreatedAtMs).Format("15:04:05")
	consumed := " "
	if event.Consumed() {
		consumed = "*"
	}
	line := fmt.Sprintf("%s %s %-22s %s", ts, consumed, event.Type, event.Source)
	if len(event.Payload) > 0 {
		line += fmt.Sprintf("  %v", event.Payload)
	}
	printer.Println(line)
}
