package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/nat80/upnext/pkg/upnext"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the retained tracker snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			if watch {
				return watchStatus(app)
			}

			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			payload, err := app.client.ReadRetained(ctx, upnext.TopicTrackerState(app.topicBase))
			if err != nil {
				return err
			}
			var state upnext.TrackerState
			if err := json.Unmarshal(payload, &state); err != nil {
				return err
			}
			return app.printer.Print(state)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "print every tracker snapshot until interrupted")

	return cmd
}

func watchStatus(app *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	states := make(chan upnext.TrackerState, 8)
	handler := func(_ paho.Client, msg paho.Message) {
		var state upnext.TrackerState
		if err := json.Unmarshal(msg.Payload(), &state); err != nil {
			return
		}
		select {
		case states <- state:
		default:
		}
	}

	topic := upnext.TopicTrackerState(app.topicBase)
	if err := app.client.Subscribe(topic, 1, handler); err != nil {
		return err
	}
	defer app.client.Unsubscribe(topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-states:
			if err := app.printer.Print(state); err != nil {
				return err
			}
		}
	}
}
