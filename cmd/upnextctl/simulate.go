package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nat80/upnext/pkg/upnext"
)

// simulateCommand pushes a synthetic plugin payload on the signal topic, the
// same way a companion plugin announces its next item.
func simulateCommand() *cobra.Command {
	var (
		showTitle  string
		title      string
		season     int
		episode    int
		playURL    string
		playDirect bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish a synthetic next-item signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)

			next := upnext.NewVideo()
			next.Type = "episode"
			next.Title = title
			next.ShowTitle = showTitle
			next.Season = upnext.FlexInt(season)
			next.Episode = upnext.FlexInt(episode)

			data := upnext.PluginData{
				NextVideo:  &next,
				PlayURL:    playURL,
				PlayDirect: playDirect,
			}

			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if err := app.client.SendSignal(ctx, app.identity, data); err != nil {
				return err
			}
			return app.printer.Print(map[string]string{"result": "sent"})
		},
	}

	cmd.Flags().StringVar(&showTitle, "show", "Simulated Show", "next episode show title")
	cmd.Flags().StringVar(&title, "title", "Simulated Episode", "next episode title")
	cmd.Flags().IntVar(&season, "season", 1, "next episode season")
	cmd.Flags().IntVar(&episode, "episode", 1, "next episode number")
	cmd.Flags().StringVar(&playURL, "play-url", "", "plugin play URL for the next item")
	cmd.Flags().BoolVar(&playDirect, "play-direct", false, "mark the payload as direct-play")

	return cmd
}
