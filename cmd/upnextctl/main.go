package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nat80/upnext/internal/adapters/config"
	"github.com/nat80/upnext/internal/adapters/idgen"
	"github.com/nat80/upnext/internal/adapters/mqtt"
	"github.com/nat80/upnext/internal/adapters/output"
	"github.com/nat80/upnext/pkg/upnext"
)

type app struct {
	client    *mqtt.Client
	printer   output.Printer
	topicBase string
	identity  string
	timeout   time.Duration
	json      bool
}

// Commands that talk to the broker; everything else runs offline.
var needsBroker = map[string]bool{
	"status":   true,
	"simulate": true,
}

func main() {
	root := &cobra.Command{
		Use:   "upnextctl",
		Short: "Up Next tracker CLI",
	}

	var (
		broker    string
		topicBase string
		identity  string
		timeout   time.Duration
		jsonOut   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", upnext.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "signal sender identity")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == upnext.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}
		if identity == "" {
			identity = cfg.Identity
		}
		if identity == "" {
			identity = "upnextctl"
		}
		if userOpt == "" {
			userOpt = cfg.Username
		}
		if passOpt == "" {
			passOpt = cfg.Password
		}
		if tlsCA == "" {
			tlsCA = cfg.TLSCA
		}
		if tlsCert == "" {
			tlsCert = cfg.TLSCert
		}
		if tlsKey == "" {
			tlsKey = cfg.TLSKey
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		a := &app{
			printer:   printer,
			topicBase: topicBase,
			identity:  identity,
			timeout:   timeout,
			json:      jsonOut,
		}

		if needsBroker[cmd.Name()] {
			if broker == "" {
				return errors.New("broker is required (set --broker or config)")
			}
			client, err := mqtt.NewClient(mqtt.Options{
				BrokerURL: broker,
				ClientID:  fmt.Sprintf("upnextctl-%s", idgen.Generator{}.NewID()),
				Username:  userOpt,
				Password:  passOpt,
				TLSCA:     tlsCA,
				TLSCert:   tlsCert,
				TLSKey:    tlsKey,
				TopicBase: topicBase,
				Timeout:   timeout,
			})
			if err != nil {
				return err
			}
			a.client = client
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
		return nil
	}

	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		if a := fromContext(cmd); a != nil && a.client != nil {
			a.client.Disconnect()
		}
	}

	root.AddCommand(statusCommand())
	root.AddCommand(simulateCommand())
	root.AddCommand(popupAtCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}
