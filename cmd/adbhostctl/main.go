// Command adbhostctl is a thin CLI over the adbhost client, useful both as
// a manual debugging tool and as a runnable consumer exercising the full
// protocol surface end-to-end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-adbhost/adbhost"
	"github.com/go-adbhost/adbhost/adbtcp"
)

func newClient(cfg adbhost.Config) *adbhost.Client {
	return adbhost.NewClient(adbtcp.New(cfg.HostPort()))
}

func main() {
	var host string
	var port int

	root := &cobra.Command{
		Use:   "adbhostctl",
		Short: "Talk to a running ADB server",
	}
	root.PersistentFlags().StringVar(&host, "host", "", "ADB server host (default: $ANDROID_ADB_SERVER_HOST or 127.0.0.1)")
	root.PersistentFlags().IntVar(&port, "port", 0, "ADB server port (default: $ANDROID_ADB_SERVER_PORT or 5037)")

	config := func() adbhost.Config {
		cfg := adbhost.ConfigFromEnv()
		if host != "" {
			cfg.Host = host
		}
		if port != 0 {
			cfg.Port = port
		}
		return cfg
	}

	root.AddCommand(
		versionCommand(config),
		devicesCommand(config),
		waitForCommand(config),
		killServerCommand(config),
		featuresCommand(config),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand(config func() adbhost.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ADB server's protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(config())
			version, err := client.GetVersion(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%04x\n", version)
			return nil
		},
	}
}

func devicesCommand(config func() adbhost.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(config())
			devices, err := client.GetDevices(context.Background())
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Printf("%s\tdevice\tproduct:%s model:%s device:%s transport_id:%d\n",
					d.Serial, d.Product, d.Model, d.Device, d.TransportID)
			}
			return nil
		},
	}
}

func waitForCommand(config func() adbhost.Config) *cobra.Command {
	var serial string
	cmd := &cobra.Command{
		Use:   "wait-for [device|disconnect]",
		Short: "Block until the selected device reaches a state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(config())
			sel := adbhost.DeviceSelector{}
			if serial != "" {
				sel = adbhost.BySerial(serial)
			}
			return client.WaitFor(context.Background(), sel, adbhost.WaitState(args[0]))
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "restrict to one device serial")
	return cmd
}

func killServerCommand(config func() adbhost.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "kill-server",
		Short: "Tell the ADB server to quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(config())
			return client.KillServer(context.Background())
		},
	}
}

func featuresCommand(config func() adbhost.Config) *cobra.Command {
	var serial string
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print the server's (or one device's) feature set",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(config())
			ctx := context.Background()
			if serial == "" {
				features, err := client.GetServerFeatures(ctx)
				if err != nil {
					return err
				}
				for _, f := range features {
					fmt.Println(f)
				}
				return nil
			}
			features, err := client.GetDeviceFeatures(ctx, adbhost.BySerial(serial))
			if err != nil {
				return err
			}
			for _, f := range features.Features {
				fmt.Println(f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serial, "serial", "", "query one device instead of the server")
	return cmd
}
