package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yly97/gamestream/pkg/config"
	"github.com/yly97/gamestream/pkg/gamestream"
	"github.com/yly97/gamestream/pkg/identity"
	"github.com/yly97/gamestream/pkg/pairing"
)

var (
	configFile string
	verbose    int
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gamestream",
		Short: "Register and query GameStream hosts",
		Long: `gamestream pairs this machine with a GameStream host and queries its
application catalog, so the host can be used as a playback target.`,
		Example: `
  # Show host details
  gamestream info -c gamestream.toml

  # Pair, printing a PIN to enter on the host
  gamestream pair -c gamestream.toml`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "gamestream.toml",
		"path to the configuration file (TOML format)")
	cmd.PersistentFlags().IntVar(&verbose, "verbose", -1,
		"log level (0:trace, 1:debug, 2:info), overrides the config file")

	cmd.AddCommand(
		newInfoCommand(),
		newPinCommand(),
		newPairCommand(),
		newUnpairCommand(),
		newAppsCommand(),
		newCertsCommand(),
	)
	return cmd
}

func setLogLevel(cfg *config.Config) {
	switch verbose {
	case 0:
		log.SetLevel(log.TraceLevel)
		return
	case 1:
		log.SetLevel(log.DebugLevel)
		return
	case 2:
		log.SetLevel(log.InfoLevel)
		return
	}
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// connect loads the configuration and connects to the configured host.
func connect(ctx context.Context) (*gamestream.Client, *gamestream.ServerInfo, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config file: %v", err)
	}
	setLogLevel(cfg)

	gsCfg, opts := cfg.ClientConfig()
	client, err := gamestream.NewClient(gsCfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	info, err := client.Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", gsCfg.Host, err)
	}
	return client, info, nil
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the host server information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			_, info, err := connect(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Host:      %s\n", info.Host)
			fmt.Fprintf(out, "Hostname:  %s\n", info.Hostname)
			fmt.Fprintf(out, "Version:   %s\n", info.ServerVersion)
			fmt.Fprintf(out, "Paired:    %t\n", info.PairStatus)
			fmt.Fprintf(out, "Host ID:   %s\n", info.HostUniqueID)
			fmt.Fprintf(out, "Client ID: %s\n", info.UniqueID)
			return nil
		},
	}
}

func newPinCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pin",
		Short: "Generate a pairing PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pin, err := gamestream.GeneratePIN()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pin)
			return nil
		},
	}
}

func newPairCommand() *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair with the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, info, err := connect(ctx)
			if err != nil {
				return err
			}
			if info.PairStatus {
				fmt.Fprintf(cmd.OutOrStdout(), "Already paired with %s\n", info.Hostname)
				return nil
			}
			if pin == "" {
				if pin, err = gamestream.GeneratePIN(); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enter PIN %s on %s\n", pin, info.Hostname)

			err = client.Pair(ctx, pin)
			switch pairing.StatusOf(err) {
			case pairing.StatusPaired:
				fmt.Fprintf(cmd.OutOrStdout(), "Paired with %s\n", info.Hostname)
				return nil
			case pairing.StatusWrongPin:
				return fmt.Errorf("the PIN was not accepted, run pair again: %w", err)
			case pairing.StatusSignatureVerificationFailed:
				return fmt.Errorf("SECURITY WARNING: the host identity could not be verified, "+
					"someone may be intercepting the connection: %w", err)
			case pairing.StatusHostUnreachable:
				return fmt.Errorf("host unreachable: %w", err)
			default:
				return fmt.Errorf("host rejected pairing: %w", err)
			}
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "use this 4 digit PIN instead of a random one")
	return cmd
}

func newUnpairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Remove this client from the host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, _, err := connect(ctx)
			if err != nil {
				return err
			}
			return client.Unpair(ctx)
		},
	}
}

func newAppsCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the host applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, _, err := connect(ctx)
			if err != nil {
				return err
			}
			apps, err := client.ListApplications(ctx)
			if errors.Is(err, gamestream.ErrNotPaired) {
				return fmt.Errorf("%w, run pair first", err)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, app := range apps {
				fmt.Fprintf(out, "%-8s %s\n", app.ID, app.Title)
				if all {
					for k, v := range app.Attributes {
						fmt.Fprintf(out, "         %s=%s\n", k, v)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "print every attribute")
	return cmd
}

func newCertsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the client certificate",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a directory for nvidia.crt and nvidia.key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !identity.Validate(args[0]) {
				return fmt.Errorf("%s does not hold a single certificate and key pair", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create the client certificate if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config file: %v", err)
			}
			setLogLevel(cfg)
			store := identity.NewStore(cfg.Client.CertificatesDir)
			if _, err := store.EnsureIdentity(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "client certificate in %s\n", store.Dir())
			return nil
		},
	})
	return cmd
}
