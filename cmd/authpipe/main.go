package main

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/studyclub/authpipe"
)

var (
	configFile string
	verbose    bool

	cfg *cliConfig
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authpipe",
	Short: "Authenticated HTTP calls with shared token refresh",
	Long: `authpipe keeps a session (access + refresh token) for one remote API and
sends requests with it. An expired access token is refreshed once and the
request replayed; a rejected refresh token ends the session.

If no config file is specified, authpipe looks for authpipe.yaml in:
  - the current directory
  - the user config directory (authpipe/)
  - /etc/authpipe`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunConfigE,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("base-url", "", "Base URL of the remote API")
}

func preRunConfigE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, log, err = loadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// newClient builds a client from the loaded config. The returned func
// releases the client and any Redis connection.
func newClient(config authpipe.Config, redisAddr string, out io.Writer) (*authpipe.Client, func(), error) {
	b := authpipe.New().
		WithConfig(config).
		WithLogger(log).
		WithNavigator(authpipe.NavigatorFunc(func(_ context.Context, nav authpipe.Navigation) {
			fmt.Fprintf(out, "session ended; sign in again at %s\n", nav.Location())
		}))
	if config.Events.Enabled {
		b = b.WithEventSink(authpipe.NewLogrusSink(log))
	}

	release := func() {}
	if config.Session.Backend == authpipe.BackendRedis {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{redisAddr},
		})
		b = b.WithRedis(rdb)
		release = func() { _ = rdb.Close() }
	}

	client, err := b.Build()
	if err != nil {
		release()
		return nil, nil, err
	}
	return client, func() {
		client.Close()
		release()
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalf("authpipe: %v", err)
	}
}
