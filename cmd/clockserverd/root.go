package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	clock "github.com/edgeo-scada/modbus-clock"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "clockserverd <config-file>",
	Short: "A Modbus TCP time server",
	Long: `clockserverd exposes the current date and time as a Modbus TCP slave.

Register map (per slave, 1-based data addresses):
  Input registers 1-8   seconds, minutes, hours, day of month, month,
                        year, day of week (Sunday = 0), day of year
  Holding registers 1-2 GMT offset in seconds, signed 32-bit, word order ABCD
  Coil 1                daylight saving time flag (adds 3600 s when set)

The server is configured from a single config file (YAML or JSON), e.g.:

  listen: "0.0.0.0:1502"
  slave_address: 10
  poll_interval_ms: 100

Test it with mbpoll:

  mbpoll -m tcp -p 1502 -a 10 -t 3 -c 8 localhost`,
	Version:      version,
	Args:         cobra.ExactArgs(1),
	RunE:         runServer,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func runServer(cmd *cobra.Command, args []string) error {
	viper.SetDefault("listen", "0.0.0.0:1502")
	viper.SetDefault("slave_address", int(clock.DefaultSlaveAddress))
	viper.SetDefault("poll_interval_ms", 100)
	viper.SetDefault("max_connections", 10)
	viper.SetDefault("log_level", "info")

	viper.SetConfigFile(args[0])
	viper.SetEnvPrefix("CLOCKSERVER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", args[0], err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	ts, err := clock.NewTimeServer(clock.TimeServerConfig{
		Listen:       viper.GetString("listen"),
		SlaveAddress: clock.UnitID(viper.GetUint("slave_address")),
		PollInterval: time.Duration(viper.GetInt("poll_interval_ms")) * time.Millisecond,
	},
		clock.WithLogger(logger),
		clock.WithMaxConnections(viper.GetInt("max_connections")),
	)
	if err != nil {
		return err
	}

	if err := ts.Start(); err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel the context; Run closes the transport and
	// returns through the normal exit path.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return ts.Run(ctx)
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch viper.GetString("log_level") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
