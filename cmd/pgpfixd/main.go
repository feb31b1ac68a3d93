// Command pgpfixd runs the assuan dispatch server on a TCP or unix socket,
// with zero-downtime binary upgrades on SIGHUP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pgpfix/pgpfix/assuan"
)

var (
	listenNet  string
	listenAddr string
	pidFile    string
	logFormat  string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "pgpfixd",
	Short:         "OpenPGP pipeline dispatch daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&listenNet, "net", "tcp", "listener network (tcp or unix)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "127.0.0.1:9870", "listener address")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "", "pid file for upgrade hand-over")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text or json)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func setupLogging() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if logFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	upg, err := tableflip.New(tableflip.Options{PIDFile: pidFile})
	if err != nil {
		return err
	}
	defer upg.Stop()

	// on SIGHUP, fork the new binary and hand the listener over
	go func() {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		for range hup {
			log.Info().Msg("pgpfixd: upgrade requested")
			if err := upg.Upgrade(); err != nil {
				log.Error().Err(err).Msg("pgpfixd: upgrade failed")
			}
		}
	}()

	// Listen must be called before Ready
	ln, err := upg.Listen(listenNet, listenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("net", listenNet).Str("addr", listenAddr).Int("pid", os.Getpid()).
		Msg("pgpfixd: listening")

	srv := assuan.NewServer(ctx)
	srv.Options.Logger = &log.Logger

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ln)
	}()

	if err := upg.Ready(); err != nil {
		return err
	}

	select {
	case <-upg.Exit():
		log.Info().Msg("pgpfixd: successor ready, winding down")
	case <-ctx.Done():
		log.Info().Msg("pgpfixd: shutdown signal")
	case err := <-done:
		return err
	}

	srv.Stop()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("pgpfixd: sessions still busy at deadline, exiting anyway")
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("pgpfixd: fatal")
		os.Exit(1)
	}
}
