package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flare-systems/flare-splunk/internal/config"
	"github.com/flare-systems/flare-splunk/internal/ingest"
)

var (
	ingestSessionKeyStdin bool
	ingestForce           bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch new Flare events once and write them to stdout as JSON lines.",
	Long: "Fetch new Flare events once and write them to stdout as JSON lines.\n\n" +
		"Meant to run as a Splunk scripted input. With passAuth set on the input, splunkd\n" +
		"writes a session key on stdin; pass --session-key-stdin to use it.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func runIngest(stdin io.Reader, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sessionKey := ""
	if ingestSessionKeyStdin {
		if sessionKey, err = readStdinLine(stdin); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if ingestForce {
		ctx = ingest.WithForcedIngest(ctx)
	}

	b, err := openBackends(ctx, cfg, sessionKey)
	if err != nil {
		return err
	}
	defer b.Close()

	ingester := &ingest.Ingester{
		Settings: b.app.Store(),
		State:    ingest.NewStateStore(b.app.Store()),
		NewFeed:  ingest.NewFlareFeedFactory(flareOptions(cfg)),
		Out:      stdout,
		Logger:   slog.Default(),
	}
	res, err := ingester.Run(ctx)
	switch {
	case ingest.Skipped(err):
		slog.Info("ingest skipped", "reason", err)
		return nil
	case err != nil:
		return err
	}
	slog.Info("ingest finished", "events", res.Events, "tenants", len(res.ByTenant))
	return nil
}

// readStdinLine reads the first line of r, such as the session key splunkd
// writes for passAuth inputs.
func readStdinLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4*1024), 64*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("nothing to read on stdin")
	}
	key := strings.TrimSpace(scanner.Text())
	if key == "" {
		return "", errors.New("stdin line is empty")
	}
	return key, nil
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestSessionKeyStdin, "session-key-stdin", false, "Read a splunkd session key from stdin")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Ingest even when events were fetched recently")
}
