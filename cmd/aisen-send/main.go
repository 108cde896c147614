// aisen-send sends a single message event to a collection service. It is
// meant for shell scripts, cron jobs and smoke-testing a DSN.
//
// Settings come from an optional config file, then the AISEN_* environment
// variables, then flags; later sources win.
//
//	aisen-send --dsn https://pub@errors.example.com/42 --level warning "disk almost full"
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/strongdm/aisen-go/pkg/aisen"
	"github.com/strongdm/aisen-go/pkg/aisen/config"
	"github.com/strongdm/aisen-go/pkg/aisen/transports/multi"
	"github.com/strongdm/aisen-go/pkg/aisen/transports/stderr"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv))
}

// run executes the command and returns the process exit code: 0 when the
// event was acknowledged, 1 when sending failed, 2 on usage errors.
func run(args []string, stdout, errOut io.Writer, getenv func(string) string) int {
	var (
		configPath  string
		dsn         string
		level       string
		logger      string
		release     string
		environment string
		timeout     time.Duration
		compress    bool
		verbose     bool
		tags        map[string]string
	)

	flagSet := pflag.NewFlagSet("aisen-send", pflag.ContinueOnError)
	flagSet.SetOutput(errOut)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML or JSONC config file")
	flagSet.StringVar(&dsn, "dsn", "", "collection service DSN (default: $AISEN_DSN)")
	flagSet.StringVarP(&level, "level", "l", "info", "event level: debug, info, warning, error or fatal")
	flagSet.StringVar(&logger, "logger", "", "logger name reported with the event")
	flagSet.StringVar(&release, "release", "", "release reported with the event")
	flagSet.StringVar(&environment, "environment", "", "environment reported with the event")
	flagSet.DurationVar(&timeout, "timeout", 0, "send timeout (default 5s)")
	flagSet.BoolVar(&compress, "compress", false, "gzip the request body")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "also print the packet to stderr")
	flagSet.StringToStringVarP(&tags, "tag", "t", nil, "tag as key=value; repeatable")
	flagSet.Usage = func() {
		fmt.Fprintf(errOut, "Usage: aisen-send [flags] <message>\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(errOut, "error: %v\n", err)
		flagSet.Usage()
		return 2
	}

	message := strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	if message == "" {
		fmt.Fprintln(errOut, "error: a message is required")
		flagSet.Usage()
		return 2
	}

	eventLevel, err := aisen.ParseLevel(level)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 2
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 2
	}

	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "dsn":
			cfg.DSN = dsn
		case "logger":
			cfg.Logger = logger
		case "release":
			cfg.Release = release
		case "environment":
			cfg.Environment = environment
		case "timeout":
			cfg.Timeout = timeout.String()
		case "compress":
			cfg.Compress = compress
		}
	})

	var sendFailure error
	opts := []aisen.ClientOption{
		aisen.WithLogger(slog.New(slog.NewTextHandler(errOut, nil))),
		aisen.WithErrorHook(func(err error) { sendFailure = err }),
	}
	if verbose {
		transport, err := newVerboseTransport(cfg, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return 2
		}
		opts = append(opts, aisen.WithTransport(transport))
	}

	client, err := config.NewClient(cfg, opts...)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 2
	}
	defer client.Close()

	id, err := client.Capture(context.Background(), &aisen.Event{
		Message: message,
		Level:   eventLevel,
		Tags:    tags,
	})
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
	if sendFailure != nil {
		fmt.Fprintf(errOut, "error: %v\n", sendFailure)
		return 1
	}

	fmt.Fprintln(stdout, id)
	return 0
}

// newVerboseTransport posts each packet and also prints it, scrubbed the
// same way as the request body. The HTTP transport comes first so its
// acknowledgment is the reported ID. It is built here because WithTransport
// replaces the default one.
func newVerboseTransport(cfg *config.Config, errOut io.Writer) (aisen.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	identity, err := aisen.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	scrubber, err := cfg.Scrubber()
	if err != nil {
		return nil, err
	}

	timeout, _ := time.ParseDuration(cfg.Timeout) // checked by Validate
	httpTransport, err := aisen.NewHTTPTransport(identity, aisen.HTTPTransportConfig{
		Timeout:  timeout,
		Compress: cfg.Compress,
		Scrubber: scrubber,
	})
	if err != nil {
		return nil, err
	}

	return multi.NewMultiTransport(
		httpTransport,
		stderr.NewStderrTransport(
			stderr.WithVerbose(),
			stderr.WithWriter(errOut),
			stderr.WithScrubber(scrubber),
		),
	), nil
}
