package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ppiankov/kafkabundle/internal/config"
	"github.com/ppiankov/kafkabundle/internal/kafka"
	"github.com/ppiankov/kafkabundle/internal/logging"
	"github.com/ppiankov/kafkabundle/internal/reporter"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const defaultPreflightTimeout = 30 * time.Second

func main() {
	logging.Init(false, "text")

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		_, _ = fmt.Fprintf(os.Stderr, "Tip: Use 'kafkabundle --help' for usage information.\n")
		os.Exit(classifyError(err))
	}
}

// rootOptions are shared by every subcommand; cfg is filled in before RunE.
type rootOptions struct {
	verbose    bool
	logFormat  string
	configPath string

	cfg *config.Config
}

type preflightOptions struct {
	bootstrapServer string
	createMissing   bool
	verify          bool
	output          string
	timeout         time.Duration
}

type consumeOptions struct {
	bootstrapServer string
	topic           string
	listener        string
	verify          bool
}

type produceOptions struct {
	bootstrapServer string
	topic           string
	producer        string
	key             string
	value           string
	createMissing   bool
}

func newRootCmd() *cobra.Command {
	root := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "kafkabundle",
		Short:         "kafkabundle registers, verifies and exercises Kafka topics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				logging.Init(root.verbose, root.logFormat)
				return nil
			}
			return root.resolve(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&root.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&root.logFormat, "log-format", "text", "Log format: text or json")
	cmd.PersistentFlags().StringVar(&root.configPath, "config", "", "Path to config file (default: auto-discover "+config.DefaultFileName+")")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidArg(err.Error())
	})

	cmd.AddCommand(newPreflightCmd(root))
	cmd.AddCommand(newConsumeCmd(root))
	cmd.AddCommand(newProduceCmd(root))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "version: %s\n", Version); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "commit:  %s\n", GitCommit); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(out, "date:    %s\n", BuildDate); err != nil {
				return err
			}
			return nil
		},
	}
}

func newPreflightCmd(root *rootOptions) *cobra.Command {
	var opts preflightOptions

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check connectivity and verify every configured topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolvePreflightOptions(cmd, opts, root.cfg)
			if err != nil {
				return err
			}
			return runPreflight(cmd, root.cfg, resolved)
		},
	}

	cmd.Flags().StringVar(&opts.bootstrapServer, "bootstrap-server", "", "Kafka brokers, comma-separated or [\"a:9092\"]")
	cmd.Flags().BoolVar(&opts.createMissing, "create-missing", false, "Create topics that do not exist")
	cmd.Flags().BoolVar(&opts.verify, "verify", true, "Compare partitions and replication factor with the config")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", defaultPreflightTimeout, "Overall preflight timeout")

	return cmd
}

func newConsumeCmd(root *rootOptions) *cobra.Command {
	var opts consumeOptions

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Print records from a topic until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyBootstrapServer(cmd, opts.bootstrapServer, root.cfg); err != nil {
				return err
			}
			return runConsume(cmd, root.cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.bootstrapServer, "bootstrap-server", "", "Kafka brokers, comma-separated or [\"a:9092\"]")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Topic key or name to consume")
	cmd.Flags().StringVar(&opts.listener, "listener", "", "Named listener config")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Verify the topic configuration before consuming")

	return cmd
}

func newProduceCmd(root *rootOptions) *cobra.Command {
	var opts produceOptions

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Send one record to a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyBootstrapServer(cmd, opts.bootstrapServer, root.cfg); err != nil {
				return err
			}
			return runProduce(cmd, root.cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.bootstrapServer, "bootstrap-server", "", "Kafka brokers, comma-separated or [\"a:9092\"]")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "Topic key or name to produce to")
	cmd.Flags().StringVar(&opts.producer, "producer", "", "Named producer config")
	cmd.Flags().StringVar(&opts.key, "key", "", "Record key (omitted when not set)")
	cmd.Flags().StringVar(&opts.value, "value", "", "Record value")
	cmd.Flags().BoolVar(&opts.createMissing, "create-missing", false, "Create the topic if it does not exist")

	return cmd
}

// resolve loads the config file, applies the environment and initializes
// logging. Flags win over file values only when set.
func (r *rootOptions) resolve(cmd *cobra.Command) error {
	var (
		cfg     *config.Config
		cfgPath string
		err     error
	)
	if strings.TrimSpace(r.configPath) != "" {
		cfgPath = r.configPath
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, cfgPath, err = config.Load()
	}
	if err != nil {
		return &kafka.ConfigurationError{Reason: "load config file", Err: err}
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return invalidArg(err.Error())
	}

	if !flagChanged(cmd, "verbose") && cfg.Logging.Verbose {
		r.verbose = true
	}
	if !flagChanged(cmd, "log-format") && cfg.Logging.Format != "" {
		r.logFormat = cfg.Logging.Format
	}
	format := strings.ToLower(strings.TrimSpace(r.logFormat))
	if format != "text" && format != "json" {
		return invalidArg(fmt.Sprintf("invalid log format %q (expected text or json)", r.logFormat))
	}
	logging.Init(r.verbose, format)

	if cfgPath != "" {
		slog.Debug("loaded config", "path", cfgPath)
	}
	r.cfg = cfg
	return nil
}

func resolvePreflightOptions(cmd *cobra.Command, opts preflightOptions, cfg *config.Config) (preflightOptions, error) {
	if err := applyBootstrapServer(cmd, opts.bootstrapServer, cfg); err != nil {
		return opts, err
	}
	if !flagChanged(cmd, "output") && cfg != nil && cfg.Output != "" {
		opts.output = cfg.Output
	}

	opts.output = strings.ToLower(strings.TrimSpace(opts.output))
	if opts.output == "" {
		opts.output = "text"
	}
	if opts.output != "text" && opts.output != "json" {
		return opts, invalidArg(fmt.Sprintf("invalid output format %q (expected text or json)", opts.output))
	}
	if opts.timeout <= 0 {
		return opts, invalidArg("timeout must be greater than zero")
	}

	return opts, nil
}

// applyBootstrapServer replaces the configured brokers when the flag is set.
func applyBootstrapServer(cmd *cobra.Command, raw string, cfg *config.Config) error {
	if cfg == nil || !flagChanged(cmd, "bootstrap-server") {
		return nil
	}
	brokers, err := config.ParseBrokerList(raw)
	if err != nil {
		return invalidArg(err.Error())
	}
	if len(brokers) == 0 {
		return invalidArg("bootstrap-server must not be empty")
	}
	cfg.Kafka.Brokers = brokers
	return nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}

	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return false
	}

	return flag.Changed
}

func runPreflight(cmd *cobra.Command, cfg *config.Config, opts preflightOptions) error {
	start := time.Now()

	bundle, err := kafka.NewBundle(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := bundle.Close(); closeErr != nil {
			slog.Warn("close kafka bundle", "error", closeErr)
		}
	}()

	if bundle.Disabled() {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Kafka is disabled; nothing to check.")
		return err
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), opts.timeout)
	defer cancel()

	slog.Info("running preflight", "brokers", cfg.Kafka.Brokers, "create_missing", opts.createMissing, "verify", opts.verify)

	results, ensureErr := bundle.EnsureTopics(ctx, kafka.EnsureOptions{
		CreateIfMissing: opts.createMissing,
		Verify:          opts.verify,
	})
	result := reporter.NewPreflightResult(bundle.Config().Brokers, results, ensureErr)

	var rep reporter.PreflightReporter
	switch opts.output {
	case "json":
		rep = reporter.NewPreflightJSONReporter(cmd.OutOrStdout(), false)
	case "text":
		rep = reporter.NewPreflightTextReporter(cmd.OutOrStdout())
	default:
		return invalidArg(fmt.Sprintf("unsupported output format %q", opts.output))
	}
	if err := rep.GeneratePreflight(ctx, result); err != nil {
		return err
	}

	slog.Info("preflight completed",
		"topic_count", len(results),
		"reachable", result.Summary.Reachable,
		"duration", time.Since(start),
	)

	return ensureErr
}

func runConsume(cmd *cobra.Command, cfg *config.Config, opts consumeOptions) error {
	if strings.TrimSpace(opts.topic) == "" {
		return invalidArg("--topic is required")
	}

	bundle, err := kafka.NewBundle(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := bundle.Close(); closeErr != nil {
			slog.Warn("close kafka bundle", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := &recordPrinter{w: cmd.OutOrStdout()}
	reg, err := kafka.NewMessageHandlerRegistration(kafka.HandlerRegistrationConfig[string, string]{
		Topic:                   opts.topic,
		ListenerConfig:          opts.listener,
		CheckTopicConfiguration: opts.verify,
		KeyDeserializer:         kafka.StringSerde{},
		ValueDeserializer:       kafka.StringSerde{},
		Handler:                 kafka.HandlerFunc[string, string](printer.Handle),
	})
	if err != nil {
		return err
	}

	consumers, err := kafka.RegisterMessageHandler(ctx, bundle, reg)
	if err != nil {
		return err
	}
	if len(consumers) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Kafka is disabled; nothing to consume.")
		return err
	}

	bundle.Start(ctx)
	slog.Info("consuming", "topic", consumers[0].Topic(), "group_id", consumers[0].GroupID(), "instances", len(consumers))

	stopped := make(chan error, len(consumers))
	for _, c := range consumers {
		go func(c *kafka.Consumer[string, string]) {
			<-c.Done()
			stopped <- c.Err()
		}(c)
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, shutting down")
		return nil
	case err := <-stopped:
		return err
	}
}

func runProduce(cmd *cobra.Command, cfg *config.Config, opts produceOptions) error {
	if strings.TrimSpace(opts.topic) == "" {
		return invalidArg("--topic is required")
	}
	if !flagChanged(cmd, "value") {
		return invalidArg("--value is required")
	}

	bundle, err := kafka.NewBundle(cfg.Kafka)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := bundle.Close(); closeErr != nil {
			slog.Warn("close kafka bundle", "error", closeErr)
		}
	}()

	regCfg := kafka.ProducerRegistrationConfig[string, string]{
		Topic:                opts.topic,
		ProducerConfig:       opts.producer,
		CreateTopicIfMissing: opts.createMissing,
		ValueSerializer:      kafka.StringSerde{},
	}
	if flagChanged(cmd, "key") {
		regCfg.KeySerializer = kafka.StringSerde{}
	}
	reg, err := kafka.NewProducerRegistration(regCfg)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	producer, err := kafka.RegisterProducer(ctx, bundle, reg)
	if err != nil {
		return err
	}
	if err := producer.Send(ctx, opts.key, opts.value); err != nil {
		return err
	}

	slog.Info("record sent", "topic", producer.Topic(), "disabled", bundle.Disabled())
	return nil
}

// recordPrinter serializes writes from concurrent consumer instances.
type recordPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *recordPrinter) Handle(_ context.Context, msg kafka.Message[string, string]) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := msg.Key
	if msg.RawKey == nil {
		key = "<nil>"
	}
	_, err := fmt.Fprintf(p.w, "%s[%d]@%d %s: %s\n", msg.Topic, msg.Partition, msg.Offset, key, msg.Value)
	return err
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errInvalidArg = errors.New("invalid argument")

type invalidArgError struct {
	msg string
}

func invalidArg(msg string) error { return &invalidArgError{msg: msg} }

func (e *invalidArgError) Error() string { return e.msg }

func (e *invalidArgError) Is(target error) bool { return target == errInvalidArg }
