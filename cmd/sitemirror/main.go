package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tokarotik/sitemirror"
	"github.com/tokarotik/sitemirror/cache"
	"github.com/tokarotik/sitemirror/static"
)

var (
	// CLI flags
	configFilenameFlag string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// set at build time with -ldflags "-X main.version=..."
	version string
)

func init() {
	if version == "" {
		version = "DEV"
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitemirror",
		Short:         "Serve a static site hosted on a raw content mirror",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}
	root.PersistentFlags().StringVar(&configFilenameFlag, "config", "", "Path to config file (.yaml or .toml)")
	root.PersistentFlags().BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	root.PersistentFlags().StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	root.AddCommand(newProxyCmd(), newStaticCmd())
	return root
}

func setupLogging() error {
	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
	return nil
}

func newProxyCmd() *cobra.Command {
	var (
		originFlag      string
		hostFlag        string
		portFlag        int
		timeoutFlag     = sitemirror.DefaultTimeout
		cacheSizeFlag   int
		providerFlag    string
		dbFilenameFlag  string
		maxBodySizeFlag int64
	)
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Proxy site files from the origin, with a bounded LRU cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := getConfig(configFilenameFlag)
			if err != nil {
				return err
			}
			pc := &config.Proxy
			// flags override config
			flags := cmd.Flags()
			if flags.Changed("origin") {
				pc.Origin = originFlag
			}
			if flags.Changed("host") {
				pc.Host = hostFlag
			}
			if flags.Changed("port") {
				pc.Port = portFlag
			}
			if flags.Changed("timeout") {
				pc.Timeout = timeoutFlag
			}
			if flags.Changed("cache-size") {
				pc.CacheSize = cacheSizeFlag
			}
			if flags.Changed("provider") {
				pc.Provider = providerFlag
			}
			if flags.Changed("db") {
				pc.DB = dbFilenameFlag
			}
			if flags.Changed("max-body-size") {
				pc.MaxBodySize = maxBodySizeFlag
			}
			return runProxy(cmd, *pc)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&originFlag, "origin", sitemirror.DefaultOrigin, "Origin URL prefix to proxy to")
	flags.StringVar(&hostFlag, "host", "127.0.0.1", "Host to listen on")
	flags.IntVar(&portFlag, "port", 5000, "Port to listen on")
	flags.DurationVar(&timeoutFlag, "timeout", sitemirror.DefaultTimeout, "Timeout for origin requests")
	flags.IntVar(&cacheSizeFlag, "cache-size", sitemirror.DefaultCacheSize, "Maximum number of cached origin responses")
	flags.StringVar(&providerFlag, "provider", "memory", "Caching provider to use (memory or sqlite)")
	flags.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name for the sqlite provider (in-memory db if empty)")
	flags.Int64Var(&maxBodySizeFlag, "max-body-size", sitemirror.DefaultMaxBodySize, "Largest accepted origin response in bytes")
	return cmd
}

func runProxy(cmd *cobra.Command, pc ProxyConfig) error {
	// use configured provider
	var (
		store cache.Provider
		err   error
	)
	switch pc.Provider {
	case "memory", "":
		store, err = cache.NewMemCache(pc.CacheSize)
	case "sqlite":
		store, err = cache.NewSQLiteCache(pc.DB, pc.CacheSize)
	default:
		err = fmt.Errorf("unsupported cache provider: %s", pc.Provider)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	proxy, err := sitemirror.CreateProxy(sitemirror.Config{
		Cache:       store,
		Origin:      pc.Origin,
		Timeout:     pc.Timeout,
		MaxBodySize: pc.MaxBodySize,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", pc.Host, pc.Port)
	log.Info().
		Str("provider", pc.Provider).
		Int("cacheSize", pc.CacheSize).
		Dur("timeout", pc.Timeout).
		Msgf("Proxying http://%s to %s", addr, pc.Origin)
	return serve(cmd.Context(), addr, proxy)
}

func newStaticCmd() *cobra.Command {
	var (
		rootFlag     string
		hostFlag     string
		portFlag     int
		notFoundFlag string
	)
	cmd := &cobra.Command{
		Use:   "static",
		Short: "Serve a local directory, with the site's 404 page for missing files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := getConfig(configFilenameFlag)
			if err != nil {
				return err
			}
			sc := &config.Static
			flags := cmd.Flags()
			if flags.Changed("root") {
				sc.Root = rootFlag
			}
			if flags.Changed("host") {
				sc.Host = hostFlag
			}
			if flags.Changed("port") {
				sc.Port = portFlag
			}
			if flags.Changed("not-found") {
				sc.NotFoundPage = notFoundFlag
			}

			addr := fmt.Sprintf("%s:%d", sc.Host, sc.Port)
			server := static.New(static.Config{
				Root:         sc.Root,
				NotFoundPage: sc.NotFoundPage,
			})
			log.Info().Str("root", sc.Root).Msgf("Serving at http://%s", addr)
			return serve(cmd.Context(), addr, server)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&rootFlag, "root", ".", "Directory to serve")
	flags.StringVar(&hostFlag, "host", "127.0.0.1", "Host to listen on")
	flags.IntVar(&portFlag, "port", 8000, "Port to listen on")
	flags.StringVar(&notFoundFlag, "not-found", static.DefaultNotFoundPage, "Page served for missing files, relative to root")
	return cmd
}
