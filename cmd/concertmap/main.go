package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concertmap/internal/capture"
	"concertmap/internal/clock"
	"concertmap/internal/config"
	appLog "concertmap/internal/log"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath  string
	listen      string
	capturePath string
	debug       bool
}

func main() {
	appLog.Info("concertmap starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"home", conf.Home.Location,
		"relay_url", conf.RelayURL(),
		"cache_ttl", conf.Eventful.CacheTTL,
		"fetch_timeout", conf.Timeouts.Fetch,
		"geocode_cache", conf.Geocoder.CachePath,
		"static_dir", conf.StaticDir,
		"capture", flags.capturePath,
	)
	if conf.Eventful.APIKey == "" && conf.Eventful.RelayURL == "" {
		appLog.Warn("no eventful api key configured; searches will fail upstream")
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cancel, conf, flags); err != nil {
		appLog.Error("concertmap failed", err)
		os.Exit(1)
	}
	appLog.Info("concertmap exiting")
}

func run(ctx context.Context, cancel context.CancelFunc, conf *config.Config, flags flagConfig) error {
	a, err := newApp(conf, flags.debug, clock.NewSystem())
	if err != nil {
		return err
	}
	loopDone, serveErr := a.start(ctx)
	defer a.shutdown(5*time.Second, loopDone)
	// shutdown waits for the loop, which stops on cancel.
	defer cancel()

	c, err := a.startCron()
	if err != nil {
		return err
	}
	defer func() { <-c.Stop().Done() }()

	if flags.capturePath != "" {
		go func() {
			defer cancel()
			runCapture(ctx, conf, flags.capturePath)
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	return nil
}

// runCapture waits for the first results to render and writes a PNG of the
// kiosk page.
func runCapture(ctx context.Context, conf *config.Config, path string) {
	url := conf.Preview.URL
	if url == "" {
		url = "http://" + conf.Listen + "/"
	}
	opts := capture.CaptureOptions{
		URL:        url,
		OutputPath: path,
		Width:      conf.Preview.Width,
		Height:     conf.Preview.Height,
		Timeout:    conf.Timeouts.Fetch + 30*time.Second,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}

	start := time.Now()
	if err := capture.CaptureMapPNG(ctx, opts); err != nil {
		appLog.Error("map capture failed", err, "url", url)
		return
	}
	appLog.Info("map captured", "path", path, "duration", time.Since(start))
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/concertmap/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.capturePath, "capture", "", "Capture the map to this PNG once results load, then exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging")

	flag.Parse()

	return cfg
}
