package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/cli"
	"github.com/tomski747/pvm/internal/config"
	"github.com/tomski747/pvm/internal/env"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/mirror"
	"github.com/tomski747/pvm/internal/platform"
	"github.com/tomski747/pvm/internal/remote"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/internal/version"
)

const (
	appVersion = "0.2.0"
	cacheName  = "releases.cache"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var log *logging.Logger
	factory := func(opts cli.GlobalOptions) (*cli.Services, error) {
		services, l, err := buildServices(opts)
		log = l
		return services, err
	}

	app := cli.NewApp(os.Stdout, factory, appVersion)
	err := app.Run(ctx, os.Args[1:])
	if log != nil {
		log.Sync()
	}
	if err != nil {
		cli.PrintError(os.Stderr, err, app.Options().NoColor)
		return apperr.ExitCode(err)
	}
	return 0
}

func buildServices(opts cli.GlobalOptions) (*cli.Services, *logging.Logger, error) {
	cfg, err := config.NewLoader().Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, apperr.New(apperr.InvalidSpec, "config", "", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log, err := logging.New(level, os.Stderr)
	if err != nil {
		return nil, nil, apperr.New(apperr.InvalidSpec, "config", "", err)
	}

	checker := platform.NewChecker(cfg.RootDir)
	if err := checker.Validate(); err != nil {
		return nil, log, err
	}
	target, err := checker.Target()
	if err != nil {
		return nil, log, err
	}
	m, err := mirror.Select(cfg.Mirror)
	if err != nil {
		return nil, log, apperr.New(apperr.InvalidSpec, "config", "", err)
	}
	log.Debug("configuration loaded", "root", cfg.RootDir, "mirror", m.Name, "target", fmt.Sprintf("%s-%s", target.OS, target.Arch))

	policy := remote.DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		policy.MaxAttempts = cfg.RetryAttempts
	}
	httpClient := &http.Client{}

	client := remote.NewClient(
		remote.WithBaseURL(m.APIBase),
		remote.WithMirror(m),
		remote.WithTarget(target),
		remote.WithHTTPClient(httpClient),
		remote.WithToken(cfg.GitHubToken),
		remote.WithCacheTTL(cfg.CacheTTL),
		remote.WithCacheFile(filepath.Join(cfg.RootDir, cacheName)),
		remote.WithTimeout(cfg.HTTPTimeout),
		remote.WithRetryPolicy(policy),
		remote.WithLogger(log),
	)
	store := storage.NewFileStorage(cfg, storage.WithLogger(log))
	downloader := version.NewDownloader(
		version.WithHTTPClient(httpClient),
		version.WithRetryPolicy(policy),
		version.WithProgressFunc(cli.NewProgressPrinter(os.Stderr)),
		version.WithDownloaderLogger(log),
	)
	installer := version.NewInstaller(store, downloader, client, log)
	envManager := env.NewManager(store, log)

	return &cli.Services{
		Lister:      version.NewLister(client, store),
		Registry:    version.NewRegistry(store, client, log),
		Installer:   version.NewBatchInstaller(installer, cfg.Concurrency, log),
		Switcher:    version.NewSwitcher(store, envManager, log),
		Uninstaller: version.NewUninstaller(store, envManager, log),
		Verifier:    store,
		Setup:       envManager,
	}, log, nil
}
