package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/itzmeanjan/gh-sync/auth"
	"github.com/itzmeanjan/gh-sync/catalog"
	"github.com/itzmeanjan/gh-sync/giturl"
	"github.com/itzmeanjan/gh-sync/syncer"
)

const metricsNamespace = "gh_sync"

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GH_SYNC_CONFIG"),
			Usage:   "Absolute path to the config file.",
		},
		&cli.StringFlag{
			Name:    "token",
			Sources: cli.EnvVars("GITHUB_TOKEN", "GITHUB_API_TOKEN"),
			Usage:   "GitHub API token, used to list repositories and as the default git password.",
		},
		&cli.StringFlag{
			Name:    "api-url",
			Sources: cli.EnvVars("GITHUB_GRAPHQL_ENDPOINT"),
			Usage:   "GitHub GraphQL API endpoint.",
		},
		&cli.StringSliceFlag{
			Name:  "affiliations",
			Usage: "Repository affiliations to list: owner, collaborator, organization_member.",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of repositories synced at once. Defaults to twice the CPU count.",
		},
		&cli.DurationFlag{
			Name:  "git-timeout",
			Usage: "Timeout for a single git command.",
		},
		&cli.StringFlag{
			Name:  "clone-proto",
			Usage: "Protocol new clones use: https or ssh.",
		},
		&cli.StringSliceFlag{
			Name:  "include",
			Usage: "Only sync repositories whose name matches one of these glob patterns.",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Skip repositories whose name matches one of these glob patterns.",
		},
		&cli.BoolFlag{
			Name:  "prune-orphans",
			Usage: "Remove clones under the target directory that are no longer in the catalog.",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Listen address for the /metrics endpoint. Disabled when empty.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func main() {
	cmd := &cli.Command{
		Name:      "gh-sync",
		Usage:     "gh-sync clones and updates your GitHub repositories under one directory.",
		ArgsUsage: "[target-dir]",
		Flags:     flags,
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command) error {
	// set log level according to argument
	if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
		loggerLevel.Set(v)
	}

	conf := &Config{}
	if path := c.String("config"); path != "" {
		var err error
		if conf, err = parseConfigFile(path); err != nil {
			logger.Error("unable to parse config file", "err", err)
			os.Exit(1)
		}
	}
	overrideConfig(conf, c)
	if err := applyDefaults(conf); err != nil {
		logger.Error("unable to apply config defaults", "err", err)
		os.Exit(1)
	}
	if err := conf.validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	token := c.String("token")
	if token == "" {
		logger.Error("github token not set, create a personal access token with 'repo' " +
			"scope and pass it via GITHUB_TOKEN or --token")
		os.Exit(1)
	}

	gitExecutablePath, err := exec.LookPath("git")
	if err != nil {
		logger.Error("unable to find git executable on PATH", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.MetricsAddr != "" {
		enableMetrics(conf.MetricsAddr)
	}

	client, err := catalog.NewClient(ctx, token, catalog.Config{
		Endpoint:     conf.APIURL,
		Affiliations: conf.Affiliations,
	}, logger.With("logger", "catalog"))
	if err != nil {
		logger.Error("unable to create github client", "err", err)
		os.Exit(1)
	}

	catalogRepos, err := client.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("sync interrupted by user")
			return nil
		}
		logger.Error("unable to list github repositories", "err", err)
		os.Exit(1)
	}

	repos := filterRepos(catalogRepos, conf.Include, conf.Exclude)
	if filtered := len(catalogRepos) - len(repos); filtered > 0 {
		logger.Info("filtered repositories away", "filtered", filtered, "left", len(repos))
	}

	// membership is judged against the full catalog, not the filtered
	// selection: an excluded repository has not left the catalog and its
	// clone must survive. Runs even when the selection is empty, but never
	// on an interrupted run.
	if conf.PruneOrphans && ctx.Err() == nil {
		pruneOrphans(conf.Sync.Root, catalogRepos)
	}

	if len(repos) == 0 {
		logger.Info("no repositories to sync")
		return nil
	}

	gitENVs, err := setupCloneProto(ctx, conf, token, repos)
	if err != nil {
		logger.Error("unable to set up git authentication", "err", err)
		os.Exit(1)
	}

	sync, err := syncer.New(conf.Sync, gitExecutablePath, gitENVs, logger.With("logger", "syncer"))
	if err != nil {
		logger.Error("unable to create syncer", "err", err)
		os.Exit(1)
	}

	results, err := sync.Sync(ctx, repos)
	if err != nil {
		logger.Error("unable to sync repositories", "err", err)
		os.Exit(1)
	}

	interrupted := ctx.Err() != nil

	var failed []syncer.Result
	for _, res := range syncer.Failures(results) {
		// an interrupt is a deliberate stop, not a sync failure
		if interrupted && res.Stage == syncer.StageCanceled {
			continue
		}
		failed = append(failed, res)
	}

	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, res := range failed {
			names = append(names, res.Repo.Name)
		}
		logger.Error("sync completed with failures", "repos", len(results), "failed", names)
		os.Exit(1)
	}

	if interrupted {
		logger.Info("sync interrupted by user", "repos", len(results))
		return nil
	}

	logger.Info("sync completed successfully", "repos", len(results))
	return nil
}

// setupCloneProto rewrites catalog URLs for the configured protocol and
// returns the git environment needed to authenticate with it.
func setupCloneProto(ctx context.Context, conf *Config, token string, repos []catalog.Repo) ([]string, error) {
	switch conf.CloneProto {
	case cloneProtoSSH:
		for i := range repos {
			sshURL, err := giturl.ToSSH(repos[i].URL)
			if err != nil {
				return nil, fmt.Errorf("unable to rewrite url for ssh repo:%s err:%w", repos[i].Name, err)
			}
			repos[i].URL = sshURL
		}
		return []string{auth.GitSSHCommand(conf.Auth)}, nil

	case cloneProtoHTTPS:
		password, err := auth.GitPassword(ctx, restAPIBase(conf.APIURL), token, conf.Auth, logger)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve git password err:%w", err)
		}
		credsLoader, err := auth.EnsureCredsLoader(os.TempDir())
		if err != nil {
			return nil, fmt.Errorf("unable to write creds loader err:%w", err)
		}
		return auth.HTTPSEnv(credsLoader, password), nil
	}

	return nil, fmt.Errorf("unsupported clone protocol '%s'", conf.CloneProto)
}

// restAPIBase maps the configured GraphQL endpoint onto the REST base that
// GitHub App tokens are minted against, so enterprise deployments mint on
// their own host. GitHub Enterprise serves GraphQL at <host>/api/graphql
// and REST at <host>/api/v3; for the public API the auth package applies
// its own default.
func restAPIBase(graphqlEndpoint string) string {
	if graphqlEndpoint == catalog.DefaultEndpoint {
		return ""
	}
	if base, ok := strings.CutSuffix(graphqlEndpoint, "/api/graphql"); ok {
		return base + "/api/v3"
	}
	return ""
}

// enableMetrics registers sync metrics and serves them on addr for the
// lifetime of the run.
func enableMetrics(addr string) {
	syncer.EnableMetrics(metricsNamespace, prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server terminated", "err", err)
		}
	}()
}
