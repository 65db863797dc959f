// Command wit is a workspace-oriented source-package manager for
// Git-hosted projects: it resolves a transitive graph of dependency
// repositories to a single commit per name and records the result in
// a reproducible wit-lock.json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/sifive/wit/auth"
	"github.com/sifive/wit/giturl"
	"github.com/sifive/wit/manifest"
	"github.com/sifive/wit/resolver"
	"github.com/sifive/wit/workspace"
)

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
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

func envString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// command is one entry in the explicit subcommand dispatch table,
// replacing the reflection-based `getattr(module, "cmd_"+name)`
// lookup the source used.
type command struct {
	name string
	help string
	run  func(ctx context.Context, args []string) error
}

var commands = []command{
	{"init", "create a new workspace directory", cmdInit},
	{"add", "add a dependency to the current package's manifest", cmdAdd},
	{"update", "resolve and check out the full dependency graph", cmdUpdate},
	{"status", "report the state of every package on disk", cmdStatus},
	{"version", "print the wit version", cmdVersion},
}

func usage() {
	fmt.Fprintf(os.Stderr, "NAME:\n\twit - a workspace-oriented source-package manager for Git-hosted projects\n")
	fmt.Fprintf(os.Stderr, "\nUSAGE:\n\twit [global options] <command> [command options]\n")
	fmt.Fprintf(os.Stderr, "\nGLOBAL OPTIONS:\n")
	fmt.Fprintf(os.Stderr, "\t-log-level value   (default: 'info') Log level [$WIT_LOG_LEVEL]\n")
	fmt.Fprintf(os.Stderr, "\t-repo-path value   (default: '') Additional search directory for dependency sources [$WIT_REPO_PATH]\n")
	fmt.Fprintf(os.Stderr, "\t-jobs value        (default: 1) Opaque parallelism hint for network fetches\n")
	fmt.Fprintf(os.Stderr, "\nCOMMANDS:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "\t%-10s %s\n", c.name, c.help)
	}
	os.Exit(2)
}

func main() {
	flagLogLevel := flag.String("log-level", envString("WIT_LOG_LEVEL", "info"), "Log level")
	flagRepoPath := flag.String("repo-path", envString("WIT_REPO_PATH", ""), "Additional search directory for dependency sources")
	flagJobs := flag.Int("jobs", 1, "Opaque parallelism hint for network fetches")
	flagVersion := flag.Bool("version", false, "print wit version")
	flag.Usage = usage
	flag.Parse()

	_ = flagJobs // jobs is an opaque hint per spec; no parallel fetch path implemented yet.

	info, _ := debug.ReadBuildInfo()
	if *flagVersion {
		fmt.Printf("version=%s go=%s\n", versionOf(info), goVersionOf(info))
		return
	}

	if v, ok := levelStrings[strings.ToLower(*flagLogLevel)]; ok {
		loggerLevel.Set(v)
	}

	if *flagRepoPath != "" {
		os.Setenv(workspace.RepoPathEnv, *flagRepoPath)
	}
	if err := workspace.RepoPathFromEnv(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}

	if flag.NArg() < 1 {
		usage()
	}

	name := flag.Arg(0)
	for _, c := range commands {
		if c.name == name {
			if err := c.run(context.Background(), flag.Args()[1:]); err != nil {
				logger.Error(err.Error())
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "wit: unknown command %q\n", name)
	usage()
}

func versionOf(info *debug.BuildInfo) string {
	if info == nil {
		return "unknown"
	}
	return info.Main.Version
}

func goVersionOf(info *debug.BuildInfo) string {
	if info == nil {
		return "unknown"
	}
	return info.GoVersion
}

func loadConfig() workspace.Config {
	cfg := workspace.Config{
		Auth: auth.Config{
			Username:                envString("WIT_AUTH_USERNAME", ""),
			Password:                envString("WIT_AUTH_PASSWORD", ""),
			SSHKeyPath:              envString("WIT_AUTH_SSH_KEY_PATH", ""),
			SSHKnownHostsPath:       envString("WIT_AUTH_SSH_KNOWN_HOSTS_PATH", ""),
			GithubAppID:             envString("WIT_AUTH_GITHUB_APP_ID", ""),
			GithubAppInstallationID: envString("WIT_AUTH_GITHUB_APP_INSTALLATION_ID", ""),
			GithubAppPrivateKeyPath: envString("WIT_AUTH_GITHUB_APP_PRIVATE_KEY_PATH", ""),
		},
		Log:       logger,
		RepoPaths: repoPathsFromEnv(),
		Metrics:   resolver.NoopMetrics(),
	}

	settingsPath := envString("WIT_SETTINGS", "")
	if settingsPath == "" {
		return cfg
	}
	settings, err := workspace.LoadSettings(settingsPath)
	if err != nil {
		logger.Warn("ignoring settings file", "path", settingsPath, "err", err)
		return cfg
	}
	return settings.ApplyTo(cfg)
}

func repoPathsFromEnv() []string {
	raw := envString("WIT_REPO_PATHS", "")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, string(os.PathListSeparator))
}

func cmdInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	update := fs.Bool("update", false, "resolve the (empty) workspace immediately after creating it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wit init [-update] <name>")
	}

	dir := fs.Arg(0)
	ws, err := workspace.Init(dir, loadConfig())
	if err != nil {
		return err
	}
	if *update {
		return ws.Update(ctx)
	}
	return nil
}

func cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: wit add <source>[:<revision>]")
	}

	source, revision, _ := strings.Cut(fs.Arg(0), ":")
	if revision == "" {
		revision = "master"
	}

	manifestPath, err := currentPackageManifestPath()
	if err != nil {
		return err
	}

	m, err := manifest.Read(manifestPath, true)
	if err != nil {
		return err
	}
	if err := m.AddDependency(manifest.Dependency{Name: giturl.NameOf(source), Source: source, Revision: revision}); err != nil {
		return err
	}
	return m.Write(manifestPath)
}

func cmdUpdate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	metricsFile := fs.String("metrics-file", envString("WIT_METRICS_FILE", ""), "write resolution metrics in Prometheus text format to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	var reg *prometheus.Registry
	if *metricsFile != "" {
		reg = prometheus.NewRegistry()
		cfg.Metrics = resolver.NewMetrics(reg)
	}

	ws, err := workspace.Open(".", cfg)
	if err != nil {
		return err
	}
	updateErr := ws.Update(ctx)

	if reg != nil {
		if err := writeMetricsFile(reg, *metricsFile); err != nil {
			logger.Warn("unable to write metrics file", "err", err)
		}
	}
	return updateErr
}

// writeMetricsFile dumps reg's gathered metrics in Prometheus text
// exposition format, for a node_exporter-style textfile collector to
// pick up — the natural substitute for an HTTP /metrics endpoint in a
// one-shot CLI that isn't a long-running daemon.
func writeMetricsFile(reg *prometheus.Registry, path string) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return err
		}
	}
	return nil
}

func cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := workspace.Open(".", loadConfig())
	if err != nil {
		return err
	}

	packages, untracked, err := ws.Status(ctx)
	if err != nil {
		return err
	}

	for _, p := range packages {
		switch {
		case p.Missing:
			fmt.Printf("%s: missing package\n", p.Name)
		default:
			var flags []string
			if p.NewCommit {
				flags = append(flags, "new commits")
			}
			if p.Modified {
				flags = append(flags, "modified content")
			}
			if p.Untracked {
				flags = append(flags, "untracked content")
			}
			if len(flags) == 0 {
				fmt.Printf("%s: clean\n", p.Name)
			} else {
				fmt.Printf("%s: %s\n", p.Name, strings.Join(flags, ", "))
			}
		}
	}
	for _, name := range untracked {
		fmt.Printf("%s: untracked package\n", name)
	}
	return nil
}

func cmdVersion(ctx context.Context, args []string) error {
	info, _ := debug.ReadBuildInfo()
	fmt.Printf("version=%s go=%s\n", versionOf(info), goVersionOf(info))
	return nil
}

// currentPackageManifestPath locates the wit-manifest.json of the
// package directory the process is currently running in. A directory
// is a package iff it is a Git repository; add run outside any package
// directory is a NotAPackage user error.
func currentPackageManifestPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(".git"); err != nil {
		return "", &NotAPackage{Dir: cwd}
	}
	return "wit-manifest.json", nil
}

// NotAPackage is returned when add is invoked outside any package
// directory.
type NotAPackage struct {
	Dir string
}

func (e *NotAPackage) Error() string {
	return fmt.Sprintf("%q is not a package directory (no .git found)", e.Dir)
}
