// Command prepare-build creates a build branch for a Tracy release: it
// fetches Tracy's workflows for a tag, combines them into one workflow with
// a release job, commits the result and pushes it for CI.
//
// Usage:
//
//	prepare-build <tracy-tag> [--no-push] [--remote origin]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/dusk-indust/tracy-build/internal/config"
	"github.com/dusk-indust/tracy-build/internal/fetch"
	"github.com/dusk-indust/tracy-build/internal/git"
	"github.com/dusk-indust/tracy-build/internal/logging"
	"github.com/dusk-indust/tracy-build/internal/mcptools"
	"github.com/dusk-indust/tracy-build/internal/prepare"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Tag        string
	NoPush     bool
	Remote     string
	ConfigPath string
	Verbose    bool
	ServeMCP   bool
	Version    bool
}

// version is set with -ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n✗ ERROR: %v\n\n%+v\n", err, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var flags cliFlags

	fs := pflag.NewFlagSet("prepare-build", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: prepare-build <tracy-tag> [flags]")
		fmt.Fprintln(stderr, "\nPrepare Tracy build branch and workflow.")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	fs.BoolVar(&flags.NoPush, "no-push", false, "do not push to remote (for testing)")
	fs.StringVar(&flags.Remote, "remote", "origin", "git remote name")
	fs.StringVar(&flags.ConfigPath, "config", "", "path to prepare-build.yml (default: look in cwd)")
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging on stderr")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as an MCP server on stdio")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if flags.Version || flags.ServeMCP {
		return flags, nil
	}
	switch fs.NArg() {
	case 1:
		flags.Tag = fs.Arg(0)
	case 0:
		fs.Usage()
		return flags, errors.New("missing required argument: tracy-tag")
	default:
		fs.Usage()
		return flags, errors.Errorf("expected one tracy-tag, got %d arguments", fs.NArg())
	}
	return flags, nil
}

func loadConfig(dir, path string) (*config.ProjectConfig, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(dir)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	flags, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if flags.Version {
		fmt.Fprintln(stdout, version)
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "determine working directory")
	}
	cfg, err := loadConfig(cwd, flags.ConfigPath)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, flags.Verbose)
	if cfg.Path != "" {
		logger.Debug("loaded config", "path", cfg.Path)
	}
	fetcher := fetch.NewHTTPClient(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent("prepare-build/"+version),
	)

	if flags.ServeMCP {
		// stdout carries the MCP protocol; narration is discarded.
		pipeline := prepare.New(cfg, cwd, fetcher, nil, prepare.WithLogger(logger))
		return mcptools.RunStdio(ctx, mcptools.NewPreviewMCPServer(mcptools.NewPreviewService(pipeline)))
	}

	progress := prepare.NewProgress(stdout)
	runner := git.NewCLI(
		git.WithDir(cwd),
		git.WithEcho(progress.Writer()),
		git.WithOutput(nil, stderr),
	)
	repo := git.NewRepo(runner, flags.Remote)
	pipeline := prepare.New(cfg, cwd, fetcher, repo,
		prepare.WithProgress(progress),
		prepare.WithLogger(logger),
	)
	_, err = pipeline.Run(ctx, flags.Tag, prepare.RunOptions{Push: !flags.NoPush})
	return err
}
