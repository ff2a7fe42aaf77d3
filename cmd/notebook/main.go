package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/afero"

	"github.com/example/cmd-notebook/internal/cli"
	"github.com/example/cmd-notebook/internal/notebook"
	"github.com/example/cmd-notebook/internal/notebook/paths"
)

var (
	exitFunc = os.Exit
	newFs    = afero.NewOsFs
)

func main() {
	if err := execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exitFunc(1)
	}
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	open := func(opts cli.Options) (*notebook.Manager, error) {
		return openManager(opts, stderr)
	}
	root := cli.NewRootCommand(open, cli.NewPromptUIWithIO(stdin, stdout), stdout, stderr)
	root.SetIn(stdin)
	root.SetArgs(args)
	return root.Execute()
}

func openManager(opts cli.Options, logOut io.Writer) (*notebook.Manager, error) {
	level, err := cli.ParseLogLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	platform, err := platformFor(opts)
	if err != nil {
		return nil, err
	}
	mgr := notebook.NewManager(newFs(), platform, logger)
	if pending, err := mgr.PendingSwitch(); err == nil && pending != nil {
		logger.Warn("previous data directory switch did not finish; run 'notebook recover'",
			"from", pending.From,
			"to", pending.To)
	}
	return mgr, nil
}

// platformFor uses XDG directories unless either one is overridden.
func platformFor(opts cli.Options) (paths.Platform, error) {
	xdgPlatform := paths.NewXDGPlatform(paths.AppName)
	if opts.ConfigDir == "" && opts.DefaultDataDir == "" {
		return xdgPlatform, nil
	}

	var static paths.StaticPlatform
	var err error
	if static.Config, err = overrideOr(opts.ConfigDir, xdgPlatform.ConfigDir); err != nil {
		return nil, err
	}
	if static.Data, err = overrideOr(opts.DefaultDataDir, xdgPlatform.DataDir); err != nil {
		return nil, err
	}
	return static, nil
}

func overrideOr(dir string, fallback func() (string, error)) (string, error) {
	if dir == "" {
		return fallback()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return abs, nil
}
