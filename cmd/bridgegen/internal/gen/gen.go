package gen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/broady/bridge/bridgegen"
)

// Options are the flags shared by gen and check.
type Options struct {
	Package  string   `help:"Package to scan (default: current directory)." short:"p"`
	Siblings []string `help:"Additional packages whose types are collected as models." name:"sibling"`
	Config   string   `help:"YAML config file." short:"c" type:"existingfile"`
	Verbose  bool     `help:"Log debug output." short:"v"`
}

// Resolve merges the config file (if any) with flags. Flags win.
func (o *Options) Resolve() (*bridgegen.Config, error) {
	cfg := &bridgegen.Config{}
	if o.Config != "" {
		loaded, err := bridgegen.LoadConfig(o.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.Package != "" {
		cfg.Package = o.Package
	}
	if cfg.Package == "" {
		cfg.Package = "."
	}
	cfg.Siblings = append(cfg.Siblings, o.Siblings...)
	return cfg, nil
}

// Logger returns a text logger on stderr.
func (o *Options) Logger() *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

type Cmd struct {
	Options `embed:""`

	Out              string        `arg:"" optional:"" help:"Output directory (overrides the config file)."`
	RuntimeImport    string        `help:"Import the call primitive from this module instead of emitting runtime.ts."`
	DefaultTimeoutMs int           `help:"Default per-call timeout in milliseconds for the bundled runtime." name:"default-timeout-ms"`
	NoRegistration   bool          `help:"Do not write the Go registration file into the scanned package."`
	Force            bool          `help:"Regenerate even if the output is up to date."`
	Watch            bool          `help:"Watch for changes and regenerate." short:"w"`
	Debounce         time.Duration `help:"Delay before regenerating after a change." default:"200ms" hidden:""`
}

func (c *Cmd) Run() error {
	cfg, err := c.Resolve()
	if err != nil {
		return err
	}
	if c.Out != "" {
		out, err := filepath.Abs(c.Out)
		if err != nil {
			return fmt.Errorf("resolve output path: %w", err)
		}
		cfg.Out = out
	}
	if c.RuntimeImport != "" {
		cfg.RuntimeImport = c.RuntimeImport
	}
	if c.DefaultTimeoutMs != 0 {
		cfg.DefaultTimeoutMs = c.DefaultTimeoutMs
	}
	if c.NoRegistration {
		off := false
		cfg.Registration = &off
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := c.Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dirs, err := c.generate(ctx, cfg, logger, c.Force)
	if err != nil {
		return err
	}
	if !c.Watch {
		return nil
	}
	return c.watch(ctx, cfg, logger, dirs)
}

// generate runs one generation pass and returns the package directories to
// watch.
func (c *Cmd) generate(ctx context.Context, cfg *bridgegen.Config, logger *slog.Logger, force bool) ([]string, error) {
	g := bridgegen.FromConfig(*cfg).WithLogger(logger)
	if force {
		g = g.Force()
	}
	res, err := g.ToDir(ctx, cfg.Out)
	if err != nil {
		return nil, err
	}
	if res.Skipped {
		logger.Info("up to date", "out", cfg.Out, "hash", res.Hash)
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, f := range res.Inputs {
		if d := filepath.Dir(f); !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	return dirs, nil
}

func (c *Cmd) watch(ctx context.Context, cfg *bridgegen.Config, logger *slog.Logger, dirs []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	watched := make(map[string]bool)
	add := func(dirs []string) error {
		for _, d := range dirs {
			if watched[d] {
				continue
			}
			if err := w.Add(d); err != nil {
				return fmt.Errorf("watch %s: %w", d, err)
			}
			watched[d] = true
			logger.Debug("watching", "dir", d)
		}
		return nil
	}
	if err := add(dirs); err != nil {
		return err
	}

	logger.Info("watching for changes", "dirs", len(watched))

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".go" || filepath.Base(ev.Name) == bridgegen.RegistrationFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("change", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(c.Debounce)
			} else {
				timer.Reset(c.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)

		case <-fire:
			fire = nil
			dirs, err := c.generate(ctx, cfg, logger, false)
			if err != nil {
				// Keep watching; the next save may fix it.
				logger.Error("generation failed", "error", err)
				continue
			}
			if err := add(dirs); err != nil {
				logger.Warn("could not watch new package", "error", err)
			}
		}
	}
}
