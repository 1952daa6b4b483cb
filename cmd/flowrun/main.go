// Command flowrun runs dataflow pipelines: stages fire once per input
// tuple, results are cached by content identity, and every run is
// journaled. The run subcommand drives the built-in demo pipeline, with
// an interactive monitor unless -no-tui is given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/flowrun-io/flowrun/internal/cache"
	"github.com/flowrun-io/flowrun/internal/config"
	"github.com/flowrun-io/flowrun/internal/engine"
	"github.com/flowrun-io/flowrun/internal/graph"
	"github.com/flowrun-io/flowrun/internal/hashkey"
	"github.com/flowrun-io/flowrun/internal/journal"
	"github.com/flowrun-io/flowrun/internal/tui"
	"github.com/flowrun-io/flowrun/internal/workdir"
)

func main() {
	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runPipeline(ctx, os.Args[2:])
	case "runs":
		err = listRuns(ctx)
	case "history":
		err = showHistory(ctx, os.Args[2:])
	case "cache":
		err = cacheCmd(os.Args[2:])
	case "prune":
		err = pruneWork()
	case "clean":
		err = cleanWork()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `flowrun - dataflow pipeline runner

Usage:
  flowrun run [-resume] [-no-tui]   run the built-in demo pipeline
  flowrun runs                      list recorded runs
  flowrun history <run-id>          show one run's task transitions
  flowrun cache ls                  list cached task results
  flowrun cache rm <key>            drop one cached result
  flowrun prune                     remove task directories with no cache entry
  flowrun clean                     remove the entire work tree`)
}

// loadConfig loads defaults <- global <- project and reports the two
// config paths the settings form can save back to.
func loadConfig() (cfg *config.EngineConfig, globalPath, projectPath string, err error) {
	cfg, err = config.LoadDefault()
	if err != nil {
		return nil, "", "", fmt.Errorf("loading config: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", "", fmt.Errorf("getting home directory: %w", err)
	}
	globalPath = filepath.Join(home, ".flowrun", "config.json")
	projectPath = filepath.Join(".flowrun", "config.json")
	return cfg, globalPath, projectPath, nil
}

// demoPipeline builds the built-in sample: write a line per word, shout
// it, then measure it. One task per word per stage shows fan-out, file
// passing by content identity, and stage chaining.
func demoPipeline() (*graph.Graph, []string, error) {
	g := graph.New()
	stages := []*graph.StageDefinition{
		{
			Name:    "write",
			Command: `printf '%s\n' "$word" > word.txt`,
			Inputs:  []graph.InputSpec{{Name: "word", Channel: "words"}},
			Outputs: []graph.OutputSpec{{Name: "txt", Channel: "texts", Glob: "*.txt"}},
		},
		{
			Name:    "shout",
			Command: `tr '[:lower:]' '[:upper:]' < "$text" > shout.txt`,
			Inputs:  []graph.InputSpec{{Name: "text", Channel: "texts"}},
			Outputs: []graph.OutputSpec{{Name: "loud", Channel: "shouts", Glob: "shout.txt"}},
		},
		{
			Name:    "measure",
			Command: `wc -c < "$loud" > size.txt`,
			Inputs:  []graph.InputSpec{{Name: "loud", Channel: "shouts"}},
			Outputs: []graph.OutputSpec{{Name: "size", Channel: "sizes", Glob: "size.txt"}},
		},
	}
	names := make([]string, 0, len(stages))
	for _, def := range stages {
		if err := g.AddStage(def); err != nil {
			return nil, nil, err
		}
		names = append(names, def.Name)
	}
	if err := g.Feed("words", "mercury", "venus", "earth", "mars"); err != nil {
		return nil, nil, err
	}
	return g, names, nil
}

func runPipeline(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	resume := fs.Bool("resume", false, "satisfy tasks from recorded results when possible")
	noTUI := fs.Bool("no-tui", false, "log to stderr instead of the interactive monitor")
	fs.Parse(args)

	cfg, globalPath, projectPath, err := loadConfig()
	if err != nil {
		return err
	}

	g, stages, err := demoPipeline()
	if err != nil {
		return err
	}

	// Under the monitor, stderr belongs to the alternate screen; the
	// event stream carries the run detail instead.
	var logger *slog.Logger
	if *noTUI {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	} else {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	eng, err := engine.New(ctx, engine.Options{
		Config: cfg,
		Graph:  g,
		Logger: logger,
		Resume: *resume,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	if *noTUI {
		report, runErr := eng.Run(ctx)
		return printOutcome(os.Stdout, report, runErr)
	}

	model := tui.New(eng.Bus(), stages, cfg, globalPath, projectPath)
	prog := tea.NewProgram(model, tea.WithAltScreen())

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// A signal quits the monitor; quitting the monitor stops the run.
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	var (
		report engine.RunReport
		runErr error
	)
	grp := new(errgroup.Group)
	grp.Go(func() error {
		report, runErr = eng.Run(runCtx)
		return nil
	})
	grp.Go(func() error {
		_, uiErr := prog.Run()
		cancelRun()
		return uiErr
	})
	if err := grp.Wait(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return printOutcome(os.Stdout, report, runErr)
}

// printOutcome reports the run result on w. Cancellation is a clean exit:
// the user asked for it.
func printOutcome(w io.Writer, report engine.RunReport, runErr error) error {
	t := report.Tasks
	elapsed := report.Finished.Sub(report.Started).Round(time.Millisecond)
	switch {
	case runErr == nil:
		fmt.Fprintf(w, "run %s completed in %s: %d executed, %d cached\n",
			report.RunID, elapsed, t.Completed, t.Cached)
		return nil
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		fmt.Fprintf(w, "run %s cancelled after %s: %d completed, %d cached, %d cancelled\n",
			report.RunID, elapsed, t.Completed, t.Cached, t.Cancelled)
		return nil
	default:
		return fmt.Errorf("run %s failed after %s: %w", report.RunID, elapsed, runErr)
	}
}

func listRuns(ctx context.Context) error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := journal.Open(ctx, cfg.Run.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tSTATUS\tCOMPLETED\tCACHED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
			r.Completed, r.Cached, r.Failed)
	}
	return w.Flush()
}

func showHistory(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: flowrun history <run-id>")
	}
	runID := args[0]

	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := journal.Open(ctx, cfg.Run.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.TaskHistory(ctx, runID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("no task records for run %s\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTAGE\tFIRING\tKEY\tEVENT\tDETAIL")
	for _, rec := range recs {
		key := rec.Key
		if len(key) > 8 {
			key = key[:8]
		}
		fmt.Fprintf(w, "%s\t%s\t#%d\t%s\t%s\t%s\n",
			rec.Timestamp.Format("15:04:05.000"), rec.Stage, rec.FireIndex,
			key, rec.Event, rec.Detail)
	}
	return w.Flush()
}

func openStore(cfg *config.EngineConfig) (*cache.Store, error) {
	return cache.Open(cache.Options{
		Path:   cfg.Run.CacheDir,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
}

func cacheCmd(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: flowrun cache <ls|rm ...>")
	}

	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch args[0] {
	case "ls":
		entries, err := store.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("cache is empty")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tSTAGE\tEXIT\tRUNTIME\tCREATED\tWORKDIR")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				e.Key, e.Stage, e.ExitCode, e.Runtime.Round(time.Millisecond),
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.WorkDir)
		}
		return w.Flush()

	case "rm":
		if len(args) != 2 {
			return errors.New("usage: flowrun cache rm <key>")
		}
		key, err := hashkey.Parse(args[1])
		if err != nil {
			return fmt.Errorf("bad key %q: %w", args[1], err)
		}
		if err := store.Invalidate(key); err != nil {
			return err
		}
		fmt.Printf("dropped %s\n", key.Short())
		return nil

	default:
		return fmt.Errorf("unknown cache command %q", args[0])
	}
}

// pruneWork removes task directories no cache entry references.
func pruneWork() error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := workdir.NewManager(cfg.Run.WorkDir).Prune(func(k hashkey.Key) bool {
		_, ok, err := store.Lookup(k)
		return err == nil && ok
	})
	if err != nil {
		return err
	}
	fmt.Printf("removed %d task directories\n", removed)
	return nil
}

func cleanWork() error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := workdir.NewManager(cfg.Run.WorkDir).Clean(); err != nil {
		return err
	}
	fmt.Println("work tree removed")
	return nil
}
