package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/willibrandon/ChronoTrace/pkg/config"
	"github.com/willibrandon/ChronoTrace/pkg/debugger"
	"github.com/willibrandon/ChronoTrace/pkg/replay"
	"github.com/willibrandon/ChronoTrace/pkg/store"
	"github.com/willibrandon/ChronoTrace/pkg/trace"
	"github.com/willibrandon/ChronoTrace/pkg/version"
)

const historyFile = ".chrono_history"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(fs *flag.FlagSet, w io.Writer) func() {
	return func() {
		fmt.Fprintf(w, "Usage: chrono [flags] <trace.json[.zst] | ->\n")
		fmt.Fprintf(w, "       chrono -store traces.db -list\n")
		fmt.Fprintf(w, "       chrono -store traces.db -open <id|name>\n\nFlags:\n")
		fs.PrintDefaults()
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chrono", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(fs, stderr)

	var (
		configPath  = fs.String("config", "", "configuration file (default chrono.yaml when present)")
		key         = fs.String("key", "", "hex HMAC key; requires a matching .sig file next to the trace")
		storePath   = fs.String("store", "", "trace archive database")
		importName  = fs.String("import", "", "archive the loaded trace under this name")
		openRef     = fs.String("open", "", "replay an archived trace by id or name")
		list        = fs.Bool("list", false, "list archived traces and exit")
		play        = fs.Bool("play", false, "play the trace to the end or the first breakpoint and exit")
		showVersion = fs.Bool("version", false, "print version information and exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.GetVersionInfo())
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "chrono: %v\n", err)
		return 1
	}
	if *key != "" {
		cfg.Security.IntegrityKey = *key
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "chrono: %v\n", err)
		return 1
	}
	setupLogging(cfg, stderr)

	ctx := context.Background()
	var archive *store.Store
	if cfg.Store.Path != "" {
		archive, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.Store.Path).Msg("failed to open trace archive")
			return 1
		}
		defer archive.Close()
	}
	needArchive := func(flagName string) bool {
		if archive == nil {
			log.Error().Msgf("-%s requires -store or store.store_path", flagName)
			return false
		}
		return true
	}

	if *list {
		if !needArchive("list") {
			return 1
		}
		if err := printArchive(ctx, archive, stdout); err != nil {
			log.Error().Err(err).Msg("failed to list traces")
			return 1
		}
		return 0
	}

	var doc *trace.Document
	switch {
	case *openRef != "":
		if !needArchive("open") {
			return 1
		}
		var rec store.Record
		doc, rec, err = archive.Get(ctx, *openRef)
		if err != nil {
			log.Error().Err(err).Msg("failed to open archived trace")
			return 1
		}
		log.Info().Str("id", rec.ID).Str("name", rec.Name).Msg("opened archived trace")
	case fs.NArg() == 1:
		keyBytes, _ := cfg.Key()
		doc, err = trace.LoadFile(fs.Arg(0), trace.FileOptions{IntegrityKey: keyBytes})
		if err != nil {
			log.Error().Err(err).Msg("failed to load trace")
			return 1
		}
	default:
		fs.Usage()
		return 2
	}

	if doc.Error != nil {
		fmt.Fprintf(stdout, "Program stopped early: %v\n", doc.Error)
	}

	if *importName != "" {
		if !needArchive("import") {
			return 1
		}
		rec, err := archive.Put(ctx, *importName, doc)
		if err != nil {
			log.Error().Err(err).Msg("failed to archive trace")
			return 1
		}
		fmt.Fprintf(stdout, "Archived %s as %s\n", rec.Name, rec.ID)
	}

	engine, err := replay.NewFromDocument(doc,
		replay.WithCheckpoints(cfg.Replay.CheckpointInterval, cfg.Replay.CheckpointCacheSize),
		replay.WithLogger(log.Logger),
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create replay engine")
		return 1
	}

	cli := debugger.NewCLI(engine, debugger.Options{
		In:            stdin,
		Out:           stdout,
		HistoryFile:   historyPath(cfg),
		Color:         cfg.CLI.Color,
		PlayInterval:  cfg.Player.Interval,
		SkipFunctions: cfg.Player.SkipFunctions,
	})

	if *play {
		if _, err := cli.Play(); err != nil {
			log.Error().Err(err).Msg("playback failed")
			return 1
		}
		return 0
	}
	if err := cli.Start(); err != nil {
		log.Error().Err(err).Msg("debugger stopped")
		return 1
	}
	return 0
}

func setupLogging(cfg config.Config, stderr io.Writer) {
	level, _ := cfg.Level()
	noColor := true
	if f, ok := stderr.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        stderr,
		NoColor:    noColor,
		TimeFormat: time.Kitchen,
	}).Level(level).With().Timestamp().Logger()
}

func historyPath(cfg config.Config) string {
	if cfg.CLI.HistoryFile != "" {
		return cfg.CLI.HistoryFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, historyFile)
}

func printArchive(ctx context.Context, archive *store.Store, w io.Writer) error {
	records, err := archive.List(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No archived traces")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENTRIES\tIMPORTED\tERROR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			rec.ID, rec.Name, rec.Entries, rec.ImportedAt.Local().Format(time.DateTime), rec.RunError)
	}
	return tw.Flush()
}

