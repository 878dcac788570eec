// flatprog CLI - assembles captured graphs into an interpreter-ready program
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/flatprog/config"
	"github.com/chazu/flatprog/debuginfo"
	"github.com/chazu/flatprog/emit"
	"github.com/chazu/flatprog/schema"
)

var log = commonlog.GetLogger("flatprog")

func main() {
	configPath := flag.String("config", "", "Path to flatprog.toml or its directory (default: search upward from the working directory)")
	output := flag.String("o", "", "Program archive output path (overrides [program] output)")
	segment := flag.String("segment", "", "Constant segment output path (overrides [program] segment)")
	debugJSON := flag.String("debug", "", "Debug record JSON output path (overrides [program] debug)")
	debugDB := flag.String("debug-db", "", "Debug record SQLite database (overrides [program] debug-db)")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: flatprog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Loads the methods and options named in flatprog.toml, emits one program\n")
		fmt.Fprintf(os.Stderr, "and writes the program archive plus optional constant segment and debug data.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  flatprog                              # Use ./flatprog.toml or the nearest parent\n")
		fmt.Fprintf(os.Stderr, "  flatprog -config models/mobilenet     # Use models/mobilenet/flatprog.toml\n")
		fmt.Fprintf(os.Stderr, "  flatprog -v                           # Log each method as it is emitted\n")
		fmt.Fprintf(os.Stderr, "  flatprog -o out.cbor -debug out.json  # Override artifact paths\n")
	}
	flag.Parse()

	verbosity := 1
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, artifacts{
		output:    *output,
		segment:   *segment,
		debugJSON: *debugJSON,
		debugDB:   *debugDB,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// artifacts holds output paths given on the command line.
type artifacts struct {
	output    string
	segment   string
	debugJSON string
	debugDB   string
}

func run(ctx context.Context, configPath string, flags artifacts) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	paths := resolveArtifacts(cfg, flags)

	methods, err := cfg.LoadMethods(ctx)
	if err != nil {
		return err
	}
	opts, err := cfg.EmitOptions()
	if err != nil {
		return err
	}

	out, err := emit.EmitProgram(methods, opts)
	if err != nil {
		return err
	}

	data, err := schema.MarshalProgram(out.Program)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}
	if err := writeFile(paths.output, data); err != nil {
		return err
	}
	log.Infof("wrote %s (%d bytes, %d plans)", paths.output, len(data), len(out.Program.ExecutionPlans))

	if paths.segment != "" {
		if out.ConstantSegmentData == nil {
			log.Warningf("no constant segment produced; %s not written", paths.segment)
		} else {
			if err := writeFile(paths.segment, out.ConstantSegmentData); err != nil {
				return err
			}
			log.Infof("wrote %s (%d bytes, %d regions)", paths.segment,
				len(out.ConstantSegmentData), len(out.ConstantSegmentOffsets))
		}
	}

	if paths.debugJSON == "" && paths.debugDB == "" {
		return nil
	}
	rec, err := debuginfo.FromOutput(cfg.Program.Name, out)
	if err != nil {
		return err
	}
	if paths.debugJSON != "" {
		if err := os.MkdirAll(filepath.Dir(paths.debugJSON), 0755); err != nil {
			return err
		}
		if err := debuginfo.WriteFile(paths.debugJSON, rec); err != nil {
			return err
		}
		log.Infof("wrote %s (program %s)", paths.debugJSON, rec.ProgramID)
	}
	if paths.debugDB != "" {
		if err := os.MkdirAll(filepath.Dir(paths.debugDB), 0755); err != nil {
			return err
		}
		store, err := debuginfo.Open(paths.debugDB)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(ctx, rec); err != nil {
			return err
		}
		log.Infof("stored debug record %s in %s", rec.ProgramID, paths.debugDB)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if filepath.Base(path) == config.FileName {
			path = filepath.Dir(path)
		}
		return config.Load(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("no %s found in %s or any parent directory", config.FileName, wd)
	}
	return cfg, nil
}

// resolveArtifacts applies command-line overrides on top of the [program]
// table. Flag paths are relative to the working directory; config paths to
// the config directory.
func resolveArtifacts(cfg *config.Config, flags artifacts) artifacts {
	pick := func(flagValue, configValue string) string {
		if flagValue != "" {
			return flagValue
		}
		return cfg.Path(configValue)
	}
	return artifacts{
		output:    pick(flags.output, cfg.Program.Output),
		segment:   pick(flags.segment, cfg.Program.Segment),
		debugJSON: pick(flags.debugJSON, cfg.Program.Debug),
		debugDB:   pick(flags.debugDB, cfg.Program.DebugDB),
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}
