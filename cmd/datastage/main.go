// Package main is the entry point for the data-stage loader. It
// discovers mods in a directory, orders them, replays the settings and
// data lifecycle, and writes the resulting prototype registry and
// attribution history as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/modforge/datastage/internal/config"
	"github.com/modforge/datastage/internal/diff"
	"github.com/modforge/datastage/internal/mods"
	"github.com/modforge/datastage/internal/registry"
	"github.com/modforge/datastage/internal/stage"
)

const version = "0.1.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "help", "-h", "--help":
			printHelp()
			return
		case "version", "--version":
			fmt.Println("datastage " + version)
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("datastage: %v", err)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	found, src, err := mods.LoadDir(cfg.Mods.Dir)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("no mods found in %s", cfg.Mods.Dir)
	}

	ordered, err := mods.LoadOrder(found)
	if err != nil {
		return err
	}
	for _, m := range ordered {
		cfg.Log(1, "loading %s %s", m.Name, m.Version)
	}

	reg := registry.New()
	start := time.Now()

	records, err := stage.New(cfg, src).Run(context.Background(), ordered, reg)
	if err != nil {
		return err
	}
	cfg.Log(1, "data loaded in %s: %d prototypes, %d records", time.Since(start).Round(time.Millisecond), reg.Len(), len(records))

	if cfg.Run.Dump != "" {
		if err := writeJSON(cfg.Run.Dump, reg); err != nil {
			return fmt.Errorf("writing dump: %w", err)
		}
	}

	if cfg.Run.History != "" {
		history := diff.NewHistory()
		for _, rec := range records {
			history.Apply(rec.Mod, rec.Diff)
		}
		if err := writeJSON(cfg.Run.History, history); err != nil {
			return fmt.Errorf("writing history: %w", err)
		}
	}

	return nil
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func printHelp() {
	fmt.Println(`datastage - replay a mod set's settings and data lifecycle

Usage:
  datastage [flags]

Flags:
  -mods DIR        directory of unpacked mod folders (default "mods")
  -dump FILE       write the final prototype registry as JSON
  -history FILE    write the prototype attribution map as JSON
  -timeout D       per-script execution budget, e.g. 10s (default none)
  -config FILE     TOML config file (default datastage.toml if present)
  -log-level LVL   debug, info, warn, error
  -v, -vv, -vvv    increase verbosity`)
}
