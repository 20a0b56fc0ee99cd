// Command levelcheck validates level definition files. Directories are
// loaded as a catalog, so next-level links are checked too, and every level
// in them is built once.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/AaronLay10/holoquest/internal/bus"
	"github.com/AaronLay10/holoquest/internal/level"
	"github.com/AaronLay10/holoquest/internal/logging"
)

func main() {
	builtin := flag.Bool("builtin", false, "also check the built-in levels")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: levelcheck [-builtin] <file-or-dir>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 && !*builtin {
		flag.Usage()
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, logging.LevelInfo)
	failed := 0

	if *builtin {
		if err := checkCatalog(""); err != nil {
			logger.Error("level.invalid", "built-in levels failed", map[string]interface{}{"error": err})
			failed++
		} else {
			logger.Info("level.ok", "built-in levels ok", nil)
		}
	}

	for _, path := range flag.Args() {
		if err := check(path); err != nil {
			logger.Error("level.invalid", "level check failed", map[string]interface{}{
				"path":  path,
				"error": err,
			})
			failed++
			continue
		}
		logger.Info("level.ok", "level check passed", map[string]interface{}{"path": path})
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return checkCatalog(path)
	}
	def, err := level.LoadFile(path)
	if err != nil {
		return err
	}
	if _, err := def.BuildTable(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// checkCatalog loads dir ("" for the built-in set) and initializes every level.
func checkCatalog(dir string) error {
	opts := level.Options{Bus: bus.New(), Logger: logging.Nop()}
	var (
		c   *level.Catalog
		err error
	)
	if dir == "" {
		c, err = level.NewCatalog(opts)
	} else {
		c, err = level.LoadCatalog(dir, opts)
	}
	if err != nil {
		return err
	}

	for _, id := range c.IDs() {
		lvl, err := c.Create(id, nil)
		if err != nil {
			return fmt.Errorf("create %s: %w", id, err)
		}
		if err := lvl.Initialize(context.Background()); err != nil {
			_ = lvl.Dispose()
			return fmt.Errorf("initialize %s: %w", id, err)
		}
		if err := lvl.Dispose(); err != nil {
			return fmt.Errorf("dispose %s: %w", id, err)
		}
	}
	return nil
}
