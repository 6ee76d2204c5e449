// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch ingests supported files under dirs whenever they are created or
// written, until ctx is done. New subdirectories are watched as they
// appear. Repeated events for unchanged content are harmless: the content
// hash makes them duplicates.
func (in *Ingester) Watch(ctx context.Context, dirs []string, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := addTree(watcher, dir); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "watching %s\n", strings.Join(dirs, ", "))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("watch error", zap.Error(err))
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			in.handleEvent(ctx, watcher, ev, w)
		}
	}
}

func (in *Ingester) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event, w io.Writer) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := addTree(watcher, ev.Name); err != nil {
				in.log.Warn("watching new directory", zap.String("dir", ev.Name), zap.Error(err))
			}
		}
		return
	}
	if !in.Supports(ev.Name) {
		return
	}

	res, err := in.ingestOne(ctx, ev.Name)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", ev.Name, errors.Unwrap(err))
		return
	}
	if res.Outcome != OutcomeDuplicate {
		fmt.Fprintf(w, "%s %s (%s)\n", res.Outcome, ev.Name, res.Note.Project)
	}
}

func addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
