package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bleepstore/objio/internal/request"
	"github.com/bleepstore/objio/internal/storage"
)

// command runs one CLI subcommand against an IOManager. Objects are
// transferred concurrently; the engine bounds how many are in flight.
type command struct {
	mgr    storage.IOManager
	logger *slog.Logger
	out    io.Writer

	outDir      string
	contentType string
	metadata    []storage.Metadata
	rng         request.IORange
}

// objectInfo accumulates what a download delivers.
type objectInfo struct {
	mu        sync.Mutex
	size      int64
	lastWrite string
	metadata  [][2]string
	data      []byte
}

func (o *objectInfo) handler() *request.HandlerFuncs {
	return &request.HandlerFuncs{
		ObjectSize: func(size int64) {
			o.mu.Lock()
			o.size = size
			o.mu.Unlock()
		},
		LastWriteTime: func(v string) {
			o.mu.Lock()
			o.lastWrite = v
			o.mu.Unlock()
		},
		Metadata: func(k, v string) {
			o.mu.Lock()
			o.metadata = append(o.metadata, [2]string{k, v})
			o.mu.Unlock()
		},
		Data: func(data []byte) {
			o.mu.Lock()
			o.data = append(o.data, data...)
			o.mu.Unlock()
		},
	}
}

// wait blocks until r finishes or ctx is done, cancelling r in the latter
// case.
func wait(ctx context.Context, r *request.Request) error {
	err := r.Wait(ctx)
	if ctx.Err() != nil && !r.IsDone() {
		r.Cancel()
		return fmt.Errorf("%s: %w", r.ObjectName(), ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("%s: %w", r.ObjectName(), err)
	}
	return nil
}

func (c *command) head(ctx context.Context, names []string) error {
	infos := make([]*objectInfo, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		infos[i] = &objectInfo{}
		r := c.mgr.ReadObjectInfo(name, infos[i].handler())
		g.Go(func() error { return wait(gctx, r) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range names {
		info := infos[i]
		fmt.Fprintf(c.out, "%s\n  size: %d\n  last-write: %s\n", name, info.size, info.lastWrite)
		sort.SliceStable(info.metadata, func(a, b int) bool { return info.metadata[a][0] < info.metadata[b][0] })
		for _, kv := range info.metadata {
			fmt.Fprintf(c.out, "  %s: %s\n", kv[0], kv[1])
		}
	}
	return nil
}

func (c *command) get(ctx context.Context, names []string) error {
	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		info := &objectInfo{}
		r := c.mgr.ReadObject(name, info.handler(), c.rng)
		g.Go(func() error {
			if err := wait(gctx, r); err != nil {
				return err
			}
			dest := filepath.Join(c.outDir, filepath.Base(name))
			if err := os.WriteFile(dest, info.data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", dest, err)
			}
			c.logger.Info("downloaded", "object", name, "bytes", len(info.data), "path", dest)
			return nil
		})
	}
	return g.Wait()
}

func (c *command) put(ctx context.Context, pairs []string) error {
	type upload struct {
		name, path string
		data       []byte
	}
	uploads := make([]upload, 0, len(pairs))
	for _, pair := range pairs {
		name, path, ok := strings.Cut(pair, "=")
		if !ok || name == "" || path == "" {
			return fmt.Errorf("argument %q is not NAME=FILE", pair)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, upload{name: name, path: path, data: data})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		r := c.mgr.WriteObject(u.name, filepath.Base(u.path), c.contentType, c.metadata, [][]byte{u.data}, nil)
		g.Go(func() error {
			if err := wait(gctx, r); err != nil {
				return err
			}
			c.logger.Info("uploaded", "object", u.name, "bytes", len(u.data))
			return nil
		})
	}
	return g.Wait()
}

// metadataFlag collects repeated -meta KEY=VALUE flags.
type metadataFlag struct {
	entries []storage.Metadata
}

func (m *metadataFlag) String() string {
	parts := make([]string, len(m.entries))
	for i, e := range m.entries {
		parts[i] = e.Key + "=" + e.Value
	}
	return strings.Join(parts, ",")
}

func (m *metadataFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("metadata %q is not KEY=VALUE", v)
	}
	m.entries = append(m.entries, storage.Metadata{Key: key, Value: value})
	return nil
}

// parseRange parses "START-END". An empty string selects the whole object.
func parseRange(s string) (request.IORange, error) {
	if s == "" {
		return request.IORange{}, nil
	}
	startStr, endStr, ok := strings.Cut(s, "-")
	if !ok {
		return request.IORange{}, fmt.Errorf("%q is not START-END", s)
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return request.IORange{}, fmt.Errorf("start: %w", err)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return request.IORange{}, fmt.Errorf("end: %w", err)
	}
	if end < start {
		return request.IORange{}, fmt.Errorf("end %d is before start %d", end, start)
	}
	return request.IORange{Start: start, End: end}, nil
}
