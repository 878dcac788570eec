package config

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chazu/flatprog/emit"
	"github.com/chazu/flatprog/graph"
)

// LoadMethods reads every graph bundle named in [methods], at most
// Options.LoadConcurrency at a time. The first failure cancels the rest.
func (c *Config) LoadMethods(ctx context.Context) (emit.Methods, error) {
	g, ctx := errgroup.WithContext(ctx)
	limit := c.Options.LoadConcurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)

	var mu sync.Mutex
	methods := make(emit.Methods, len(c.Methods))

	for _, name := range sortedKeys(c.Methods) {
		name, path := name, c.Path(c.Methods[name])
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ep, err := graph.ReadFile(path)
			if err != nil {
				return fmt.Errorf("method %q: %w", name, err)
			}
			log.Debugf("loaded method %s from %s: %d nodes", name, path, len(ep.Graph.Nodes))

			mu.Lock()
			methods[name] = ep
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return methods, nil
}
