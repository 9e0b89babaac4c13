// Package app wires the content service: storage, the command engine, the
// workspace service and the subscription engine with its projections.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/contentstream/internal/platform/telemetry/metrics"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/engine"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/domain/subtreetag"
	"github.com/louisbranch/contentstream/internal/services/content/domain/workspace"
	"github.com/louisbranch/contentstream/internal/services/content/projection/tagindex"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
	"github.com/louisbranch/contentstream/internal/services/content/subscription"
	"github.com/rs/zerolog"
)

// Store is the persistence the content service needs.
type Store interface {
	storage.EventStore
	storage.SubscriptionStore
	storage.TagGrantStore
}

// Options configures Build.
type Options struct {
	// Catalog defaults to an empty catalog whose only point is the empty point.
	Catalog *dimension.Catalog
	// RootWorkspace is created on first start when set.
	RootWorkspace string
	Retry         subscription.RetryStrategy
	Metrics       *metrics.Subscription
	Logger        *zerolog.Logger
}

// Content is the composed content service.
type Content struct {
	Store         Store
	Resolver      *dimensionspace.Resolver
	Handler       engine.Handler
	Workspaces    *workspace.Service
	Subscriptions *subscription.Engine
	Tags          *tagindex.Projection
}

// Build composes the content service over store.
func Build(ctx context.Context, store Store, opts Options) (*Content, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = dimension.NewCatalog(); err != nil {
			return nil, fmt.Errorf("build empty catalog: %w", err)
		}
	}
	resolver, err := dimensionspace.NewResolver(catalog, dimensionspace.NewPointTable())
	if err != nil {
		return nil, fmt.Errorf("build dimension resolver: %w", err)
	}

	registry := engine.NewRegistry()
	if err := subtreetag.Register(registry, resolver); err != nil {
		return nil, fmt.Errorf("register subtree tag commands: %w", err)
	}

	subs, err := subscription.New(store, store, subscription.Options{
		Retry:   opts.Retry,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build subscription engine: %w", err)
	}
	tags := tagindex.New(store)
	if err := subs.Register(ctx, tagindex.Name, tags); err != nil {
		return nil, fmt.Errorf("register %s projection: %w", tagindex.Name, err)
	}

	handler := engine.Handler{
		Registry: registry,
		Streams:  contentstream.NewStreams(store),
		OnCommit: func(context.Context, []event.Event) { subs.Notify() },
	}
	content := &Content{
		Store:         store,
		Resolver:      resolver,
		Handler:       handler,
		Workspaces:    workspace.NewService(handler),
		Subscriptions: subs,
		Tags:          tags,
	}
	if root := strings.TrimSpace(opts.RootWorkspace); root != "" {
		if err := content.ensureRoot(ctx, root); err != nil {
			return nil, err
		}
	}
	return content, nil
}

func (c *Content) ensureRoot(ctx context.Context, raw string) error {
	name, err := workspace.ParseName(raw)
	if err != nil {
		return err
	}
	_, err = c.Workspaces.Get(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, workspace.ErrNotFound) {
		return fmt.Errorf("load root workspace %s: %w", name, err)
	}
	if _, err := c.Workspaces.CreateRoot(ctx, name); err != nil && !errors.Is(err, workspace.ErrAlreadyExists) {
		return fmt.Errorf("create root workspace %s: %w", name, err)
	}
	return nil
}
