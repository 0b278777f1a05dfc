// Package app wires configuration into the checkout components shared by
// the HTTP server and the quizctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"quiz-checkout/internal/cache"
	"quiz-checkout/internal/catalog"
	"quiz-checkout/internal/checkout"
	"quiz-checkout/internal/config"
	"quiz-checkout/internal/funnel"
	"quiz-checkout/internal/resolver"
	"quiz-checkout/internal/selection"
	"quiz-checkout/internal/shopify"
	"quiz-checkout/internal/store"
	"quiz-checkout/internal/transport"
)

// App holds the wired components.
type App struct {
	Config      *config.Config
	Registry    *store.Registry
	Catalog     *catalog.Loader
	Mapping     *catalog.Mapping
	Cache       *cache.Cache[*shopify.Product]
	Storefronts shopify.Provider
	Resolver    *resolver.Resolver
	Selector    *selection.Selector
	Builder     *checkout.Builder
	Funnel      *funnel.Service

	logger *slog.Logger
}

// New builds every component from cfg, talking to the real Storefront API.
// The catalog and mapping files are read eagerly so a bad file fails startup.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	return Build(cfg, logger, nil)
}

// Build is New with an optional Storefront provider override.
func Build(cfg *config.Config, logger *slog.Logger, storefronts shopify.Provider) (*App, error) {
	if cfg.CatalogPath == "" {
		return nil, errors.New("CATALOG_PATH is required")
	}

	reg, err := store.New(cfg.Stores)
	if err != nil {
		return nil, fmt.Errorf("building store registry: %w", err)
	}

	loader := catalog.NewLoader(cfg.CatalogPath, logger)
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	mapping, err := loadMapping(cfg.MappingPath, loader)
	if err != nil {
		return nil, err
	}
	logger.Info("variant mapping loaded",
		slog.String("path", cfg.MappingPath),
		slog.Time("generated_at", mapping.GeneratedAt()),
	)

	if storefronts == nil {
		storefronts = shopify.NewPool(reg, shopify.Config{
			APIVersion: cfg.ShopifyAPIVersion,
			HTTPClient: transport.New(transport.Options{
				Timeout:   cfg.ShopifyTimeout,
				Retries:   1,
				ChromeTLS: cfg.ChromeTLS,
			}),
		})
	}

	lookups := cache.New[*shopify.Product](cfg.CacheTTL, nil)
	res := resolver.New(resolver.Config{
		Registry:     reg,
		Storefronts:  storefronts,
		Mapping:      mapping,
		Cache:        lookups,
		FetchTimeout: cfg.ShopifyTimeout,
		Logger:       logger,
	})

	sel, err := selection.New(selection.Config{
		Registry:        reg,
		Catalog:         loader,
		Quoter:          res,
		UTMStores:       cfg.UTMStores,
		FallbackStoreID: cfg.FallbackStoreID,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	builder := checkout.NewBuilder(reg, storefronts, logger)

	return &App{
		Config:      cfg,
		Registry:    reg,
		Catalog:     loader,
		Mapping:     mapping,
		Cache:       lookups,
		Storefronts: storefronts,
		Resolver:    res,
		Selector:    sel,
		Builder:     builder,
		Funnel: funnel.New(funnel.Config{
			Resolver:        res,
			Selector:        sel,
			Builder:         builder,
			Catalog:         loader,
			DefaultStrategy: cfg.DefaultStrategy,
			Logger:          logger,
		}),
		logger: logger,
	}, nil
}

// RunCacheSweeper evicts expired live lookups until ctx is done.
func (a *App) RunCacheSweeper(ctx context.Context) {
	a.Cache.RunSweeper(ctx, a.Config.SweepInterval, func(removed int) {
		if removed > 0 {
			a.logger.Debug("cache sweep",
				slog.Int("removed", removed),
				slog.Int("remaining", a.Cache.Len()),
			)
		}
	})
}

// loadMapping reads the mapping file, or derives the table from the catalog
// when no file is configured.
func loadMapping(path string, loader *catalog.Loader) (*catalog.Mapping, error) {
	if path != "" {
		m, err := catalog.LoadMapping(path)
		if err != nil {
			return nil, fmt.Errorf("loading variant mapping: %w", err)
		}
		return m, nil
	}
	products, err := loader.All()
	if err != nil {
		return nil, err
	}
	return catalog.FromCatalog(products), nil
}
