package shared

import (
	"context"

	"github.com/peteches/houston/internal/catalog"
)

// CatalogCloser releases a connected catalog session.
type CatalogCloser func()

// CatalogClientProvider yields a connected catalog client plus its closer.
// The CLI layer supplies a provider that logs into the configured server;
// tests supply in-memory catalogs.
type CatalogClientProvider func(executionContext context.Context) (catalog.Client, CatalogCloser, error)
