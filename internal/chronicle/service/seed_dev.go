package service

import (
	"context"
	"fmt"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
)

// SeedDev makes sure owner has at least one store, creating a starter store
// on first run. It returns the owner's oldest store.
func SeedDev(ctx context.Context, f *Factory, owner types.Identity) (types.Handle, error) {
	if existing := f.ListStores(owner); len(existing) > 0 {
		return existing[0], nil
	}
	h, err := f.CreateStore(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("seed dev store: %w", err)
	}
	return h, nil
}
