// Command migrate-legacy copies the products exported from the old
// browser storage (the eclat_products key) into the database.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"eclatpos/backend/internal/cache"
	"eclatpos/backend/internal/cart"
	"eclatpos/backend/internal/catalog"
	"eclatpos/backend/internal/config"
	"eclatpos/backend/internal/domain"
	"eclatpos/backend/internal/service"
	"eclatpos/backend/internal/store"
	"eclatpos/backend/internal/store/memory"
	pgstore "eclatpos/backend/internal/store/postgres"
)

const legacyKey = "eclat_products"

func main() {
	file := flag.String("file", "eclat_products.json", "exported eclat_products JSON")
	dryRun := flag.Bool("dry-run", false, "migrate into an in-memory store and keep the file")
	flag.Parse()

	config.LoadDotEnv()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var repo store.Repository
	switch {
	case *dryRun:
		repo = memory.New()
	case cfg.DatabaseURL == "":
		log.Fatal("DATABASE_URL is required unless -dry-run is given")
	default:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
		repo = pg
	}

	resp, err := migrateFile(ctx, repo, *file, !*dryRun)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("[migrate-legacy] received=%d migrated=%d skipped=%d", resp.Received, resp.Migrated, resp.Skipped)
}

// migrateFile runs the migration as the admin operator. On success the
// file is emptied to [] when clear is set, so a rerun is a no-op.
func migrateFile(ctx context.Context, repo store.Repository, path string, clear bool) (domain.LegacyMigrationResponse, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.LegacyMigrationResponse{}, err
	}
	legacy, err := decodeLegacy(raw)
	if err != nil {
		return domain.LegacyMigrationResponse{}, fmt.Errorf("decode %s: %w", path, err)
	}

	catalogStore := catalog.New(repo, cache.NoopSnapshotCache{}, time.Minute)
	svc := service.New(repo, catalogStore, cart.NewRegistry(), service.Options{})
	adminCtx := service.WithActor(ctx, domain.Actor{Username: "migrate-legacy", Role: domain.RoleAdmin})

	resp, err := svc.MigrateLegacy(adminCtx, legacy)
	if err != nil {
		return domain.LegacyMigrationResponse{}, err
	}
	if clear {
		if err := os.WriteFile(path, []byte("[]\n"), 0o600); err != nil {
			return resp, fmt.Errorf("clear %s: %w", path, err)
		}
	}
	return resp, nil
}

// decodeLegacy accepts either the bare array or a storage dump object
// holding it under eclat_products. The value may itself be a JSON string.
func decodeLegacy(raw []byte) ([]domain.LegacyProduct, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '{' {
		var dump map[string]json.RawMessage
		if err := json.Unmarshal(raw, &dump); err != nil {
			return nil, err
		}
		value, ok := dump[legacyKey]
		if !ok {
			return nil, fmt.Errorf("no %s key", legacyKey)
		}
		raw = bytes.TrimSpace(value)
	}
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		raw = []byte(inner)
	}

	var legacy []domain.LegacyProduct
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, err
	}
	return legacy, nil
}
