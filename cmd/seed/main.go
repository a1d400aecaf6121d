package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"cleantree/internal/config"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/repository"
	"cleantree/internal/seed"
	"cleantree/internal/service"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop and recreate the tree tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed a tree")
	clearData := flag.Bool("clear-data", false, "Empty the tree (keep schema)")
	fixture := flag.String("fixture", "", "fixture name or YAML/JSON file (default: SEED_FIXTURE)")
	treeID := flag.String("tree", "", "tree id to seed (default: DEFAULT_TREE)")
	breadth := flag.Int("breadth", 0, "generate a tree with this many children per item")
	depth := flag.Int("depth", 0, "generate a tree this many levels deep")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}
	if cfg.Store == config.StoreMemory {
		log.Fatalf("STORE is memory; nothing would survive this process. Set STORE=postgres or STORE=sqlite")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *treeID == "" {
		*treeID = cfg.DefaultTree
	}
	if *fixture == "" {
		*fixture = cfg.SeedFixture
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store, err)
	}
	defer store.Close()

	if *dropTables {
		log.Println("Dropping tree tables...")
		if err := store.Reset(ctx); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables recreated")
	}

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	svc := service.NewTreeService(store.Trees, store.TxManager, nil, service.Simulation{}, logger)

	if *clearData {
		log.Printf("Clearing tree %s...", *treeID)
		if err := svc.Seed(ctx, *treeID, []tree.NodeData{}); err != nil {
			log.Fatalf("Failed to clear data: %v", err)
		}
		log.Println("Data cleared successfully")
		return
	}

	var data []tree.NodeData
	if *breadth > 0 || *depth > 0 {
		if *breadth <= 0 || *depth <= 0 {
			log.Fatalf("--breadth and --depth must both be positive")
		}
		data = seed.Generate(*breadth, *depth)
	} else if data, err = seed.Resolve(*fixture); err != nil {
		log.Fatalf("Failed to load seed: %v", err)
	}

	log.Printf("Seeding tree %s (store: %s, prefix: %s)", *treeID, cfg.Store, cfg.TablePrefix)
	if err := svc.Seed(ctx, *treeID, data); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}
	log.Printf("Seeding complete: %d items", seed.Count(data))
}
