//go:build ignore

package main

import (
	"context"
	"log"

	"github.com/hugh/go-accounts/internal/auth"
	"github.com/hugh/go-accounts/internal/authz"
	"github.com/hugh/go-accounts/internal/database"
	"github.com/hugh/go-accounts/pkg/config"
	"github.com/hugh/go-accounts/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, cfg.Server.LogLevel)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	opts := database.SeedOptions{Permissions: authz.All}

	// An admin is only created when a password is configured.
	if cfg.Seed.AdminEmail != "" && cfg.Seed.AdminPassword != "" {
		hash, err := auth.HashPassword(cfg.Seed.AdminPassword)
		if err != nil {
			log.Fatalf("failed to hash admin password: %v", err)
		}
		opts.Admin = &database.SeedAdmin{
			Email:        cfg.Seed.AdminEmail,
			PasswordHash: hash,
			FirstName:    cfg.Seed.AdminFirstName,
			LastName:     cfg.Seed.AdminLastName,
		}
	}

	result, err := database.Seed(context.Background(), db, opts)
	if err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}

	log.Printf("Seeded organization %q (%s)", result.Organization.Name, result.Organization.ID)
	log.Printf("Seeded role %q with %d permissions", result.Role.Name, len(authz.All))
	if result.Admin != nil {
		log.Printf("Admin user: %s (%s)", result.Admin.PrimaryEmailAddress, result.Admin.ID)
	} else {
		log.Printf("No admin user created; set SEED_ADMIN_PASSWORD to create one")
	}
}
