// Command setadmin promotes a user to administrator, creating the account
// with the configured admin password when it does not exist yet. With
// -revoke it demotes the user instead, refusing to demote the last one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"forum/auth"
	"forum/config"
	"forum/database"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	cfg := config.Load(logger)

	username := flag.String("user", cfg.AdminUsername, "username to promote")
	password := flag.String("password", cfg.AdminPassword, "password used when the account must be created")
	revoke := flag.Bool("revoke", false, "remove administrator rights instead of granting them")
	flag.Parse()

	if err := auth.ValidateUsername(*username); err != nil {
		fmt.Fprintf(os.Stderr, "setadmin: %v\n", err)
		os.Exit(2)
	}

	dbService, err := database.InitDB(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := auth.NewService(dbService, cfg.SecretKey, cfg.SessionTTL, logger)
	if *revoke {
		if err := svc.RevokeAdmin(ctx, *username); err != nil {
			logger.Error("Failed to revoke administrator", "username", *username, "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s is no longer an administrator\n", *username)
		return
	}

	created, err := svc.EnsureAdmin(ctx, *username, *password)
	if err != nil {
		logger.Error("Failed to set administrator", "username", *username, "error", err)
		os.Exit(1)
	}
	if created {
		fmt.Printf("Created administrator %s\n", *username)
		return
	}
	fmt.Printf("%s is now an administrator\n", *username)
}
