package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aichat/internal/auth"
	"aichat/internal/config"
	"aichat/internal/domain/models"
	"aichat/internal/repository/postgres"
)

// createuser provisions an account from the command line. There is no
// self-service signup, so this is how accounts get created.
func main() {
	username := flag.String("username", "", "username for the new account")
	password := flag.String("password", "", "password for the new account")
	admin := flag.Bool("admin", false, "grant admin rights")
	flag.Parse()

	*username = strings.TrimSpace(*username)
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: createuser -username NAME -password SECRET [-admin]")
		os.Exit(2)
	}
	if len(*password) < 8 {
		log.Fatal("password must be at least 8 characters")
	}

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	users := postgres.NewUserRepository(&postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: slog.Default(),
	})

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     *username,
		PasswordHash: hash,
		IsAdmin:      *admin,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("created user %s (id=%s, admin=%v)\n", user.Username, user.ID, user.IsAdmin)
}
