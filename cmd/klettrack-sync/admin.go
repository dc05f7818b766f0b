package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shaharnoy/Klettrack-sub002/internal/api"
	"github.com/shaharnoy/Klettrack-sub002/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "create-user":
		runAdminCreateUser(args[1:])
	case "create-key":
		runAdminCreateKey(args[1:])
	case "list-users":
		runAdminListUsers(args[1:])
	case "revoke-key":
		runAdminRevokeKey(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: klettrack-sync admin <command> [flags]

Commands:
  create-user  Create a user account
  create-key   Create an API key for a user
  list-users   List all user accounts
  revoke-key   Revoke an API key`)
}

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = cfg.ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminCreateUser(args []string) {
	fs := flag.NewFlagSet("admin create-user", flag.ExitOnError)
	email := fs.String("email", "", "user email address")
	dbPath := fs.String("db", "", "path to server.db (default: from KLETTRACK_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "error: --email is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	user, err := store.CreateUser(*email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created user %s (%s)\n", user.Email, user.ID)
}

func runAdminCreateKey(args []string) {
	fs := flag.NewFlagSet("admin create-key", flag.ExitOnError)
	email := fs.String("email", "", "user email address")
	name := fs.String("name", "", "key name (e.g. phone, laptop)")
	expiresDays := fs.Int("expires-days", 0, "days until the key expires (0 = never)")
	dbPath := fs.String("db", "", "path to server.db (default: from KLETTRACK_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *email == "" {
		fmt.Fprintln(os.Stderr, "error: --email is required")
		fs.Usage()
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	user, err := store.GetUserByEmail(*email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		fmt.Fprintf(os.Stderr, "error: user not found: %s\n", *email)
		os.Exit(1)
	}

	var expiresAt *time.Time
	if *expiresDays > 0 {
		t := time.Now().AddDate(0, 0, *expiresDays)
		expiresAt = &t
	}

	plaintext, key, err := store.GenerateAPIKey(user.ID, *name, expiresAt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// The plaintext key is shown exactly once; only its hash is stored.
	fmt.Printf("created key %s (%s) for %s\n", key.ID, key.Name, user.Email)
	fmt.Printf("api key: %s\n", plaintext)
}

func runAdminListUsers(args []string) {
	fs := flag.NewFlagSet("admin list-users", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to server.db (default: from KLETTRACK_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, u := range users {
		fmt.Printf("%s  %s  created %s\n", u.ID, u.Email, u.CreatedAt.Format("2006-01-02"))
	}
}

func runAdminRevokeKey(args []string) {
	fs := flag.NewFlagSet("admin revoke-key", flag.ExitOnError)
	email := fs.String("email", "", "user email address")
	keyID := fs.String("key-id", "", "id of the key to revoke")
	dbPath := fs.String("db", "", "path to server.db (default: from KLETTRACK_SERVER_DB_PATH or ./data/server.db)")
	fs.Parse(args)

	if *email == "" || *keyID == "" {
		fmt.Fprintln(os.Stderr, "error: --email and --key-id are required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	user, err := store.GetUserByEmail(*email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if user == nil {
		fmt.Fprintf(os.Stderr, "error: user not found: %s\n", *email)
		os.Exit(1)
	}

	if err := store.RevokeAPIKey(*keyID, user.ID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("revoked key %s\n", *keyID)
}
