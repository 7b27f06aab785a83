// Command dispatch-keygen mints an API key for an account against the
// service database and prints the plaintext exactly once. Only the key's
// hash is stored; a lost key cannot be recovered, only replaced.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	sqliteadapter "github.com/ezysend/dispatch/internal/adapter/driven/sqlite"
	"github.com/ezysend/dispatch/internal/application"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath    = flag.String("db", envOr("DISPATCH_DB_PATH", "dispatch.db"), "path to the service database")
		accountID = flag.String("account", "", "owning account id (required)")
		label     = flag.String("label", "", "human label for the key (required)")
		ttl       = flag.Duration("ttl", 0, "key lifetime, e.g. 720h; zero means no expiry")
	)
	flag.Parse()

	if *accountID == "" || *label == "" {
		flag.Usage()
		return fmt.Errorf("-account and -label are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqliteadapter.NewDB(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	var expiresAt *time.Time
	if *ttl > 0 {
		t := time.Now().UTC().Add(*ttl)
		expiresAt = &t
	}

	authSvc := application.NewAuthService(sqliteadapter.NewCredentialRepo(db))
	key, cred, err := authSvc.MintKey(ctx, *accountID, *label, expiresAt)
	if err != nil {
		return err
	}

	fmt.Printf("credential id: %s\n", cred.ID)
	if cred.ExpiresAt != nil {
		fmt.Printf("expires at:    %s\n", cred.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Printf("api key:       %s\n", key)
	fmt.Println("store this key now; it cannot be shown again")
	return nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
