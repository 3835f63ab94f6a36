package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"pinpoint/internal/auth"
	"pinpoint/internal/config"
	"pinpoint/internal/store"
)

const usage = `usage: admin <command> [flags]

commands:
  migrate                    create the database schema
  token -sub EMAIL -role R   print a bearer token (R: student, teacher, admin)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()

	switch os.Args[1] {
	case "migrate":
		if err := migrate(cfg); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("schema up to date")
	case "token":
		if err := token(cfg, os.Args[2:]); err != nil {
			log.Fatalf("token: %v", err)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func migrate(cfg config.App) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}

func token(cfg config.App, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "", "subject email")
	role := fs.String("role", auth.RoleStudent, "role: student, teacher or admin")
	ttl := fs.Duration("ttl", cfg.AccessTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch *role {
	case auth.RoleStudent, auth.RoleTeacher, auth.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}
	tok, err := auth.Issue(*sub, *role, cfg.JWTIssuer, cfg.JWTSigningKey, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok.AccessToken)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.ExpiresAt.Format(time.RFC3339))
	return nil
}
