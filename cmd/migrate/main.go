package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/pkg/distlock"
)

// migrateLockKey serializes concurrent runs, e.g. several deploys starting
// at once.
const migrateLockKey = "placebook:migrate"

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		if cfg, err := config.Load("config/config.yaml"); err == nil && cfg.Database.Driver == config.DriverPostgres {
			dsn = cfg.Database.URL
		}
	}
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' AND tablename IN ('users', 'places') ORDER BY tablename")
		if err != nil {
			log.Fatal(err)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				log.Fatal(err)
			}
			fmt.Println(" ", t)
			n++
		}
		fmt.Printf("Total: %d tables\n", n)
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var okCount, errCount int
	err = distlock.Do(context.Background(), distlock.NewPGAdvisoryLock(db, migrateLockKey), func(ctx context.Context) error {
		var err error
		okCount, errCount, err = applyMigrations(ctx, db, dir, files)
		return err
	})
	if errors.Is(err, distlock.ErrNotHeld) {
		log.Fatal("Another migration run holds the lock")
	}
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
	if errCount > 0 {
		os.Exit(1)
	}
	log.Println("Migrations complete")
}

// applyMigrations runs each file in its own transaction and keeps going
// after a failed file.
func applyMigrations(ctx context.Context, db *sql.DB, dir string, files []string) (okCount, errCount int, err error) {
	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			return okCount, errCount, fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.ExecContext(ctx, content); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else if err := tx.Commit(); err != nil {
			fmt.Printf("COMMIT ERROR: %v\n", err)
			errCount++
		} else {
			fmt.Println("OK")
			okCount++
		}
	}
	return okCount, errCount, nil
}
