// Command run_migrations applies (or rolls back) the SQL files under
// migrations/ in name order: go run scripts/run_migrations.go up|down
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/hakim/go-commerce/internal/config"
)

const migrationDir = "migrations"

func main() {
	log := logrus.New()

	if len(os.Args) < 2 || (os.Args[1] != "up" && os.Args[1] != "down") {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Ping database: %v", err)
	}

	files, err := migrationFiles(direction)
	if err != nil {
		log.Fatalf("Collect migrations: %v", err)
	}

	for _, filename := range files {
		log.WithField("file", filename).Info("Running migration")
		if err := applyMigration(db, filename); err != nil {
			log.Fatalf("Migration %s: %v", filename, err)
		}
	}

	log.Infof("Successfully ran %d migration(s) %s", len(files), direction)
}

func migrationFiles(direction string) ([]string, error) {
	entries, err := os.ReadDir(migrationDir)
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	var files []string
	suffix := fmt.Sprintf(".%s.sql", direction)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if direction == "down" {
		// Roll back in reverse order of application.
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

func applyMigration(db *sql.DB, filename string) error {
	content, err := os.ReadFile(filepath.Join(migrationDir, filename))
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	if _, err := db.Exec(string(content)); err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	return nil
}
