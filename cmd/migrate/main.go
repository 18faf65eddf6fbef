package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"gigboard/migrations"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/gigboard.db"), "path to snapshot database")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-db path] <command>")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Commands: "+strings.Join(migrations.Commands, ", "))
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		logger.Error("open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Command(db, args[0]); err != nil {
		logger.Error("migrate", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
