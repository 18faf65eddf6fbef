// Package migrations embeds the snapshot schema and applies it with goose.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

// Commands lists the names accepted by Command.
var Commands = []string{"up", "up-one", "down", "status", "version", "reset"}

func setup() error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations to db.
func Run(db *sql.DB) error {
	return Command(db, "up")
}

// Command runs a single goose command against db.
func Command(db *sql.DB, cmd string) error {
	if err := setup(); err != nil {
		return err
	}
	var err error
	switch cmd {
	case "up":
		err = goose.Up(db, ".")
	case "up-one":
		err = goose.UpByOne(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	case "reset":
		err = goose.Reset(db, ".")
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}
