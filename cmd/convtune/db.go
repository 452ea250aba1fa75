package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/convtune/internal/perfdb"
)

func dbCmd() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Inspect and edit the tuning database",
		Commands: []*cli.Command{
			dbListCmd(),
			dbGetCmd(),
			dbSetCmd(),
			dbRemoveCmd(),
		},
	}
}

func dbListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all record keys",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := openDb()
			if err != nil {
				return err
			}
			keys, err := db.Keys()
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"keys": keys, "count": len(keys)})
		},
	}
}

func dbGetCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print one record",
		ArgsUsage: "<key>",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := cmd.Args().First()
			if key == "" {
				return fmt.Errorf("db get: key argument required")
			}
			db, err := openDb()
			if err != nil {
				return err
			}
			rec, err := db.FindRecord(key)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("db get: %w: %s", perfdb.ErrKeyNotFound, key)
			}
			return printJSON(recordOut(rec))
		},
	}
}

func dbSetCmd() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store one payload under (key, id)",
		ArgsUsage: "<key> <id> <payload>",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 3 {
				return fmt.Errorf("db set: expected <key> <id> <payload>")
			}
			key, id, payload := args.Get(0), args.Get(1), args.Get(2)

			db, err := openDb()
			if err != nil {
				return err
			}
			rec := perfdb.NewRecord(key)
			if !rec.SetRaw(id, payload) {
				return fmt.Errorf("db set: payload contains a structural delimiter")
			}
			if err := db.UpdateRecord(rec); err != nil {
				return err
			}
			return printJSON(recordOut(rec))
		},
	}
}

func dbRemoveCmd() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a whole record, or one payload when an id is given",
		ArgsUsage: "<key> [id]",
		Flags:     commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			key := args.Get(0)
			if key == "" {
				return fmt.Errorf("db remove: key argument required")
			}
			db, err := openDb()
			if err != nil {
				return err
			}
			var removed bool
			if id := args.Get(1); id != "" {
				removed, err = db.Remove(key, id)
			} else {
				removed, err = db.RemoveRecord(key)
			}
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("db remove: %w: %s", perfdb.ErrKeyNotFound, key)
			}
			return printJSON(map[string]any{"removed": true, "key": key})
		},
	}
}

func openDb() (*perfdb.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("db: create directory: %w", err)
	}
	return perfdb.New(dbPath)
}

func recordOut(rec *perfdb.Record) map[string]any {
	values := map[string]string{}
	for _, id := range rec.IDs() {
		if payload, ok := rec.GetRaw(id); ok {
			values[id] = payload
		}
	}
	return map[string]any{"key": rec.Key(), "values": values}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
