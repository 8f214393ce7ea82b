// Command latticeload exports the live world graph from a bbolt object
// store into a standalone SQLite file for offline analysis, grounded on
// the teacher's own flatfile-to-SQL conversion tooling.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/lattice-mud/lattice/internal/store/boltstore"
	"github.com/lattice-mud/lattice/internal/world"
)

func main() {
	boltPath := flag.String("bolt", "", "path to the bbolt object store to export")
	outPath := flag.String("out", "", "path to the SQLite file to create")
	flag.Parse()

	if *boltPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: latticeload -bolt <path> -out <path>")
		os.Exit(2)
	}

	if err := run(*boltPath, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "latticeload: %v\n", err)
		os.Exit(1)
	}
}

func run(boltPath, outPath string) error {
	ctx := context.Background()

	st, err := boltstore.Open(boltPath)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	defer st.Close()

	model := world.New(st, boltstore.NewID)
	if err := model.Load(ctx); err != nil {
		return fmt.Errorf("load world: %w", err)
	}

	os.Remove(outPath)
	db, err := sql.Open("sqlite", outPath)
	if err != nil {
		return fmt.Errorf("create sqlite file: %w", err)
	}
	defer db.Close()

	if err := createSchema(db); err != nil {
		return err
	}

	objects := model.AllObjects()
	players := model.AllPlayers()

	for _, obj := range objects {
		if _, err := db.Exec(`INSERT INTO objects(id, dbref, class_id, name, location, is_player) VALUES (?, ?, ?, ?, ?, 0)`,
			string(obj.ID), int64(obj.DBRef), string(obj.ClassID), obj.Name, string(obj.Location)); err != nil {
			return fmt.Errorf("insert object %s: %w", obj.ID, err)
		}
		if err := insertProperties(db, string(obj.ID), obj.Properties); err != nil {
			return err
		}
	}
	for _, pl := range players {
		if _, err := db.Exec(`INSERT INTO objects(id, dbref, class_id, name, location, is_player) VALUES (?, ?, ?, ?, ?, 1)`,
			string(pl.ID), int64(pl.DBRef), string(pl.ClassID), pl.Name, string(pl.Location)); err != nil {
			return fmt.Errorf("insert player %s: %w", pl.ID, err)
		}
		if err := insertProperties(db, string(pl.ID), pl.Properties); err != nil {
			return err
		}
	}

	fmt.Printf("latticeload: exported %d objects and %d players to %s\n", len(objects), len(players), outPath)
	return nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE objects (
			id TEXT PRIMARY KEY,
			dbref INTEGER,
			class_id TEXT,
			name TEXT,
			location TEXT,
			is_player INTEGER
		)`,
		`CREATE TABLE properties (
			object_id TEXT,
			key TEXT,
			value TEXT,
			FOREIGN KEY(object_id) REFERENCES objects(id)
		)`,
		`CREATE INDEX idx_properties_object ON properties(object_id)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func insertProperties(db *sql.DB, objectID string, props map[string]world.Value) error {
	for key, v := range props {
		if _, err := db.Exec(`INSERT INTO properties(object_id, key, value) VALUES (?, ?, ?)`, objectID, key, v.String()); err != nil {
			return fmt.Errorf("insert property %s.%s: %w", objectID, key, err)
		}
	}
	return nil
}
