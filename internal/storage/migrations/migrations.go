// Package migrations embeds the schema DDL for both backing stores so
// binaries and tests can apply it without a checkout of the repo.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed postgres/*.sql clickhouse/*.sql
var files embed.FS

// Postgres returns the ordered PostgreSQL migration statements.
func Postgres() ([]string, error) {
	return read("postgres")
}

// ClickHouse returns the ordered ClickHouse migration statements.
func ClickHouse() ([]string, error) {
	return read("clickhouse")
}

func read(dir string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	statements := make([]string, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(dir + "/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s/%s: %w", dir, name, err)
		}
		statements = append(statements, string(data))
	}
	return statements, nil
}
