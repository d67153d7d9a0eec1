package database

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// Migration is one versioned pair of up/down SQL scripts.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// ID is the file stem, e.g. 000001_init.
func (m Migration) ID() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// Checksum fingerprints the up script so edits to an applied migration are caught.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var migrationFile = regexp.MustCompile(`^(\d{6})_([a-z0-9_]+)\.up\.sql$`)

// Migrations returns the embedded migrations in version order.
var Migrations = sync.OnceValues(func() ([]Migration, error) {
	return LoadMigrations(embeddedMigrations)
})

// LoadMigrations reads migrations/NNNNNN_name.up.sql and its .down.sql twin from fsys.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	ups, err := fs.Glob(fsys, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string, len(ups))
	out := make([]Migration, 0, len(ups))
	for _, file := range ups {
		match := migrationFile.FindStringSubmatch(path.Base(file))
		if match == nil {
			return nil, fmt.Errorf("migration %s: name must look like 000001_name.up.sql", file)
		}
		version, _ := strconv.Atoi(match[1])
		if version == 0 {
			return nil, fmt.Errorf("migration %s: version must be positive", file)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %06d used by %s and %s", version, prev, file)
		}
		seen[version] = file

		up, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		downFile := path.Join(path.Dir(file), match[1]+"_"+match[2]+".down.sql")
		down, err := fs.ReadFile(fsys, downFile)
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", file, err)
		}

		out = append(out, Migration{Version: version, Name: match[2], Up: string(up), Down: string(down)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
