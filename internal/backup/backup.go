// Package backup archives and restores the engine state: the journal
// database, the configuration file and the point catalog.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/HerbHall/turbinewatch/internal/version"
)

// ManifestName is the archive entry describing its contents.
const ManifestName = "manifest.json"

// Sources names the files to archive. Database is required; empty Config or
// Catalog paths are skipped.
type Sources struct {
	Database string
	Config   string
	Catalog  string
}

// Manifest records what an archive holds and which build wrote it.
type Manifest struct {
	CreatedAt time.Time `json:"created_at"`
	Version   string    `json:"version"`
	Files     []string  `json:"files"`
}

// Backup writes a gzip-compressed tar archive of src to archivePath. The
// database is snapshotted with VACUUM INTO, so the engine may keep writing
// to it while the backup runs.
func Backup(ctx context.Context, src Sources, archivePath string) (*Manifest, error) {
	if _, err := os.Stat(src.Database); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	tmp, err := os.MkdirTemp("", "turbinewatch-backup-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	snapshot := filepath.Join(tmp, filepath.Base(src.Database))
	if err := snapshotDB(ctx, src.Database, snapshot); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	out, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	m := &Manifest{CreatedAt: time.Now().UTC(), Version: version.Short()}
	entries := []struct{ path, name string }{
		{snapshot, filepath.Base(src.Database)},
		{src.Config, filepath.Base(src.Config)},
		{src.Catalog, filepath.Base(src.Catalog)},
	}
	for _, e := range entries {
		if e.path == "" {
			continue
		}
		if err := addFile(tw, e.path, e.name); err != nil {
			return nil, fmt.Errorf("adding %s: %w", e.name, err)
		}
		m.Files = append(m.Files, e.name)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    ManifestName,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: m.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return m, out.Close()
}

func snapshotDB(ctx context.Context, dbPath, dest string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
