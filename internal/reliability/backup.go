// Package reliability snapshots the SQLite databases into a checksummed
// tar.gz archive and ships it to an S3-compatible bucket.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const archivePrefix = "pecule-backup-"
const archiveStamp = "2006-01-02-150405"

// DatabaseMetadata describes one database file inside a backup archive.
type DatabaseMetadata struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Metadata is the manifest written alongside the database snapshots.
type Metadata struct {
	Timestamp time.Time          `json:"timestamp"`
	Databases []DatabaseMetadata `json:"databases"`
}

// BackupInfo describes one archive stored remotely.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}

// Source is a live database that can be snapshotted.
type Source struct {
	Name string
	Conn *sql.DB
}

// BackupService creates and rotates remote backups.
type BackupService struct {
	s3      *S3Client
	sources []Source
	dataDir string
	keep    int
	log     zerolog.Logger
}

// NewBackupService creates a backup service retaining the newest keep
// archives remotely.
func NewBackupService(s3 *S3Client, sources []Source, dataDir string, keep int, log zerolog.Logger) *BackupService {
	return &BackupService{
		s3:      s3,
		sources: sources,
		dataDir: dataDir,
		keep:    keep,
		log:     log.With().Str("service", "backup").Logger(),
	}
}

// Run snapshots every database, archives them with a manifest, uploads
// the archive, and prunes old remote backups.
func (s *BackupService) Run(ctx context.Context) error {
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	metadata := Metadata{Timestamp: time.Now().UTC()}
	var files []string

	for _, src := range s.sources {
		filename := src.Name + ".db"
		path := filepath.Join(stagingDir, filename)

		if err := snapshotDatabase(ctx, src.Conn, path); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", src.Name, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat %s snapshot: %w", src.Name, err)
		}
		checksum, err := fileChecksum(path)
		if err != nil {
			return fmt.Errorf("failed to checksum %s: %w", src.Name, err)
		}

		metadata.Databases = append(metadata.Databases, DatabaseMetadata{
			Name:      src.Name,
			Filename:  filename,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	manifestPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeManifest(manifestPath, metadata); err != nil {
		return err
	}
	files = append(files, "backup-metadata.json")

	archiveName := archivePrefix + time.Now().Format(archiveStamp) + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.s3.Upload(ctx, archiveName, archiveFile); err != nil {
		return err
	}

	s.log.Info().
		Str("archive", archiveName).
		Int64("size_bytes", archiveInfo.Size()).
		Str("duration", time.Since(start).Round(time.Millisecond).String()).
		Msg("Backup uploaded")

	return s.rotate(ctx)
}

// ListBackups returns remote archives, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.s3.List(ctx, archivePrefix)
	if err != nil {
		return nil, err
	}

	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse(archiveStamp, stamp)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("Unparseable backup name")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{Filename: filename, Timestamp: timestamp, SizeBytes: size})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// rotate deletes everything beyond the newest keep archives.
func (s *BackupService) rotate(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}
	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	for _, backup := range backups[minInt(s.keep, len(backups)):] {
		if err := s.s3.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", backup.Filename).Msg("Old backup deleted")
	}
	return nil
}

// snapshotDatabase writes a consistent copy of a live database using
// VACUUM INTO, which works under WAL without blocking writers for long.
func snapshotDatabase(ctx context.Context, conn *sql.DB, destPath string) error {
	_, err := conn.ExecContext(ctx, `VACUUM INTO ?`, destPath)
	return err
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

func writeManifest(path string, metadata Metadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// createArchive tars and gzips the named files from dir.
func createArchive(archivePath, dir string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	defer gw.Close()
	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, name := range files {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = name
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
