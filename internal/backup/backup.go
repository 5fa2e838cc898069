// Package backup archives the bot's state (SQLite database with its WAL/SHM
// sidecars plus the config file) into timestamped .tar.gz files. It is shared
// by the CLI commands and the scheduled nightly job.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const archivePrefix = "groupbot-backup-"

// keepArchives is how many timestamped archives Prune leaves behind.
const keepArchives = 7

// Create writes a .tar.gz of the database and config into dir and returns the
// archive path. Missing sidecar files are skipped silently.
func Create(dir, dbPath, cfgPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create backup directory: %w", err)
	}

	var files []string
	if _, err := os.Stat(dbPath); err == nil {
		files = append(files, dbPath)
		for _, suffix := range []string{"-wal", "-shm"} {
			sidecar := dbPath + suffix
			if _, err := os.Stat(sidecar); err == nil {
				files = append(files, sidecar)
			}
		}
	}
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			files = append(files, cfgPath)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no files to backup (db: %s, config: %s)", dbPath, cfgPath)
	}

	ts := time.Now().Format("20060102-150405")
	outputPath := filepath.Join(dir, archivePrefix+ts+".tar.gz")
	if err := writeTarGz(outputPath, files); err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}
	return outputPath, nil
}

// Prune removes the oldest archives in dir, keeping the newest keepArchives.
func Prune(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var archives []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, archivePrefix) && strings.HasSuffix(name, ".tar.gz") {
			archives = append(archives, name)
		}
	}
	if len(archives) <= keepArchives {
		return nil, nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(archives)
	var removed []string
	for _, name := range archives[:len(archives)-keepArchives] {
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

// Restore extracts an archive created by Create, mapping entries back to the
// database and config locations. Returns the restored paths.
func Restore(archivePath, dbPath, cfgPath string) ([]string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("not a valid gzip file: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	var restored []string

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		baseName := filepath.Base(header.Name)
		var targetPath string
		switch {
		case strings.HasSuffix(baseName, ".json"):
			targetPath = cfgPath
		case strings.HasSuffix(baseName, ".db"):
			targetPath = dbPath
		case strings.HasSuffix(baseName, ".db-wal"):
			targetPath = dbPath + "-wal"
		case strings.HasSuffix(baseName, ".db-shm"):
			targetPath = dbPath + "-shm"
		default:
			targetPath = filepath.Join(filepath.Dir(cfgPath), baseName)
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return nil, err
		}
		outFile, err := os.Create(targetPath)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", targetPath, err)
		}
		if _, err := io.Copy(outFile, tarReader); err != nil {
			outFile.Close()
			return nil, fmt.Errorf("extract %s: %w", targetPath, err)
		}
		outFile.Close()

		restored = append(restored, targetPath)
	}

	return restored, nil
}

func writeTarGz(outputPath string, files []string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, filePath := range files {
		if err := addFile(tarWriter, filePath); err != nil {
			return fmt.Errorf("add %s: %w", filePath, err)
		}
	}
	return nil
}

func addFile(tw *tar.Writer, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	// Archive entries carry the base name only.
	header.Name = filepath.Base(filePath)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, file)
	return err
}

// HumanSize formats a byte count for CLI output.
func HumanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
