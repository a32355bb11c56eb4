// Package bronze provides the bronze-layer collaborators: file discovery,
// the CSV row parser, and the dimension snapshot loader.
package bronze

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"marketlake/logger"
	"marketlake/models"
)

// Scanner discovers immutable bronze files under a root directory laid out
// as <root>/<exchange>/<file>. Every discovered file gets a content hash so
// its manifest identity survives renames and re-uploads.
type Scanner struct {
	vendor   string
	dataType string
	log      *logger.Log
}

func NewScanner(vendor, dataType string) *Scanner {
	return &Scanner{vendor: vendor, dataType: dataType, log: logger.GetLogger()}
}

// Scan walks the bronze root and returns metadata for every regular file,
// sorted by path so discovery order is stable across runs.
func (s *Scanner) Scan(root string) ([]models.BronzeFileMetadata, error) {
	var files []models.BronzeFileMetadata

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 {
			s.log.WithComponent("bronze_scanner").WithFields(logger.Fields{
				"path": path,
			}).Warn("file outside an exchange directory, skipping")
			return nil
		}
		exchange := parts[0]

		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}

		files = append(files, models.BronzeFileMetadata{
			Vendor:     s.vendor,
			DataType:   s.dataType,
			BronzePath: path,
			FileHash:   hash,
			Exchange:   exchange,
			SizeBytes:  info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan bronze root: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].BronzePath < files[j].BronzePath
	})

	s.log.WithComponent("bronze_scanner").WithFields(logger.Fields{
		"root":  root,
		"files": len(files),
	}).Info("bronze scan complete")
	return files, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
