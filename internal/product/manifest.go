// Package product turns a downloaded product directory into something
// the site's registration scripts can consume: the downloaded
// multipart artefact is split into its metadata and data parts and a
// manifest file describing them is written alongside.
package product

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the file written into each product directory.
const ManifestName = "MANIFEST"

// Manifest describes one product for the registration scripts. The
// file format is a flat key="value" list; site scripts source it
// shell-style.
type Manifest struct {
	NcnID    string
	Dir      string
	Metadata []string
	Data     []string
}

// Write serializes the manifest into its directory and returns the
// manifest path.
func (m *Manifest) Write() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SCENARIO_NCN_ID=%q\n", m.NcnID)
	fmt.Fprintf(&b, "DOWNLOAD_DIR=%q\n", m.Dir)
	fmt.Fprintf(&b, "METADATA=%q\n", strings.Join(m.Metadata, ","))
	fmt.Fprintf(&b, "DATA=%q\n", strings.Join(m.Data, ","))

	path := filepath.Join(m.Dir, ManifestName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("cannot write manifest: %w", err)
	}
	return path, nil
}

// CreateManifest writes a manifest for a product whose metadata and
// data files are already in place, as with locally ingested products.
func CreateManifest(dir, ncnID, metadata, data string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metadata == "" || data == "" {
		return "", fmt.Errorf("product in %s: metadata and data paths are required", dir)
	}
	m := &Manifest{
		NcnID:    ncnID,
		Dir:      dir,
		Metadata: []string{metadata},
		Data:     []string{data},
	}
	path, err := m.Write()
	if err != nil {
		return "", err
	}
	logger.Info("manifest created", "path", path, "ncnID", ncnID)
	return path, nil
}
