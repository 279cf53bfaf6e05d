package product

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// SplitAndCreateManifest prepares one downloaded product directory:
// multipart artefacts (the raw GetCoverage responses the DM stores)
// are split into their metadata and data parts, the combined file is
// removed, and a manifest listing the parts is written. It returns the
// manifest path.
func SplitAndCreateManifest(dir, ncnID string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("cannot read product dir: %w", err)
	}

	m := &Manifest{NcnID: ncnID, Dir: dir}
	for _, e := range entries {
		if e.IsDir() || e.Name() == ManifestName {
			continue
		}
		path := filepath.Join(dir, e.Name())

		boundary, err := multipartBoundary(path)
		if err != nil {
			return "", err
		}
		if boundary == "" {
			// already a plain file, classify by extension
			if isMetadataName(e.Name()) {
				m.Metadata = append(m.Metadata, path)
			} else {
				m.Data = append(m.Data, path)
			}
			continue
		}

		md, data, err := splitMultipart(path, boundary)
		if err != nil {
			return "", fmt.Errorf("cannot split %s: %w", path, err)
		}
		m.Metadata = append(m.Metadata, md...)
		m.Data = append(m.Data, data...)
		if err := os.Remove(path); err != nil {
			logger.Warn("cannot remove combined product file", "path", path, "error", err)
		}
		logger.Info("product split",
			"path", path, "metadataParts", len(md), "dataParts", len(data))
	}

	if len(m.Data) == 0 && len(m.Metadata) == 0 {
		return "", fmt.Errorf("no product found in %s", dir)
	}
	return m.Write()
}

// multipartBoundary sniffs the leading boundary delimiter of a
// multipart/mixed body, returning "" for plain files.
func multipartBoundary(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "--") || len(line) <= 2 {
		return "", nil
	}
	return strings.TrimPrefix(line, "--"), nil
}

// splitMultipart writes each part of the combined file next to it,
// classifying parts by their Content-Type into metadata (XML) and data
// (everything else).
func splitMultipart(path, boundary string) (metadata, data []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	base := strings.TrimSuffix(path, filepath.Ext(path))
	mr := multipart.NewReader(f, boundary)
	n := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		n++

		ct := part.Header.Get("Content-Type")
		var out string
		switch {
		case strings.Contains(ct, "xml"):
			out = fmt.Sprintf("%s.p%d.xml", base, n)
			metadata = append(metadata, out)
		case strings.Contains(ct, "tiff"):
			out = fmt.Sprintf("%s.p%d.tif", base, n)
			data = append(data, out)
		default:
			out = fmt.Sprintf("%s.p%d.dat", base, n)
			data = append(data, out)
		}
		if err := writePart(out, part); err != nil {
			return nil, nil, err
		}
	}
	if n == 0 {
		return nil, nil, fmt.Errorf("no parts in multipart body")
	}
	return metadata, data, nil
}

func writePart(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isMetadataName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xml")
}
