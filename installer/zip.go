package installer

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/craftfall/anvil/iox"
)

// readZipEntry returns the content of one archive entry, or found=false
// when the entry is absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("zip entry %s: %w", name, err)
		}
		defer iox.DiscardClose(rc)
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, true, fmt.Errorf("zip entry %s: %w", name, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

// extractZipEntry writes one archive entry to dest atomically.
func extractZipEntry(zr *zip.Reader, name, dest string) error {
	data, found, err := readZipEntry(zr, name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("zip entry %s: not found", name)
	}
	return iox.WriteFileAtomic(dest, data, 0o644)
}

// extractZipPrefix writes every entry under prefix to destFor(relative
// path). Directory entries are skipped; destFor returning "" skips the
// entry.
func extractZipPrefix(zr *zip.Reader, prefix string, destFor func(rel string) string) error {
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, prefix) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		rel := strings.TrimPrefix(f.Name, prefix)
		// Zip entries are attacker-adjacent input: never let a
		// crafted name climb out of the destination tree.
		if strings.Contains(rel, "..") {
			return fmt.Errorf("zip entry %s: path traversal", f.Name)
		}
		dest := destFor(rel)
		if dest == "" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		iox.DiscardClose(rc)
		if err != nil {
			return fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
		if err := iox.WriteFileAtomic(dest, data, 0o644); err != nil {
			return fmt.Errorf("zip entry %s: %w", f.Name, err)
		}
	}
	return nil
}

// readJarMainClass reads the Main-Class attribute of a jar manifest.
func readJarMainClass(jarPath string) (string, error) {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return "", fmt.Errorf("jar %s: %w", jarPath, err)
	}
	defer iox.DiscardClose(zr)

	data, found, err := readZipEntry(&zr.Reader, "META-INF/MANIFEST.MF")
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("jar %s: no manifest", jarPath)
	}

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if v, ok := strings.CutPrefix(line, "Main-Class:"); ok {
			return strings.TrimSpace(v), nil
		}
	}
	return "", fmt.Errorf("jar %s: manifest declares no Main-Class", jarPath)
}
