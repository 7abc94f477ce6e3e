// internal/report/file.go
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	// TOMLFile is the machine-readable results file name.
	TOMLFile = "results.toml"
	// HTMLFile is the human-readable results file name.
	HTMLFile = "results.html"
)

// FileWriter writes results.toml and results.html into Dir. Each file is
// replaced atomically so a failed write leaves the previous snapshot intact.
type FileWriter struct {
	Dir string
	// SkipHTML disables the HTML report.
	SkipHTML bool
}

// NewFileWriter returns a writer targeting dir.
func NewFileWriter(dir string) *FileWriter {
	return &FileWriter{Dir: dir}
}

// Write persists s.
func (w *FileWriter) Write(s Summary) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode results toml: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, TOMLFile), data); err != nil {
		return err
	}

	if w.SkipHTML {
		return nil
	}
	page, err := GenerateHTML(s)
	if err != nil {
		return fmt.Errorf("render results html: %w", err)
	}
	return writeAtomic(filepath.Join(w.Dir, HTMLFile), []byte(page))
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path.
func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}

	success = true
	return nil
}
