// Package export lays generated artifacts out in the conventional Maven
// test tree and packages them as a zip archive or a directory.
package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourorg/apitester/pkg/types"
)

const (
	FeaturesRoot = "src/test/resources/features"
	JavaRoot     = "src/test/java"
)

// Entry is one file of the exported tree, with a slash-separated path.
type Entry struct {
	Path    string
	Content string
}

// Layout assigns every artifact its path. Feature files go under the
// features root; steps, services and models go under the package path
// derived from basePackage.
func Layout(code types.GeneratedCode, basePackage string) []Entry {
	pkgPath := strings.ReplaceAll(strings.Trim(strings.TrimSpace(basePackage), "."), ".", "/")
	javaDir := func(role string) string {
		if pkgPath == "" {
			return path.Join(JavaRoot, role)
		}
		return path.Join(JavaRoot, pkgPath, role)
	}

	var out []Entry
	add := func(dir string, files []types.GeneratedFile) {
		for _, f := range files {
			out = append(out, Entry{Path: path.Join(dir, path.Base(f.Name)), Content: f.Content})
		}
	}
	add(FeaturesRoot, code.FeatureFiles)
	add(javaDir("steps"), code.StepDefinitions)
	add(javaDir("service"), code.ServiceClasses)
	add(javaDir("model"), code.DataModelStubs)
	return out
}

// archiveTime stamps every archive entry so identical input yields
// identical bytes.
var archiveTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// WriteZip writes the laid-out artifacts as a zip archive to w.
func WriteZip(w io.Writer, code types.GeneratedCode, basePackage string) error {
	zw := zip.NewWriter(w)
	for _, e := range Layout(code, basePackage) {
		hdr := &zip.FileHeader{Name: e.Path, Method: zip.Deflate, Modified: archiveTime}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			zw.Close()
			return fmt.Errorf("add %s: %w", e.Path, err)
		}
		if _, err := io.WriteString(fw, e.Content); err != nil {
			zw.Close()
			return fmt.Errorf("write %s: %w", e.Path, err)
		}
	}
	return zw.Close()
}

// WriteDir writes the laid-out artifacts below dir and returns the paths
// written.
func WriteDir(dir string, code types.GeneratedCode, basePackage string) ([]string, error) {
	var written []string
	for _, e := range Layout(code, basePackage) {
		target := filepath.Join(dir, filepath.FromSlash(e.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(target, []byte(e.Content), 0o644); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

// ArchiveName is the download file name for a bundle.
func ArchiveName(basePackage string) string {
	name := strings.ReplaceAll(strings.Trim(strings.TrimSpace(basePackage), "."), ".", "-")
	if name == "" {
		name = "bdd"
	}
	return name + "-bdd-tests.zip"
}
