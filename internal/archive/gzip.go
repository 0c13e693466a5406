// internal/archive/gzip.go
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"cowork/internal/fsutil"
)

// GzipBackend builds the same .tar.gz layout as TarBackend without shelling
// out, for hosts where no tar binary is available. Compression runs at the
// configured gzip level.
type GzipBackend struct {
	// Level is a gzip compression level. Zero means gzip.DefaultCompression.
	Level int
}

func (b *GzipBackend) level() int {
	if b.Level == 0 {
		return gzip.DefaultCompression
	}
	return b.Level
}

// Create archives sourceDir's contents with paths stored relative to
// sourceDir. Symlinks and special files are skipped. Temp-and-rename keeps
// a failed run from leaving a partial archive behind.
func (b *GzipBackend) Create(ctx context.Context, sourceDir, archivePath string) error {
	if err := fsutil.EnsureSecureDir(filepath.Dir(archivePath)); err != nil {
		return err
	}

	tmpPath := archivePath + ".partial"
	defer os.Remove(tmpPath)

	out, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err := b.writeArchive(ctx, sourceDir, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		return err
	}

	if err := os.Chmod(archivePath, 0600); err != nil {
		log.Printf("[archive] Failed to restrict permissions on %s: %v", archivePath, err)
	}

	return nil
}

func (b *GzipBackend) writeArchive(ctx context.Context, sourceDir string, out io.Writer) error {
	gz, err := gzip.NewWriterLevel(out, b.level())
	if err != nil {
		return err
	}
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if d.Type()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = filepath.ToSlash(rel) + "/"
			return tw.WriteHeader(hdr)
		}

		if !d.Type().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// Extract unpacks the archive into targetDir. Entry names are validated
// against targetDir so a crafted archive cannot write outside it.
func (b *GzipBackend) Extract(ctx context.Context, archivePath, targetDir string) error {
	if err := fsutil.EnsureSecureDir(targetDir); err != nil {
		return err
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		// Containment only: a file legitimately named "..something" must
		// still extract.
		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if !fsutil.IsPathWithin(targetDir, name) {
			return fmt.Errorf("archive entry escapes target directory: %s", hdr.Name)
		}
		dest := filepath.Join(targetDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			// Symlinks and special entries are not restored.
		}
	}
}
