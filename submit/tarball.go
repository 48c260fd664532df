package submit

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Directories never shipped to the farm.
var tarballSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".farmctl":     true,
}

// PackageProject writes a gzipped tarball of the project directory to a
// temporary file. The returned cleanup must run on every exit path; it is the
// only locally-owned mutable resource of the submit flow.
func PackageProject(dir string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "farmctl-project-*.tar.gz")
	if err != nil {
		return "", nil, fmt.Errorf("create tarball: %w", err)
	}
	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}

	if err := writeTarball(tmp, dir); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close tarball: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func writeTarball(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if info.IsDir() {
			if tarballSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			header := &tar.Header{
				Name:     filepath.ToSlash(rel) + "/",
				Typeflag: tar.TypeDir,
				Mode:     int64(info.Mode().Perm()),
				ModTime:  info.ModTime(),
			}
			return tw.WriteHeader(header)
		}
		if !info.Mode().IsRegular() {
			// Symlinks and devices are not part of a project archive.
			return nil
		}

		header := &tar.Header{
			Name:    filepath.ToSlash(rel),
			Size:    info.Size(),
			Mode:    int64(info.Mode().Perm()),
			ModTime: info.ModTime(),
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(tw, file); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// readTarballNames lists entry names; test helper logic kept close to the writer.
func readTarballNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, strings.TrimSuffix(header.Name, "/"))
	}
	return names, nil
}
