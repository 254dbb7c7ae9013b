//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// fastembed loads the onnxruntime shared library at init, and Go
// modules cannot ship native libraries. ensureONNXRuntime locates an
// existing install or fetches the matching upstream release so a first
// run needs no manual setup.

// onnxRuntimeVersion must stay in lockstep with the onnxruntime_go
// version in go.mod.
const onnxRuntimeVersion = "1.23.0"

// ErrUnsupportedPlatform indicates no onnxruntime release exists for
// the current OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

func onnxPlatform() (string, error) {
	switch runtime.GOOS + "/" + runtime.GOARCH {
	case "linux/amd64":
		return "linux-x64", nil
	case "linux/arm64":
		return "linux-aarch64", nil
	case "darwin/amd64":
		return "osx-x86_64", nil
	case "darwin/arm64":
		return "osx-arm64", nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
}

func onnxLibName() string {
	if runtime.GOOS == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "docqa", "lib")
}

// onnxLibraryPath returns the runtime library location, or "" when no
// install is found. ONNX_PATH overrides the managed install.
func onnxLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), onnxLibName())
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// ensureONNXRuntime returns the path to a usable runtime library,
// downloading the release into the managed install dir when none is
// present.
func ensureONNXRuntime(ctx context.Context) (string, error) {
	if p := onnxLibraryPath(); p != "" {
		return p, nil
	}

	platform, err := onnxPlatform()
	if err != nil {
		return "", err
	}
	destDir := onnxInstallDir()
	if err := downloadONNXRuntime(ctx, platform, destDir); err != nil {
		return "", fmt.Errorf("downloading onnxruntime (set ONNX_PATH to use an existing install): %w", err)
	}

	p := onnxLibraryPath()
	if p == "" {
		return "", errors.New("onnxruntime download completed but library not found")
	}
	return p, nil
}

func downloadONNXRuntime(ctx context.Context, platform, destDir string) error {
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return err
	}

	url := fmt.Sprintf(
		"https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz",
		onnxRuntimeVersion, platform, onnxRuntimeVersion,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return extractONNXLibs(resp.Body, destDir, platform)
}

// extractONNXLibs unpacks the lib/ entries of the release tarball into
// destDir, flattening paths. The archive ships the library plus
// version-suffixed symlinks; both are carried over.
func extractONNXLibs(r io.Reader, destDir, platform string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gzr.Close()

	libPrefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, onnxRuntimeVersion)
	libName := onnxLibName()
	found := false

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		name := strings.TrimPrefix(header.Name, "./")
		if !strings.HasPrefix(name, libPrefix) || header.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(destDir, base)

		switch header.Typeflag {
		case tar.TypeSymlink:
			os.Remove(dest)
			if err := os.Symlink(header.Linkname, dest); err != nil {
				// The regular file the link points at is extracted too.
				continue
			}
		default:
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("writing %s: %w", base, err)
			}
			out.Close()
		}
		if base == libName || strings.HasPrefix(base, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("%s not found in archive", libName)
	}
	return nil
}
