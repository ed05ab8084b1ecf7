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

	"go.uber.org/zap"
)

// ONNXRuntimeVersion matches the onnxruntime_go release pulled in by fastembed.
const ONNXRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%s/onnxruntime-%s-%s.tgz"

// ErrUnsupportedPlatform indicates no ONNX runtime release exists for this OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

var onnxPlatforms = map[string]string{
	"linux/amd64":  "linux-x64",
	"linux/arm64":  "linux-aarch64",
	"darwin/amd64": "osx-x86_64",
	"darwin/arm64": "osx-arm64",
}

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "signald", "lib")
}

// ONNXLibraryPath returns ONNX_PATH when set, else the managed install if it
// exists, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	managed := filepath.Join(onnxInstallDir(), onnxLibraryName(runtime.GOOS))
	if _, err := os.Stat(managed); err == nil {
		return managed
	}
	return ""
}

// EnsureONNXRuntime makes the runtime library available to fastembed,
// downloading the pinned release on first use, and exports ONNX_PATH.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if p := ONNXLibraryPath(); p != "" {
		return p, os.Setenv("ONNX_PATH", p)
	}

	logger.Info("downloading onnx runtime",
		zap.String("version", ONNXRuntimeVersion),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))

	if err := downloadONNXRuntime(ctx, ONNXRuntimeVersion, onnxInstallDir()); err != nil {
		return "", fmt.Errorf("downloading onnx runtime (set ONNX_PATH to skip): %w", err)
	}

	p := ONNXLibraryPath()
	if p == "" {
		return "", fmt.Errorf("onnx runtime downloaded but %s not found", onnxLibraryName(runtime.GOOS))
	}
	return p, os.Setenv("ONNX_PATH", p)
}

func downloadONNXRuntime(ctx context.Context, version, destDir string) error {
	platform, ok := onnxPlatforms[runtime.GOOS+"/"+runtime.GOARCH]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(onnxReleaseURL, version, platform, version), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return extractONNXLibs(resp.Body, destDir, fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version), onnxLibraryName(runtime.GOOS))
}

// extractONNXLibs copies the files under prefix (the release's lib/ dir)
// into destDir, keeping symlinks.
func extractONNXLibs(r io.Reader, destDir, prefix, libName string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		filename := filepath.Base(name)
		dest := filepath.Join(destDir, filename)

		if hdr.Typeflag == tar.TypeSymlink {
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err == nil && filename == libName {
				found = true
			}
			continue
		}

		if err := writeFile(dest, tr); err != nil {
			return fmt.Errorf("writing %s: %w", filename, err)
		}
		if filename == libName || strings.HasPrefix(filename, libName+".") {
			found = true
		}
	}

	if !found {
		return fmt.Errorf("library %s not found in archive", libName)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
