package stages

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/pkg/errors"
)

// EnsureModel downloads the model weights from url into path when the file
// is not already present. The download lands in a temp file first so an
// interrupted transfer never leaves a truncated model behind.
func EnsureModel(ctx context.Context, path, url string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if url == "" {
		return errors.Errorf("model not found at %s and no download URL configured", path)
	}
	log.GetLogger().Infof("Model not found at %s, downloading from %s", path, url)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to download from %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("failed to download from %s: HTTP status %d", url, resp.StatusCode)
	}

	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "download ended prematurely")
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		_ = os.Remove(tmp)
		return errors.Errorf("download ended prematurely: got %d of %d bytes", written, resp.ContentLength)
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	log.GetLogger().Infof("Downloaded %s from %s", path, url)
	return nil
}
