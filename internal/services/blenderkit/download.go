package blenderkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
)

// lockRetryDelay paces lock acquisition attempts when another run holds
// the download.
const lockRetryDelay = 500 * time.Millisecond

// ResolveDownloadURL asks the server for the signed file path behind a file
// entry. The server checks permissions and returns a time-limited URL.
func (c *Client) ResolveDownloadURL(ctx context.Context, file assets.File) (string, error) {
	if file.DownloadURL == "" {
		return "", fmt.Errorf("file %s has no download url", file.FileType)
	}
	var payload struct {
		FilePath string `json:"filePath"`
	}
	if err := c.doJSON(ctx, "GET", file.DownloadURL, nil, &payload); err != nil {
		return "", fmt.Errorf("resolve download url: %w", err)
	}
	if payload.FilePath == "" {
		return "", fmt.Errorf("server returned empty file path for %s", file.FileType)
	}
	return payload.FilePath, nil
}

// DownloadAssetFile fetches an asset's source file of the given fileType
// into dir and returns the local path. Concurrent runs share the download
// through a lock file; a finished file is reused when its size matches the
// asset metadata.
func (c *Client) DownloadAssetFile(ctx context.Context, asset assets.Asset, fileType, dir string) (string, error) {
	file, ok := asset.FileByType(fileType)
	if !ok {
		return "", fmt.Errorf("asset %s has no %s file", asset.Name, fileType)
	}

	signedURL, err := c.ResolveDownloadURL(ctx, file)
	if err != nil {
		return "", err
	}

	localName := assets.LocalFilename(&asset, assets.FilenameFromURL(signedURL))
	localPath := filepath.Join(dir, localName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	lock := flock.New(localPath + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		return "", fmt.Errorf("acquire download lock for %s: %w", localName, err)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	if info, err := os.Stat(localPath); err == nil && info.Size() == asset.FilesSize {
		if c.logger != nil {
			c.logger.Info("reusing cached download", "file", localName, "size", humanize.Bytes(uint64(info.Size())))
		}
		return localPath, nil
	}

	if err := c.downloadTo(ctx, signedURL, localPath); err != nil {
		_ = os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}

func (c *Client) downloadTo(ctx context.Context, rawURL, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	tmpPath := localPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("downloading",
			"file", filepath.Base(localPath),
			"size", humanize.Bytes(uint64(max(resp.ContentLength, 0))))
	}
	bar := progressbar.DefaultBytesSilent(resp.ContentLength, filepath.Base(localPath))
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write download: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close download: %w", err)
	}
	return os.Rename(tmpPath, localPath)
}
