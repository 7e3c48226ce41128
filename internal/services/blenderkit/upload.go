package blenderkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
)

// UploadFile is one generated file to attach to an asset version.
type UploadFile struct {
	// Type is the server-side fileType, e.g. "resolution_2K" or "gltf".
	Type  string
	Index int
	Path  string
}

type uploadTicket struct {
	ID          string `json:"id"`
	S3UploadURL string `json:"s3UploadUrl"`
}

// UploadFiles attaches generated files to an asset version using the
// three-step flow: register the upload, stream the payload to storage, then
// confirm so the server links the file.
func (c *Client) UploadFiles(ctx context.Context, assetID string, files []UploadFile) error {
	for _, file := range files {
		if err := c.uploadFile(ctx, assetID, file); err != nil {
			return fmt.Errorf("upload %s: %w", filepath.Base(file.Path), err)
		}
	}
	return nil
}

func (c *Client) uploadFile(ctx context.Context, assetID string, file UploadFile) error {
	info, err := os.Stat(file.Path)
	if err != nil {
		return fmt.Errorf("stat upload file: %w", err)
	}

	request := map[string]any{
		"assetId":          assetID,
		"fileType":         file.Type,
		"fileIndex":        file.Index,
		"originalFilename": filepath.Base(file.Path),
	}
	var ticket uploadTicket
	if err := c.doJSON(ctx, "POST", c.apiURL("/uploads/"), request, &ticket); err != nil {
		return fmt.Errorf("register upload: %w", err)
	}
	if ticket.S3UploadURL == "" {
		return fmt.Errorf("server returned no storage url for %s", file.Type)
	}

	if c.logger != nil {
		c.logger.Info("uploading",
			"file", filepath.Base(file.Path),
			"type", file.Type,
			"size", humanize.Bytes(uint64(info.Size())))
	}
	if err := c.putToStorage(ctx, ticket.S3UploadURL, file.Path, info.Size()); err != nil {
		return err
	}

	confirmURL := c.apiURL("/uploads_s3/" + ticket.ID + "/upload-file/")
	if err := c.doJSON(ctx, "POST", confirmURL, nil, nil); err != nil {
		return fmt.Errorf("confirm upload: %w", err)
	}
	return nil
}

func (c *Client) putToStorage(ctx context.Context, storageURL, path string, size int64) error {
	payload, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload file: %w", err)
	}
	defer payload.Close()

	bar := progressbar.DefaultBytesSilent(size, filepath.Base(path))
	body := progressbar.NewReader(payload, bar)

	req, err := http.NewRequestWithContext(ctx, "PUT", storageURL, &body)
	if err != nil {
		return fmt.Errorf("build storage request: %w", err)
	}
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("stream to storage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// PatchAsset applies a partial metadata update to an asset version.
func (c *Client) PatchAsset(ctx context.Context, assetID string, fields map[string]any) error {
	url := c.apiURL("/assets/" + assetID + "/")
	if err := c.doJSON(ctx, "PATCH", url, fields, nil); err != nil {
		return fmt.Errorf("patch asset %s: %w", assetID, err)
	}
	return nil
}

// PatchAssetEmpty issues an empty PATCH, bumping the asset so search
// reindexes it after out-of-band changes like new resolution files.
func (c *Client) PatchAssetEmpty(ctx context.Context, assetID string) error {
	return c.PatchAsset(ctx, assetID, map[string]any{})
}

// GetParameter reads one named parameter from an asset.
func (c *Client) GetParameter(ctx context.Context, assetID, name string) (string, error) {
	url := c.apiURL("/assets/" + assetID + "/parameter/" + name + "/")
	var payload struct {
		Value string `json:"value"`
	}
	if err := c.doJSON(ctx, "GET", url, nil, &payload); err != nil {
		return "", fmt.Errorf("get parameter %s: %w", name, err)
	}
	return payload.Value, nil
}

// PatchParameter creates or updates one named parameter on an asset.
func (c *Client) PatchParameter(ctx context.Context, assetID string, param assets.Parameter) error {
	url := c.apiURL("/assets/" + assetID + "/parameter/" + param.ParameterType + "/")
	payload := map[string]string{"value": param.Value}
	if err := c.doJSON(ctx, "PUT", url, payload, nil); err != nil {
		return fmt.Errorf("patch parameter %s: %w", param.ParameterType, err)
	}
	return nil
}

// DeleteParameter removes one named parameter from an asset.
func (c *Client) DeleteParameter(ctx context.Context, assetID, name string) error {
	url := c.apiURL("/assets/" + assetID + "/parameter/" + name + "/")
	if err := c.doJSON(ctx, "DELETE", url, nil, nil); err != nil {
		return fmt.Errorf("delete parameter %s: %w", name, err)
	}
	return nil
}

// MarkForThumbnail stores thumbnail render parameters on the asset so the
// render farm picks it up.
func (c *Client) MarkForThumbnail(ctx context.Context, assetID string, params map[string]any) error {
	fields := map[string]any{"markThumbnailRender": true}
	for key, value := range params {
		fields[key] = value
	}
	return c.PatchAsset(ctx, assetID, fields)
}
