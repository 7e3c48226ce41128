package assets

import (
	"fmt"
	"strings"
)

// File describes one server-side file attached to an asset.
type File struct {
	FileType     string `json:"fileType"`
	FileName     string `json:"fileName"`
	URL          string `json:"url"`
	DownloadURL  string `json:"downloadUrl"`
	ThumbnailURL string `json:"fileThumbnail"`
}

// Asset is the metadata record returned by the asset database search API.
type Asset struct {
	ID               string         `json:"id"`
	AssetBaseID      string         `json:"assetBaseId"`
	Name             string         `json:"name"`
	DisplayName      string         `json:"displayName"`
	AssetType        string         `json:"assetType"`
	Category         string         `json:"category"`
	Description      string         `json:"description"`
	SourceAppVersion string         `json:"sourceAppVersion"`
	FilesSize        int64          `json:"filesSize"`
	ThumbnailURL     string         `json:"thumbnailMiddleUrl"`
	Files            []File         `json:"files"`
	DictParameters   map[string]any `json:"dictParameters"`
}

// IsHDR reports whether the asset is an HDR environment texture. HDRs open
// in an empty template and always use the newest installed Blender.
func (a *Asset) IsHDR() bool {
	return strings.EqualFold(a.AssetType, "hdr")
}

// FileByType returns the first file entry with the given fileType.
func (a *Asset) FileByType(fileType string) (File, bool) {
	for _, f := range a.Files {
		if f.FileType == fileType {
			return f, true
		}
	}
	return File{}, false
}

// UploadID extracts the upload identifier from the first file's download
// URL, the second-to-last path segment. Validation renders are grouped by
// this id, so a re-uploaded blend gets a fresh preview set.
func (a *Asset) UploadID() (string, error) {
	if len(a.Files) == 0 || a.Files[0].DownloadURL == "" {
		return "", fmt.Errorf("asset %s has no download url", a.Name)
	}
	raw := a.Files[0].DownloadURL
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(strings.TrimSuffix(raw, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" {
		return "", fmt.Errorf("asset %s: no upload id in download url %q", a.Name, a.Files[0].DownloadURL)
	}
	return parts[len(parts)-2], nil
}

// Param returns a dictParameters value converted to string, or the default
// when absent. Older asset records may lack dictParameters entirely.
func (a *Asset) Param(name, fallback string) string {
	if a.DictParameters == nil {
		return fallback
	}
	value, ok := a.DictParameters[name]
	if !ok {
		return fallback
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

// Parameter is the key/value shape the asset database expects when patching
// asset parameters.
type Parameter struct {
	ParameterType string `json:"parameterType"`
	Value         string `json:"value"`
}

// ParamsFromMap converts a plain map into the parameter list format, with
// deterministic handling of slices and booleans.
func ParamsFromMap(values map[string]string) []Parameter {
	params := make([]Parameter, 0, len(values))
	for key, value := range values {
		params = append(params, Parameter{ParameterType: key, Value: value})
	}
	return params
}
