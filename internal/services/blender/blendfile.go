package blender

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// blendHeaderLen covers the magic, the pointer-size and endianness bytes,
// and the three ASCII version digits.
const blendHeaderLen = 12

// SniffBlendVersion reads the authoring version out of a .blend header.
// Plain and gzip-compressed files are both handled; zstd-compressed files
// from very new Blender builds are not, and report an error.
func SniffBlendVersion(path string) (Tag, error) {
	file, err := os.Open(path)
	if err != nil {
		return Tag{}, fmt.Errorf("open blend file: %w", err)
	}
	defer file.Close()

	header := make([]byte, blendHeaderLen)
	if _, err := io.ReadFull(file, header); err != nil {
		return Tag{}, fmt.Errorf("read blend header %s: %w", path, err)
	}

	if header[0] == 0x1f && header[1] == 0x8b {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return Tag{}, fmt.Errorf("rewind blend file: %w", err)
		}
		zr, err := gzip.NewReader(file)
		if err != nil {
			return Tag{}, fmt.Errorf("open compressed blend file %s: %w", path, err)
		}
		defer zr.Close()
		if _, err := io.ReadFull(zr, header); err != nil {
			return Tag{}, fmt.Errorf("read compressed blend header %s: %w", path, err)
		}
	}

	return parseBlendHeader(path, header)
}

func parseBlendHeader(path string, header []byte) (Tag, error) {
	if string(header[:7]) != "BLENDER" {
		return Tag{}, fmt.Errorf("%s is not a blend file", path)
	}
	for _, b := range header[9:12] {
		if b < '0' || b > '9' {
			return Tag{}, fmt.Errorf("%s: malformed version digits in header", path)
		}
	}
	// Versions are stored as three digits, e.g. 293 for 2.93 and 402 for 4.2.
	major := int(header[9] - '0')
	minor := int(header[10]-'0')*10 + int(header[11]-'0')
	return Tag{Major: major, Minor: minor}, nil
}
