package utils

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// GetMediaReader opens a media source, which may be a local path or an
// http(s) URL, and returns its content stream plus a filename for it.
// The caller closes the reader.
func GetMediaReader(pathOrURL string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(pathOrURL, "http://") && !strings.HasPrefix(pathOrURL, "https://") {
		f, err := os.Open(pathOrURL)
		if err != nil {
			return nil, "", err
		}
		return f, filepath.Base(pathOrURL), nil
	}

	resp, err := http.Get(pathOrURL)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("failed to download media: %s", resp.Status)
	}
	return resp.Body, urlFilename(pathOrURL), nil
}

// urlFilename derives a usable filename from a URL path, dropping any query
// suffix. CDN URLs often end in signatures rather than names.
func urlFilename(url string) string {
	name := filepath.Base(url)
	if idx := strings.Index(name, "?"); idx != -1 {
		name = name[:idx]
	}
	if name == "" || name == "." || name == "/" {
		return "downloaded_media"
	}
	return name
}

// SaveOutput downloads one output reference into dir, naming the file after
// the task and output index while keeping the reference's extension. It
// returns the written path.
func SaveOutput(url, taskID string, index int, dir string) (string, error) {
	reader, filename, err := GetMediaReader(url)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d%s", taskID, index, ext))

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %v", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", fmt.Errorf("failed to write %s: %v", path, err)
	}
	return path, nil
}

// SaveOutputs downloads every output reference into dir, skipping none; the
// first failure aborts. Returns the written paths in output order.
func SaveOutputs(urls []string, taskID, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %v", dir, err)
	}
	paths := make([]string, 0, len(urls))
	for i, url := range urls {
		path, err := SaveOutput(url, taskID, i, dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
