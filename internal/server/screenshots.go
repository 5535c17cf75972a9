package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

var screenshotTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// registerScreenshots serves step screenshots straight from disk. The
// request path is validated segment by segment before it ever touches the
// filesystem.
func registerScreenshots(router chi.Router, basePath, dir string) {
	router.Get(path.Join(basePath, "screenshots")+"/*", func(w http.ResponseWriter, r *http.Request) {
		rel := chi.URLParam(r, "*")
		if !safeScreenshotPath(rel) {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "invalid screenshot path"))
			return
		}
		full := filepath.Join(dir, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil || info.IsDir() {
			respondStatusError(w, newAPIError(http.StatusNotFound, "not found"))
			return
		}
		ctype, ok := screenshotTypes[strings.ToLower(filepath.Ext(rel))]
		if !ok {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "unsupported file type"))
			return
		}
		w.Header().Set("Content-Type", ctype)
		http.ServeFile(w, r, full)
	})
}

// safeScreenshotPath rejects anything that could escape the screenshot
// directory: empty paths, absolute paths, NUL bytes, and any `..` segment.
func safeScreenshotPath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	if strings.ContainsRune(rel, 0) {
		return false
	}
	for _, segment := range strings.Split(rel, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
