package agentcontext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maxFileRenderChars = 20000

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".bmp": true, ".ico": true,
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true, ".m4a": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".7z": true, ".rar": true,
	".exe": true, ".bin": true, ".so": true, ".dll": true, ".dylib": true,
}

type cacheEntry struct {
	mtime    int64
	size     int64
	rendered string
}

// FileRenderer renders pinned context files into prompt-embeddable blocks,
// caching by (mtime, size) so unchanged files aren't re-read every turn.
type FileRenderer struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFileRenderer builds an empty renderer.
func NewFileRenderer() *FileRenderer {
	return &FileRenderer{cache: make(map[string]cacheEntry)}
}

// Render renders one pinned path: a binary/media placeholder for known
// binary extensions, or the file content wrapped in a <file> tag, truncated
// to maxFileRenderChars. Missing/erroring files render a placeholder and
// evict any existing cache entry.
func (r *FileRenderer) Render(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if binaryExtensions[ext] {
		return fmt.Sprintf("[BINARY/MEDIA FILE – CONTENT OMITTED: %s]", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		r.evict(path)
		return fmt.Sprintf("[FILE UNAVAILABLE: %s]", path)
	}

	r.mu.Lock()
	if e, ok := r.cache[path]; ok && e.mtime == info.ModTime().UnixNano() && e.size == info.Size() {
		r.mu.Unlock()
		return e.rendered
	}
	r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		r.evict(path)
		return fmt.Sprintf("[FILE UNAVAILABLE: %s]", path)
	}

	content := string(data)
	truncated := false
	if len(content) > maxFileRenderChars {
		content = content[:maxFileRenderChars]
		truncated = true
	}

	rendered := fmt.Sprintf("<file path=%q>\n%s\n</file>", path, content)
	if truncated {
		rendered += "\n[... truncated]"
	}

	r.mu.Lock()
	r.cache[path] = cacheEntry{mtime: info.ModTime().UnixNano(), size: info.Size(), rendered: rendered}
	r.mu.Unlock()

	return rendered
}

func (r *FileRenderer) evict(path string) {
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
}

// RenderAll renders every pinned path and joins the results with blank
// lines, suitable for embedding in the system prompt's context-files block.
func (r *FileRenderer) RenderAll(paths []string) string {
	var parts []string
	for _, p := range paths {
		parts = append(parts, r.Render(p))
	}
	return strings.Join(parts, "\n\n")
}
