package storage

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Fabeuss/oasis/pkg/models"
)

// SniffLimit is the largest file whose content is inspected when the
// extension alone does not decide its kind.
const SniffLimit = 64 << 10

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true, ".log": true,
	".csv": true, ".tsv": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".ini": true, ".conf": true, ".cfg": true, ".env": true,
	".xml": true, ".html": true, ".htm": true, ".css": true, ".svg": true,
	".js": true, ".mjs": true, ".ts": true, ".tsx": true, ".jsx": true,
	".go": true, ".rs": true, ".py": true, ".rb": true, ".java": true,
	".kt": true, ".c": true, ".h": true, ".cc": true, ".cpp": true, ".hpp": true,
	".cs": true, ".php": true, ".lua": true, ".pl": true, ".swift": true,
	".sh": true, ".bash": true, ".zsh": true, ".ps1": true, ".bat": true,
	".sql": true, ".srt": true, ".vtt": true, ".ass": true, ".tex": true,
}

var binaryExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".avi": true, ".mov": true,
	".mp3": true, ".flac": true, ".ogg": true, ".wav": true, ".m4a": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".bmp": true, ".ico": true, ".heic": true, ".pdf": true, ".zip": true,
	".gz": true, ".tgz": true, ".bz2": true, ".xz": true, ".zst": true,
	".7z": true, ".rar": true, ".tar": true, ".iso": true, ".img": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true,
	".pptx": true, ".woff": true, ".woff2": true, ".ttf": true, ".otf": true,
}

// Classify returns the entry kind for a file at abs with the given stat.
//
// Directories are KindDirectory. Files are decided by extension first; files
// with an unknown extension are sniffed only when they are at most
// SniffLimit bytes, so large binaries are never opened. The result depends
// only on the name, the size and the file's leading bytes.
func Classify(abs string, info fs.FileInfo) models.EntryKind {
	if info.IsDir() {
		return models.KindDirectory
	}

	ext := strings.ToLower(filepath.Ext(info.Name()))
	switch {
	case textExtensions[ext]:
		return models.KindText
	case binaryExtensions[ext]:
		return models.KindBinary
	}

	if !info.Mode().IsRegular() || info.Size() > SniffLimit {
		return models.KindBinary
	}
	if info.Size() == 0 {
		return models.KindText
	}

	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return models.KindBinary
	}
	for ; mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return models.KindText
		}
	}
	return models.KindBinary
}

// IsText reports whether a file is classified as text.
func IsText(abs string, info fs.FileInfo) bool {
	return Classify(abs, info) == models.KindText
}
