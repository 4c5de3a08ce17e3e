package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// GetGlobalDir returns the root Quill directory in the user's home (~/.quill)
func GetGlobalDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".quill")
}

// GetWorkspaceHash returns a short SHA256 hash of the absolute workspace path
func GetWorkspaceHash(workspaceRoot string) string {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		abs = workspaceRoot
	}
	hash := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(hash[:8])
}

// GetTraceDir returns the global directory holding execution traces
func GetTraceDir() string {
	return filepath.Join(GetGlobalDir(), "traces")
}

// GetSessionDir returns the global chat session directory
func GetSessionDir() string {
	return filepath.Join(GetGlobalDir(), "sessions")
}

// GetIndexDir returns the directory for local vector index files
func GetIndexDir() string {
	return filepath.Join(GetGlobalDir(), "index")
}

// GetCorpusDir returns the directory holding ingested document corpora
func GetCorpusDir() string {
	return filepath.Join(GetGlobalDir(), "corpus")
}

// GetBlueprintDir returns the directory for context blueprint files
func GetBlueprintDir() string {
	return filepath.Join(GetGlobalDir(), "blueprints")
}

// GetLogDir returns the global log directory for a specific workspace
func GetLogDir(workspaceRoot string) string {
	hash := GetWorkspaceHash(workspaceRoot)
	return filepath.Join(GetGlobalDir(), "logs", hash)
}

// GetTmpDir returns the global temporary directory
func GetTmpDir() string {
	return filepath.Join(GetGlobalDir(), "tmp")
}

// EnsureDir creates the directory and all parents if they don't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
