package retrieval

import (
	"path/filepath"
	"regexp"
	"time"
)

// CanonicalParseName is the file name every parse artifact is saved under,
// whichever method retrieved it.
const CanonicalParseName = "parse_result.json"

// longIDPattern matches internal task ids; such ids need no resolution.
var longIDPattern = regexp.MustCompile(`^\d{18,20}$`)

// IsTaskID reports whether id already has the shape of an internal task id.
func IsTaskID(id string) bool {
	return longIDPattern.MatchString(id)
}

// Method identifies which stage produced a retrieval outcome.
type Method string

// Retrieval methods in fallback order.
const (
	MethodDirectLink  Method = "direct_link"
	MethodPrecisePath Method = "precise_path"
	MethodBroadSearch Method = "broad_search"
	MethodRaw         Method = "raw"
)

// TaskIdentity names one unit of work.
type TaskIdentity struct {
	TaskType string `json:"task_type"`
	TaskID   string `json:"task_id"`
}

// ResolutionRecord is the relational lookup result for an external job id.
type ResolutionRecord struct {
	TaskID      string
	RawMetadata *string
}

// HasMetadata reports whether the record carries a non-empty metadata blob.
func (r ResolutionRecord) HasMetadata() bool {
	return r.RawMetadata != nil && *r.RawMetadata != ""
}

// ExtractedLinks holds download URLs found in raw metadata and the storage
// key the first matching URL points at. InferredPath is empty when unknown.
type ExtractedLinks struct {
	URLs         []string
	InferredPath string
}

// FileRecord describes one file written to disk.
type FileRecord struct {
	OriginalName string `json:"original_name"`
	SavedName    string `json:"saved_name"`
	LocalPath    string `json:"local_path"`
	SizeBytes    int64  `json:"size"`
	SHA256       string `json:"sha256,omitempty"`
}

// Outcome is what a single fetch stage reports.
type Outcome struct {
	Success  bool         `json:"success"`
	Method   Method       `json:"method"`
	Files    []FileRecord `json:"files"`
	SavePath string       `json:"save_path"`
	Err      string       `json:"error,omitempty"`
}

// Failed builds an unsuccessful outcome.
func Failed(method Method, err error) Outcome {
	return Outcome{Method: method, Err: err.Error()}
}

// Result is the caller-facing shape of a finished retrieval.
type Result struct {
	Success              bool         `json:"success"`
	FilesDownloaded      []FileRecord `json:"files_downloaded"`
	SavePath             string       `json:"save_path"`
	TotalFilesDownloaded int          `json:"total_files_downloaded"`
	MethodUsed           Method       `json:"method_used,omitempty"`
	Error                string       `json:"error,omitempty"`
}

// ObjectInfo is one entry returned from an object listing.
type ObjectInfo struct {
	Name    string
	Size    int64
	Updated time.Time
}

// TaskMapping is the bookkeeping row linking an external job id to the
// directory its artifacts were written to.
type TaskMapping struct {
	JobID        string    `json:"job_id"`
	TaskType     string    `json:"task_type"`
	TaskID       string    `json:"task_id"`
	RelativePath string    `json:"relative_path"`
	SavePath     string    `json:"save_path"`
	Method       Method    `json:"method,omitempty"`
	FileCount    int       `json:"file_count"`
	HasParseFile bool      `json:"has_parse_file"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Mapping statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SaveDir returns {root}/{task_type}/{task_id}.
func SaveDir(root string, identity TaskIdentity) string {
	return filepath.Join(root, identity.TaskType, identity.TaskID)
}

// RelativeDir returns the save directory relative to the save root in the
// "./{task_type}/{task_id}/" form used by bookkeeping.
func RelativeDir(identity TaskIdentity) string {
	return "./" + identity.TaskType + "/" + identity.TaskID + "/"
}
