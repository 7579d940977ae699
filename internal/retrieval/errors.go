package retrieval

import "errors"

var (
	// ErrNotFound indicates the external job id matched no task.
	ErrNotFound = errors.New("task not found")
	// ErrAmbiguous indicates one external id mapped to several task ids.
	ErrAmbiguous = errors.New("ambiguous task id")
	// ErrObjectNotFound is returned by object stores for missing keys.
	ErrObjectNotFound = errors.New("object not found")
	// ErrNoLinks indicates metadata yielded no downloadable URL.
	ErrNoLinks = errors.New("no download links")
	// ErrAllMethodsFailed is reported when every retrieval stage failed.
	ErrAllMethodsFailed = errors.New("all methods failed")
	// ErrMappingNotFound is returned by mapping stores for unknown job ids.
	ErrMappingNotFound = errors.New("mapping not found")
)
