package pipeline

import "time"

// BuildRequest represents a request to run a manifest job
type BuildRequest struct {
	Job          string            `json:"job"` // manifest_build, manifest_verify
	ManifestPath string            `json:"manifest_path,omitempty"`
	FailOnError  bool              `json:"fail_on_error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// BuildResponse represents the response from triggering a job
type BuildResponse struct {
	RunID   string         `json:"run_id"`
	Status  string         `json:"status"` // queued, succeeded, failed
	Error   string         `json:"error,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// RunStatus is the state of an async run
type RunStatus struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	State     string    `json:"state"` // pending, running, succeeded, failed, cancelled
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolveResponse is returned by the resolve endpoint
type ResolveResponse struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// Build response states
const (
	StatusQueued    = "queued"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Job constants
const (
	JobManifestBuild  = "manifest_build"
	JobManifestVerify = "manifest_verify"
)

// Size class names, smallest first
const (
	SizeThumbnail = "thumbnail"
	SizeSmall     = "small"
	SizeMedium    = "medium"
	SizeLarge     = "large"
	SizeOriginal  = "original"
)

// Output formats
const (
	FormatWebP = "webp"
	FormatJPG  = "jpg"
	FormatPNG  = "png"
)

// SizeOrder lists size classes in ascending order.
var SizeOrder = []string{SizeThumbnail, SizeSmall, SizeMedium, SizeLarge, SizeOriginal}

// SizeRank returns the position of a size class in SizeOrder, or -1.
func SizeRank(name string) int {
	for i, s := range SizeOrder {
		if s == name {
			return i
		}
	}
	return -1
}
