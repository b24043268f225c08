package registry

import "github.com/goccy/go-json"

// Stage pairs a track with a program payload
type Stage struct {
	Track   string          `json:"track"`
	Program json.RawMessage `json:"program"`
}

// StageRequest is the body of POST /stage
type StageRequest struct {
	Stages   []Stage `json:"stages"`
	CommitAt string  `json:"commitAt,omitempty"`
}

// StageResponse is the reply to POST /stage
type StageResponse struct {
	Staged   int    `json:"staged"`
	CommitAt string `json:"commitAt"`
	Tracks   string `json:"tracks"`
}

// ProgramInfo summarizes a staged program
type ProgramInfo struct {
	Track      string  `json:"track"`
	Name       string  `json:"name"`
	Notes      int     `json:"notes"`
	LengthBars float64 `json:"lengthBars"`
	Source     string  `json:"source"` // memory or file
}

// PluginInfo is a registered instance
type PluginInfo struct {
	UUID  string `json:"uuid"`
	Track string `json:"track"`
}
