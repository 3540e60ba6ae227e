// Package defs contains shared definitions.
package defs

import (
	"time"

	"github.com/google/uuid"
)

// APIError is a generic error.
type APIError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// APIOK is a generic success response.
type APIOK struct {
	Status string `json:"status"`
}

// APIInfo contains informations about the instance.
type APIInfo struct {
	Version string    `json:"version"`
	Started time.Time `json:"started"`
}

// APITrimState is the state of a trim job.
type APITrimState string

// states.
const (
	APITrimStateValidating APITrimState = "validating"
	APITrimStateCopying    APITrimState = "copying"
	APITrimStateCompleted  APITrimState = "completed"
	APITrimStateCancelled  APITrimState = "cancelled"
	APITrimStateFailed     APITrimState = "failed"
)

// APITrimAddRequest is a request to start a trim job.
type APITrimAddRequest struct {
	Source string `json:"source"`

	// file name inside the output directory.
	// When empty, a name is generated from the current time.
	Name string `json:"name"`

	StartMs int64 `json:"startMs"`
	EndMs   int64 `json:"endMs"`
}

// APITrim is a trim job.
type APITrim struct {
	ID           uuid.UUID    `json:"id"`
	Created      time.Time    `json:"created"`
	Finished     *time.Time   `json:"finished"`
	Source       string       `json:"source"`
	Destination  string       `json:"destination"`
	StartMs      int64        `json:"startMs"`
	EndMs        int64        `json:"endMs"`
	State        APITrimState `json:"state"`
	Progress     float64      `json:"progress"`
	BytesWritten uint64       `json:"bytesWritten"`
	Error        *string      `json:"error"`
}

// APITrimList is a list of trim jobs.
type APITrimList struct {
	ItemCount int        `json:"itemCount"`
	PageCount int        `json:"pageCount"`
	Items     []*APITrim `json:"items"`
}

// APIProbeTrack is a track of a probed file.
type APIProbeTrack struct {
	Type         string `json:"type"`
	Codec        string `json:"codec"`
	TimeScale    uint32 `json:"timeScale"`
	DurationMs   int64  `json:"durationMs"`
	Language     string `json:"language"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	SampleRate   int    `json:"sampleRate,omitempty"`
	ChannelCount int    `json:"channelCount,omitempty"`
}

// APIProbe describes a media file.
type APIProbe struct {
	Path       string          `json:"path"`
	DurationMs int64           `json:"durationMs"`
	Tracks     []APIProbeTrack `json:"tracks"`
}

// APIOutput is a file inside the output directory.
type APIOutput struct {
	Name     string    `json:"name"`
	Size     uint64    `json:"size"`
	Modified time.Time `json:"modified"`
}

// APIOutputList is a list of output files.
type APIOutputList struct {
	ItemCount int          `json:"itemCount"`
	PageCount int          `json:"pageCount"`
	Items     []*APIOutput `json:"items"`
}

// APIProcessing is the processing service as seen by the API.
type APIProcessing interface {
	Submit(req *APITrimAddRequest) (*APITrim, error)
	List() []*APITrim
	Get(id uuid.UUID) (*APITrim, error)
	Cancel(id uuid.UUID) error
	Probe(path string) (*APIProbe, error)
	Outputs() ([]*APIOutput, error)
}
