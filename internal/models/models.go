package models

import "time"

// SessionResponse is the API projection of one splitting session
type SessionResponse struct {
	ID           string      `json:"id"`
	Filename     string      `json:"filename,omitempty"`
	State        string      `json:"state"`
	Progress     int         `json:"progress"`
	SourceWidth  int         `json:"source_width,omitempty"`
	SourceHeight int         `json:"source_height,omitempty"`
	SliceHeight  int         `json:"slice_height,omitempty"`
	Slices       []SliceItem `json:"slices"`
	Selection    []int       `json:"selection"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SliceItem describes one slice of the source image
type SliceItem struct {
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// SelectionRequest is the body of PUT /api/sessions/{id}/selection
type SelectionRequest struct {
	Indices []int `json:"indices"`
}

// ExportRequest is the body of POST /api/sessions/{id}/export
type ExportRequest struct {
	Format string `json:"format"`
}
