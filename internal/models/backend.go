package models

// Item is a single extracted record as returned by the scan service
type Item map[string]any

// EndpointRef identifies a collection of ingested items
type EndpointRef struct {
	Path  string `json:"path"`
	Count int    `json:"count,omitempty"`
}

// ScanResult is the outcome of a text or file scan
type ScanResult struct {
	Endpoint string `json:"endpoint"`
	Item     Item   `json:"item"`
}

// EndpointData holds the items stored under one endpoint
type EndpointData struct {
	Items      []Item `json:"items"`
	TotalCount int    `json:"total"`
}

// UsageStats describes the account's plan consumption
type UsageStats struct {
	Tier  string `json:"tier"`
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
}

// ScanOptions tunes how a file is processed
type ScanOptions struct {
	Vision bool
}

// Result wraps a collaborator call so failures travel as values
type Result[T any] struct {
	Success bool
	Data    T
	Error   string
}

// Succeeded builds a successful result
func Succeeded[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Failed builds a failed result
func Failed[T any](err error) Result[T] {
	return Result[T]{Error: err.Error()}
}
