package domain

import "fmt"

// SourceError scopes a failure to a single source poll.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.Source, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// EnrichmentError scopes a summarization failure to a single item.
type EnrichmentError struct {
	ItemID string
	Err    error
}

func (e *EnrichmentError) Error() string { return fmt.Sprintf("enrich %s: %v", e.ItemID, e.Err) }
func (e *EnrichmentError) Unwrap() error { return e.Err }

// StoreError scopes a storage failure to the operation that produced it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// SinkError scopes a delivery failure to one (item, sink) pair.
type SinkError struct {
	Sink   string
	ItemID string
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s, item %s: %v", e.Sink, e.ItemID, e.Err)
}
func (e *SinkError) Unwrap() error { return e.Err }
