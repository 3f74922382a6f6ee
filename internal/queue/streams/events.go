package streams

import (
	"encoding/json"
	"time"
)

// Stream names.
const (
	// StreamRawDocs carries fetched documents from the ingestor to the
	// pipeline worker.
	StreamRawDocs = "ingest.raw"
	// StreamEvents carries broadcast events from the pipeline to the
	// websocket hub.
	StreamEvents = "broadcast.events"
)

// Consumer groups.
const (
	GroupPipeline  = "pipeline"
	GroupBroadcast = "broadcast"
)

// Event types on StreamRawDocs.
const EventRawDocument = "raw_document"

// Event types on StreamEvents; these are also the `type` field clients see
// on the websocket.
const (
	EventNewsUpdate      = "news_update"
	EventSentimentUpdate = "sentiment_update"
	EventAlphaUpdate     = "alpha_update"
)

// PayloadVersion is bumped when a payload shape changes incompatibly.
const PayloadVersion = "v1"

// RawDocument is a fetched, not-yet-normalized document.
type RawDocument struct {
	SourceName  string    `json:"source_name"`
	SourceKind  string    `json:"source_kind"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// BroadcastEvent is the payload fanned out to websocket subscribers. Tickers
// lists the symbols the event concerns; empty means every subscriber gets it.
type BroadcastEvent struct {
	Type    string          `json:"type"`
	Tickers []string        `json:"tickers,omitempty"`
	Data    json.RawMessage `json:"data"`
}
