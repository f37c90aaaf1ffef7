// Package lumen provides a Go connector for shipping application lifecycle
// events to a Lumen collector.
//
// Events are opaque, pre-serialized strings. The connector accumulates them
// in memory, batches them into bounded payloads, and delivers them over HTTP
// from a background goroutine so the instrumented application's critical path
// never blocks on the network. A second background goroutine sends periodic
// heartbeats. On shutdown the connector drains the pending queue (bounded by
// a timeout) and sends a final acknowledgment.
package lumen

import (
	"encoding/json"
)

// SDKVersion is the current version of the connector.
const SDKVersion = "0.1.0"

// Collector endpoint paths, relative to the collector base URL.
const (
	pathBulk      = "/bulk"
	pathHeartbeat = "/heartbeat"
	pathAck       = "/ack"
)

// counterSnapshot carries the cumulative send counters included in every
// bulk payload. Counters reflect attempted sends: they are taken after the
// pre-send increment, so a payload that later fails still advanced them.
type counterSnapshot struct {
	Events   int64 `json:"events"`
	Payloads int64 `json:"payloads"`
}

// bulkRequest is the wire payload for the bulk endpoint.
type bulkRequest struct {
	AppID    string          `json:"app_id"`
	Events   []string        `json:"events"`
	Counters counterSnapshot `json:"counters"`
}

// identityRequest is the wire payload for the heartbeat and ack endpoints.
type identityRequest struct {
	AppID string `json:"app_id"`
}

// serverMessage extracts the optional human-readable diagnostic from an
// error response body. Returns empty string when the body is not JSON or
// carries no message.
func serverMessage(body []byte) string {
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Message
}
