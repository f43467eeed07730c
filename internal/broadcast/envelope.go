package broadcast

import (
	"encoding/base64"
	"encoding/json"
)

// Wire event names. Existing consumers match these byte-for-byte, so
// field order and naming here must not change.
const (
	EventChunk = "chunk"
	EventClose = "close"
)

type Media struct {
	Payload string `json:"payload"`
	IsSync  bool   `json:"is_sync"`
}

// ChunkMessage is the envelope for one frame on the wire:
//
//	{"event":"chunk","media":{"payload":"<base64>","is_sync":true}}
type ChunkMessage struct {
	Event string `json:"event"`
	Media Media  `json:"media"`
}

// ControlMessage carries a payload-less event such as "close".
type ControlMessage struct {
	Event string `json:"event"`
}

// EncodeChunk wraps one frame payload in the chunk envelope.
func EncodeChunk(payload []byte) ([]byte, error) {
	return json.Marshal(ChunkMessage{
		Event: EventChunk,
		Media: Media{
			Payload: base64.StdEncoding.EncodeToString(payload),
			IsSync:  true,
		},
	})
}

// EncodeClose builds the end-of-stream control message.
func EncodeClose() ([]byte, error) {
	return json.Marshal(ControlMessage{Event: EventClose})
}
