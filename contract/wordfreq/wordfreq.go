// Package wordfreq defines the wire payloads exchanged between the requester and the
// analyzer-responder. Field names are part of the contract and must not change.
package wordfreq

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-wordfreq/contract/errors"
)

const (
	// DefaultSubject is the well-known request subject.
	DefaultSubject = "word.frequency"

	// DefaultTopN replaces any non-positive limit.
	DefaultTopN = 3
)

// Request asks for the TopN most frequent words in Text.
type Request struct {
	Text string `json:"text"`
	TopN int    `json:"topN"`
}

// Response carries the ranked words and the total token count of the input.
type Response struct {
	WordFrequencies []Item `json:"wordFrequencies"`
	TotalWords      int    `json:"totalWords"`
}

// Item is one distinct token and how often it occurred.
type Item struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// EffectiveLimit returns n when positive and DefaultTopN otherwise.
// Zero and negative limits are treated the same.
func EffectiveLimit(n int) int {
	if n > 0 {
		return n
	}

	return DefaultTopN
}

// Limit is EffectiveLimit applied to r.TopN.
func (r Request) Limit() int { return EffectiveLimit(r.TopN) }

// MarshalJSON keeps wordFrequencies an array on the wire even when empty.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response

	p := plain(r)
	if p.WordFrequencies == nil {
		p.WordFrequencies = []Item{}
	}

	return json.Marshal(p)
}

// DecodeRequest parses a request payload. Absent (empty or JSON null) and
// unparseable payloads return an error wrapping errors.ErrMalformedPayload.
func DecodeRequest(data []byte) (Request, error) {
	var req Request

	if err := decode(data, &req); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}

	return req, nil
}

// DecodeResponse parses a reply payload.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response

	if err := decode(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	return resp, nil
}

// Encode serializes a request or response payload.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, errors.Join(berr.ErrSerializationFailed, err))
	}

	return b, nil
}

func decode(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%w: empty payload", berr.ErrMalformedPayload)
	}

	if err := json.Unmarshal(trimmed, v); err != nil {
		return errors.Join(berr.ErrMalformedPayload, err)
	}

	return nil
}
