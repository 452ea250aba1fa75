package api

import (
	"io"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/convtune/internal/perfdb"
)

// RecordList is the GET /v1/records body.
type RecordList struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// RecordBody is the wire shape of one stored record.
type RecordBody struct {
	Key    string            `json:"key"`
	Values map[string]string `json:"values"`
}

// PutValueRequest carries one raw payload for PUT /v1/records/:key/:id.
type PutValueRequest struct {
	Payload string `json:"payload"`
}

func recordDTO(rec *perfdb.Record) RecordBody {
	values := make(map[string]string, rec.Len())
	for _, id := range rec.IDs() {
		if payload, ok := rec.GetRaw(id); ok {
			values[id] = payload
		}
	}
	return RecordBody{Key: rec.Key(), Values: values}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
