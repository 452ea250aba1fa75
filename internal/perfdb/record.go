package perfdb

import (
	"sort"
	"strings"

	"github.com/samcharles93/convtune/internal/fields"
)

// Record is one line of the perf database: a problem key mapped to the
// serialized payload of every solver that has tuned results for it.
// Records are values; mutating one does not touch the file until it is
// stored through a DB handle.
type Record struct {
	key    string
	values map[string]string
}

// NewRecord returns an empty record bound to key. The key must already be
// in its canonical serialized form.
func NewRecord(key string) *Record {
	return &Record{key: key, values: map[string]string{}}
}

// NewRecordFor serializes key through the fields codec and binds an empty
// record to it.
func NewRecordFor(key fields.Visitable) *Record {
	return NewRecord(fields.Encode(key))
}

// Key returns the serialized problem key the record is bound to.
func (r *Record) Key() string {
	return r.key
}

// Len returns the number of ids stored in the record.
func (r *Record) Len() int {
	return len(r.values)
}

// IDs returns the stored ids in sorted order.
func (r *Record) IDs() []string {
	ids := make([]string, 0, len(r.values))
	for id := range r.values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetValues encodes value under id, replacing any previous payload.
// It reports false if the id or the encoded payload would break the line
// grammar.
func (r *Record) SetValues(id string, value fields.Visitable) bool {
	return r.SetRaw(id, fields.Encode(value))
}

// SetRaw stores an already-encoded payload under id.
func (r *Record) SetRaw(id, payload string) bool {
	if !validText(id) || !validText(payload) {
		return false
	}
	r.values[id] = payload
	return true
}

// GetValues decodes the payload stored under id into value. It reports
// false, leaving value untouched, if the id is absent or the payload does
// not parse.
func (r *Record) GetValues(id string, value fields.Visitable) bool {
	payload, ok := r.values[id]
	if !ok {
		return false
	}
	return fields.Decode(payload, value)
}

// GetRaw returns the encoded payload stored under id.
func (r *Record) GetRaw(id string) (string, bool) {
	payload, ok := r.values[id]
	return payload, ok
}

// EraseValues removes id from the record, reporting whether it was present.
func (r *Record) EraseValues(id string) bool {
	if _, ok := r.values[id]; !ok {
		return false
	}
	delete(r.values, id)
	return true
}

// Merge overlays other onto r: ids present in other overwrite, ids only in
// r are kept. Both records must share a key.
func (r *Record) Merge(other *Record) {
	for id, payload := range other.values {
		r.values[id] = payload
	}
}

// writeLine renders the record in the canonical on-disk form
// key=id0:payload0;id1:payload1. Ids are emitted in sorted order so the
// rendering is deterministic; readers accept any order.
func (r *Record) writeLine(sb *strings.Builder) {
	sb.WriteString(r.key)
	sb.WriteByte('=')
	for i, id := range r.IDs() {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(id)
		sb.WriteByte(':')
		sb.WriteString(r.values[id])
	}
}

// parseRecord parses one database line. It reports false for anything that
// does not match the line grammar; callers preserve such lines verbatim.
func parseRecord(line string) (*Record, bool) {
	key, rest, ok := strings.Cut(line, "=")
	if !ok || !validText(key) || rest == "" {
		return nil, false
	}

	rec := NewRecord(key)
	for _, pair := range strings.Split(rest, ";") {
		id, payload, ok := strings.Cut(pair, ":")
		if !ok || !validText(id) || !validText(payload) {
			return nil, false
		}
		rec.values[id] = payload
	}
	return rec, true
}

// validText reports whether s may appear as a key, id or payload: it must
// be non-empty and free of the structural delimiters of the line grammar.
// The ',' field separator is allowed, keys and payloads are field tuples.
func validText(s string) bool {
	return s != "" && !strings.ContainsAny(s, ";=:")
}
