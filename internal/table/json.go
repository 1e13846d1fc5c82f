package table

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The wire encoding of the application-policies section is a single
// JSON object keyed by application id, with "device" as one of the
// keys. Each value is null (revoked), a string (predefined-policy
// reference), or an object (full field set). The tagged AppEntry
// variant maps onto exactly those three shapes.

// MarshalJSON encodes the entry as null, a JSON string, or the params
// object, depending on the variant kind.
func (e AppEntry) MarshalJSON() ([]byte, error) {
	if err := e.Check(); err != nil {
		return nil, fmt.Errorf("app entry: %w", err)
	}
	switch e.Kind {
	case EntryNull:
		return []byte("null"), nil
	case EntryRef:
		return json.Marshal(e.Ref)
	default:
		return json.Marshal(e.Params)
	}
}

// UnmarshalJSON decodes the three wire shapes back into the variant.
func (e *AppEntry) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*e = NullEntry()
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var target string
		if err := json.Unmarshal(trimmed, &target); err != nil {
			return fmt.Errorf("app entry ref: %w", err)
		}
		entry := RefEntry(target)
		if err := entry.Check(); err != nil {
			return fmt.Errorf("app entry: %w", err)
		}
		*e = entry
		return nil
	}
	var params AppParams
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return fmt.Errorf("app entry params: %w", err)
	}
	*e = FullEntry(params)
	return nil
}

// MarshalJSON flattens the device entry into the application map, the
// way the section appears on the wire.
func (p AppPolicies) MarshalJSON() ([]byte, error) {
	flat := make(map[string]json.RawMessage, len(p.Apps)+1)
	for id, entry := range p.Apps {
		if id == DeviceID {
			return nil, fmt.Errorf("app policies: %q must not appear in Apps", DeviceID)
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("app policies: %s: %w", id, err)
		}
		flat[id] = raw
	}
	raw, err := json.Marshal(p.Device)
	if err != nil {
		return nil, fmt.Errorf("app policies: device: %w", err)
	}
	flat[DeviceID] = raw
	return json.Marshal(flat)
}

// UnmarshalJSON splits the wire map back into the device entry and the
// per-application variants.
func (p *AppPolicies) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("app policies: %w", err)
	}
	p.Apps = make(map[string]AppEntry, len(flat))
	for id, raw := range flat {
		if id == DeviceID {
			if err := json.Unmarshal(raw, &p.Device); err != nil {
				return fmt.Errorf("app policies: device: %w", err)
			}
			continue
		}
		var entry AppEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("app policies: %s: %w", id, err)
		}
		p.Apps[id] = entry
	}
	return nil
}

// ParseDocument decodes a policy document from its wire JSON form.
func ParseDocument(data []byte) (*PolicyDocument, error) {
	var doc PolicyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	return &doc, nil
}

// EncodeDocument renders the document as indented wire JSON. Map keys
// are emitted in sorted order, so the output is deterministic for a
// given document and suitable for golden comparisons.
func EncodeDocument(doc *PolicyDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode policy document: %w", err)
	}
	return data, nil
}
