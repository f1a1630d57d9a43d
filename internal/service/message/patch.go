package message

import (
	"bytes"
	"encoding/json"
	"sort"

	"webmail/internal/apperr"
	"webmail/internal/model"
)

// Patch is a validated update request.
type Patch struct {
	Flags   model.FlagPatch
	Version *int64
}

// ParsePatch accepts only isRead, isImportant and version. Any other key,
// or a value of the wrong type, is a validation error.
func ParsePatch(raw map[string]json.RawMessage) (Patch, error) {
	var p Patch
	v := &apperr.ValidationError{}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		val := raw[k]
		if bytes.Equal(bytes.TrimSpace(val), []byte("null")) {
			v.Add(k, "Field cannot be null")
			continue
		}
		switch k {
		case "isRead":
			var b bool
			if err := json.Unmarshal(val, &b); err != nil {
				v.Add(k, "isRead must be boolean")
				continue
			}
			p.Flags.IsRead = &b
		case "isImportant":
			var b bool
			if err := json.Unmarshal(val, &b); err != nil {
				v.Add(k, "isImportant must be boolean")
				continue
			}
			p.Flags.IsImportant = &b
		case "version":
			var n int64
			if err := json.Unmarshal(val, &n); err != nil || n < 1 {
				v.Add(k, "version must be a positive integer")
				continue
			}
			p.Version = &n
		default:
			v.Add(k, "Field cannot be updated")
		}
	}
	if err := v.OrNil(); err != nil {
		return Patch{}, err
	}
	return p, nil
}
