package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// SectorDelimiter separates sector names when a set is stored as one string
const SectorDelimiter = ","

// SectorSet is the ordered, duplicate-free set of sector names a manager is
// accountable for. Storage and API payloads may carry it either as a delimited
// string ("UTI,ER") or as a list (["UTI","ER"]); both decode to the same set.
type SectorSet []string

// ParseSectorSet normalizes any supported representation into a SectorSet.
// Accepted inputs: nil, string, []string, []interface{} of strings,
// SectorSet and raw JSON bytes.
func ParseSectorSet(raw interface{}) (SectorSet, error) {
	switch v := raw.(type) {
	case nil:
		return SectorSet{}, nil
	case SectorSet:
		return normalizeSectors(v), nil
	case []string:
		return normalizeSectors(v), nil
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("sector list contains non-string value %v", item)
			}
			names = append(names, name)
		}
		return normalizeSectors(names), nil
	case []byte:
		return parseStoredSectors(string(v))
	case string:
		return parseStoredSectors(v)
	default:
		return nil, fmt.Errorf("unsupported sector set representation %T", raw)
	}
}

// parseStoredSectors handles the string shapes: a JSON array or a delimited list
func parseStoredSectors(s string) (SectorSet, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") {
		var names []string
		if err := json.Unmarshal([]byte(trimmed), &names); err != nil {
			return nil, fmt.Errorf("invalid sector list: %w", err)
		}
		return normalizeSectors(names), nil
	}
	return normalizeSectors(strings.Split(trimmed, SectorDelimiter)), nil
}

// normalizeSectors trims names, drops empties and keeps the first occurrence of duplicates
func normalizeSectors(names []string) SectorSet {
	out := make(SectorSet, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Contains reports an exact, case-sensitive match
func (s SectorSet) Contains(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}
	return false
}

// String returns the delimited form
func (s SectorSet) String() string {
	return strings.Join(s, SectorDelimiter)
}

// Scan implements the sql.Scanner interface
func (s *SectorSet) Scan(value interface{}) error {
	parsed, err := ParseSectorSet(value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements the driver.Valuer interface. Sets are always written as a JSON array.
func (s SectorSet) Value() (driver.Value, error) {
	data, err := json.Marshal(normalizeSectors(s))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// MarshalJSON always emits a list
func (s SectorSet) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(normalizeSectors(s)))
}

// UnmarshalJSON accepts a JSON string or a JSON list
func (s *SectorSet) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSectorSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
