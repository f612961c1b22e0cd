package types

import (
	"encoding/json"
	"sort"
)

const (
	SettingLocked          = "locked"
	SettingAllowedFeatures = "allowedFeatures"
)

// Settings is a session's teacher-controlled configuration.
// FUNCTIONAL DISCOVERY: Kept as a raw JSON object so a shallow merge never drops keys the relay
// does not know about; typed accessors cover the two well-known fields.
type Settings map[string]json.RawMessage

// DefaultSettings returns the settings every new session starts with
func DefaultSettings() Settings {
	return Settings{
		SettingLocked:          json.RawMessage(`true`),
		SettingAllowedFeatures: json.RawMessage(`[]`),
	}
}

// ParseSettings decodes a partial settings object; anything other than a JSON object is rejected
func ParseSettings(raw json.RawMessage) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil || s == nil {
		return nil, ErrInvalidSettings
	}
	return s, nil
}

// Clone returns an independent copy
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		out[k] = buf
	}
	return out
}

// Merge returns a copy of s with every top-level key of partial overwritten
func (s Settings) Merge(partial Settings) Settings {
	out := s.Clone()
	for k, v := range partial {
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		out[k] = buf
	}
	return out
}

// Locked reports the "locked" flag and whether it is present with a boolean value
func (s Settings) Locked() (locked bool, ok bool) {
	raw, exists := s[SettingLocked]
	if !exists {
		return false, false
	}
	if err := json.Unmarshal(raw, &locked); err != nil {
		return false, false
	}
	return locked, true
}

// AllowedFeatures returns the sorted allowed feature set; malformed values yield nil
func (s Settings) AllowedFeatures() []string {
	raw, exists := s[SettingAllowedFeatures]
	if !exists {
		return nil
	}
	var features []string
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil
	}
	seen := make(map[string]bool, len(features))
	unique := features[:0]
	for _, f := range features {
		if !seen[f] {
			seen[f] = true
			unique = append(unique, f)
		}
	}
	sort.Strings(unique)
	return unique
}
