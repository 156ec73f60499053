package palette

import (
	"bytes"
	"emojimosaic/internal/colorspace"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
)

const (
	SchemaVersion  = 1
	cacheKeyPrefix = "emoji-color-cache"
)

var ErrInvalidRecord = errors.New("invalid palette cache record")

var (
	recordKeys    = []string{"version", "paletteId", "colors", "timestamp"}
	entryKeys     = []string{"char", "oklch", "rgb"}
	forbiddenKeys = []string{"__proto__", "constructor", "prototype"}
)

type record struct {
	Version   int           `json:"version"`
	PaletteID string        `json:"paletteId"`
	Colors    []recordColor `json:"colors"`
	Timestamp int64         `json:"timestamp"`
}

type recordColor struct {
	Char  string     `json:"char"`
	OKLCH [3]float64 `json:"oklch"`
	RGB   [3]int     `json:"rgb"`
}

func CacheKey(paletteID string) string {
	return fmt.Sprintf("%s-v%d-%s", cacheKeyPrefix, SchemaVersion, paletteID)
}

// EncodeRecord serializes profiles for persistence. The timestamp is in
// milliseconds since the Unix epoch.
func EncodeRecord(paletteID string, profiles []Profile, at time.Time) ([]byte, error) {
	payload := record{
		Version:   SchemaVersion,
		PaletteID: paletteID,
		Timestamp: at.UnixMilli(),
		Colors: lo.Map(profiles, func(profile Profile, _ int) recordColor {
			return recordColor{
				Char:  profile.Glyph,
				OKLCH: [3]float64{profile.OKLCH.L, profile.OKLCH.C, profile.OKLCH.H},
				RGB:   [3]int{int(profile.RGB[0]), int(profile.RGB[1]), int(profile.RGB[2])},
			}
		}),
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode palette record %s: %w", paletteID, err)
	}
	return encoded, nil
}

// DecodeRecord validates a persisted record against definition and returns
// its profiles in definition order. The record is rejected as a whole for
// structural problems; individual malformed, unknown, or repeated entries
// are dropped. At least one entry has to survive.
func DecodeRecord(payload []byte, definition Definition) ([]Profile, error) {
	fields, err := decodeObject(payload)
	if err != nil {
		return nil, invalidRecord("%v", err)
	}

	for key := range fields {
		if lo.Contains(forbiddenKeys, key) {
			return nil, invalidRecord("forbidden key %q", key)
		}
		if !lo.Contains(recordKeys, key) {
			return nil, invalidRecord("unexpected key %q", key)
		}
	}

	var version int
	rawVersion, ok := fields["version"]
	if !ok || json.Unmarshal(rawVersion, &version) != nil {
		return nil, invalidRecord("missing or malformed version")
	}
	if version != SchemaVersion {
		return nil, invalidRecord("version %d, want %d", version, SchemaVersion)
	}

	if rawID, ok := fields["paletteId"]; ok {
		var paletteID string
		if err := json.Unmarshal(rawID, &paletteID); err != nil {
			return nil, invalidRecord("malformed paletteId")
		}
		if paletteID != definition.ID {
			return nil, invalidRecord("paletteId %q, want %q", paletteID, definition.ID)
		}
	}

	if rawTimestamp, ok := fields["timestamp"]; ok {
		var timestamp float64
		if err := json.Unmarshal(rawTimestamp, &timestamp); err != nil {
			return nil, invalidRecord("malformed timestamp")
		}
	}

	var entries []json.RawMessage
	rawColors, ok := fields["colors"]
	if !ok || json.Unmarshal(rawColors, &entries) != nil || entries == nil {
		return nil, invalidRecord("colors must be a list")
	}

	byGlyph := make(map[string]Profile, len(entries))
	for _, entry := range entries {
		profile, ok := decodeEntry(entry)
		if !ok || !definition.contains(profile.Glyph) {
			continue
		}
		if _, seen := byGlyph[profile.Glyph]; seen {
			continue
		}
		byGlyph[profile.Glyph] = profile
	}

	profiles := lo.FilterMap(definition.Glyphs, func(glyph string, _ int) (Profile, bool) {
		profile, ok := byGlyph[glyph]
		return profile, ok
	})
	if len(profiles) == 0 {
		return nil, invalidRecord("no usable colors")
	}

	return profiles, nil
}

func decodeEntry(raw json.RawMessage) (Profile, bool) {
	fields, err := decodeObject(raw)
	if err != nil {
		return Profile{}, false
	}
	for key := range fields {
		if !lo.Contains(entryKeys, key) {
			return Profile{}, false
		}
	}

	var glyph string
	if json.Unmarshal(fields["char"], &glyph) != nil || glyph == "" {
		return Profile{}, false
	}

	values, ok := decodeNumbers(fields["oklch"])
	if !ok || values[0] < 0 || values[1] < 0 {
		return Profile{}, false
	}
	oklch := colorspace.OKLCH{L: values[0], C: values[1], H: colorspace.NormalizeHue(values[2])}

	profile := Profile{Glyph: glyph, OKLCH: oklch}
	if rawRGB, present := fields["rgb"]; present {
		channels, ok := decodeNumbers(rawRGB)
		if !ok {
			return Profile{}, false
		}
		for index, channel := range channels {
			if channel < 0 || channel > 255 || channel != math.Trunc(channel) {
				return Profile{}, false
			}
			profile.RGB[index] = uint8(channel)
		}
	} else {
		red, green, blue := oklch.ToRGB()
		profile.RGB = [3]uint8{red, green, blue}
	}

	return profile, true
}

func decodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeNumbers(raw json.RawMessage) ([3]float64, bool) {
	var items []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &items) != nil || len(items) != 3 {
		return [3]float64{}, false
	}

	var values [3]float64
	for index, item := range items {
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			return [3]float64{}, false
		}
		if json.Unmarshal(item, &values[index]) != nil {
			return [3]float64{}, false
		}
		if math.IsNaN(values[index]) || math.IsInf(values[index], 0) {
			return [3]float64{}, false
		}
	}
	return values, true
}

func invalidRecord(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRecord, fmt.Sprintf(format, args...))
}
