package palette

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

var ErrUnknownPalette = errors.New("unknown palette")

const DefaultID = "classic"

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,47}$`)

// Definition is a named, ordered glyph list usable as mosaic tiles.
type Definition struct {
	ID     string   `json:"id" yaml:"id"`
	Label  string   `json:"label" yaml:"label"`
	Glyphs []string `json:"glyphs" yaml:"glyphs"`
}

var builtinDefinitions = []Definition{
	{
		ID:    "classic",
		Label: "Classic",
		Glyphs: []string{
			"😀", "😂", "😍", "😎", "🤔", "😴", "😡", "🥶", "🤢", "👻",
			"💀", "🎃", "⭐", "🌈", "☀️", "🌙", "❄️", "🔥", "💧", "🍀",
			"🍎", "🍊", "🍋", "🍇", "🍉", "🍫", "🥥", "⚫", "⚪", "🟤",
		},
	},
	{
		ID:    "nature",
		Label: "Nature",
		Glyphs: []string{
			"🌲", "🌳", "🌴", "🌵", "🌱", "🌿", "🍀", "🍁", "🍂", "🍃",
			"🌸", "🌺", "🌻", "🌼", "🌷", "🍄", "🪨", "🌾", "🐝", "🐞",
			"🦋", "🐛", "🌊", "☀️", "🌙", "⛰️", "🌧️", "❄️", "🪵", "🐸",
		},
	},
	{
		ID:    "ocean",
		Label: "Ocean",
		Glyphs: []string{
			"🌊", "🐳", "🐋", "🐬", "🐟", "🐠", "🐡", "🦈", "🐙", "🦑",
			"🦀", "🦞", "🦐", "🐚", "🪸", "🏝️", "⚓", "🧊", "💧", "💙",
			"🔵", "🟦", "🩵", "🐢", "🦭", "⛵", "🌅", "🫧",
		},
	},
	{
		ID:    "fire",
		Label: "Fire",
		Glyphs: []string{
			"🔥", "💥", "☄️", "🌋", "🌶️", "🧨", "🎇", "🎆", "☀️", "🌅",
			"🍁", "🍂", "🦊", "🐉", "❤️", "🧡", "💛", "🟥", "🟧", "🟨",
			"⬛", "🟫", "🍊", "🥵", "🚒", "🧯",
		},
	},
	{
		ID:    "matrix",
		Label: "Matrix",
		Glyphs: []string{
			"💚", "🟩", "🟢", "✅", "🍏", "🥒", "🥦", "🐍", "🦎", "🐸",
			"🌿", "🍀", "⬛", "🖤", "⚫", "💻", "📟", "🔋", "🧪", "☢️",
			"👾", "🤖", "💾", "📗", "🔰",
		},
	},
	{
		ID:    "love",
		Label: "Love",
		Glyphs: []string{
			"❤️", "🧡", "💛", "💚", "💙", "💜", "🖤", "🤍", "🤎", "💖",
			"💗", "💓", "💞", "💕", "💘", "💝", "💟", "❣️", "💋", "🌹",
			"🌷", "🍓", "🍒", "💐", "🥰", "😍", "😘", "💌", "🩷", "🩵",
		},
	},
}

// Registry resolves palette ids to definitions. Built-in palettes always
// exist and cannot be redefined.
type Registry struct {
	order       []string
	definitions map[string]Definition
}

func NewRegistry(extra ...Definition) (*Registry, error) {
	registry := &Registry{definitions: make(map[string]Definition)}

	for _, definition := range builtinDefinitions {
		if err := registry.add(definition); err != nil {
			return nil, err
		}
	}
	for _, definition := range extra {
		if err := registry.add(definition); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func (r *Registry) add(definition Definition) error {
	normalized, err := normalizeDefinition(definition)
	if err != nil {
		return err
	}
	if _, exists := r.definitions[normalized.ID]; exists {
		return fmt.Errorf("palette %q is already defined", normalized.ID)
	}

	r.definitions[normalized.ID] = normalized
	r.order = append(r.order, normalized.ID)
	return nil
}

func normalizeDefinition(definition Definition) (Definition, error) {
	id := strings.ToLower(strings.TrimSpace(definition.ID))
	if !idPattern.MatchString(id) {
		return Definition{}, fmt.Errorf("invalid palette id %q", definition.ID)
	}

	glyphs := lo.Uniq(lo.FilterMap(definition.Glyphs, func(glyph string, _ int) (string, bool) {
		trimmed := strings.TrimSpace(glyph)
		return trimmed, trimmed != ""
	}))
	if len(glyphs) == 0 {
		return Definition{}, fmt.Errorf("palette %q has no glyphs", id)
	}

	label := strings.TrimSpace(definition.Label)
	if label == "" {
		label = id
	}

	return Definition{ID: id, Label: label, Glyphs: glyphs}, nil
}

func (r *Registry) Lookup(id string) (Definition, bool) {
	definition, ok := r.definitions[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Definition{}, false
	}

	definition.Glyphs = append([]string(nil), definition.Glyphs...)
	return definition, true
}

func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) Definitions() []Definition {
	return lo.Map(r.order, func(id string, _ int) Definition {
		definition, _ := r.Lookup(id)
		return definition
	})
}

func (d Definition) contains(glyph string) bool {
	return lo.Contains(d.Glyphs, glyph)
}
