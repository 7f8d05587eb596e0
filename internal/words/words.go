package words

import (
	"encoding/json"
	"fmt"
	"os"
)

// Dictionary holds the word pools keywords are drawn from, grouped by part
// of speech. Derivation indexes into the flattened list from All, so the
// group ordering is load-bearing: editing or reordering words changes which
// word every block maps to.
type Dictionary struct {
	Nouns      []string `json:"nouns"`
	Verbs      []string `json:"verbs"`
	Adjectives []string `json:"adjectives"`
}

// Load reads a dictionary from a JSON file.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read words file: %w", err)
	}
	var d Dictionary
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse words file: %w", err)
	}
	if d.Count() == 0 {
		return nil, fmt.Errorf("words file %s contains no words", path)
	}
	return &d, nil
}

// All returns every word as a single flat list: nouns, then verbs, then
// adjectives, each group in declaration order.
func (d *Dictionary) All() []string {
	out := make([]string, 0, d.Count())
	out = append(out, d.Nouns...)
	out = append(out, d.Verbs...)
	out = append(out, d.Adjectives...)
	return out
}

// Count returns the total number of words across all groups.
func (d *Dictionary) Count() int {
	return len(d.Nouns) + len(d.Verbs) + len(d.Adjectives)
}

// Default returns the built-in dictionary used when no words file exists.
func Default() *Dictionary {
	return &Dictionary{
		Nouns: []string{
			"ember", "horizon", "river", "lantern", "thread", "mirror", "harbor", "echo",
			"garden", "thunder", "sparrow", "marble", "compass", "ripple", "dawn", "twilight",
			"meadow", "glacier", "anchor", "feather", "prism", "canyon", "tide", "moss",
			"labyrinth", "beacon", "cinder", "dusk", "fog", "grove", "island", "keystone",
			"ladder", "nectar", "orchard", "pillar", "quarry", "reef", "signal", "temple",
			"vessel", "willow", "zenith", "aurora", "basalt", "cascade", "delta", "estuary",
			"geyser", "haven", "juniper", "kelp", "lagoon", "monolith", "nebula", "obsidian",
			"pendulum", "quartz", "summit", "tundra", "veil", "wharf", "zephyr", "ash",
		},
		Verbs: []string{
			"wander", "shimmer", "unravel", "gather", "drift", "bloom", "fracture", "murmur",
			"ascend", "linger", "dissolve", "flicker", "weave", "plunge", "scatter", "kindle",
			"erode", "hum", "orbit", "tremble", "surge", "whisper", "fold", "ignite",
			"carve", "glisten", "tumble", "braid", "summon", "recede", "sprawl", "quiver",
			"mend", "swell", "burrow", "glide", "ripen", "smolder", "wilt", "beckon",
			"roam", "settle", "stir", "descend", "awaken", "crumble", "drown", "sift",
		},
		Adjectives: []string{
			"silver", "hollow", "restless", "amber", "quiet", "feral", "luminous", "brittle",
			"sapphire", "weathered", "tender", "molten", "pale", "verdant", "somber", "gilded",
			"wayward", "crimson", "slender", "ancient", "velvet", "untamed", "fleeting", "opaline",
			"dusky", "ragged", "sacred", "cobalt", "mournful", "radiant", "threadbare", "wistful",
			"scarlet", "frostbitten", "nameless", "boundless", "umber", "crooked", "sleepless", "vivid",
			"ashen", "tidal", "lunar", "emerald", "furtive", "solemn", "winding", "bright",
		},
	}
}
