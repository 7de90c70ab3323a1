package actors

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/crestline-sec/intelpipe/internal/model"
)

// AliasGroup is one curated actor entry: a canonical name plus the other
// names reporting uses for the same group.
type AliasGroup struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

type aliasFile struct {
	Groups []AliasGroup `yaml:"groups"`
}

// AliasTable resolves actor names to their curated group.
type AliasTable struct {
	groups []AliasGroup
	// byName maps every normalized name (canonical and alias) to its
	// group index.
	byName map[string]int
}

// defaultGroups seeds the table with the well-known multi-name actors.
// A curated YAML file extends or overrides this set.
var defaultGroups = []AliasGroup{
	{Canonical: "Scattered Spider", Aliases: []string{"UNC3944", "Roasted 0ktapus", "Octo Tempest", "Starfraud"}},
	{Canonical: "APT29", Aliases: []string{"Cozy Bear", "Midnight Blizzard", "NOBELIUM", "The Dukes"}},
	{Canonical: "APT28", Aliases: []string{"Fancy Bear", "Forest Blizzard", "Sofacy", "STRONTIUM"}},
	{Canonical: "Lazarus Group", Aliases: []string{"Hidden Cobra", "Diamond Sleet", "ZINC"}},
	{Canonical: "FIN7", Aliases: []string{"Carbanak Group", "Sangria Tempest"}},
	{Canonical: "ALPHV", Aliases: []string{"BlackCat", "Noberus"}},
	{Canonical: "LockBit", Aliases: []string{"Bitwise Spider"}},
	{Canonical: "Volt Typhoon", Aliases: []string{"BRONZE SILHOUETTE", "Vanguard Panda"}},
	{Canonical: "Sandworm", Aliases: []string{"Seashell Blizzard", "IRIDIUM", "Voodoo Bear"}},
	{Canonical: "Kimsuky", Aliases: []string{"Emerald Sleet", "Velvet Chollima"}},
}

// DefaultAliasTable returns the built-in table.
func DefaultAliasTable() *AliasTable {
	return newAliasTable(defaultGroups)
}

// LoadAliasTable reads a curated YAML alias file and merges it over the
// built-in table. An empty path returns the built-in table unchanged.
func LoadAliasTable(path string) (*AliasTable, error) {
	if path == "" {
		return DefaultAliasTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "actors: read alias table %s", path)
	}
	var f aliasFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrap(err, "actors: parse alias table")
	}
	return newAliasTable(append(append([]AliasGroup{}, defaultGroups...), f.Groups...)), nil
}

func newAliasTable(groups []AliasGroup) *AliasTable {
	t := &AliasTable{byName: make(map[string]int)}
	for _, g := range groups {
		idx, exists := t.byName[model.NormalizeText(g.Canonical)]
		if exists {
			// Later entries extend an existing group.
			t.groups[idx].Aliases = append(t.groups[idx].Aliases, g.Aliases...)
		} else {
			idx = len(t.groups)
			t.groups = append(t.groups, AliasGroup{Canonical: g.Canonical, Aliases: append([]string{}, g.Aliases...)})
			t.byName[model.NormalizeText(g.Canonical)] = idx
		}
		for _, a := range g.Aliases {
			t.byName[model.NormalizeText(a)] = idx
		}
	}
	return t
}

// Group returns the curated group containing name, or nil when the name is
// unknown.
func (t *AliasTable) Group(name string) *AliasGroup {
	idx, ok := t.byName[model.NormalizeText(name)]
	if !ok {
		return nil
	}
	return &t.groups[idx]
}

// Names returns every name the table knows, canonical names first within
// each group. The pattern extractor scans documents for these.
func (t *AliasTable) Names() []string {
	var out []string
	for _, g := range t.groups {
		out = append(out, g.Canonical)
		out = append(out, g.Aliases...)
	}
	return out
}

// AllNames returns the group's canonical name plus aliases.
func (g *AliasGroup) AllNames() []string {
	return append([]string{g.Canonical}, g.Aliases...)
}
