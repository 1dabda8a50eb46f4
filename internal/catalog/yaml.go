package catalog

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ImportResult counts what an import added or replaced.
type ImportResult struct {
	Sources       int `json:"sources"`
	Packs         int `json:"packs"`
	Subscriptions int `json:"subscriptions"`
}

type yamlDocument struct {
	Sources       []yaml.Node         `yaml:"sources"`
	Packs         []yaml.Node         `yaml:"packs"`
	Subscriptions map[string][]string `yaml:"subscriptions"`
}

// ImportYAML merges sources, packs and subscriptions from a YAML document
// into the catalog and saves it. Malformed entries are skipped; a document
// that does not parse is an error.
//
//	sources:
//	  - name: Hacker News
//	    source_type: generic
//	    match: {domain: news.ycombinator.com}
//	    authority_weight: 0.8
//	packs:
//	  - name: Tech News
//	    source_ids: [abc123def456]
//	subscriptions:
//	  default: [abc123def456]
func (c *Catalog) ImportYAML(r io.Reader) (ImportResult, error) {
	var doc yamlDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return ImportResult{}, nil
		}
		return ImportResult{}, eris.Wrap(err, "catalog: decode yaml")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res ImportResult
	for i := range doc.Sources {
		var rs rawSource
		if err := doc.Sources[i].Decode(&rs); err != nil {
			continue
		}
		s := rs.normalize()
		c.touch(&s)
		c.sources[s.ID] = &s
		res.Sources++
	}
	for i := range doc.Packs {
		var rp rawPack
		if err := doc.Packs[i].Decode(&rp); err != nil {
			continue
		}
		p := rp.normalize()
		c.packs[p.Slug] = &p
		res.Packs++
	}
	for profile, ids := range doc.Subscriptions {
		key := profileKey(profile)
		kept := []string{}
		for _, id := range ids {
			if id = strings.TrimSpace(id); c.sources[id] != nil {
				kept = append(kept, id)
			}
		}
		c.subscriptions[key] = kept
		res.Subscriptions++
	}
	return res, c.saveLocked()
}
