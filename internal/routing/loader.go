package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
)

// LoadFile reads routes from a YAML file, keeping file order.
func LoadFile(path string) ([]Route, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidConfig, err, "read routing file")
	}
	return Parse(b)
}

// Parse decodes a routing document:
//
//	page_get:
//	  path: /rest/{version}/page/{uid}
//	  methods: [GET]
//	  defaults: {_action: page.get, version: "1"}
//	  requirements: {uid: "[a-f0-9]{32}", HTTP-Accept: "json"}
func Parse(b []byte) ([]Route, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeConfigParse, err, "parse routing file")
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, apperr.New(apperr.CodeConfigParse, "routing file must be a mapping of route names")
	}
	routes := make([]Route, 0, len(root.Content)/2)
	seen := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if seen[name] {
			return nil, apperr.Newf(apperr.CodeConfigParse, "duplicate route %q", name)
		}
		seen[name] = true
		var rt Route
		if err := root.Content[i+1].Decode(&rt); err != nil {
			return nil, apperr.Wrap(apperr.CodeConfigParse, err, fmt.Sprintf("route %q", name))
		}
		rt.Name = name
		routes = append(routes, rt)
	}
	return routes, nil
}
