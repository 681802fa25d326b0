package container

import (
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
)

// ServiceFiles are the names LoadDir looks for, in load order.
var ServiceFiles = []string{"services.yml", "services.yaml", "services.xml", "services.toml", "services.json"}

// Closure is a Go-code service source.
type Closure func(c *Container) error

// document is the YAML/TOML/JSON layout of a service file.
type document struct {
	Parameters map[string]any         `json:"parameters" yaml:"parameters" toml:"parameters"`
	Services   map[string]*Definition `json:"services" yaml:"services" toml:"services"`
}

// LoadFunc runs a closure source against c.
func LoadFunc(c *Container, fn Closure) error {
	if fn == nil {
		return nil
	}
	return fn(c)
}

// LoadDir loads every ServiceFiles entry present in dir. Later files override
// earlier definitions and parameters with the same name.
func LoadDir(c *Container, dir string) (int, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInvalidConfig, err, "service directory")
	}
	if !st.IsDir() {
		return 0, apperr.Newf(apperr.CodeInvalidConfig, "%s is not a directory", dir)
	}
	loaded := 0
	for _, name := range ServiceFiles {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := LoadFile(c, p); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// LoadFile loads one service file, picking the decoder from its extension.
func LoadFile(c *Container, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, err, "read "+path)
	}
	var doc document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		err = yaml.Unmarshal(b, &doc)
	case ".toml":
		err = toml.Unmarshal(b, &doc)
	case ".json":
		err = codec.Unmarshal(b, &doc)
	case ".xml":
		doc, err = decodeXML(b)
	default:
		return apperr.Newf(apperr.CodeUnsupportedFormat, "unsupported service file %s", filepath.Base(path))
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeConfigParse, err, "parse "+filepath.Base(path))
	}
	return apply(c, doc)
}

func apply(c *Container, doc document) error {
	for _, name := range sortedKeys(doc.Parameters) {
		if err := c.SetParameter(name, normalizeValue(doc.Parameters[name])); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(doc.Services) {
		def := doc.Services[id]
		if def == nil {
			def = &Definition{}
		}
		if v, ok := normalizeValue(def.Arguments).([]any); ok {
			def.Arguments = v
		}
		if err := c.Register(id, def); err != nil {
			return err
		}
	}
	return nil
}

// normalizeValue turns map[any]any (older YAML shapes) into map[string]any.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m, _ := ToMap(t)
		return normalizeValue(m)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case []any:
		if t == nil {
			return []any(nil)
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// XML layout:
//
//	<container>
//	  <parameters>
//	    <parameter key="name">value</parameter>
//	    <parameter key="list" type="collection"><parameter>a</parameter></parameter>
//	  </parameters>
//	  <services>
//	    <service id="x" kind="k" scope="prototype" synthetic="false">
//	      <argument>literal</argument>
//	      <argument type="service" id="other" on-invalid="ignore"/>
//	      <argument type="collection"><argument key="k">v</argument></argument>
//	      <tag name="event.listener" event="e" method="m"/>
//	    </service>
//	  </services>
//	</container>
type xmlContainer struct {
	XMLName    xml.Name     `xml:"container"`
	Parameters []xmlValue   `xml:"parameters>parameter"`
	Services   []xmlService `xml:"services>service"`
}

type xmlService struct {
	ID        string     `xml:"id,attr"`
	Kind      string     `xml:"kind,attr"`
	Scope     string     `xml:"scope,attr"`
	Synthetic bool       `xml:"synthetic,attr"`
	Arguments []xmlValue `xml:"argument"`
	Tags      []xmlTag   `xml:"tag"`
}

type xmlValue struct {
	Key       string     `xml:"key,attr"`
	Type      string     `xml:"type,attr"`
	ID        string     `xml:"id,attr"`
	OnInvalid string     `xml:"on-invalid,attr"`
	Text      string     `xml:",chardata"`
	Args      []xmlValue `xml:"argument"`
	Params    []xmlValue `xml:"parameter"`
}

type xmlTag struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func decodeXML(b []byte) (document, error) {
	var x xmlContainer
	if err := xml.Unmarshal(b, &x); err != nil {
		return document{}, err
	}
	doc := document{Parameters: map[string]any{}, Services: map[string]*Definition{}}
	for _, p := range x.Parameters {
		if p.Key == "" {
			return document{}, errors.New("parameter without key")
		}
		doc.Parameters[p.Key] = p.value()
	}
	for _, s := range x.Services {
		if s.ID == "" {
			return document{}, errors.New("service without id")
		}
		def := &Definition{Kind: s.Kind, Scope: Scope(s.Scope), Synthetic: s.Synthetic}
		for _, a := range s.Arguments {
			def.Arguments = append(def.Arguments, a.value())
		}
		for _, t := range s.Tags {
			tag := Tag{}
			for _, a := range t.Attrs {
				tag[a.Name.Local] = phpize(a.Value)
			}
			def.Tags = append(def.Tags, tag)
		}
		doc.Services[s.ID] = def
	}
	return doc, nil
}

func (v xmlValue) value() any {
	switch v.Type {
	case "service":
		r := Reference{ID: v.ID, Optional: v.OnInvalid == "ignore" || v.OnInvalid == "null"}
		return r.String()
	case "collection":
		children := v.Args
		if len(children) == 0 {
			children = v.Params
		}
		keyed := len(children) > 0 && children[0].Key != ""
		if keyed {
			m := make(map[string]any, len(children))
			for _, ch := range children {
				m[ch.Key] = ch.value()
			}
			return m
		}
		list := make([]any, 0, len(children))
		for _, ch := range children {
			list = append(list, ch.value())
		}
		return list
	case "string":
		return v.Text
	default:
		return phpize(strings.TrimSpace(v.Text))
	}
}

// phpize converts XML text to the scalar it denotes.
func phpize(s string) any {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		return f
	}
	return s
}
