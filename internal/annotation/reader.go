package annotation

import "reflect"

// Reader returns the annotations attached to a type, one of its fields or one
// of its methods. A reader that knows nothing about the target returns an
// empty result and no error.
type Reader interface {
	ClassAnnotations(t reflect.Type) ([]Annotation, error)
	PropertyAnnotations(t reflect.Type, field string) ([]Annotation, error)
	MethodAnnotations(t reflect.Type, method string) ([]Annotation, error)
}

// ChainReader merges the results of several readers, in registration order.
// A reader failing with *ParseError contributes nothing; any other error
// aborts the lookup.
type ChainReader struct {
	readers []Reader
}

// NewChain returns a chain over readers.
func NewChain(readers ...Reader) *ChainReader {
	return &ChainReader{readers: append([]Reader(nil), readers...)}
}

// Add appends a reader to the chain.
func (c *ChainReader) Add(r Reader) { c.readers = append(c.readers, r) }

func (c *ChainReader) ClassAnnotations(t reflect.Type) ([]Annotation, error) {
	return c.collect(func(r Reader) ([]Annotation, error) { return r.ClassAnnotations(t) })
}

func (c *ChainReader) PropertyAnnotations(t reflect.Type, field string) ([]Annotation, error) {
	return c.collect(func(r Reader) ([]Annotation, error) { return r.PropertyAnnotations(t, field) })
}

func (c *ChainReader) MethodAnnotations(t reflect.Type, method string) ([]Annotation, error) {
	return c.collect(func(r Reader) ([]Annotation, error) { return r.MethodAnnotations(t, method) })
}

// ClassAnnotation returns the first class annotation of the given kind.
func (c *ChainReader) ClassAnnotation(t reflect.Type, kind Kind) (Annotation, bool, error) {
	anns, err := c.ClassAnnotations(t)
	return firstOfKind(anns, kind, err)
}

// PropertyAnnotation returns the first field annotation of the given kind.
func (c *ChainReader) PropertyAnnotation(t reflect.Type, field string, kind Kind) (Annotation, bool, error) {
	anns, err := c.PropertyAnnotations(t, field)
	return firstOfKind(anns, kind, err)
}

// MethodAnnotation returns the first method annotation of the given kind.
func (c *ChainReader) MethodAnnotation(t reflect.Type, method string, kind Kind) (Annotation, bool, error) {
	anns, err := c.MethodAnnotations(t, method)
	return firstOfKind(anns, kind, err)
}

func (c *ChainReader) collect(read func(Reader) ([]Annotation, error)) ([]Annotation, error) {
	var out []Annotation
	for _, r := range c.readers {
		anns, err := read(r)
		if err != nil {
			if IsParseError(err) {
				continue
			}
			return nil, err
		}
		out = append(out, anns...)
	}
	return out, nil
}

func firstOfKind(anns []Annotation, kind Kind, err error) (Annotation, bool, error) {
	if err != nil {
		return nil, false, err
	}
	for _, a := range anns {
		if a.Kind() == kind {
			return a, true, nil
		}
	}
	return nil, false, nil
}
