package aidx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

var (
	// ErrDecode is returned when a payload is not a well-formed known AIDX document
	ErrDecode = errors.New("aidx decode failed")
	// ErrEncode is returned when a document cannot be serialized
	ErrEncode = errors.New("aidx encode failed")
)

// Codec converts between XML payloads and AIDX documents.
//
// Decode inspects the root element first and only then unmarshals into the
// registered type, so unknown documents are rejected without a full parse
// into the wrong shape.
type Codec struct {
	types map[string]func() Document
}

// NewCodec returns a codec that knows the flight leg request, notification
// and response documents.
func NewCodec() *Codec {
	c := &Codec{types: make(map[string]func() Document)}
	c.Register(RootFlightLegRQ, func() Document { return &FlightLegRQ{} })
	c.Register(RootFlightLegNotifRQ, func() Document { return &FlightLegNotifRQ{} })
	c.Register(RootFlightLegRS, func() Document { return &FlightLegRS{} })
	return c
}

// Register adds a document type for a root element name. Register must not
// be called concurrently with Decode.
func (c *Codec) Register(root string, factory func() Document) {
	c.types[root] = factory
}

// Decode parses an XML payload. An empty payload, or one holding only a
// prolog or comments, decodes to nil with no error.
func (c *Codec) Decode(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	root := doc.Root()
	if root == nil {
		if hasText(doc) {
			return nil, fmt.Errorf("%w: no root element", ErrDecode)
		}
		return nil, nil
	}

	if ns := root.NamespaceURI(); ns != Namespace {
		return nil, fmt.Errorf("%w: root element %s has namespace %q, want %q", ErrDecode, root.Tag, ns, Namespace)
	}
	factory, ok := c.types[root.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: unknown root element %s", ErrDecode, root.Tag)
	}

	v := factory()
	if err := xml.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, root.Tag, err)
	}
	return v, nil
}

// hasText reports whether the document holds character data outside any
// element, which means the payload is not XML at all.
func hasText(doc *etree.Document) bool {
	for _, tok := range doc.Child {
		if cd, ok := tok.(*etree.CharData); ok && len(bytes.TrimSpace([]byte(cd.Data))) > 0 {
			return true
		}
	}
	return false
}

// Encode serializes a document with an XML declaration
func (c *Codec) Encode(doc any) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrEncode)
	}
	if _, ok := doc.(Document); !ok {
		return nil, fmt.Errorf("%w: unsupported type %T", ErrEncode, doc)
	}

	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	out := make([]byte, 0, len(xml.Header)+len(body))
	out = append(out, xml.Header...)
	return append(out, body...), nil
}
