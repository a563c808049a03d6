// Package didl decodes DIDL-Lite documents.
//
// Spec: http://upnp.org/specs/av/UPnP-av-ContentDirectory-v1-Service.pdf
package didl

import (
	"encoding/xml"
	"strings"
)

// Namespaces of the properties commonly found in DIDL-Lite items.
const (
	NamespaceDIDL = "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"
	NamespaceDC   = "http://purl.org/dc/elements/1.1/"
	NamespaceUPnP = "urn:schemas-upnp-org:metadata-1-0/upnp/"
)

// String represents a string value
type String struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// Type returns value type, as the local part of the element name.
func (s *String) Type() string {
	return s.XMLName.Local
}

// String returns the value as a string.
func (s *String) String() string {
	return strings.TrimSpace(s.Value)
}

// Resource represents a res element, which locates the content of an
// item.
type Resource struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Duration     string `xml:"duration,attr"`
	URL          string `xml:",chardata"`
}

// ContentType returns the MIME type in the third field of protocolInfo,
// or an empty string if absent.
func (r *Resource) ContentType() string {
	fields := strings.Split(r.ProtocolInfo, ":")
	if len(fields) < 3 || fields[2] == "*" {
		return ""
	}

	return fields[2]
}

// Item represents an item element.
type Item struct {
	XMLName    xml.Name
	ID         string     `xml:"id,attr"`
	ParentID   string     `xml:"parentID,attr"`
	Restricted bool       `xml:"restricted,attr"`
	Resources  []Resource `xml:"res"`
	Values     []*String  `xml:",any"`
}

// Value returns the first property with the given namespace and local
// name, or an empty string if the item has none.
func (item *Item) Value(space, local string) string {
	for _, v := range item.Values {
		if v.XMLName.Space == space && v.XMLName.Local == local {
			return v.String()
		}
	}

	return ""
}

// Document represents a DIDL-Lite document.
type Document struct {
	Items []Item `xml:"item"`
}

// Parse decodes a DIDL-Lite document.
func Parse(data []byte) (*Document, error) {
	doc := new(Document)
	if err := xml.Unmarshal(data, doc); err != nil {
		return nil, err
	}

	return doc, nil
}
