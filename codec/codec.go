// Package codec decodes document metadata served by the page API. Each codec
// is bound to the media type it handles so responses can be decoded by their
// Content-Type.
package codec

import (
	"mime"
	"sort"
	"strings"
)

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
	// ContentType is the media type produced by Encode.
	ContentType() string
}

const (
	MediaJSON     = "application/json"
	MediaMsgpack  = "application/msgpack"
	MediaCBOR     = "application/cbor"
	MediaProtobuf = "application/x-protobuf"
)

// aliases maps non-canonical media types seen in the wild to the ones above.
var aliases = map[string]string{
	"application/x-msgpack":           MediaMsgpack,
	"application/vnd.msgpack":         MediaMsgpack,
	"application/protobuf":            MediaProtobuf,
	"application/vnd.google.protobuf": MediaProtobuf,
	"text/json":                       MediaJSON,
}

// MediaType normalizes a Content-Type header value: parameters are dropped,
// the type is lowercased and known aliases resolved. An empty or
// unparsable header yields "".
func MediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	mt = strings.ToLower(mt)
	if canon, ok := aliases[mt]; ok {
		return canon
	}
	return mt
}

// Set picks a codec by media type.
type Set[V any] struct {
	byType map[string]Codec[V]
	def    Codec[V]
}

// NewSet indexes codecs by their ContentType. The first codec is the
// fallback for responses without a Content-Type.
func NewSet[V any](codecs ...Codec[V]) *Set[V] {
	s := &Set[V]{byType: make(map[string]Codec[V], len(codecs))}
	for i, c := range codecs {
		if i == 0 {
			s.def = c
		}
		s.byType[c.ContentType()] = c
	}
	return s
}

// For returns the codec handling the Content-Type header value.
func (s *Set[V]) For(header string) (Codec[V], bool) {
	mt := MediaType(header)
	if mt == "" {
		return s.def, s.def != nil
	}
	c, ok := s.byType[mt]
	return c, ok
}

// Accept renders the set as an Accept header value, fallback first.
func (s *Set[V]) Accept() string {
	if s.def == nil {
		return ""
	}
	parts := []string{s.def.ContentType()}
	for mt := range s.byType {
		if mt != s.def.ContentType() {
			parts = append(parts, mt)
		}
	}
	sort.Strings(parts[1:])
	return strings.Join(parts, ", ")
}
