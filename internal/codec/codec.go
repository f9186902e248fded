// Package codec turns a catalog payload into a compact, URL-fragment-safe
// transport string and back.
//
// Wire format: "CAT1.<base64url(gzip(canonical JSON))>.<crc32c hex>".
// The integrity tag is computed over the pre-compression JSON bytes, so a
// tag mismatch is distinguishable from a decompression failure. Decode never
// panics on untrusted input and never returns a partially loaded payload.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/amberlow/catalink/internal/catalog"
)

// transportPrefix identifies the transport framing version. Distinct from the
// payload's own FormatVersion: the prefix covers the envelope, not the schema.
const transportPrefix = "CAT1"

// DefaultMaxDecodedBytes caps the decompressed document size, bounding memory
// use against adversarial gzip bombs.
const DefaultMaxDecodedBytes = 4 << 20

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrPayloadTooLarge reports a decompressed document above the configured cap.
var ErrPayloadTooLarge = errors.New("decompressed payload exceeds size cap")

// CorruptPayloadError reports a transport string that could not be unframed,
// decompressed, or parsed. Stage names the step that failed.
type CorruptPayloadError struct {
	Stage string
	Err   error
}

func (e *CorruptPayloadError) Error() string {
	return fmt.Sprintf("corrupt payload (%s): %v", e.Stage, e.Err)
}

func (e *CorruptPayloadError) Unwrap() error { return e.Err }

func corrupt(stage string, err error) error {
	return &CorruptPayloadError{Stage: stage, Err: err}
}

// IntegrityMismatchError reports a payload that decompressed cleanly but
// whose integrity tag does not match its content. Treated as corruption;
// never silently accepted.
type IntegrityMismatchError struct {
	Want uint32
	Got  uint32
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("integrity tag mismatch: payload carries %08x, content hashes to %08x", e.Want, e.Got)
}

// Codec encodes and decodes catalog transport strings. The zero value is
// ready to use with the default decode cap.
type Codec struct {
	// MaxDecodedBytes caps the decompressed document size during Decode.
	// Zero means DefaultMaxDecodedBytes.
	MaxDecodedBytes int64
}

func (c *Codec) cap() int64 {
	if c.MaxDecodedBytes > 0 {
		return c.MaxDecodedBytes
	}
	return DefaultMaxDecodedBytes
}

// Encode validates the payload and serializes it into a transport string safe
// for placement in a URL fragment. Timestamps are carried at second
// precision; sub-second components do not survive a round trip.
func (c *Codec) Encode(p *catalog.Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", errors.Wrap(err, "encode")
	}

	doc := MarshalPayload(p)
	tag := crc32.Checksum(doc, castagnoli)

	var buf bytes.Buffer
	zw := pgzip.NewWriter(&buf)
	if _, err := zw.Write(doc); err != nil {
		return "", errors.Wrap(err, "compress payload")
	}
	if err := zw.Close(); err != nil {
		return "", errors.Wrap(err, "flush compressed payload")
	}

	var b strings.Builder
	b.WriteString(transportPrefix)
	b.WriteByte('.')
	b.WriteString(base64.RawURLEncoding.EncodeToString(buf.Bytes()))
	b.WriteByte('.')
	fmt.Fprintf(&b, "%08x", tag)
	return b.String(), nil
}

// Decode reverses Encode: unframe, decompress under the size cap, verify the
// integrity tag, parse, and structurally validate. All failures are typed:
// *CorruptPayloadError, *IntegrityMismatchError, or
// *catalog.SchemaViolationError.
func (c *Codec) Decode(s string) (*catalog.Payload, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil, corrupt("framing", errors.Errorf("expected 3 segments, got %d", len(parts)))
	}
	if parts[0] != transportPrefix {
		return nil, corrupt("framing", errors.Errorf("unknown transport prefix %q", parts[0]))
	}

	compressed, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, corrupt("base64", err)
	}

	zr, err := pgzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, corrupt("decompress", err)
	}
	doc, err := io.ReadAll(io.LimitReader(zr, c.cap()+1))
	if err != nil {
		_ = zr.Close()
		return nil, corrupt("decompress", err)
	}
	if int64(len(doc)) > c.cap() {
		_ = zr.Close()
		return nil, corrupt("decompress", ErrPayloadTooLarge)
	}
	if err := zr.Close(); err != nil {
		return nil, corrupt("decompress", err)
	}

	want, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return nil, corrupt("tag", err)
	}
	got := crc32.Checksum(doc, castagnoli)
	if uint32(want) != got {
		return nil, &IntegrityMismatchError{Want: uint32(want), Got: got}
	}

	return DecodeDocument(doc)
}

// DecodeDocument parses and validates a raw canonical JSON catalog document.
// Remote default documents go through here so they face the same structural
// validation as transport-tier data.
func DecodeDocument(doc []byte) (*catalog.Payload, error) {
	p, err := UnmarshalPayload(doc)
	if err != nil {
		var sv *catalog.SchemaViolationError
		if errors.As(err, &sv) {
			return nil, sv
		}
		return nil, corrupt("parse", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
