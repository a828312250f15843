package split

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
)

// MaxPayloadBytes bounds the settings and mapping payloads on both the
// encode and decode side.
const MaxPayloadBytes = 64 << 20

// Wire layout, all integers big-endian:
//   - index:    uint16 byte length + modified UTF-8
//   - shard:    int32
//   - slice:    1 byte flag, then int32 id + int32 max when set
//   - settings: 1 byte flag, then int32 length + raw UTF-8 when set
//   - mapping:  1 byte flag, then int32 length + raw UTF-8 when set

// IsMalformed reports whether err came from encoding or decoding a
// definition.
func IsMalformed(err error) bool {
	return serrors.GetCategory(err) == serrors.ErrCategoryCodec
}

// Marshal encodes d into its wire form.
func (d *PartitionDefinition) Marshal() ([]byte, error) {
	indexLen := modifiedUTF8Len(d.index)
	if indexLen < 0 {
		return nil, serrors.NewCodecError(serrors.CodeMalformedText,
			fmt.Sprintf("index %q is not valid UTF-8", d.index), nil)
	}
	if indexLen > maxModifiedUTF8Len {
		return nil, serrors.NewCodecError(serrors.CodePayloadTooLarge,
			fmt.Sprintf("index encodes to %d bytes, limit is %d", indexLen, maxModifiedUTF8Len), nil)
	}
	if err := checkPayload("settings", d.serializedSettings); err != nil {
		return nil, err
	}
	if err := checkPayload("mapping", d.serializedMapping); err != nil {
		return nil, err
	}

	size := 2 + indexLen + 4 + 1 + 1 + 1
	if d.slice != nil {
		size += 8
	}
	if d.serializedSettings != nil {
		size += 4 + len(*d.serializedSettings)
	}
	if d.serializedMapping != nil {
		size += 4 + len(*d.serializedMapping)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint16(buf, uint16(indexLen))
	buf, _ = appendModifiedUTF8(buf, d.index)
	buf = binary.BigEndian.AppendUint32(buf, uint32(d.shardID))

	buf = appendBool(buf, d.slice != nil)
	if d.slice != nil {
		buf = binary.BigEndian.AppendUint32(buf, uint32(d.slice.ID))
		buf = binary.BigEndian.AppendUint32(buf, uint32(d.slice.Max))
	}

	buf = appendPayload(buf, d.serializedSettings)
	buf = appendPayload(buf, d.serializedMapping)
	return buf, nil
}

// Encode writes the wire form of d to w.
func (d *PartitionDefinition) Encode(w io.Writer) error {
	b, err := d.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("split: failed to write definition: %w", err)
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d *PartitionDefinition) MarshalBinary() ([]byte, error) {
	return d.Marshal()
}

// Unmarshal decodes exactly one definition from b. Bytes left over after
// the mapping field are reported as an inconsistent length.
func Unmarshal(b []byte) (*PartitionDefinition, error) {
	r := bytes.NewReader(b)
	d, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, serrors.NewCodecError(serrors.CodeInconsistentLength,
			fmt.Sprintf("%d trailing bytes after definition", r.Len()), nil)
	}
	return d, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It is meant for
// zero-value receivers; d is overwritten only when decoding succeeds.
func (d *PartitionDefinition) UnmarshalBinary(b []byte) error {
	decoded, err := Unmarshal(b)
	if err != nil {
		return err
	}
	*d = *decoded
	return nil
}

// Decode reads one definition from r, leaving any following bytes unread.
func Decode(r io.Reader) (*PartitionDefinition, error) {
	dec := decoder{r: r}
	if l, ok := r.(interface{ Len() int }); ok {
		dec.remaining = l
	}

	index, err := dec.readIndex()
	if err != nil {
		return nil, err
	}
	d := &PartitionDefinition{index: index}

	if d.shardID, err = dec.readInt32("shard id"); err != nil {
		return nil, err
	}

	hasSlice, err := dec.readBool("slice flag")
	if err != nil {
		return nil, err
	}
	if hasSlice {
		id, err := dec.readInt32("slice id")
		if err != nil {
			return nil, err
		}
		sliceMax, err := dec.readInt32("slice max")
		if err != nil {
			return nil, err
		}
		d.slice = &Slice{ID: id, Max: sliceMax}
	}

	if d.serializedSettings, err = dec.readPayload("settings"); err != nil {
		return nil, err
	}
	if d.serializedMapping, err = dec.readPayload("mapping"); err != nil {
		return nil, err
	}
	return d, nil
}

type decoder struct {
	r         io.Reader
	remaining interface{ Len() int }
	scratch   [4]byte
}

func (dec *decoder) readFull(b []byte, field string) error {
	if _, err := io.ReadFull(dec.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return serrors.NewCodecError(serrors.CodeTruncatedInput,
				fmt.Sprintf("input ended while reading %s", field), err)
		}
		return serrors.NewCodecError(serrors.CodeTruncatedInput,
			fmt.Sprintf("failed to read %s", field), err)
	}
	return nil
}

func (dec *decoder) readIndex() (string, error) {
	b := dec.scratch[:2]
	if err := dec.readFull(b, "index length"); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(b))
	if dec.remaining != nil && n > dec.remaining.Len() {
		return "", serrors.NewCodecError(serrors.CodeInconsistentLength,
			fmt.Sprintf("index length %d exceeds remaining %d bytes", n, dec.remaining.Len()), nil)
	}
	raw := make([]byte, n)
	if err := dec.readFull(raw, "index"); err != nil {
		return "", err
	}
	s, ok := decodeModifiedUTF8(raw)
	if !ok {
		return "", serrors.NewCodecError(serrors.CodeMalformedText, "index is not valid modified UTF-8", nil)
	}
	return s, nil
}

func (dec *decoder) readInt32(field string) (int32, error) {
	b := dec.scratch[:4]
	if err := dec.readFull(b, field); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// readBool follows DataInput.readBoolean: any non-zero byte is true.
func (dec *decoder) readBool(field string) (bool, error) {
	b := dec.scratch[:1]
	if err := dec.readFull(b, field); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func (dec *decoder) readPayload(field string) (*string, error) {
	present, err := dec.readBool(field + " flag")
	if err != nil || !present {
		return nil, err
	}
	n, err := dec.readInt32(field + " length")
	if err != nil {
		return nil, err
	}
	if n < 0 || n > MaxPayloadBytes {
		return nil, serrors.NewCodecError(serrors.CodeInconsistentLength,
			fmt.Sprintf("%s length %d out of range [0, %d]", field, n, MaxPayloadBytes), nil).
			WithDetails(map[string]interface{}{"field": field, "length": n})
	}
	if dec.remaining != nil && int(n) > dec.remaining.Len() {
		return nil, serrors.NewCodecError(serrors.CodeInconsistentLength,
			fmt.Sprintf("%s length %d exceeds remaining %d bytes", field, n, dec.remaining.Len()), nil).
			WithDetails(map[string]interface{}{"field": field, "length": n})
	}

	// Grow with the data actually read so a lying prefix on an unbounded
	// stream cannot force a large allocation up front.
	var buf bytes.Buffer
	buf.Grow(min(int(n), 64<<10))
	copied, err := io.CopyN(&buf, dec.r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, serrors.NewCodecError(serrors.CodeTruncatedInput,
				fmt.Sprintf("input ended after %d of %d %s bytes", copied, n, field), err)
		}
		return nil, serrors.NewCodecError(serrors.CodeTruncatedInput,
			fmt.Sprintf("failed to read %s", field), err)
	}
	s := buf.String()
	return &s, nil
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendPayload(buf []byte, p *string) []byte {
	buf = appendBool(buf, p != nil)
	if p == nil {
		return buf
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(*p)))
	return append(buf, *p...)
}

func checkPayload(field string, p *string) error {
	if p != nil && len(*p) > MaxPayloadBytes {
		return serrors.NewCodecError(serrors.CodePayloadTooLarge,
			fmt.Sprintf("%s payload is %d bytes, limit is %d", field, len(*p), MaxPayloadBytes), nil)
	}
	return nil
}
