package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/524D/mzstream/internal/numpress"
)

// Float is the set of value types that binary data arrays decode into
type Float interface {
	float32 | float64
}

// sectionCounter counts the bytes read from a section of the document and
// remembers whether the section ended early.
type sectionCounter struct {
	r     io.Reader
	n     int64
	limit int64
	eof   bool
}

func (c *sectionCounter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

func (c *sectionCounter) short() bool {
	return c.eof && c.n < c.limit
}

// Decode returns the values of a binary data array as T. src is the
// document the array was parsed from; it is only read when the base64
// text was not captured during parsing.
//
// The base64 text is decoded as a stream, inflated when zlib compressed,
// then either passed to the numpress codec or read as little endian
// floats of the declared width. Values are converted to T afterwards;
// 64 to 32 bit conversion loses precision.
func Decode[T Float](src io.ReaderAt, b *BinaryDataArray) ([]T, error) {
	values, err := decodeValues(src, b)
	if err != nil {
		return nil, err
	}
	return convertValues[T](values), nil
}

func convertValues[T Float](values []float64) []T {
	if v, ok := any(values).([]T); ok {
		return v
	}
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = T(v)
	}
	return out
}

func decodeValues(src io.ReaderAt, b *BinaryDataArray) ([]float64, error) {
	if b.EncodedLength == 0 {
		return []float64{}, nil
	}
	codec := b.Compression.Numpress()
	if codec == CompressionNone && b.Width == WidthUnknown {
		return nil, ErrMissingPrecision
	}

	var ra io.ReaderAt
	var offset int64
	switch {
	case b.captured != nil:
		ra = bytes.NewReader(b.captured)
	case b.Position >= 0 && src != nil:
		ra = src
		offset = b.Position
	default:
		return nil, ErrNoPosition
	}

	limit := int64(b.EncodedLength)
	sc := &sectionCounter{r: io.NewSectionReader(ra, offset, limit), limit: limit}
	var data io.Reader = base64.NewDecoder(base64.StdEncoding, sc)
	if b.Compression.Zlib() {
		z, err := zlib.NewReader(data)
		if err != nil {
			return nil, readError(err, sc, b, nil)
		}
		defer z.Close()
		data = z
	}

	if codec != CompressionNone {
		buf, err := io.ReadAll(data)
		if err != nil {
			return nil, readError(err, sc, b, nil)
		}
		if sc.short() {
			return nil, &TruncatedError{Want: b.ArrayLength}
		}
		return decodeNumpress(codec, buf, b)
	}
	return decodeFixed(data, sc, b)
}

// readError classifies an error that happened while reading binary data.
// Data that ends before its declared length is truncated, anything else
// is corrupt base64 or zlib data.
func readError(err error, sc *sectionCounter, b *BinaryDataArray, partial []float64) error {
	if sc.short() || errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
		return &TruncatedError{Want: b.ArrayLength, Got: len(partial), Partial: partial}
	}
	return fmt.Errorf("MzML: decoding binary data: %w", err)
}

func decodeFixed(data io.Reader, sc *sectionCounter, b *BinaryDataArray) ([]float64, error) {
	size := int(b.Width) / 8
	var buf bytes.Buffer
	var err error
	if b.ArrayLength > 0 {
		_, err = io.CopyN(&buf, data, int64(b.ArrayLength)*int64(size))
	} else {
		_, err = io.Copy(&buf, data)
	}
	raw := buf.Bytes()
	values := make([]float64, len(raw)/size)
	if size == 8 {
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	} else {
		for i := range values {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	}
	if err != nil {
		return nil, readError(err, sc, b, values)
	}
	if b.ArrayLength > 0 {
		var one [1]byte
		if n, _ := data.Read(one[:]); n > 0 {
			log.Warn().Int("arrayLength", b.ArrayLength).Str("role", b.Role.String()).
				Msg("binary data array holds more values than declared, extra values ignored")
		}
	}
	return values, nil
}

func decodeNumpress(codec Compression, buf []byte, b *BinaryDataArray) ([]float64, error) {
	var result []float64
	var n int
	var err error
	switch codec {
	case CompressionNumpressLinear:
		result = make([]float64, numpress.LinearDecodedBound(len(buf)))
		n, err = numpress.DecodeLinear(buf, result)
	case CompressionNumpressPic:
		result = make([]float64, numpress.PicDecodedBound(len(buf)))
		n, err = numpress.DecodePic(buf, result)
	case CompressionNumpressSlof:
		result = make([]float64, numpress.SlofDecodedBound(len(buf)))
		n, err = numpress.DecodeSlof(buf, result)
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrCodecFailure, codec, err)
	}
	if b.ArrayLength > 0 && n != b.ArrayLength {
		log.Warn().Int("arrayLength", b.ArrayLength).Int("decoded", n).Str("compression", codec.String()).
			Msg("number of decoded values differs from declared array length")
	}
	return result[:n], nil
}

// Encode returns the base64 text for values with the given compression.
// float64 values are written as 64-bit floats, float32 values as 32-bit
// floats. Numpress codecs only accept float64 values.
func Encode[T Float](values []T, c Compression) ([]byte, error) {
	var raw []byte
	if codec := c.Numpress(); codec != CompressionNone {
		f64, ok := any(values).([]float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s on 32-bit values", ErrUnsupported, codec)
		}
		var err error
		raw, err = encodeNumpress(codec, f64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnsupported, codec, err)
		}
	} else {
		raw = encodeFixed(values)
	}

	if c.Zlib() {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return nil, err
		}
		// zlib writer must explicitly be closed here, otherwise result is invalid
		if err := z.Close(); err != nil {
			return nil, err
		}
		raw = b.Bytes()
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func encodeFixed[T Float](values []T) []byte {
	switch v := any(values).(type) {
	case []float64:
		raw := make([]byte, len(v)*8)
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
		}
		return raw
	case []float32:
		raw := make([]byte, len(v)*4)
		for i, x := range v {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(x))
		}
		return raw
	}
	return nil
}

func encodeNumpress(codec Compression, values []float64) ([]byte, error) {
	switch codec {
	case CompressionNumpressLinear:
		fp := numpress.OptimalLinearFixedPoint(values)
		if math.IsInf(fp, 0) || math.IsNaN(fp) || fp <= 0 {
			fp = 1
		}
		return numpress.EncodeLinear(values, fp)
	case CompressionNumpressPic:
		return numpress.EncodePic(values)
	case CompressionNumpressSlof:
		fp := numpress.OptimalSlofFixedPoint(values)
		return numpress.EncodeSlof(values, fp)
	}
	return nil, ErrUnsupported
}

// widthOf returns the width Encode uses for T
func widthOf[T Float]() NumericWidth {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return Width32
	}
	return Width64
}
