package mzml

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/floats"
)

// capturedArray returns a descriptor for text that was captured while
// parsing
func capturedArray(text []byte, arrayLength int, c Compression, w NumericWidth) *BinaryDataArray {
	b := newBinaryDataArray(len(text), arrayLength)
	b.Compression = c
	b.compressionSet = true
	b.Width = w
	b.Role = RoleMz
	b.capture(text)
	return b
}

func TestDecodeFixedRoundTrip(t *testing.T) {
	values := []float64{100.25, 200.5, 1e6, 0, -3.75}
	for _, c := range []Compression{CompressionNone, CompressionZlib} {
		text, err := Encode(values, c)
		if err != nil {
			t.Fatalf("Encode %s: %v", c, err)
		}
		got, err := Decode[float64](nil, capturedArray(text, len(values), c, Width64))
		if err != nil {
			t.Fatalf("Decode %s: %v", c, err)
		}
		if diff := cmp.Diff(values, got); diff != "" {
			t.Errorf("Decode %s mismatch (-want +got):\n%s", c, diff)
		}
	}
}

func TestDecodeFloat32(t *testing.T) {
	values := []float32{1.5, 2.25, 1000.125}
	text, err := Encode(values, CompressionZlib)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b := capturedArray(text, len(values), CompressionZlib, Width32)
	got, err := Decode[float32](nil, b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	wide, err := Decode[float64](nil, b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if wide[2] != 1000.125 {
		t.Errorf("Decode float64 of 32-bit data: %v", wide[2])
	}
}

func TestDecodeFromPosition(t *testing.T) {
	values := []float64{1, 2, 3}
	text, err := Encode(values, CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	doc := append([]byte("<binary>"), text...)
	doc = append(doc, "</binary>"...)
	b := newBinaryDataArray(len(text), len(values))
	b.Width = Width64
	b.Role = RoleMz
	b.SetPosition(int64(len("<binary>")))
	got, err := Decode[float64](bytes.NewReader(doc), b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeZeroLength(t *testing.T) {
	for c := CompressionNone; c <= CompressionNumpressSlofZlib; c++ {
		for _, w := range []NumericWidth{WidthUnknown, Width32, Width64} {
			b := newBinaryDataArray(0, 0)
			b.Role = RoleIntensity
			b.Compression = c
			b.Width = w
			got, err := Decode[float64](nil, b)
			if err != nil {
				t.Errorf("Decode %s %d-bit: %v", c, w, err)
				continue
			}
			if got == nil || len(got) != 0 {
				t.Errorf("Decode %s %d-bit: got %v, want empty slice", c, w, got)
			}
			got32, err := Decode[float32](nil, b)
			if err != nil || got32 == nil || len(got32) != 0 {
				t.Errorf("Decode[float32] %s %d-bit: got %v, error %v", c, w, got32, err)
			}
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	values := make([]float64, 10)
	for i := range values {
		values[i] = float64(i) * 1.5
	}
	text, err := Encode(values, CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode[float64](nil, capturedArray(text, 1000, CompressionNone, Width64))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("Decode: error %v, want ErrTruncated", err)
	}
	var te *TruncatedError
	if !errors.As(err, &te) {
		t.Fatalf("Decode: error %T, want *TruncatedError", err)
	}
	if te.Want != 1000 || te.Got != 10 {
		t.Errorf("TruncatedError: want %d got %d", te.Want, te.Got)
	}
	if diff := cmp.Diff(values, te.Partial); diff != "" {
		t.Errorf("Partial mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTruncatedSource(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	text, err := Encode(values, CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// The document ends in the middle of the base64 text
	doc := text[:len(text)/2]
	b := newBinaryDataArray(len(text), len(values))
	b.Width = Width64
	b.Role = RoleMz
	b.SetPosition(0)
	_, err = Decode[float64](bytes.NewReader(doc), b)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("Decode: error %v, want ErrTruncated", err)
	}
}

func TestDecodeExtraValues(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	text, err := Encode(values, CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode[float64](nil, capturedArray(text, 2, CompressionNone, Width64))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(values[:2], got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMissingPrecision(t *testing.T) {
	text, err := Encode([]float64{1, 2}, CompressionNone)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode[float64](nil, capturedArray(text, 2, CompressionNone, WidthUnknown))
	if !errors.Is(err, ErrMissingPrecision) {
		t.Errorf("Decode: error %v, want ErrMissingPrecision", err)
	}
}

func TestDecodeNoPosition(t *testing.T) {
	b := newBinaryDataArray(16, 2)
	b.Width = Width64
	b.Role = RoleMz
	_, err := Decode[float64](nil, b)
	if !errors.Is(err, ErrNoPosition) {
		t.Errorf("Decode: error %v, want ErrNoPosition", err)
	}
}

func TestDecodeCodecFailure(t *testing.T) {
	// A fixed point header followed by a single dangling nibble byte
	raw := []byte{0x40, 0x8f, 0x40, 0, 0, 0, 0, 0, 0xff}
	text := []byte(base64.StdEncoding.EncodeToString(raw))
	_, err := Decode[float64](nil, capturedArray(text, 3, CompressionNumpressLinear, WidthUnknown))
	if !errors.Is(err, ErrCodecFailure) {
		t.Errorf("Decode: error %v, want ErrCodecFailure", err)
	}
}

func TestDecodeNumpress(t *testing.T) {
	mz := []float64{100.0012, 100.5034, 101.0051, 250.1234, 1200.9876}
	intensity := []float64{0, 1, 150, 12345, 99999}

	tests := []struct {
		name   string
		c      Compression
		values []float64
		ok     func(want, got []float64) bool
	}{
		{"linear", CompressionNumpressLinear, mz, func(want, got []float64) bool {
			return floats.EqualApprox(want, got, 1e-4)
		}},
		{"linear+zlib", CompressionNumpressLinearZlib, mz, func(want, got []float64) bool {
			return floats.EqualApprox(want, got, 1e-4)
		}},
		{"pic", CompressionNumpressPic, intensity, func(want, got []float64) bool {
			return floats.Equal(want, got)
		}},
		{"slof+zlib", CompressionNumpressSlofZlib, intensity, func(want, got []float64) bool {
			for i := range want {
				if math.Abs(want[i]-got[i]) > 5e-4*(want[i]+1) {
					return false
				}
			}
			return len(want) == len(got)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := Encode(tt.values, tt.c)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode[float64](nil, capturedArray(text, len(tt.values), tt.c, WidthUnknown))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !tt.ok(tt.values, got) {
				t.Errorf("Decode: got %v, want %v", got, tt.values)
			}
		})
	}
}

func TestDecodeNumpressCountMismatch(t *testing.T) {
	values := []float64{1, 2, 3}
	text, err := Encode(values, CompressionNumpressPic)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode[float64](nil, capturedArray(text, 7, CompressionNumpressPic, WidthUnknown))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(values, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeNumpressFloat32(t *testing.T) {
	_, err := Encode([]float32{1, 2}, CompressionNumpressSlof)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Encode: error %v, want ErrUnsupported", err)
	}
}

func TestWidthOf(t *testing.T) {
	if w := widthOf[float32](); w != Width32 {
		t.Errorf("widthOf[float32]: %d", w)
	}
	if w := widthOf[float64](); w != Width64 {
		t.Errorf("widthOf[float64]: %d", w)
	}
}
