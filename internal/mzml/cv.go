package mzml

// ArrayRole is the kind of values a binary data array holds
type ArrayRole int

// Binary data array roles
const (
	RoleUnknown ArrayRole = iota
	RoleMz
	RoleIntensity
	RoleTime
)

func (r ArrayRole) String() string {
	switch r {
	case RoleMz:
		return "m/z"
	case RoleIntensity:
		return "intensity"
	case RoleTime:
		return "time"
	}
	return "unknown"
}

// NumericWidth is the number of bits per value of an uncompressed
// (or zlib compressed) binary data array
type NumericWidth int

// Binary data widths. The integer CV terms map to the same widths; values
// are always read as IEEE floats.
const (
	WidthUnknown NumericWidth = 0
	Width32      NumericWidth = 32
	Width64      NumericWidth = 64
)

// Compression of a binary data array
type Compression int

// Compression types. A numpress codec combined with zlib means that the
// numpress output was zlib compressed.
const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionNumpressLinear
	CompressionNumpressPic
	CompressionNumpressSlof
	CompressionNumpressLinearZlib
	CompressionNumpressPicZlib
	CompressionNumpressSlofZlib
)

var compressionNames = [...]string{
	CompressionNone:               "none",
	CompressionZlib:               "zlib",
	CompressionNumpressLinear:     "linear",
	CompressionNumpressPic:        "pic",
	CompressionNumpressSlof:       "slof",
	CompressionNumpressLinearZlib: "linear+zlib",
	CompressionNumpressPicZlib:    "pic+zlib",
	CompressionNumpressSlofZlib:   "slof+zlib",
}

func (c Compression) String() string {
	if c >= 0 && int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return "unknown"
}

// ParseCompression converts a name as returned by Compression.String
func ParseCompression(name string) (Compression, bool) {
	for c, n := range compressionNames {
		if n == name {
			return Compression(c), true
		}
	}
	return CompressionNone, false
}

// Zlib returns true if the data is zlib compressed
func (c Compression) Zlib() bool {
	switch c {
	case CompressionZlib, CompressionNumpressLinearZlib,
		CompressionNumpressPicZlib, CompressionNumpressSlofZlib:
		return true
	}
	return false
}

// Numpress returns the numpress codec without zlib, or CompressionNone
func (c Compression) Numpress() Compression {
	switch c {
	case CompressionNumpressLinear, CompressionNumpressLinearZlib:
		return CompressionNumpressLinear
	case CompressionNumpressPic, CompressionNumpressPicZlib:
		return CompressionNumpressPic
	case CompressionNumpressSlof, CompressionNumpressSlofZlib:
		return CompressionNumpressSlof
	}
	return CompressionNone
}

// withZlib returns the composite of a numpress codec and zlib
func (c Compression) withZlib() Compression {
	switch c.Numpress() {
	case CompressionNumpressLinear:
		return CompressionNumpressLinearZlib
	case CompressionNumpressPic:
		return CompressionNumpressPicZlib
	case CompressionNumpressSlof:
		return CompressionNumpressSlofZlib
	}
	return CompressionZlib
}

// Accession returns the CV term for the compression
func (c Compression) Accession() string {
	for _, e := range compressionTable {
		if e.value == c {
			return e.accession
		}
	}
	return ""
}

// Accession returns the CV term for the role
func (r ArrayRole) Accession() string {
	for _, e := range roleTable {
		if e.value == r {
			return e.accession
		}
	}
	return ""
}

// Accession returns the float CV term for the width
func (w NumericWidth) Accession() string {
	for _, e := range widthTable {
		if e.value == w {
			return e.accession
		}
	}
	return ""
}

type cvEntry[T any] struct {
	accession string
	name      string
	value     T
}

// CV Terms for binary data compression
// MS:1000574 zlib compression
// MS:1000576 No Compression
// MS:1002312 MS-Numpress linear prediction compression
// MS:1002313 MS-Numpress positive integer compression
// MS:1002314 MS-Numpress short logged float compression
// MS:1002746 MS-Numpress linear prediction compression followed by zlib compression
// MS:1002747 MS-Numpress positive integer compression followed by zlib compression
// MS:1002748 MS-Numpress short logged float compression followed by zlib compression
var compressionTable = []cvEntry[Compression]{
	{`MS:1000576`, `no compression`, CompressionNone},
	{`MS:1000574`, `zlib compression`, CompressionZlib},
	{`MS:1002312`, `MS-Numpress linear prediction compression`, CompressionNumpressLinear},
	{`MS:1002313`, `MS-Numpress positive integer compression`, CompressionNumpressPic},
	{`MS:1002314`, `MS-Numpress short logged float compression`, CompressionNumpressSlof},
	{`MS:1002746`, `MS-Numpress linear prediction compression followed by zlib compression`, CompressionNumpressLinearZlib},
	{`MS:1002747`, `MS-Numpress positive integer compression followed by zlib compression`, CompressionNumpressPicZlib},
	{`MS:1002748`, `MS-Numpress short logged float compression followed by zlib compression`, CompressionNumpressSlofZlib},
}

// CV Terms for binary data array types
var roleTable = []cvEntry[ArrayRole]{
	{`MS:1000514`, `m/z array`, RoleMz},
	{`MS:1000515`, `intensity array`, RoleIntensity},
	{`MS:1000595`, `time array`, RoleTime},
}

// CV Terms for binary-data-type
var widthTable = []cvEntry[NumericWidth]{
	{`MS:1000521`, `32-bit float`, Width32},
	{`MS:1000523`, `64-bit float`, Width64},
	{`MS:1000519`, `32-bit integer`, Width32},
	{`MS:1000522`, `64-bit integer`, Width64},
}

func lookup[T any](table []cvEntry[T], accession string) (T, bool) {
	for _, e := range table {
		if e.accession == accession {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

func cvName[T comparable](table []cvEntry[T], v T) string {
	for _, e := range table {
		if e.value == v {
			return e.name
		}
	}
	return ""
}

// ResolveCompression maps a CV accession to a compression
func ResolveCompression(accession string) (Compression, bool) {
	return lookup(compressionTable, accession)
}

// ResolveRole maps a CV accession to an array role
func ResolveRole(accession string) (ArrayRole, bool) {
	return lookup(roleTable, accession)
}

// ResolveWidth maps a CV accession to a numeric width
func ResolveWidth(accession string) (NumericWidth, bool) {
	return lookup(widthTable, accession)
}
