package mzml

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// CV parameter accessions used to read scan and precursor metadata
const (
	cvMSLevel             = `MS:1000511`
	cvCentroidSpectrum    = `MS:1000127`
	cvProfileSpectrum     = `MS:1000128`
	cvPositiveScan        = `MS:1000130`
	cvNegativeScan        = `MS:1000129`
	cvTotalIonCurrent     = `MS:1000285`
	cvBasePeakMz          = `MS:1000504`
	cvBasePeakIntensity   = `MS:1000505`
	cvLowestObservedMz    = `MS:1000528`
	cvHighestObservedMz   = `MS:1000527`
	cvScanStartTime       = `MS:1000016`
	cvIonInjectionTime    = `MS:1000927`
	cvScanWindowLower     = `MS:1000501`
	cvScanWindowUpper     = `MS:1000500`
	cvIsolationTargetMz   = `MS:1000827`
	cvIsolationLowerOff   = `MS:1000828`
	cvIsolationUpperOff   = `MS:1000829`
	cvSelectedIonMz       = `MS:1000744`
	cvChargeState         = `MS:1000041`
	cvPeakIntensity       = `MS:1000042`
	cvCollisionEnergy     = `MS:1000045`
	cvUnitMinute          = `UO:0000031`
	cvUnitMinuteMS        = `MS:1000038`
	cvUnitMillisecond     = `UO:0000028`
	userParamMSLevel      = `ms level`
	defaultIsolationWidth = 0.5
)

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnknownUnit means the file contains a unit that the software cannot handle
	ErrUnknownUnit = errors.New("MzML: can't handle unit")
	// ErrMissingAttribute means a required attribute is absent; the
	// document is malformed and parsing stops
	ErrMissingAttribute = errors.New("MzML: missing required attribute")
	// ErrUnresolvedAccession means a binary data array has a CV term that
	// cannot be resolved; that array is skipped
	ErrUnresolvedAccession = errors.New("MzML: unresolved accession")
	// ErrTruncated means the binary data ended before all values were read
	ErrTruncated = errors.New("MzML: binary data truncated")
	// ErrCodecFailure means a numpress codec rejected the binary data
	ErrCodecFailure = errors.New("MzML: numpress codec failure")
	// ErrMissingPrecision means a binary data array without numpress
	// compression has no 32/64 bit CV term
	ErrMissingPrecision = errors.New("MzML: binary data precision missing")
	// ErrNoPosition means a binary data array has neither a stream
	// position nor captured data
	ErrNoPosition = errors.New("MzML: binary data position unknown")
	// ErrUnsupported means the requested encoding cannot be applied
	ErrUnsupported = errors.New("MzML: unsupported encoding")
	// ErrValuesUnavailable means a scan or chromatogram has no descriptor
	// for the requested array
	ErrValuesUnavailable = errors.New("MzML: values unavailable")
)

// TruncatedError reports a decode that ran out of data. Partial holds the
// values that were decoded before the data ended.
type TruncatedError struct {
	Want    int
	Got     int
	Partial []float64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("MzML: binary data truncated: %d of %d values", e.Got, e.Want)
}

// Is makes errors.Is(err, ErrTruncated) match
func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
// Empty attribute values are stored as "".
type CVParam struct {
	CVRef         string
	Accession     string
	Name          string
	Value         string
	UnitCVRef     string
	UnitAccession string
	UnitName      string
}

// UserParam is a free-form parameter
type UserParam struct {
	Name  string
	Value string
	Type  string
}

// CVGroup is the ordered list of CV and user parameters owned by an mzML
// element.
type CVGroup struct {
	CVParams   []CVParam
	UserParams []UserParam
}

// Params returns the group itself, so that every type embedding a CVGroup
// can receive CV parameters from the parser
func (g *CVGroup) Params() *CVGroup {
	return g
}

func (g *CVGroup) addCVParam(p CVParam) {
	g.CVParams = append(g.CVParams, p)
}

func (g *CVGroup) addUserParam(p UserParam) {
	g.UserParams = append(g.UserParams, p)
}

// CVParam returns the first parameter with the given accession
func (g *CVGroup) CVParam(accession string) (CVParam, bool) {
	for _, p := range g.CVParams {
		if p.Accession == accession {
			return p, true
		}
	}
	return CVParam{}, false
}

// Has returns true if the group contains the accession
func (g *CVGroup) Has(accession string) bool {
	_, ok := g.CVParam(accession)
	return ok
}

// Value returns the value of the first parameter with the given
// accession. An absent parameter and an empty value both report false.
func (g *CVGroup) Value(accession string) (string, bool) {
	p, ok := g.CVParam(accession)
	if !ok || p.Value == "" {
		return "", false
	}
	return p.Value, true
}

// Float returns the value of a parameter as a float64, or NaN if the
// parameter is absent
func (g *CVGroup) Float(accession string) (float64, error) {
	v, ok := g.Value(accession)
	if !ok {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(v, 64)
}

// UserParam returns the first user parameter with the given name
func (g *CVGroup) UserParam(name string) (UserParam, bool) {
	for _, p := range g.UserParams {
		if p.Name == name {
			return p, true
		}
	}
	return UserParam{}, false
}

// ReferenceableParamGroup is a named CVGroup that other elements refer to
type ReferenceableParamGroup struct {
	ID string
	CVGroup
}

// Polarity of a scan
type Polarity int

// Scan polarities
const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

func (p Polarity) String() string {
	switch p {
	case PolarityPositive:
		return "+"
	case PolarityNegative:
		return "-"
	}
	return "?"
}

// retentionSeconds converts a scan start time parameter to seconds
func retentionSeconds(p CVParam) (float64, error) {
	retentionTime, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return 0, err
	}
	// Check if the retention time is in minutes, otherwise assume it's seconds
	if p.UnitAccession == cvUnitMinute || p.UnitAccession == cvUnitMinuteMS {
		retentionTime *= 60
	}
	return retentionTime, nil
}
