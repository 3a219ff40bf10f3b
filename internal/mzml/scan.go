package mzml

import (
	"io"
	"math"
	"slices"
	"strconv"
	"sync"
)

// Record is a *Scan or a *Chromatogram
type Record interface {
	Identifier() string
	Params() *CVGroup
}

// lazyArray decodes a binary data array on first use and keeps the result
type lazyArray struct {
	desc   *BinaryDataArray
	once   sync.Once
	values []float64
	err    error
}

func newLazyArray(b *BinaryDataArray) *lazyArray {
	return &lazyArray{desc: b}
}

func (a *lazyArray) get(src io.ReaderAt) ([]float64, error) {
	if a == nil {
		return nil, ErrValuesUnavailable
	}
	a.once.Do(func() {
		a.values, a.err = decodeValues(src, a.desc)
	})
	// Callers own the returned slice
	return slices.Clone(a.values), a.err
}

func (a *lazyArray) descriptor() *BinaryDataArray {
	if a == nil {
		return nil
	}
	return a.desc
}

func narrow(values []float64, err error) ([]float32, error) {
	if err != nil {
		return nil, err
	}
	return convertValues[float32](values), nil
}

// ScanWindow is an m/z range that was scanned
type ScanWindow struct {
	CVGroup
}

// Lower returns the lower m/z limit, or NaN
func (w *ScanWindow) Lower() float64 {
	v, _ := w.Float(cvScanWindowLower)
	return v
}

// Upper returns the upper m/z limit, or NaN
func (w *ScanWindow) Upper() float64 {
	v, _ := w.Float(cvScanWindowUpper)
	return v
}

// ScanEntry is one <scan> element of a spectrum's scan list
type ScanEntry struct {
	InstrumentConfigurationRef string
	Windows                    []*ScanWindow
	CVGroup
}

// ScanList is the <scanList> of a spectrum
type ScanList struct {
	Scans []*ScanEntry
	CVGroup
}

// Scan is a spectrum of the run. Its binary arrays are decoded on first
// access and cached; concurrent access is safe.
type Scan struct {
	Index              int    // Position in the spectrum list
	ID                 string // Native id, e.g. "controllerType=0 controllerNumber=1 scan=43"
	ScanNumber         int
	DefaultArrayLength int
	DataProcessingRef  string
	SourceFileRef      string
	ScanList           ScanList
	Precursors         []*Precursor // Sorted with ComparePrecursors
	Products           []*Product
	CVGroup

	mz        *lazyArray
	intensity *lazyArray
	src       io.ReaderAt
}

// Identifier returns the native id of the scan
func (s *Scan) Identifier() string {
	return s.ID
}

// MzArray returns the descriptor of the m/z array, or nil
func (s *Scan) MzArray() *BinaryDataArray {
	return s.mz.descriptor()
}

// IntensityArray returns the descriptor of the intensity array, or nil
func (s *Scan) IntensityArray() *BinaryDataArray {
	return s.intensity.descriptor()
}

// MzValues returns the m/z values of the scan
func (s *Scan) MzValues() ([]float64, error) {
	return s.mz.get(s.src)
}

// MzValuesFloat32 returns the m/z values of the scan with 32-bit precision
func (s *Scan) MzValuesFloat32() ([]float32, error) {
	return narrow(s.MzValues())
}

// IntensityValues returns the intensity values of the scan
func (s *Scan) IntensityValues() ([]float64, error) {
	return s.intensity.get(s.src)
}

// IntensityValuesFloat32 returns the intensities with 32-bit precision
func (s *Scan) IntensityValuesFloat32() ([]float32, error) {
	return narrow(s.IntensityValues())
}

// NumDataPoints returns the number of m/z values. If the values cannot be
// decoded, the declared array length is returned.
func (s *Scan) NumDataPoints() int {
	mz, err := s.MzValues()
	if err != nil {
		return s.DefaultArrayLength
	}
	return len(mz)
}

// MSLevel returns the MS level of a scan
func (s *Scan) MSLevel() (int, error) {
	if v, ok := s.Value(cvMSLevel); ok {
		msLevel, err := strconv.ParseInt(v, 10, 64)
		return int(msLevel), err
	}
	return 1, nil // If nothing else, guess it's MS1
}

// Centroid returns true is the spectrum contains centroid peaks
func (s *Scan) Centroid() bool {
	return s.Has(cvCentroidSpectrum)
}

// Polarity returns the scan polarity
func (s *Scan) Polarity() Polarity {
	switch {
	case s.Has(cvPositiveScan):
		return PolarityPositive
	case s.Has(cvNegativeScan):
		return PolarityNegative
	}
	return PolarityUnknown
}

// TotalIonCurrent returns the total ion current, or NaN if not found
func (s *Scan) TotalIonCurrent() (float64, error) {
	return s.Float(cvTotalIonCurrent)
}

// BasePeak returns m/z and intensity of the base peak, NaN if not found
func (s *Scan) BasePeak() (float64, float64, error) {
	mz, err := s.Float(cvBasePeakMz)
	if err != nil {
		return mz, math.NaN(), err
	}
	intensity, err := s.Float(cvBasePeakIntensity)
	return mz, intensity, err
}

// RetentionTime returns the retention time of a spectrum in seconds,
// or -1 if not found
func (s *Scan) RetentionTime() (float64, error) {
	for _, entry := range s.ScanList.Scans {
		if p, ok := entry.CVParam(cvScanStartTime); ok {
			return retentionSeconds(p)
		}
	}
	if p, ok := s.CVParam(cvScanStartTime); ok {
		return retentionSeconds(p)
	}
	return -1.0, nil
}

// IonInjectionTime returns the ion injection time of a spectrum in ms,
// or NaN is not found
func (s *Scan) IonInjectionTime() (float64, error) {
	for _, entry := range s.ScanList.Scans {
		if p, ok := entry.CVParam(cvIonInjectionTime); ok {
			t, err := strconv.ParseFloat(p.Value, 64)
			if err != nil {
				return t, err
			}
			// Check if the ion injection time is in miliseconds,
			// (always the case currently), otherwise return error
			if p.UnitAccession != cvUnitMillisecond {
				return t, ErrUnknownUnit
			}
			return t, nil
		}
	}
	return math.NaN(), nil
}

// ScanWindows returns the scan windows of all scan list entries
func (s *Scan) ScanWindows() []*ScanWindow {
	var w []*ScanWindow
	for _, entry := range s.ScanList.Scans {
		w = append(w, entry.Windows...)
	}
	return w
}

// PrecursorMz returns the isolation m/z of the first precursor
func (s *Scan) PrecursorMz() (float64, bool) {
	if len(s.Precursors) == 0 {
		return 0, false
	}
	return s.Precursors[0].IsolationMz()
}

// Chromatogram is a chromatogram of the run
type Chromatogram struct {
	Index              int
	ID                 string
	DefaultArrayLength int
	DataProcessingRef  string
	Precursor          *Precursor // Set for reaction monitoring chromatograms
	Product            *Product
	CVGroup

	time      *lazyArray
	intensity *lazyArray
	src       io.ReaderAt
}

// Identifier returns the id of the chromatogram
func (c *Chromatogram) Identifier() string {
	return c.ID
}

// TimeArray returns the descriptor of the time array, or nil
func (c *Chromatogram) TimeArray() *BinaryDataArray {
	return c.time.descriptor()
}

// IntensityArray returns the descriptor of the intensity array, or nil
func (c *Chromatogram) IntensityArray() *BinaryDataArray {
	return c.intensity.descriptor()
}

// TimeValues returns the time values of the chromatogram
func (c *Chromatogram) TimeValues() ([]float64, error) {
	return c.time.get(c.src)
}

// TimeValuesFloat32 returns the time values with 32-bit precision
func (c *Chromatogram) TimeValuesFloat32() ([]float32, error) {
	return narrow(c.TimeValues())
}

// IntensityValues returns the intensity values of the chromatogram
func (c *Chromatogram) IntensityValues() ([]float64, error) {
	return c.intensity.get(c.src)
}

// IntensityValuesFloat32 returns the intensities with 32-bit precision
func (c *Chromatogram) IntensityValuesFloat32() ([]float32, error) {
	return narrow(c.IntensityValues())
}

// NumDataPoints returns the number of time values. If the values cannot
// be decoded, the declared array length is returned.
func (c *Chromatogram) NumDataPoints() int {
	t, err := c.TimeValues()
	if err != nil {
		return c.DefaultArrayLength
	}
	return len(t)
}
