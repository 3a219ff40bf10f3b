package mzml

import (
	"io"
	"time"
)

// RawFile holds the spectra and chromatograms of an mzML run. It is built
// by a single parse and only read afterwards.
type RawFile struct {
	RunID                             string
	DefaultInstrumentConfigurationRef string
	DefaultSourceFileRef              string
	StartTimeStamp                    string
	SpectrumDataProcessingRef         string
	ChromatogramDataProcessingRef     string
	ParamGroups                       map[string]*ReferenceableParamGroup
	SourceFiles                       []*SourceFile
	InstrumentConfigurations          []string // ids in document order
	Analyzers                         []string // Analyzer CV accessions of all instrument configurations
	Scans                             []*Scan
	Chromatograms                     []*Chromatogram

	src      io.ReaderAt
	id2Index map[string]int
}

// SourceFile is a file the run was converted from
type SourceFile struct {
	ID       string
	Name     string
	Location string
	CVGroup
}

func newRawFile(src io.ReaderAt) *RawFile {
	return &RawFile{
		ParamGroups: make(map[string]*ReferenceableParamGroup),
		src:         src,
		id2Index:    make(map[string]int),
	}
}

// StartTime returns the run start time stamp
func (f *RawFile) StartTime() (time.Time, bool) {
	if f.StartTimeStamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, f.StartTimeStamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NumSpecs returns the number of spectra
func (f *RawFile) NumSpecs() int {
	return len(f.Scans)
}

// NumChromatograms returns the number of chromatograms
func (f *RawFile) NumChromatograms() int {
	return len(f.Chromatograms)
}

// Scan returns the scan at scanIndex. scanIndex is the position in
// f.Scans, which differs from Scan.Index when a filter dropped scans.
func (f *RawFile) Scan(scanIndex int) (*Scan, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return nil, ErrInvalidScanIndex
	}
	return f.Scans[scanIndex], nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *RawFile) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *RawFile) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.Scans[scanIndex].ID, nil
	}
	return "", ErrInvalidScanIndex
}

// PrecursorScan returns the scan a precursor refers to, or nil
func (f *RawFile) PrecursorScan(p *Precursor) *Scan {
	if p.SpectrumRef == "" {
		return nil
	}
	i, err := f.ScanIndex(p.SpectrumRef)
	if err != nil {
		return nil
	}
	return f.Scans[i]
}

func (f *RawFile) addScan(s *Scan) {
	f.id2Index[s.ID] = len(f.Scans)
	f.Scans = append(f.Scans, s)
}

func (f *RawFile) addChromatogram(c *Chromatogram) {
	f.Chromatograms = append(f.Chromatograms, c)
}

func (f *RawFile) addAnalyzer(accession string) {
	for _, a := range f.Analyzers {
		if a == accession {
			return
		}
	}
	f.Analyzers = append(f.Analyzers, accession)
}
