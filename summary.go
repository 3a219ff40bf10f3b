package main

import (
	"io"
	"math"
	"strconv"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzstream/internal/mzml"
)

// Output format version of the info command
const outputFormatVersion = "1.0"

// Analyzer CV accessions that name the instrument type
const (
	cvFTICRSpectrometer    = `MS:1000079`
	cvTOFSpectrometer      = `MS:1000084`
	cvOrbiTrapSpectrometer = `MS:1000484`
)

type peakSummary struct {
	Mz        float64 `json:"mz"`
	Intensity float64 `json:"intensity"`
	ScanID    string  `json:"scan_id"`
}

type runSummary struct {
	Version       string         `json:"version"`
	File          string         `json:"file"`
	Fingerprint   string         `json:"fingerprint"`
	RunID         string         `json:"run_id"`
	StartTime     string         `json:"start_time,omitempty"`
	Instrument    string         `json:"instrument,omitempty"`
	Spectra       int            `json:"spectra"`
	Chromatograms int            `json:"chromatograms"`
	MSLevels      map[string]int `json:"ms_levels"`
	Peaks         int            `json:"peaks"`
	RTMin         float64        `json:"rt_min"`
	RTMax         float64        `json:"rt_max"`
	MzMin         float64        `json:"mz_min"`
	MzMax         float64        `json:"mz_max"`
	TIC           float64        `json:"tic"`
	BasePeak      *peakSummary   `json:"base_peak,omitempty"`
}

// instrumentName returns the instrument type of the first analyzer that
// is known
func instrumentName(f *mzml.RawFile) string {
	for _, a := range f.Analyzers {
		switch a {
		case cvFTICRSpectrometer:
			return `FTICR`
		case cvTOFSpectrometer:
			return `TOF`
		case cvOrbiTrapSpectrometer:
			return `Orbitrap`
		}
	}
	return ``
}

// summarize computes the run summary over all scans of f
func summarize(f *mzml.RawFile) (runSummary, error) {
	s := runSummary{
		Version:       outputFormatVersion,
		RunID:         f.RunID,
		StartTime:     f.StartTimeStamp,
		Instrument:    instrumentName(f),
		Spectra:       f.NumSpecs(),
		Chromatograms: f.NumChromatograms(),
		MSLevels:      make(map[string]int),
	}
	rtMin, rtMax := math.Inf(1), math.Inf(-1)
	mzMin, mzMax := math.Inf(1), math.Inf(-1)

	for _, scan := range f.Scans {
		msLevel, err := scan.MSLevel()
		if err != nil {
			return s, err
		}
		s.MSLevels[strconv.Itoa(msLevel)]++

		rt, err := scan.RetentionTime()
		if err != nil {
			return s, err
		}
		if rt >= 0 {
			rtMin = math.Min(rtMin, rt)
			rtMax = math.Max(rtMax, rt)
		}

		mz, err := scan.MzValues()
		if err != nil {
			return s, err
		}
		intensity, err := scan.IntensityValues()
		if err != nil {
			return s, err
		}
		if len(mz) == 0 || len(mz) != len(intensity) {
			continue
		}
		s.Peaks += len(mz)
		mzMin = math.Min(mzMin, floats.Min(mz))
		mzMax = math.Max(mzMax, floats.Max(mz))
		s.TIC += floats.Sum(intensity)
		i := floats.MaxIdx(intensity)
		if s.BasePeak == nil || intensity[i] > s.BasePeak.Intensity {
			s.BasePeak = &peakSummary{Mz: mz[i], Intensity: intensity[i], ScanID: scan.ID}
		}
	}
	if rtMin <= rtMax {
		s.RTMin, s.RTMax = rtMin, rtMax
	}
	if mzMin <= mzMax {
		s.MzMin, s.MzMax = mzMin, mzMax
	}
	return s, nil
}

func writeSummary(w io.Writer, s runSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
