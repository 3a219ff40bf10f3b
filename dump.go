// This file contains the dump command, which prints the peaks and
// precursors of a range of spectra for inspection

package main

import (
	"fmt"
	"io"

	"github.com/524D/mzstream/internal/mzml"
)

func dumpSpecs(w io.Writer, f *mzml.RawFile, specs string) error {
	if f.NumSpecs() == 0 {
		return nil
	}
	dumpMin, dumpMax, err := parseIntRange(specs, 0, f.NumSpecs()-1)
	if err != nil {
		return err
	}
	for i := dumpMin; i <= dumpMax; i++ {
		scan, err := f.Scan(i)
		if err != nil {
			return err
		}
		if err := dumpSpec(w, scan); err != nil {
			return err
		}
	}
	return nil
}

func dumpSpec(w io.Writer, scan *mzml.Scan) error {
	retentionTime, err := scan.RetentionTime()
	if err != nil {
		return err
	}
	msLevel, err := scan.MSLevel()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Spectrum:%d id:%s rt:%f ms:%d scan:%d\n",
		scan.Index, scan.ID, retentionTime, msLevel, scan.ScanNumber)
	for _, p := range scan.Precursors {
		mz, _ := p.IsolationMz()
		lo, hi, _ := p.IsolationRange()
		fmt.Fprintf(w, "precursor mz:%f [%f:%f] charge:%d ref:%s\n",
			mz, lo, hi, p.Charge(), p.SpectrumRef)
	}
	mz, err := scan.MzValues()
	if err != nil {
		return err
	}
	intensity, err := scan.IntensityValues()
	if err != nil {
		return err
	}
	for j := range mz {
		if j >= len(intensity) {
			break
		}
		fmt.Fprintf(w, "%d mz:%f intens:%f\n", j, mz[j], intensity[j])
	}
	return nil
}
