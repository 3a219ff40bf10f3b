package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/mzstream/internal/mzml"
)

type testSpectrum struct {
	id        string
	msLevel   int
	rtMinutes float64
	mz        []float64
	intensity []float64
	precursor string // spectrumRef of the precursor, MS2 only
	targetMz  float64
}

var testSpectra = []testSpectrum{
	{id: "scan=1", msLevel: 1, rtMinutes: 1, mz: []float64{100, 200, 300}, intensity: []float64{10, 500, 20}},
	{id: "scan=2", msLevel: 2, rtMinutes: 1.5, mz: []float64{150, 250}, intensity: []float64{5, 7},
		precursor: "scan=1", targetMz: 200},
	{id: "scan=3", msLevel: 1, rtMinutes: 2, mz: []float64{110, 400}, intensity: []float64{30, 40}},
}

func encodeArray(t *testing.T, b *strings.Builder, values []float64, role string) {
	t.Helper()
	text, err := mzml.Encode(values, mzml.CompressionZlib)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	fmt.Fprintf(b, `<binaryDataArray encodedLength="%d">
<cvParam cvRef="MS" accession="MS:1000523" name="64-bit float" value=""/>
<cvParam cvRef="MS" accession="MS:1000574" name="zlib compression" value=""/>
<cvParam cvRef="MS" accession="%s" name="" value=""/>
<binary>%s</binary>
</binaryDataArray>
`, len(text), role, text)
}

// testDocument returns an mzML document with testSpectra
func testDocument(t *testing.T) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
<instrumentConfigurationList count="1">
<instrumentConfiguration id="IC1">
<componentList count="1">
<analyzer order="1"><cvParam cvRef="MS" accession="MS:1000484" name="orbitrap" value=""/></analyzer>
</componentList>
</instrumentConfiguration>
</instrumentConfigurationList>
<run id="test_run" defaultInstrumentConfigurationRef="IC1" startTimeStamp="2021-06-01T10:00:00Z">
`)
	fmt.Fprintf(&b, "<spectrumList count=\"%d\">\n", len(testSpectra))
	for i, s := range testSpectra {
		fmt.Fprintf(&b, "<spectrum index=\"%d\" id=\"%s\" defaultArrayLength=\"%d\">\n", i, s.id, len(s.mz))
		fmt.Fprintf(&b, "<cvParam cvRef=\"MS\" accession=\"MS:1000511\" name=\"ms level\" value=\"%d\"/>\n", s.msLevel)
		fmt.Fprintf(&b, `<scanList count="1"><scan>
<cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="%g" unitCvRef="UO" unitAccession="UO:0000031" unitName="minute"/>
</scan></scanList>
`, s.rtMinutes)
		if s.precursor != "" {
			fmt.Fprintf(&b, `<precursorList count="1"><precursor spectrumRef="%s">
<isolationWindow><cvParam cvRef="MS" accession="MS:1000827" name="isolation window target m/z" value="%g"/></isolationWindow>
<selectedIonList count="1"><selectedIon>
<cvParam cvRef="MS" accession="MS:1000744" name="selected ion m/z" value="%g"/>
<cvParam cvRef="MS" accession="MS:1000041" name="charge state" value="2"/>
</selectedIon></selectedIonList>
<activation/>
</precursor></precursorList>
`, s.precursor, s.targetMz, s.targetMz)
		}
		b.WriteString("<binaryDataArrayList count=\"2\">\n")
		encodeArray(t, &b, s.mz, "MS:1000514")
		encodeArray(t, &b, s.intensity, "MS:1000515")
		b.WriteString("</binaryDataArrayList>\n</spectrum>\n")
	}
	b.WriteString("</spectrumList>\n</run>\n</mzML>\n")
	return []byte(b.String())
}

// writeTestDocument writes the test document to a temporary directory
func writeTestDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mzML")
	if err := os.WriteFile(path, testDocument(t), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}
