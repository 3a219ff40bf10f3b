package mzml

import (
	"fmt"
	"strings"
	"testing"
)

// Values of the generated test document
var (
	fixtureMz0        = []float64{100.1, 200.2, 300.3}
	fixtureIntensity0 = []float32{10, 20, 30}
	fixtureMz1        = []float64{150.05, 250.5, 350.75, 450.125}
	fixtureIntensity1 = []float64{5, 50, 500, 5000}
	fixtureMz2        = []float64{400.4, 500.5}
	fixtureIntensity2 = []float64{1, 2}
	fixtureTime       = []float64{0, 30, 60}
	fixtureTIC        = []float32{100, 200, 300}
)

const (
	fixtureID0 = "controllerType=0 controllerNumber=1 scan=1"
	fixtureID1 = "controllerType=0 controllerNumber=1 scan=2"
	fixtureID2 = "sample=1 period=1 cycle=3 experiment=1"
	fixtureID3 = "controllerType=0 controllerNumber=1 scan=4"
)

type fixtureArray struct {
	text  []byte
	count int
	terms []string // accessions in document order
	wrap  bool     // put the base64 text on its own line
}

func fixtureArrayOf[T Float](t *testing.T, values []T, c Compression, terms ...string) fixtureArray {
	t.Helper()
	text, err := Encode(values, c)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return fixtureArray{text: text, count: len(values), terms: terms}
}

func writeArrays(b *strings.Builder, arrays ...fixtureArray) {
	fmt.Fprintf(b, "<binaryDataArrayList count=\"%d\">\n", len(arrays))
	for _, a := range arrays {
		fmt.Fprintf(b, "<binaryDataArray encodedLength=\"%d\" arrayLength=\"%d\">\n", len(a.text), a.count)
		for _, acc := range a.terms {
			fmt.Fprintf(b, "<cvParam cvRef=\"MS\" accession=\"%s\" name=\"\" value=\"\"/>\n", acc)
		}
		if a.wrap {
			fmt.Fprintf(b, "<binary>\n      %s\n    </binary>\n", a.text)
		} else {
			fmt.Fprintf(b, "<binary>%s</binary>\n", a.text)
		}
		b.WriteString("</binaryDataArray>\n")
	}
	b.WriteString("</binaryDataArrayList>\n")
}

// fixtureDocument returns an mzML document with four spectra and one
// chromatogram. The third spectrum carries an extra charge array, the
// fourth has no intensity array.
func fixtureDocument(t *testing.T, encoding string, latin1 bool) []byte {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "<?xml version=\"1.0\" encoding=\"%s\"?>\n", encoding)
	b.WriteString(`<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
<cvList count="2">
<cv id="MS" fullName="PSI-MS" URI="psi-ms.obo"/>
<cv id="UO" fullName="Unit Ontology" URI="unit.obo"/>
</cvList>
<fileDescription><fileContent>
<cvParam cvRef="MS" accession="MS:1000580" name="MSn spectrum" value=""/>
</fileContent></fileDescription>
<referenceableParamGroupList count="1">
<referenceableParamGroup id="CommonMS1">
<cvParam cvRef="MS" accession="MS:1000130" name="positive scan" value=""/>
<cvParam cvRef="MS" accession="MS:1000127" name="centroid spectrum" value=""/>
</referenceableParamGroup>
</referenceableParamGroupList>
<instrumentConfigurationList count="1">
<instrumentConfiguration id="IC1">
<componentList count="2">
<source order="1"><cvParam cvRef="MS" accession="MS:1000073" name="electrospray ionization" value=""/></source>
<analyzer order="2"><cvParam cvRef="MS" accession="MS:1000484" name="orbitrap" value=""/></analyzer>
</componentList>
</instrumentConfiguration>
</instrumentConfigurationList>
<run id="run1" defaultInstrumentConfigurationRef="IC1" startTimeStamp="2020-01-02T03:04:05Z">
<spectrumList count="4" defaultDataProcessingRef="pwiz">
`)

	// MS1, zlib arrays, one of them wrapped in whitespace
	fmt.Fprintf(&b, "<spectrum index=\"0\" id=\"%s\" defaultArrayLength=\"3\">\n", fixtureID0)
	b.WriteString(`<referenceableParamGroupRef ref="CommonMS1"/>
<cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="1"/>
<cvParam cvRef="MS" accession="MS:1000285" name="total ion current" value="60"/>
<scanList count="1">
<cvParam cvRef="MS" accession="MS:1000795" name="no combination" value=""/>
<scan instrumentConfigurationRef="IC1">
<cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="0.5" unitCvRef="UO" unitAccession="UO:0000031" unitName="minute"/>
<cvParam cvRef="MS" accession="MS:1000927" name="ion injection time" value="12.5" unitCvRef="UO" unitAccession="UO:0000028" unitName="millisecond"/>
<scanWindowList count="1">
<scanWindow>
<cvParam cvRef="MS" accession="MS:1000501" name="scan window lower limit" value="100"/>
<cvParam cvRef="MS" accession="MS:1000500" name="scan window upper limit" value="2000"/>
</scanWindow>
</scanWindowList>
</scan>
</scanList>
`)
	if latin1 {
		b.WriteString("<userParam name=\"comment\" value=\"caf\xe9\"/>\n")
	}
	mz0 := fixtureArrayOf(t, fixtureMz0, CompressionZlib, "MS:1000523", "MS:1000574", "MS:1000514")
	mz0.wrap = true
	writeArrays(&b, mz0,
		fixtureArrayOf(t, fixtureIntensity0, CompressionZlib, "MS:1000521", "MS:1000574", "MS:1000515"))
	b.WriteString("</spectrum>\n")

	// MS2 with two precursors in reverse sort order and numpress arrays.
	// zlib and numpress are separate terms on the intensity array.
	fmt.Fprintf(&b, "<spectrum index=\"1\" id=\"%s\" defaultArrayLength=\"4\">\n", fixtureID1)
	fmt.Fprintf(&b, `<cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="2"/>
<cvParam cvRef="MS" accession="MS:1000128" name="profile spectrum" value=""/>
<cvParam cvRef="MS" accession="MS:1000129" name="negative scan" value=""/>
<scanList count="1">
<scan>
<cvParam cvRef="MS" accession="MS:1000016" name="scan start time" value="31.5" unitCvRef="UO" unitAccession="UO:0000010" unitName="second"/>
</scan>
</scanList>
<precursorList count="2">
<precursor spectrumRef="%s">
<isolationWindow>
<cvParam cvRef="MS" accession="MS:1000827" name="isolation window target m/z" value="445.12"/>
<cvParam cvRef="MS" accession="MS:1000828" name="isolation window lower offset" value="1.0"/>
<cvParam cvRef="MS" accession="MS:1000829" name="isolation window upper offset" value="1.5"/>
<userParam name="ms level" value="2"/>
</isolationWindow>
<selectedIonList count="1">
<selectedIon>
<cvParam cvRef="MS" accession="MS:1000744" name="selected ion m/z" value="445.3"/>
<cvParam cvRef="MS" accession="MS:1000041" name="charge state" value="2"/>
<cvParam cvRef="MS" accession="MS:1000042" name="peak intensity" value="1000"/>
</selectedIon>
</selectedIonList>
<activation>
<cvParam cvRef="MS" accession="MS:1000133" name="collision-induced dissociation" value=""/>
<cvParam cvRef="MS" accession="MS:1000045" name="collision energy" value="35"/>
</activation>
</precursor>
<precursor>
<isolationWindow>
<userParam name="ms level" value="1"/>
</isolationWindow>
<selectedIonList count="1">
<selectedIon>
<cvParam cvRef="MS" accession="MS:1000744" name="selected ion m/z" value="300"/>
</selectedIon>
</selectedIonList>
<activation/>
</precursor>
</precursorList>
<productList count="1">
<product>
<isolationWindow>
<cvParam cvRef="MS" accession="MS:1000827" name="isolation window target m/z" value="120"/>
</isolationWindow>
</product>
</productList>
`, fixtureID0)
	writeArrays(&b,
		fixtureArrayOf(t, fixtureMz1, CompressionNumpressLinear, "MS:1000523", "MS:1002312", "MS:1000514"),
		fixtureArrayOf(t, fixtureIntensity1, CompressionNumpressPicZlib, "MS:1002313", "MS:1000515", "MS:1000574"))
	b.WriteString("</spectrum>\n")

	// No index attribute, vendor id without scan number, extra charge array
	fmt.Fprintf(&b, "<spectrum id=\"%s\" defaultArrayLength=\"2\">\n", fixtureID2)
	b.WriteString(`<cvParam cvRef="MS" accession="MS:1000511" name="ms level" value="1"/>
`)
	writeArrays(&b,
		fixtureArrayOf(t, fixtureMz2, CompressionNone, "MS:1000523", "MS:1000576", "MS:1000514"),
		fixtureArrayOf(t, fixtureIntensity2, CompressionNone, "MS:1000523", "MS:1000576", "MS:1000515"),
		fixtureArrayOf(t, []float32{1, 2}, CompressionNone, "MS:1000521", "MS:1000576", "MS:1000516"))
	b.WriteString("</spectrum>\n")

	// m/z array only
	fmt.Fprintf(&b, "<spectrum index=\"3\" id=\"%s\" defaultArrayLength=\"2\">\n", fixtureID3)
	writeArrays(&b,
		fixtureArrayOf(t, fixtureMz2, CompressionNone, "MS:1000523", "MS:1000576", "MS:1000514"))
	b.WriteString("</spectrum>\n")

	b.WriteString(`</spectrumList>
<chromatogramList count="1" defaultDataProcessingRef="pwiz">
<chromatogram index="0" id="TIC" defaultArrayLength="3">
<cvParam cvRef="MS" accession="MS:1000235" name="total ion current chromatogram" value=""/>
`)
	writeArrays(&b,
		fixtureArrayOf(t, fixtureTime, CompressionZlib, "MS:1000523", "MS:1000574", "MS:1000595"),
		fixtureArrayOf(t, fixtureTIC, CompressionNone, "MS:1000521", "MS:1000576", "MS:1000515"))
	b.WriteString(`</chromatogram>
</chromatogramList>
</run>
</mzML>
`)
	return []byte(b.String())
}
