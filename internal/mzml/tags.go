package mzml

// tag identifies the mzML elements the parser acts on. All other elements
// map to tagOther and are only tracked for nesting.
type tag uint8

const (
	tagOther tag = iota
	tagCVParam
	tagUserParam
	tagReferenceableParamGroup
	tagReferenceableParamGroupRef
	tagSourceFile
	tagInstrumentConfiguration
	tagAnalyzer
	tagRun
	tagSpectrumList
	tagSpectrum
	tagScanList
	tagScan
	tagScanWindow
	tagPrecursor
	tagIsolationWindow
	tagSelectedIon
	tagActivation
	tagProduct
	tagBinaryDataArray
	tagBinary
	tagChromatogramList
	tagChromatogram
)

var tagNames = map[string]tag{
	"cvParam":                    tagCVParam,
	"userParam":                  tagUserParam,
	"referenceableParamGroup":    tagReferenceableParamGroup,
	"referenceableParamGroupRef": tagReferenceableParamGroupRef,
	"sourceFile":                 tagSourceFile,
	"instrumentConfiguration":    tagInstrumentConfiguration,
	"analyzer":                   tagAnalyzer,
	"run":                        tagRun,
	"spectrumList":               tagSpectrumList,
	"spectrum":                   tagSpectrum,
	"scanList":                   tagScanList,
	"scan":                       tagScan,
	"scanWindow":                 tagScanWindow,
	"precursor":                  tagPrecursor,
	"isolationWindow":            tagIsolationWindow,
	"selectedIon":                tagSelectedIon,
	"activation":                 tagActivation,
	"product":                    tagProduct,
	"binaryDataArray":            tagBinaryDataArray,
	"binary":                     tagBinary,
	"chromatogramList":           tagChromatogramList,
	"chromatogram":               tagChromatogram,
}

func lookupTag(local string) tag {
	if t, ok := tagNames[local]; ok {
		return t
	}
	return tagOther
}

// tagStack holds the open elements, outermost first
type tagStack []tag

func (s *tagStack) push(t tag) {
	*s = append(*s, t)
}

func (s *tagStack) pop() tag {
	old := *s
	if len(old) == 0 {
		return tagOther
	}
	t := old[len(old)-1]
	*s = old[:len(old)-1]
	return t
}

// inside returns true if t is open anywhere in the stack
func (s tagStack) inside(t tag) bool {
	for _, x := range s {
		if x == t {
			return true
		}
	}
	return false
}
