package mzml

import (
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

const (
	mzMLSchemaLocation = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	xsiNamespace       = "http://www.w3.org/2001/XMLSchema-instance"
	cvConversion       = "MS:1000544"
	defaultSoftwareID  = "mzstream"
	dataProcessingID   = "mzstream_conversion"
	defaultInstrConfID = "IC1"
)

// WriteOptions control how Write serializes a RawFile
type WriteOptions struct {
	// Compression is applied to every binary data array
	Compression Compression
	// Software and Version are recorded in the software list
	Software string
	Version  string
}

type mzMLContentWrite struct {
	XMLName                     xml.Name                       `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Sl1                         string                         `xml:"xsi:schemaLocation,attr"`
	Version                     string                         `xml:"version,attr"`
	Sl2                         string                         `xml:"xmlns:xsi,attr"`
	CvList                      xmlCVList                      `xml:"cvList"`
	FileDescription             xmlFileDescription             `xml:"fileDescription"`
	ReferenceableParamGroupList *xmlParamGroupList             `xml:"referenceableParamGroupList,omitempty"`
	SoftwareList                xmlSoftwareList                `xml:"softwareList"`
	InstrumentConfigurationList xmlInstrumentConfigurationList `xml:"instrumentConfigurationList"`
	DataProcessingList          xmlDataProcessingList          `xml:"dataProcessingList"`
	Run                         xmlRun                         `xml:"run"`
}

type xmlCV struct {
	ID       string `xml:"id,attr"`
	FullName string `xml:"fullName,attr"`
	URI      string `xml:"URI,attr"`
}

type xmlCVList struct {
	Count int     `xml:"count,attr"`
	CV    []xmlCV `xml:"cv"`
}

type xmlFileDescription struct {
	FileContent    xmlParams          `xml:"fileContent"`
	SourceFileList *xmlSourceFileList `xml:"sourceFileList,omitempty"`
}

type xmlSourceFileList struct {
	Count      int             `xml:"count,attr"`
	SourceFile []xmlSourceFile `xml:"sourceFile"`
}

type xmlSourceFile struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Location string `xml:"location,attr"`
	xmlParams
}

type xmlParams struct {
	CvPar   []xmlCVParam   `xml:"cvParam,omitempty"`
	UserPar []xmlUserParam `xml:"userParam,omitempty"`
}

type xmlCVParam struct {
	CVRef         string `xml:"cvRef,attr"`
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

type xmlUserParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
}

type xmlParamGroupList struct {
	Count int             `xml:"count,attr"`
	Group []xmlParamGroup `xml:"referenceableParamGroup"`
}

type xmlParamGroup struct {
	ID string `xml:"id,attr"`
	xmlParams
}

type xmlSoftwareList struct {
	Count    int           `xml:"count,attr"`
	Software []xmlSoftware `xml:"software"`
}

type xmlSoftware struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr"`
	xmlParams
}

type xmlInstrumentConfigurationList struct {
	Count  int                          `xml:"count,attr"`
	Config []xmlInstrumentConfiguration `xml:"instrumentConfiguration"`
}

type xmlInstrumentConfiguration struct {
	ID            string            `xml:"id,attr"`
	ComponentList *xmlComponentList `xml:"componentList,omitempty"`
}

type xmlComponentList struct {
	Count    int           `xml:"count,attr"`
	Analyzer []xmlAnalyzer `xml:"analyzer"`
}

type xmlAnalyzer struct {
	Order int `xml:"order,attr"`
	xmlParams
}

type xmlDataProcessingList struct {
	Count          int                 `xml:"count,attr"`
	DataProcessing []xmlDataProcessing `xml:"dataProcessing"`
}

type xmlDataProcessing struct {
	ID             string                `xml:"id,attr"`
	ProcessingMeth []xmlProcessingMethod `xml:"processingMethod"`
}

type xmlProcessingMethod struct {
	Order       int    `xml:"order,attr"`
	SoftwareRef string `xml:"softwareRef,attr"`
	xmlParams
}

type xmlRun struct {
	ID                                string               `xml:"id,attr"`
	DefaultInstrumentConfigurationRef string               `xml:"defaultInstrumentConfigurationRef,attr"`
	StartTimeStamp                    string               `xml:"startTimeStamp,attr,omitempty"`
	DefaultSourceFileRef              string               `xml:"defaultSourceFileRef,attr,omitempty"`
	SpectrumList                      xmlSpectrumList      `xml:"spectrumList"`
	ChromatogramList                  *xmlChromatogramList `xml:"chromatogramList,omitempty"`
}

type xmlSpectrumList struct {
	Count                    int           `xml:"count,attr"`
	DefaultDataProcessingRef string        `xml:"defaultDataProcessingRef,attr"`
	Spectrum                 []xmlSpectrum `xml:"spectrum"`
}

type xmlSpectrum struct {
	Index              int    `xml:"index,attr"`
	ID                 string `xml:"id,attr"`
	DefaultArrayLength int    `xml:"defaultArrayLength,attr"`
	DataProcessingRef  string `xml:"dataProcessingRef,attr,omitempty"`
	SourceFileRef      string `xml:"sourceFileRef,attr,omitempty"`
	xmlParams
	ScanList            *xmlScanList           `xml:"scanList,omitempty"`
	PrecursorList       *xmlPrecursorList      `xml:"precursorList,omitempty"`
	ProductList         *xmlProductList        `xml:"productList,omitempty"`
	BinaryDataArrayList xmlBinaryDataArrayList `xml:"binaryDataArrayList"`
}

type xmlScanList struct {
	Count int `xml:"count,attr"`
	xmlParams
	Scan []xmlScan `xml:"scan"`
}

type xmlScan struct {
	InstrConfRef string `xml:"instrumentConfigurationRef,attr,omitempty"`
	xmlParams
	ScanWindowList *xmlScanWindowList `xml:"scanWindowList,omitempty"`
}

type xmlScanWindowList struct {
	Count      int         `xml:"count,attr"`
	ScanWindow []xmlParams `xml:"scanWindow"`
}

type xmlPrecursorList struct {
	Count     int            `xml:"count,attr"`
	Precursor []xmlPrecursor `xml:"precursor"`
}

type xmlPrecursor struct {
	SpectrumRef     string              `xml:"spectrumRef,attr,omitempty"`
	IsolationWindow *xmlParams          `xml:"isolationWindow,omitempty"`
	SelectedIonList *xmlSelectedIonList `xml:"selectedIonList,omitempty"`
	Activation      xmlParams           `xml:"activation"`
}

type xmlSelectedIonList struct {
	Count       int         `xml:"count,attr"`
	SelectedIon []xmlParams `xml:"selectedIon"`
}

type xmlProductList struct {
	Count   int          `xml:"count,attr"`
	Product []xmlProduct `xml:"product"`
}

type xmlProduct struct {
	IsolationWindow *xmlParams `xml:"isolationWindow,omitempty"`
}

type xmlChromatogramList struct {
	Count                    int               `xml:"count,attr"`
	DefaultDataProcessingRef string            `xml:"defaultDataProcessingRef,attr"`
	Chromatogram             []xmlChromatogram `xml:"chromatogram"`
}

type xmlChromatogram struct {
	Index              int    `xml:"index,attr"`
	ID                 string `xml:"id,attr"`
	DefaultArrayLength int    `xml:"defaultArrayLength,attr"`
	DataProcessingRef  string `xml:"dataProcessingRef,attr,omitempty"`
	xmlParams
	Precursor           *xmlPrecursor          `xml:"precursor,omitempty"`
	Product             *xmlProduct            `xml:"product,omitempty"`
	BinaryDataArrayList xmlBinaryDataArrayList `xml:"binaryDataArrayList"`
}

type xmlBinaryDataArrayList struct {
	Count           int                  `xml:"count,attr"`
	BinaryDataArray []xmlBinaryDataArray `xml:"binaryDataArray"`
}

type xmlBinaryDataArray struct {
	EncodedLength int `xml:"encodedLength,attr"`
	ArrayLength   int `xml:"arrayLength,attr"`
	xmlParams
	Binary string `xml:"binary"`
}

// idSet holds the ids a written document defines
type idSet map[string]bool

// ref returns id if the document defines it. References to anything else
// are dropped so the output holds no dangling IDREFs.
func (s idSet) ref(id string) string {
	if s[id] {
		return id
	}
	return ""
}

// docRefs are the referenceable ids of the written document
type docRefs struct {
	sourceFiles    idSet
	instrConfs     idSet
	dataProcessing idSet
}

// Write serializes f as mzML. Binary data arrays are decoded and encoded
// again with opts.Compression; m/z and time values are written with 64
// bits and intensities with 32 bits. Parameters of referenceable param
// groups were copied into the referring elements by the reader, so they
// are written inline. Source files and instrument configurations of f are
// kept; per-record data processing references are replaced by the
// conversion step of the written file.
func Write(w io.Writer, f *RawFile, opts WriteOptions) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	content, err := buildContent(f, opts)
	if err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(content); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func buildContent(f *RawFile, opts WriteOptions) (*mzMLContentWrite, error) {
	software := opts.Software
	if software == "" {
		software = defaultSoftwareID
	}
	instrConf := f.DefaultInstrumentConfigurationRef
	if instrConf == "" {
		instrConf = defaultInstrConfID
	}

	content := &mzMLContentWrite{
		Sl1:     mzMLSchemaLocation,
		Version: "1.1.0",
		Sl2:     xsiNamespace,
	}
	content.CvList.CV = []xmlCV{
		{ID: "MS", FullName: "Proteomics Standards Initiative Mass Spectrometry Ontology", URI: "https://raw.githubusercontent.com/HUPO-PSI/psi-ms-CV/master/psi-ms.obo"},
		{ID: "UO", FullName: "Unit Ontology", URI: "https://raw.githubusercontent.com/bio-ontology-research-group/unit-ontology/master/unit.obo"},
	}
	content.CvList.Count = len(content.CvList.CV)

	if len(f.ParamGroups) > 0 {
		groups := &xmlParamGroupList{}
		for _, id := range slices.Sorted(maps.Keys(f.ParamGroups)) {
			groups.Group = append(groups.Group, xmlParamGroup{ID: id, xmlParams: paramsXML(&f.ParamGroups[id].CVGroup)})
		}
		groups.Count = len(groups.Group)
		content.ReferenceableParamGroupList = groups
	}

	refs := docRefs{
		sourceFiles:    idSet{},
		instrConfs:     idSet{},
		dataProcessing: idSet{dataProcessingID: true},
	}
	if len(f.SourceFiles) > 0 {
		sl := &xmlSourceFileList{}
		for _, sf := range f.SourceFiles {
			if refs.sourceFiles[sf.ID] {
				continue
			}
			refs.sourceFiles[sf.ID] = true
			sl.SourceFile = append(sl.SourceFile, xmlSourceFile{
				ID:        sf.ID,
				Name:      sf.Name,
				Location:  sf.Location,
				xmlParams: paramsXML(&sf.CVGroup),
			})
		}
		sl.Count = len(sl.SourceFile)
		content.FileDescription.SourceFileList = sl
	}

	content.SoftwareList = xmlSoftwareList{
		Count:    1,
		Software: []xmlSoftware{{ID: software, Version: opts.Version}},
	}

	ic := xmlInstrumentConfiguration{ID: instrConf}
	if len(f.Analyzers) > 0 {
		cl := &xmlComponentList{}
		for i, acc := range f.Analyzers {
			cl.Analyzer = append(cl.Analyzer, xmlAnalyzer{
				Order:     i + 1,
				xmlParams: xmlParams{CvPar: []xmlCVParam{{CVRef: cvRefOf(acc), Accession: acc}}},
			})
		}
		cl.Count = len(cl.Analyzer)
		ic.ComponentList = cl
	}
	configs := []xmlInstrumentConfiguration{ic}
	refs.instrConfs[instrConf] = true
	for _, id := range f.InstrumentConfigurations {
		if !refs.instrConfs[id] {
			refs.instrConfs[id] = true
			configs = append(configs, xmlInstrumentConfiguration{ID: id})
		}
	}
	content.InstrumentConfigurationList = xmlInstrumentConfigurationList{
		Count:  len(configs),
		Config: configs,
	}

	content.DataProcessingList = xmlDataProcessingList{
		Count: 1,
		DataProcessing: []xmlDataProcessing{{
			ID: dataProcessingID,
			ProcessingMeth: []xmlProcessingMethod{{
				Order:       1,
				SoftwareRef: software,
				xmlParams: xmlParams{CvPar: []xmlCVParam{
					{CVRef: "MS", Accession: cvConversion, Name: "Conversion to mzML"},
				}},
			}},
		}},
	}

	content.Run = xmlRun{
		ID:                                f.RunID,
		DefaultInstrumentConfigurationRef: instrConf,
		StartTimeStamp:                    f.StartTimeStamp,
		DefaultSourceFileRef:              refs.sourceFiles.ref(f.DefaultSourceFileRef),
	}
	content.Run.SpectrumList.DefaultDataProcessingRef = dataProcessingID
	for i, s := range f.Scans {
		xs, err := spectrumXML(i, s, opts.Compression, &refs)
		if err != nil {
			return nil, err
		}
		content.Run.SpectrumList.Spectrum = append(content.Run.SpectrumList.Spectrum, xs)
	}
	content.Run.SpectrumList.Count = len(f.Scans)

	if len(f.Chromatograms) > 0 {
		cl := &xmlChromatogramList{DefaultDataProcessingRef: dataProcessingID}
		for i, c := range f.Chromatograms {
			xc, err := chromatogramXML(i, c, opts.Compression, &refs)
			if err != nil {
				return nil, err
			}
			cl.Chromatogram = append(cl.Chromatogram, xc)
		}
		cl.Count = len(cl.Chromatogram)
		content.Run.ChromatogramList = cl
	}
	return content, nil
}

func spectrumXML(index int, s *Scan, c Compression, refs *docRefs) (xmlSpectrum, error) {
	mz, err := s.MzValues()
	if err != nil {
		return xmlSpectrum{}, fmt.Errorf("spectrum %s: m/z: %w", s.ID, err)
	}
	intensity, err := s.IntensityValues()
	if err != nil {
		return xmlSpectrum{}, fmt.Errorf("spectrum %s: intensity: %w", s.ID, err)
	}
	mzArray, err := binaryXML(mz, RoleMz, c)
	if err != nil {
		return xmlSpectrum{}, fmt.Errorf("spectrum %s: %w", s.ID, err)
	}
	intensityArray, err := binaryXML(intensity, RoleIntensity, c)
	if err != nil {
		return xmlSpectrum{}, fmt.Errorf("spectrum %s: %w", s.ID, err)
	}

	xs := xmlSpectrum{
		Index:              index,
		ID:                 s.ID,
		DefaultArrayLength: len(mz),
		DataProcessingRef:  refs.dataProcessing.ref(s.DataProcessingRef),
		SourceFileRef:      refs.sourceFiles.ref(s.SourceFileRef),
		xmlParams:          paramsXML(&s.CVGroup),
	}
	if len(s.ScanList.Scans) > 0 || len(s.ScanList.CVParams) > 0 {
		sl := &xmlScanList{xmlParams: paramsXML(&s.ScanList.CVGroup)}
		for _, entry := range s.ScanList.Scans {
			xsc := xmlScan{InstrConfRef: refs.instrConfs.ref(entry.InstrumentConfigurationRef), xmlParams: paramsXML(&entry.CVGroup)}
			if len(entry.Windows) > 0 {
				wl := &xmlScanWindowList{Count: len(entry.Windows)}
				for _, w := range entry.Windows {
					wl.ScanWindow = append(wl.ScanWindow, paramsXML(&w.CVGroup))
				}
				xsc.ScanWindowList = wl
			}
			sl.Scan = append(sl.Scan, xsc)
		}
		sl.Count = len(sl.Scan)
		xs.ScanList = sl
	}
	if len(s.Precursors) > 0 {
		pl := &xmlPrecursorList{Count: len(s.Precursors)}
		for _, p := range s.Precursors {
			pl.Precursor = append(pl.Precursor, precursorXML(p))
		}
		xs.PrecursorList = pl
	}
	if len(s.Products) > 0 {
		pl := &xmlProductList{Count: len(s.Products)}
		for _, p := range s.Products {
			pl.Product = append(pl.Product, productXML(p))
		}
		xs.ProductList = pl
	}
	xs.BinaryDataArrayList = xmlBinaryDataArrayList{
		Count:           2,
		BinaryDataArray: []xmlBinaryDataArray{mzArray, intensityArray},
	}
	return xs, nil
}

func chromatogramXML(index int, ch *Chromatogram, c Compression, refs *docRefs) (xmlChromatogram, error) {
	t, err := ch.TimeValues()
	if err != nil {
		return xmlChromatogram{}, fmt.Errorf("chromatogram %s: time: %w", ch.ID, err)
	}
	intensity, err := ch.IntensityValues()
	if err != nil {
		return xmlChromatogram{}, fmt.Errorf("chromatogram %s: intensity: %w", ch.ID, err)
	}
	timeArray, err := binaryXML(t, RoleTime, c)
	if err != nil {
		return xmlChromatogram{}, fmt.Errorf("chromatogram %s: %w", ch.ID, err)
	}
	intensityArray, err := binaryXML(intensity, RoleIntensity, c)
	if err != nil {
		return xmlChromatogram{}, fmt.Errorf("chromatogram %s: %w", ch.ID, err)
	}
	xc := xmlChromatogram{
		Index:              index,
		ID:                 ch.ID,
		DefaultArrayLength: len(t),
		DataProcessingRef:  refs.dataProcessing.ref(ch.DataProcessingRef),
		xmlParams:          paramsXML(&ch.CVGroup),
	}
	if ch.Precursor != nil {
		p := precursorXML(ch.Precursor)
		xc.Precursor = &p
	}
	if ch.Product != nil {
		p := productXML(ch.Product)
		xc.Product = &p
	}
	xc.BinaryDataArrayList = xmlBinaryDataArrayList{
		Count:           2,
		BinaryDataArray: []xmlBinaryDataArray{timeArray, intensityArray},
	}
	return xc, nil
}

func precursorXML(p *Precursor) xmlPrecursor {
	xp := xmlPrecursor{SpectrumRef: p.SpectrumRef}
	if p.IsolationWindow != nil {
		w := paramsXML(&p.IsolationWindow.CVGroup)
		xp.IsolationWindow = &w
	}
	if len(p.SelectedIons) > 0 {
		sl := &xmlSelectedIonList{Count: len(p.SelectedIons)}
		for _, ion := range p.SelectedIons {
			sl.SelectedIon = append(sl.SelectedIon, paramsXML(&ion.CVGroup))
		}
		xp.SelectedIonList = sl
	}
	if p.Activation != nil {
		xp.Activation = paramsXML(&p.Activation.CVGroup)
	}
	return xp
}

func productXML(p *Product) xmlProduct {
	var xp xmlProduct
	if p.IsolationWindow != nil {
		w := paramsXML(&p.IsolationWindow.CVGroup)
		xp.IsolationWindow = &w
	}
	return xp
}

// binaryXML encodes one array. Numpress codecs work on 64-bit values and
// store their own precision, so only plain and zlib intensities are
// narrowed to 32 bits.
func binaryXML(values []float64, role ArrayRole, c Compression) (xmlBinaryDataArray, error) {
	var text []byte
	var err error
	width := Width64
	if role == RoleIntensity {
		width = Width32
	}
	if width == Width32 && c.Numpress() == CompressionNone {
		text, err = Encode(convertValues[float32](values), c)
	} else {
		text, err = Encode(values, c)
	}
	if err != nil {
		return xmlBinaryDataArray{}, err
	}
	return xmlBinaryDataArray{
		EncodedLength: len(text),
		ArrayLength:   len(values),
		xmlParams: xmlParams{CvPar: []xmlCVParam{
			{CVRef: "MS", Accession: width.Accession(), Name: cvName(widthTable, width)},
			{CVRef: "MS", Accession: c.Accession(), Name: cvName(compressionTable, c)},
			{CVRef: "MS", Accession: role.Accession(), Name: cvName(roleTable, role)},
		}},
		Binary: string(text),
	}, nil
}

func paramsXML(g *CVGroup) xmlParams {
	var p xmlParams
	for _, cv := range g.CVParams {
		ref := cv.CVRef
		if ref == "" {
			ref = cvRefOf(cv.Accession)
		}
		p.CvPar = append(p.CvPar, xmlCVParam{
			CVRef:         ref,
			Accession:     cv.Accession,
			Name:          cv.Name,
			Value:         cv.Value,
			UnitCvRef:     cv.UnitCVRef,
			UnitAccession: cv.UnitAccession,
			UnitName:      cv.UnitName,
		})
	}
	for _, up := range g.UserParams {
		p.UserPar = append(p.UserPar, xmlUserParam(up))
	}
	return p
}

// cvRefOf returns the CV prefix of an accession, "MS" for "MS:1000514"
func cvRefOf(accession string) string {
	if i := strings.IndexByte(accession, ':'); i > 0 {
		return accession[:i]
	}
	return "MS"
}
