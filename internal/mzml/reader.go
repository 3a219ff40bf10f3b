package mzml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// Options control which records are kept and how binary data is captured
type Options struct {
	// ScanFilter is called when a spectrum is complete; scans for which
	// it returns false are dropped. nil keeps all scans.
	ScanFilter func(*Scan) bool
	// ChromatogramFilter does the same for chromatograms
	ChromatogramFilter func(*Chromatogram) bool
	// ImmediateCapture copies the base64 text of each binary data array
	// while parsing, instead of recording its position for later reads.
	// Filters can then decode values of the record they are evaluating
	// without seeking back in the input.
	ImmediateCapture bool
}

// paramSink receives the CV and user parameters of the innermost element
// that owns parameters
type paramSink interface {
	addCVParam(CVParam)
	addUserParam(UserParam)
}

// analyzerSink collects the analyzer CV terms of instrument configurations
type analyzerSink struct {
	f *RawFile
}

func (a analyzerSink) addCVParam(p CVParam)   { a.f.addAnalyzer(p.Accession) }
func (a analyzerSink) addUserParam(UserParam) {}

// parseState holds the open elements and the objects under construction.
// Each slot is set when its element opens and cleared when it closes.
type parseState struct {
	stack       tagStack
	scan        *Scan
	chrom       *Chromatogram
	scanEntry   *ScanEntry
	scanWindow  *ScanWindow
	precursor   *Precursor
	product     *Product
	isolation   *IsolationWindow
	selectedIon *SelectedIon
	activation  *Activation
	binary      *BinaryDataArray
	paramGroup  *ReferenceableParamGroup
	sourceFile  *SourceFile
	text        []byte // base64 text of the open <binary>, immediate capture only
	textSeen    bool
	scanCount   int
	chromCount  int
}

// Reader parses an mzML document in a single forward pass and returns
// scans and chromatograms as they complete
type Reader struct {
	d          *xml.Decoder
	src        io.ReaderAt
	opts       Options
	file       *RawFile
	st         parseState
	collect    bool
	transcoded bool
}

// NewReader returns a Reader that tokenizes r. src must give access to the
// same bytes as r by absolute offset; binary data is then read from src on
// demand. If src is nil, binary data is captured while parsing.
func NewReader(r io.Reader, src io.ReaderAt, opts Options) *Reader {
	rd := &Reader{
		src:  src,
		opts: opts,
		file: newRawFile(src),
	}
	d := xml.NewDecoder(r)
	d.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		// Offsets in the transcoded text do not match the input
		rd.transcoded = true
		return charset.NewReaderLabel(label, input)
	}
	rd.d = d
	return rd
}

// Read reads an mzML document. Binary data is decoded from src when the
// values of a scan or chromatogram are first requested, so src must stay
// open while the RawFile is used.
func Read(src io.ReaderAt, opts Options) (*RawFile, error) {
	return readAll(NewReader(io.NewSectionReader(src, 0, math.MaxInt64), src, opts))
}

// ReadStream reads an mzML document from a stream that cannot seek. All
// binary data is captured while parsing.
func ReadStream(r io.Reader, opts Options) (*RawFile, error) {
	return readAll(NewReader(r, nil, opts))
}

func readAll(r *Reader) (*RawFile, error) {
	r.collect = true
	for {
		_, err := r.Next()
		if err == io.EOF {
			return r.file, nil
		}
		if err != nil {
			return r.file, err
		}
	}
}

// File returns the run metadata read so far. Scans and chromatograms are
// only added to it by Read and ReadStream.
func (r *Reader) File() *RawFile {
	return r.file
}

func (r *Reader) immediate() bool {
	return r.opts.ImmediateCapture || r.src == nil || r.transcoded
}

// Next returns the next scan or chromatogram that passed its filter.
// At the end of the document it returns io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		t, err := r.d.Token()
		if err != nil {
			return nil, err
		}
		switch t := t.(type) {
		case xml.StartElement:
			if err := r.onEnter(t); err != nil {
				return nil, err
			}
		case xml.CharData:
			r.onText(t)
		case xml.EndElement:
			if rec := r.onExit(); rec != nil {
				return rec, nil
			}
		}
	}
}

func attr(t xml.StartElement, name string) (string, bool) {
	for _, a := range t.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func requiredAttr(t xml.StartElement, name string) (string, error) {
	v, ok := attr(t, name)
	if !ok {
		return "", fmt.Errorf("%w: %s@%s", ErrMissingAttribute, t.Name.Local, name)
	}
	return v, nil
}

func requiredIntAttr(t xml.StartElement, name string) (int, error) {
	v, err := requiredAttr(t, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("MzML: %s@%s: %w", t.Name.Local, name, err)
	}
	return n, nil
}

func optionalIntAttr(t xml.StartElement, name string, def int) (int, error) {
	v, ok := attr(t, name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("MzML: %s@%s: %w", t.Name.Local, name, err)
	}
	return n, nil
}

func (r *Reader) onEnter(t xml.StartElement) error {
	st := &r.st
	id := lookupTag(t.Name.Local)
	st.stack.push(id)

	switch id {
	case tagRun:
		r.file.RunID, _ = attr(t, "id")
		r.file.DefaultInstrumentConfigurationRef, _ = attr(t, "defaultInstrumentConfigurationRef")
		r.file.DefaultSourceFileRef, _ = attr(t, "defaultSourceFileRef")
		r.file.StartTimeStamp, _ = attr(t, "startTimeStamp")
	case tagSpectrumList:
		r.file.SpectrumDataProcessingRef, _ = attr(t, "defaultDataProcessingRef")
	case tagChromatogramList:
		r.file.ChromatogramDataProcessingRef, _ = attr(t, "defaultDataProcessingRef")
	case tagReferenceableParamGroup:
		groupID, err := requiredAttr(t, "id")
		if err != nil {
			return err
		}
		st.paramGroup = &ReferenceableParamGroup{ID: groupID}
	case tagSourceFile:
		fileID, err := requiredAttr(t, "id")
		if err != nil {
			return err
		}
		st.sourceFile = &SourceFile{ID: fileID}
		st.sourceFile.Name, _ = attr(t, "name")
		st.sourceFile.Location, _ = attr(t, "location")
	case tagInstrumentConfiguration:
		if confID, ok := attr(t, "id"); ok {
			r.file.InstrumentConfigurations = append(r.file.InstrumentConfigurations, confID)
		}
	case tagSpectrum:
		return r.enterSpectrum(t)
	case tagChromatogram:
		return r.enterChromatogram(t)
	case tagScan:
		if st.scan != nil {
			ref, _ := attr(t, "instrumentConfigurationRef")
			st.scanEntry = &ScanEntry{InstrumentConfigurationRef: ref}
		}
	case tagScanWindow:
		if st.scanEntry != nil {
			st.scanWindow = &ScanWindow{}
		}
	case tagPrecursor:
		ref, _ := attr(t, "spectrumRef")
		st.precursor = &Precursor{SpectrumRef: ref}
	case tagProduct:
		st.product = &Product{}
	case tagIsolationWindow:
		st.isolation = &IsolationWindow{}
	case tagSelectedIon:
		st.selectedIon = &SelectedIon{}
	case tagActivation:
		st.activation = &Activation{}
	case tagBinaryDataArray:
		return r.enterBinaryDataArray(t)
	case tagBinary:
		if st.binary != nil {
			if !r.immediate() {
				st.binary.SetPosition(r.d.InputOffset())
			}
			st.text = st.text[:0]
			st.textSeen = false
		}
	case tagCVParam:
		p, err := cvParamFrom(t)
		if err != nil {
			return err
		}
		if sink := r.paramSink(); sink != nil {
			sink.addCVParam(p)
		}
	case tagUserParam:
		name, err := requiredAttr(t, "name")
		if err != nil {
			return err
		}
		p := UserParam{Name: name}
		p.Value, _ = attr(t, "value")
		p.Type, _ = attr(t, "type")
		if sink := r.paramSink(); sink != nil {
			sink.addUserParam(p)
		}
	case tagReferenceableParamGroupRef:
		ref, err := requiredAttr(t, "ref")
		if err != nil {
			return err
		}
		r.applyParamGroup(ref)
	}
	return nil
}

func (r *Reader) enterSpectrum(t xml.StartElement) error {
	st := &r.st
	id, err := requiredAttr(t, "id")
	if err != nil {
		return err
	}
	arrayLength, err := requiredIntAttr(t, "defaultArrayLength")
	if err != nil {
		return err
	}
	index, err := optionalIntAttr(t, "index", st.scanCount)
	if err != nil {
		return err
	}
	st.scanCount++
	s := &Scan{
		Index:              index,
		ID:                 id,
		ScanNumber:         scanNumberFromID(id, index),
		DefaultArrayLength: arrayLength,
		src:                r.src,
	}
	s.DataProcessingRef, _ = attr(t, "dataProcessingRef")
	s.SourceFileRef, _ = attr(t, "sourceFileRef")
	st.scan = s
	return nil
}

func (r *Reader) enterChromatogram(t xml.StartElement) error {
	st := &r.st
	id, err := requiredAttr(t, "id")
	if err != nil {
		return err
	}
	arrayLength, err := requiredIntAttr(t, "defaultArrayLength")
	if err != nil {
		return err
	}
	index, err := optionalIntAttr(t, "index", st.chromCount)
	if err != nil {
		return err
	}
	st.chromCount++
	c := &Chromatogram{
		Index:              index,
		ID:                 id,
		DefaultArrayLength: arrayLength,
		src:                r.src,
	}
	c.DataProcessingRef, _ = attr(t, "dataProcessingRef")
	st.chrom = c
	return nil
}

func (r *Reader) enterBinaryDataArray(t xml.StartElement) error {
	st := &r.st
	encodedLength, err := requiredIntAttr(t, "encodedLength")
	if err != nil {
		return err
	}
	def := 0
	switch {
	case st.scan != nil:
		def = st.scan.DefaultArrayLength
	case st.chrom != nil:
		def = st.chrom.DefaultArrayLength
	}
	arrayLength, err := optionalIntAttr(t, "arrayLength", def)
	if err != nil {
		return err
	}
	st.binary = newBinaryDataArray(encodedLength, arrayLength)
	return nil
}

func cvParamFrom(t xml.StartElement) (CVParam, error) {
	var p CVParam
	var err error
	if p.Accession, err = requiredAttr(t, "accession"); err != nil {
		return p, err
	}
	p.CVRef, _ = attr(t, "cvRef")
	p.Name, _ = attr(t, "name")
	p.Value, _ = attr(t, "value")
	p.UnitCVRef, _ = attr(t, "unitCvRef")
	p.UnitAccession, _ = attr(t, "unitAccession")
	p.UnitName, _ = attr(t, "unitName")
	return p, nil
}

// paramSink returns the innermost open element that owns parameters.
// cvParam appears at many depths, so the owner is found by asking which
// elements are open, innermost kinds first.
func (r *Reader) paramSink() paramSink {
	st := &r.st
	in := st.stack.inside
	switch {
	case in(tagBinaryDataArray) && st.binary != nil:
		return st.binary
	case in(tagScanWindow) && st.scanWindow != nil:
		return &st.scanWindow.CVGroup
	case in(tagIsolationWindow) && st.isolation != nil:
		return &st.isolation.CVGroup
	case in(tagSelectedIon) && st.selectedIon != nil:
		return &st.selectedIon.CVGroup
	case in(tagActivation) && st.activation != nil:
		return &st.activation.CVGroup
	case in(tagPrecursor) && st.precursor != nil:
		return &st.precursor.CVGroup
	case in(tagProduct) && st.product != nil:
		return &st.product.CVGroup
	case in(tagScan) && st.scanEntry != nil:
		return &st.scanEntry.CVGroup
	case in(tagScanList) && st.scan != nil:
		return &st.scan.ScanList.CVGroup
	case in(tagSpectrum) && st.scan != nil:
		return &st.scan.CVGroup
	case in(tagChromatogram) && st.chrom != nil:
		return &st.chrom.CVGroup
	case in(tagReferenceableParamGroup) && st.paramGroup != nil:
		return &st.paramGroup.CVGroup
	case in(tagSourceFile) && st.sourceFile != nil:
		return &st.sourceFile.CVGroup
	case in(tagAnalyzer) && in(tagInstrumentConfiguration):
		return analyzerSink{r.file}
	}
	return nil
}

// applyParamGroup copies the parameters of a referenceable param group
// into the innermost parameter owner
func (r *Reader) applyParamGroup(ref string) {
	g, ok := r.file.ParamGroups[ref]
	if !ok {
		log.Warn().Str("ref", ref).Msg("reference to unknown referenceableParamGroup ignored")
		return
	}
	sink := r.paramSink()
	if sink == nil {
		return
	}
	for _, p := range g.CVParams {
		sink.addCVParam(p)
	}
	for _, p := range g.UserParams {
		sink.addUserParam(p)
	}
}

func (r *Reader) onText(text xml.CharData) {
	st := &r.st
	if st.binary == nil || len(st.stack) == 0 || st.stack[len(st.stack)-1] != tagBinary {
		return
	}
	if r.immediate() {
		st.text = append(st.text, text...)
		return
	}
	if !st.textSeen {
		// Skip whitespace in front of the base64 text
		lead := len(text) - len(bytes.TrimLeft(text, " \t\r\n"))
		st.binary.SetPosition(st.binary.Position + int64(lead))
	}
	st.textSeen = true
}

// onExit closes the innermost element. Completed objects are attached to
// their parent and their slot is cleared. A completed scan or chromatogram
// that passes its filter is returned.
func (r *Reader) onExit() Record {
	st := &r.st
	switch st.stack.pop() {
	case tagBinary:
		if st.binary != nil && r.immediate() {
			st.binary.capture(bytes.TrimSpace(st.text))
		}
	case tagBinaryDataArray:
		r.attachBinary()
		st.binary = nil
	case tagScanWindow:
		if st.scanWindow != nil && st.scanEntry != nil {
			st.scanEntry.Windows = append(st.scanEntry.Windows, st.scanWindow)
		}
		st.scanWindow = nil
	case tagScan:
		if st.scanEntry != nil && st.scan != nil {
			st.scan.ScanList.Scans = append(st.scan.ScanList.Scans, st.scanEntry)
		}
		st.scanEntry = nil
	case tagIsolationWindow:
		switch {
		case st.isolation == nil:
		case st.product != nil:
			st.product.IsolationWindow = st.isolation
		case st.precursor != nil:
			st.precursor.IsolationWindow = st.isolation
		}
		st.isolation = nil
	case tagSelectedIon:
		if st.selectedIon != nil && st.precursor != nil {
			st.precursor.SelectedIons = append(st.precursor.SelectedIons, st.selectedIon)
		}
		st.selectedIon = nil
	case tagActivation:
		if st.activation != nil && st.precursor != nil {
			st.precursor.Activation = st.activation
		}
		st.activation = nil
	case tagPrecursor:
		switch {
		case st.precursor == nil:
		case st.scan != nil:
			st.scan.Precursors = append(st.scan.Precursors, st.precursor)
		case st.chrom != nil:
			st.chrom.Precursor = st.precursor
		}
		st.precursor = nil
	case tagProduct:
		switch {
		case st.product == nil:
		case st.scan != nil:
			st.scan.Products = append(st.scan.Products, st.product)
		case st.chrom != nil:
			st.chrom.Product = st.product
		}
		st.product = nil
	case tagReferenceableParamGroup:
		if st.paramGroup != nil {
			r.file.ParamGroups[st.paramGroup.ID] = st.paramGroup
		}
		st.paramGroup = nil
	case tagSourceFile:
		if st.sourceFile != nil {
			r.file.SourceFiles = append(r.file.SourceFiles, st.sourceFile)
		}
		st.sourceFile = nil
	case tagSpectrum:
		if s := r.finishScan(); s != nil {
			return s
		}
	case tagChromatogram:
		if c := r.finishChromatogram(); c != nil {
			return c
		}
	}
	return nil
}

// attachBinary hands a completed binary data array to its scan or
// chromatogram. Arrays with an unresolved role are skipped.
func (r *Reader) attachBinary() {
	st := &r.st
	b := st.binary
	if b == nil {
		return
	}
	if !b.Resolved() {
		log.Debug().Err(ErrUnresolvedAccession).Strs("accessions", b.unresolved).
			Msg("binary data array skipped")
		return
	}
	switch {
	case st.scan != nil:
		switch b.Role {
		case RoleMz:
			st.scan.mz = newLazyArray(b)
		case RoleIntensity:
			st.scan.intensity = newLazyArray(b)
		}
	case st.chrom != nil:
		switch b.Role {
		case RoleTime:
			st.chrom.time = newLazyArray(b)
		case RoleIntensity:
			st.chrom.intensity = newLazyArray(b)
		}
	}
}

func (r *Reader) finishScan() *Scan {
	st := &r.st
	s := st.scan
	st.scan = nil
	if s == nil {
		return nil
	}
	SortPrecursors(s.Precursors)
	if s.mz == nil || s.intensity == nil {
		log.Debug().Str("id", s.ID).Msg("spectrum without m/z and intensity array skipped")
		return nil
	}
	if r.opts.ScanFilter != nil && !r.opts.ScanFilter(s) {
		return nil
	}
	if r.collect {
		r.file.addScan(s)
	}
	return s
}

func (r *Reader) finishChromatogram() *Chromatogram {
	st := &r.st
	c := st.chrom
	st.chrom = nil
	if c == nil {
		return nil
	}
	if c.time == nil || c.intensity == nil {
		log.Debug().Str("id", c.ID).Msg("chromatogram without time and intensity array skipped")
		return nil
	}
	if r.opts.ChromatogramFilter != nil && !r.opts.ChromatogramFilter(c) {
		return nil
	}
	if r.collect {
		r.file.addChromatogram(c)
	}
	return c
}
