package mzml

import (
	"math"
	"regexp"
	"sort"
	"strconv"
)

var (
	scanNumberPattern   = regexp.MustCompile(`\bscan=(\d+)`)
	vendorScanIDPattern = regexp.MustCompile(`\bscanId=(\d+)`)
)

// scanNumberFromID extracts the scan number from a native id. Thermo style
// ids carry "scan=N", SCIEX ids "scanId=N"; anything else gets the
// document index plus one.
func scanNumberFromID(id string, index int) int {
	if n, ok := refScanNumber(id); ok {
		return n
	}
	if m := vendorScanIDPattern.FindStringSubmatch(id); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return index + 1
}

// refScanNumber extracts "scan=N" from a native id
func refScanNumber(ref string) (int, bool) {
	m := scanNumberPattern.FindStringSubmatch(ref)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsolationWindow is the m/z range isolated for fragmentation
type IsolationWindow struct {
	CVGroup
}

// TargetMz returns the isolation window target m/z
func (w *IsolationWindow) TargetMz() (float64, bool) {
	return floatParam(&w.CVGroup, cvIsolationTargetMz)
}

// LowerOffset returns the lower offset from the target, 0.5 if not declared
func (w *IsolationWindow) LowerOffset() float64 {
	if v, ok := floatParam(&w.CVGroup, cvIsolationLowerOff); ok {
		return v
	}
	return defaultIsolationWidth
}

// UpperOffset returns the upper offset from the target, 0.5 if not declared
func (w *IsolationWindow) UpperOffset() float64 {
	if v, ok := floatParam(&w.CVGroup, cvIsolationUpperOff); ok {
		return v
	}
	return defaultIsolationWidth
}

// MSLevelHint returns the MS level written by some converters as a user
// parameter on the isolation window of MSn precursors
func (w *IsolationWindow) MSLevelHint() (int, bool) {
	p, ok := w.UserParam(userParamMSLevel)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(p.Value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SelectedIon is an ion selected for fragmentation
type SelectedIon struct {
	CVGroup
}

// Mz returns the selected ion m/z
func (s *SelectedIon) Mz() (float64, bool) {
	return floatParam(&s.CVGroup, cvSelectedIonMz)
}

// Charge returns the charge state, 0 if unknown
func (s *SelectedIon) Charge() int {
	v, ok := s.Value(cvChargeState)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Intensity returns the peak intensity of the selected ion, or NaN
func (s *SelectedIon) Intensity() float64 {
	v, ok := floatParam(&s.CVGroup, cvPeakIntensity)
	if !ok {
		return math.NaN()
	}
	return v
}

// Activation describes the fragmentation
type Activation struct {
	CVGroup
}

// CollisionEnergy returns the collision energy, or NaN
func (a *Activation) CollisionEnergy() float64 {
	v, ok := floatParam(&a.CVGroup, cvCollisionEnergy)
	if !ok {
		return math.NaN()
	}
	return v
}

// Precursor is a <precursor> element of a spectrum or chromatogram
type Precursor struct {
	SpectrumRef     string // Native id of the scan the ion was selected in
	IsolationWindow *IsolationWindow
	SelectedIons    []*SelectedIon
	Activation      *Activation
	CVGroup
}

// Product is a <product> element
type Product struct {
	IsolationWindow *IsolationWindow
	CVGroup
}

// IsolationMz returns the isolation window target m/z, or the m/z of the
// first selected ion when no target is declared.
//
// The isolation window's declared center, not the selected-ion peak,
// best represents what the instrument actually isolated, because some
// acquisition software reports the isotope-apex peak as the "selected ion"
// while isolating a different window center.
func (p *Precursor) IsolationMz() (float64, bool) {
	if p.IsolationWindow != nil {
		if mz, ok := p.IsolationWindow.TargetMz(); ok {
			return mz, true
		}
	}
	return p.SelectedIonMz()
}

// SelectedIonMz returns the m/z of the first selected ion
func (p *Precursor) SelectedIonMz() (float64, bool) {
	if len(p.SelectedIons) == 0 {
		return 0, false
	}
	return p.SelectedIons[0].Mz()
}

// IsolationRange returns the isolated m/z range
func (p *Precursor) IsolationRange() (float64, float64, bool) {
	center, ok := p.IsolationMz()
	if !ok {
		return 0, 0, false
	}
	lower, upper := defaultIsolationWidth, defaultIsolationWidth
	if p.IsolationWindow != nil {
		lower = p.IsolationWindow.LowerOffset()
		upper = p.IsolationWindow.UpperOffset()
	}
	return center - lower, center + upper, true
}

// Charge returns the charge of the first selected ion, 0 if unknown
func (p *Precursor) Charge() int {
	if len(p.SelectedIons) == 0 {
		return 0
	}
	return p.SelectedIons[0].Charge()
}

// RefScanNumber returns the scan number of the spectrum reference
func (p *Precursor) RefScanNumber() (int, bool) {
	if p.SpectrumRef == "" {
		return 0, false
	}
	return refScanNumber(p.SpectrumRef)
}

// MSLevelHint returns the MS level annotated on the isolation window
func (p *Precursor) MSLevelHint() (int, bool) {
	if p.IsolationWindow == nil {
		return 0, false
	}
	return p.IsolationWindow.MSLevelHint()
}

// ComparePrecursors orders precursors by MS level hint, then by the scan
// number of the spectrum reference, then by the m/z of the first selected
// ion. The first criterion that differs decides. A precursor that has a
// criterion sorts before one that lacks it. Returns -1, 0 or 1.
func ComparePrecursors(a, b *Precursor) int {
	la, oka := a.MSLevelHint()
	lb, okb := b.MSLevelHint()
	if c := compareOptional(float64(la), oka, float64(lb), okb); c != 0 {
		return c
	}
	sa, oka := a.RefScanNumber()
	sb, okb := b.RefScanNumber()
	if c := compareOptional(float64(sa), oka, float64(sb), okb); c != 0 {
		return c
	}
	ma, oka := a.SelectedIonMz()
	mb, okb := b.SelectedIonMz()
	return compareOptional(ma, oka, mb, okb)
}

func compareOptional(a float64, aok bool, b float64, bok bool) int {
	switch {
	case aok && !bok:
		return -1
	case !aok && bok:
		return 1
	case !aok && !bok:
		return 0
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortPrecursors sorts precursors with ComparePrecursors. Precursors that
// compare equal keep their document order.
func SortPrecursors(p []*Precursor) {
	sort.SliceStable(p, func(i, j int) bool {
		return ComparePrecursors(p[i], p[j]) < 0
	})
}

func floatParam(g *CVGroup, accession string) (float64, bool) {
	v, ok := g.Value(accession)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
