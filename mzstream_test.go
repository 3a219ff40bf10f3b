package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v3"
	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzstream/internal/mzml"
)

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp()
	// Report errors to the test instead of exiting
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	return app.Run(context.Background(), append([]string{progName}, args...))
}

func TestConvert(t *testing.T) {
	in := writeTestDocument(t)
	out := filepath.Join(t.TempDir(), "out.mzML.xz")
	err := runApp(t, "--log-level", "error", "convert",
		"--compression", "linear+zlib", "--mslevel", "1:1", "-o", out, in)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	rf, closer, err := readInput(out, mzml.Options{})
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	defer closer.Close()

	var ids []string
	for _, s := range rf.Scans {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"scan=1", "scan=3"}, ids); diff != "" {
		t.Errorf("converted scans (-want +got):\n%s", diff)
	}
	if c := rf.Scans[0].MzArray().Compression; c != mzml.CompressionNumpressLinearZlib {
		t.Errorf("compression %s", c)
	}
	mz, err := rf.Scans[1].MzValues()
	if err != nil {
		t.Fatalf("MzValues: %v", err)
	}
	if !floats.EqualApprox(testSpectra[2].mz, mz, 1e-6) {
		t.Errorf("MzValues %v", mz)
	}
}

func TestConvertConfigFile(t *testing.T) {
	in := writeTestDocument(t)
	out := filepath.Join(t.TempDir(), "out.mzML")
	cfgPath := writeConfig(t, `
compression = "none"
ms_level = "2:"
software = "pipeline"
`)
	if err := runApp(t, "--config", cfgPath, "convert", "-o", out, in); err != nil {
		t.Fatalf("convert: %v", err)
	}
	rf, closer, err := readInput(out, mzml.Options{})
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	defer closer.Close()
	if rf.NumSpecs() != 1 || rf.Scans[0].ID != "scan=2" {
		t.Fatalf("converted scans: %d", rf.NumSpecs())
	}
	if c := rf.Scans[0].MzArray().Compression; c != mzml.CompressionNone {
		t.Errorf("compression %s", c)
	}
	// A flag overrides the file
	if err := runApp(t, "--config", cfgPath, "convert", "--mslevel", ":", "-o", out, in); err != nil {
		t.Fatalf("convert: %v", err)
	}
	rf2, closer2, err := readInput(out, mzml.Options{})
	if err != nil {
		t.Fatalf("readInput: %v", err)
	}
	defer closer2.Close()
	if rf2.NumSpecs() != 3 {
		t.Errorf("converted scans with flag override: %d", rf2.NumSpecs())
	}
}

func TestConvertErrors(t *testing.T) {
	in := writeTestDocument(t)
	out := filepath.Join(t.TempDir(), "out.mzML")
	tests := map[string][]string{
		"compression": {"convert", "--compression", "bzip2", "-o", out, in},
		"no input":    {"convert", "-o", out},
		"bad range":   {"convert", "--rt", "9:1", "-o", out, in},
		"not a range": {"convert", "--mslevel", "2", "-o", out, in},
		"log level":   {"--log-level", "loud", "convert", "-o", out, in},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if err := runApp(t, args...); err == nil {
				t.Errorf("convert: no error")
			}
		})
	}
}

func TestDumpSpecs(t *testing.T) {
	rf, err := mzml.ReadStream(bytes.NewReader(testDocument(t)), mzml.Options{})
	if err != nil {
		t.Fatalf("ReadStream: %v", err)
	}
	var out bytes.Buffer
	if err := dumpSpecs(&out, rf, "1:1"); err != nil {
		t.Fatalf("dumpSpecs: %v", err)
	}
	want := `Spectrum:1 id:scan=2 rt:90.000000 ms:2 scan:2
precursor mz:200.000000 [199.500000:200.500000] charge:2 ref:scan=1
0 mz:150.000000 intens:5.000000
1 mz:250.000000 intens:7.000000
`
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("dump (-want +got):\n%s", diff)
	}

	out.Reset()
	if err := dumpSpecs(&out, rf, ":"); err != nil {
		t.Fatalf("dumpSpecs: %v", err)
	}
	if n := strings.Count(out.String(), "Spectrum:"); n != 3 {
		t.Errorf("dump of all spectra: %d spectra", n)
	}
	if err := dumpSpecs(&out, rf, "2:1"); err == nil {
		t.Errorf("dumpSpecs: no error for empty range")
	}
}
