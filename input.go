package main

import (
	"bufio"
	"compress/gzip"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/524D/mzstream/internal/mzml"
)

// readInput reads an mzML file. Plain files are read lazily, binary data
// is decoded from the file when requested, so the returned closer must
// only be called when the RawFile is no longer used. Compressed files
// (.xz, .gz) are read as a stream with all binary data captured.
func readInput(path string, opts mzml.Options) (*mzml.RawFile, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	var stream io.Reader
	switch {
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		stream = xr
	case strings.HasSuffix(path, ".gz"):
		gr, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gr.Close()
		stream = gr
	}

	if stream != nil {
		log.Debug().Str("file", path).Msg("reading compressed input as stream")
		rf, err := mzml.ReadStream(stream, opts)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return rf, io.NopCloser(nil), nil
	}

	rf, err := mzml.Read(f, opts)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return rf, f, nil
}

// fingerprintFile returns the BLAKE3 hash of a file as hex
func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// createOutput creates path for writing, compressed with xz or gzip if the
// name ends in .xz or .gz. Closing the returned writer flushes everything.
func createOutput(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	out := &outputFile{f: f, bw: bw}
	switch {
	case strings.HasSuffix(path, ".xz"):
		xw, err := xz.NewWriter(bw)
		if err != nil {
			f.Close()
			return nil, err
		}
		out.w, out.c = xw, xw
	case strings.HasSuffix(path, ".gz"):
		gw := gzip.NewWriter(bw)
		out.w, out.c = gw, gw
	default:
		out.w = bw
	}
	return out, nil
}

type outputFile struct {
	f  *os.File
	bw *bufio.Writer
	w  io.Writer
	c  io.Closer // compressor, nil for plain output
}

func (o *outputFile) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *outputFile) Close() error {
	if o.c != nil {
		if err := o.c.Close(); err != nil {
			o.f.Close()
			return err
		}
	}
	if err := o.bw.Flush(); err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}
