package engine

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"strings"

	"github.com/ulikunitz/xz"

	"breachline/engine/enginerr"
)

// compressionKind is the detected compression format of a source
// file, per SPEC_FULL's "Multi-format compression" supplement: gzip,
// bzip2 and xz, each recognised by file extension (.gz/.gzip, .bz2,
// .xz) or by magic bytes. MIME types are not consulted.
type compressionKind int

const (
	compressionNone compressionKind = iota
	compressionGzip
	compressionBzip2
	compressionXZ
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// detectCompressionByName classifies a compression kind from a file
// name's extension, per §4.11's "detect gzip compression (by filename
// .csv.gz/.tsv.gz/.gzip ...)" rule, generalized to bzip2/xz.
func detectCompressionByName(name string) compressionKind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		return compressionGzip
	case strings.HasSuffix(lower, ".bz2"):
		return compressionBzip2
	case strings.HasSuffix(lower, ".xz"):
		return compressionXZ
	default:
		return compressionNone
	}
}

// detectCompressionByMagic peeks at the stream's leading bytes to
// classify compression when the file name is inconclusive (e.g. no
// extension).
func detectCompressionByMagic(br *bufio.Reader) compressionKind {
	header, _ := br.Peek(6)
	switch {
	case len(header) >= 2 && startsWith(header, gzipMagic):
		return compressionGzip
	case len(header) >= 3 && startsWith(header, bzip2Magic):
		return compressionBzip2
	case len(header) >= 6 && startsWith(header, xzMagic):
		return compressionXZ
	default:
		return compressionNone
	}
}

func startsWith(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// wrapDecompressingReader inserts the decompression step the
// streaming parser reads from, per §4.11. name is used for
// extension-based detection; magic-byte sniffing is the fallback.
func wrapDecompressingReader(r io.Reader, name string) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 1<<16)

	kind := detectCompressionByName(name)
	if kind == compressionNone {
		kind = detectCompressionByMagic(br)
	}

	switch kind {
	case compressionNone:
		return br, nil
	case compressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, enginerr.Unsupportedf("gzip decompression: %v", err)
		}
		return gz, nil
	case compressionBzip2:
		return bzip2.NewReader(br), nil
	case compressionXZ:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, enginerr.Unsupportedf("xz decompression: %v", err)
		}
		return xzr, nil
	default:
		return br, nil
	}
}
