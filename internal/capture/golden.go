package capture

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/machine"
)

// GoldenComparison reports the byte-exact comparison of one artifact
// against its golden reference (spec.md §4.8's "golden comparison").
type GoldenComparison struct {
	Artifact        string `json:"artifact"`
	Match           bool   `json:"match"`
	ActualChecksum  string `json:"actualChecksum"`
	GoldenChecksum  string `json:"goldenChecksum"`
	FirstDiffOffset *int   `json:"firstDiffOffset,omitempty"`
	ActualByte      *byte  `json:"actualByte,omitempty"`
	GoldenByte      *byte  `json:"goldenByte,omitempty"`
}

// GenerateGolden runs req against be and writes its artifacts under
// goldenDir, establishing the reference a later CompareGolden call is
// checked against.
func (p *Pipeline) GenerateGolden(ctx context.Context, be backend.Backend, req machine.CaptureRequest, goldenDir string) (machine.CaptureResult, error) {
	return p.Run(ctx, be, req, goldenDir)
}

// CompareGolden runs a fresh capture of req into outputDir, then
// compares each artifact byte-exactly against the matching file under
// goldenDir (same prefix, same on-disk naming convention). A missing
// golden file counts as a mismatch with an empty GoldenChecksum.
func (p *Pipeline) CompareGolden(ctx context.Context, be backend.Backend, req machine.CaptureRequest, outputDir, goldenDir string) ([]GoldenComparison, bool, error) {
	result, err := p.Run(ctx, be, req, outputDir)
	if err != nil {
		return nil, false, err
	}

	names := make([]string, 0, len(result.Hashes))
	for name := range result.Hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	allMatch := true
	comparisons := make([]GoldenComparison, 0, len(names))
	for _, name := range names {
		actualBytes := artifactBytes(name, result)
		filename := artifactFilename(name, req, result)

		goldenBytes, err := os.ReadFile(filepath.Join(goldenDir, filename))
		cmp := GoldenComparison{
			Artifact:       name,
			ActualChecksum: result.Hashes[name],
		}
		if err != nil {
			cmp.Match = false
			cmp.GoldenChecksum = ""
			comparisons = append(comparisons, cmp)
			allMatch = false
			continue
		}

		cmp.GoldenChecksum = hashBytes(goldenBytes)
		cmp.Match, cmp.FirstDiffOffset, cmp.ActualByte, cmp.GoldenByte = compareBytes(actualBytes, goldenBytes)
		if !cmp.Match {
			allMatch = false
		}
		comparisons = append(comparisons, cmp)
	}

	return comparisons, allMatch, nil
}

func artifactBytes(name string, result machine.CaptureResult) []byte {
	switch name {
	case "framebuffer":
		return result.Framebuffer
	case "screenshot":
		return result.Screenshot
	default:
		return result.Extras[name]
	}
}

func artifactFilename(name string, req machine.CaptureRequest, result machine.CaptureResult) string {
	switch name {
	case "framebuffer":
		return req.Prefix + "_framebuffer.bin"
	case "screenshot":
		ext := result.ScreenshotFormat
		if ext == "" {
			ext = "bin"
		}
		return req.Prefix + "_screenshot." + ext
	default:
		return name
	}
}

// compareBytes reports whether a and b are byte-identical. When they
// differ, it reports the offset of the first differing byte (the
// shorter length, if the lengths differ) and the two byte values at
// that offset when both slices cover it.
func compareBytes(a, b []byte) (match bool, offset *int, aByte, bByte *byte) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			idx := i
			av, bv := a[i], b[i]
			return false, &idx, &av, &bv
		}
	}
	if len(a) != len(b) {
		idx := n
		return false, &idx, nil, nil
	}
	return true, nil, nil, nil
}
