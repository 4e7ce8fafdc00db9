package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/netsweep/internal/constants"
)

// Format version constants.
const (
	FormatV1 = 1 // plain JSON archive
	FormatV2 = 2 // header line followed by a checksummed payload
)

// MaxDecompressedSize is the maximum allowed size of a decompressed archive payload.
const MaxDecompressedSize = constants.MaxDecompressedArchiveSize

// Header is the plain-text first line of a V2 archive.
type Header struct {
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	Checksum   string            `json:"checksum"`
	PlanID     string            `json:"plan_id"`
	PlanName   string            `json:"plan_name"`
	RunCount   int               `json:"run_count"`
	Compressed bool              `json:"compressed"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DetectFormat reads the first line of a file to determine V1 vs V2.
// V2 files have a header line with "version":2. V1 files are plain JSON
// starting with '{'.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading first line: %w", err)
	}
	first := strings.TrimSpace(string(line))
	if first == "" {
		return 0, fmt.Errorf("file is empty")
	}

	var header Header
	if err := json.Unmarshal([]byte(first), &header); err == nil && header.Version == FormatV2 {
		return FormatV2, nil
	}
	if first[0] == '{' {
		return FormatV1, nil
	}
	return 0, fmt.Errorf("unrecognized archive format")
}

// WriteV2 writes an archive as a header line followed by its payload,
// gzip-compressed when compress is set.
func WriteV2(path string, a *Archive, compress bool) (*Header, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	if compress {
		var compressed bytes.Buffer
		gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if _, err := gzw.Write(payload); err != nil {
			return nil, fmt.Errorf("compressing payload: %w", err)
		}
		if err := gzw.Close(); err != nil {
			return nil, fmt.Errorf("closing gzip writer: %w", err)
		}
		payload = compressed.Bytes()
	}

	header := &Header{
		Version:    FormatV2,
		CreatedAt:  a.CreatedAt,
		Checksum:   checksum(payload),
		PlanID:     a.Plan.ID,
		PlanName:   a.Plan.Name,
		RunCount:   len(a.Runs),
		Compressed: compress,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(payload)
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	return header, f.Close()
}

// ReadArchive reads an archive in either format. V2 checksums are verified.
func ReadArchive(path string) (*Archive, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if version == FormatV2 {
		return ReadV2(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return decodeArchive(data)
}

// ReadV2 reads a V2 archive, verifies the checksum and decodes the payload.
func ReadV2(path string) (*Archive, error) {
	header, payload, err := readV2(path)
	if err != nil {
		return nil, err
	}

	if header.Compressed {
		gzr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()

		decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		if int64(len(decompressed)) > MaxDecompressedSize {
			return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
		}
		payload = decompressed
	}

	return decodeArchive(payload)
}

// ReadHeader reads only the header line of a V2 archive.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return parseHeader(bufio.NewReader(f))
}

// Verify checks the payload checksum of a V2 archive without decoding it.
func Verify(path string) error {
	_, _, err := readV2(path)
	return err
}

// readV2 returns the header and the raw payload after checking its sum.
func readV2(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}

	if actual := checksum(payload); actual != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return header, payload, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", header.Version)
	}
	return &header, nil
}

func decodeArchive(data []byte) (*Archive, error) {
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing archive data: %w", err)
	}
	if a.Plan.ID == "" {
		return nil, fmt.Errorf("archive has no plan")
	}
	return &a, nil
}

func checksum(payload []byte) string {
	hash := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(hash[:])
}
