package executor

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flexbackup-manager/internal/logging"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType names the codec used for archived run logs
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
	CompressionLZ4  CompressionType = "lz4"
	CompressionZstd CompressionType = "zstd"
)

// SupportedCompressions lists the accepted values of setup.log_compression
var SupportedCompressions = []CompressionType{CompressionNone, CompressionGzip, CompressionLZ4, CompressionZstd}

// Extension returns the file suffix appended to compressed logs
func (c CompressionType) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionLZ4:
		return ".lz4"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// ArchiveStats describes one compressed log
type ArchiveStats struct {
	Path             string          `json:"path"`
	OriginalSize     int64           `json:"original_size"`
	CompressedSize   int64           `json:"compressed_size"`
	CompressionRatio float64         `json:"compression_ratio"`
	Algorithm        CompressionType `json:"algorithm"`
	Duration         time.Duration   `json:"duration"`
}

// LogArchiver compresses finished run logs and prunes old ones
type LogArchiver struct {
	dir           string
	algorithm     CompressionType
	retentionDays int
	logger        *logging.Logger
}

// NewLogArchiver creates an archiver for the run logs in dir. A retention of
// zero days disables pruning.
func NewLogArchiver(dir string, algorithm CompressionType, retentionDays int, logger *logging.Logger) (*LogArchiver, error) {
	if algorithm == "" {
		algorithm = CompressionNone
	}
	if !isSupportedCompression(algorithm) {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &LogArchiver{dir: dir, algorithm: algorithm, retentionDays: retentionDays, logger: logger}, nil
}

func isSupportedCompression(c CompressionType) bool {
	for _, s := range SupportedCompressions {
		if s == c {
			return true
		}
	}
	return false
}

// LogPath returns the path of the run log for one executor invocation
func (a *LogArchiver) LogPath(day time.Time, set, level string) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s-%s-%s.log", day.UTC().Format("2006-01-02"), set, level))
}

// Compress replaces path by its compressed form. When an archive for the
// same day, set and level already exists, its contents are kept and the new
// log is appended after them. With compression disabled the file is left
// alone.
func (a *LogArchiver) Compress(path string) (*ArchiveStats, error) {
	if a.algorithm == CompressionNone {
		return nil, nil
	}

	start := time.Now()
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer src.Close()

	target := path + a.algorithm.Extension()
	tmp := target + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	w, err := a.newWriter(dst)
	if err != nil {
		dst.Close()
		os.Remove(tmp)
		return nil, err
	}
	abort := func(err error) (*ArchiveStats, error) {
		w.Close()
		dst.Close()
		os.Remove(tmp)
		return nil, err
	}

	var original int64
	if prev, err := Open(target); err == nil {
		n, cerr := io.Copy(w, prev)
		prev.Close()
		if cerr != nil {
			return abort(fmt.Errorf("failed to read existing archive %s: %w", target, cerr))
		}
		original += n
	} else if !errors.Is(err, os.ErrNotExist) {
		return abort(fmt.Errorf("failed to open existing archive %s: %w", target, err))
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return abort(fmt.Errorf("failed to compress run log: %w", err))
	}
	original += n

	if err := w.Close(); err != nil {
		dst.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to finish %s stream: %w", a.algorithm, err)
	}

	written, err := dst.Seek(0, io.SeekCurrent)
	if err != nil {
		written = 0
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to replace archive: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("failed to remove uncompressed run log: %w", err)
	}

	stats := &ArchiveStats{
		Path:             target,
		OriginalSize:     original,
		CompressedSize:   written,
		CompressionRatio: compressionRatio(original, written),
		Algorithm:        a.algorithm,
		Duration:         time.Since(start),
	}

	a.logger.WithFields(map[string]interface{}{
		"operation":         "archive_log",
		"path":              target,
		"original_size":     stats.OriginalSize,
		"compressed_size":   stats.CompressedSize,
		"compression_ratio": stats.CompressionRatio,
	}).Debug("Run log archived")

	return stats, nil
}

func (a *LogArchiver) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch a.algorithm {
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4.Fast)); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		return zw, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", a.algorithm)
	}
}

// Open returns a reader over an archived or plain run log
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, CompressionGzip.Extension()):
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return &stackedReader{Reader: r, closers: []io.Closer{r, f}}, nil
	case strings.HasSuffix(path, CompressionLZ4.Extension()):
		return &stackedReader{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	case strings.HasSuffix(path, CompressionZstd.Extension()):
		r, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return &stackedReader{Reader: r, closers: []io.Closer{zstdCloser{r}, f}}, nil
	default:
		return f, nil
	}
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}

// Prune deletes run logs older than the retention window and returns the
// removed paths.
func (a *LogArchiver) Prune(now time.Time) ([]string, error) {
	if a.retentionDays <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list log directory: %w", err)
	}

	cutoff := now.Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !isRunLog(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(a.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			return removed, fmt.Errorf("failed to remove old run log %s: %w", path, err)
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		a.logger.WithFields(map[string]interface{}{
			"operation": "prune_logs",
			"removed":   len(removed),
		}).Info("Old run logs removed")
	}
	return removed, nil
}

func isRunLog(name string) bool {
	for _, c := range SupportedCompressions {
		if strings.HasSuffix(name, ".log"+c.Extension()) {
			return true
		}
	}
	return false
}

func compressionRatio(original, compressed int64) float64 {
	if original == 0 {
		return 1.0
	}
	return float64(compressed) / float64(original)
}
