// Package journal records boundary calls as zstd-compressed JSON lines so a
// session can be replayed against a fresh bridge.
package journal

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/scene-bridge/errors"
)

// Record is one boundary call.
type Record struct {
	Time     time.Time `json:"time"`
	Call     string    `json:"call"`
	Request  []byte    `json:"request,omitempty"`
	Response []byte    `json:"response,omitempty"`
	Seq      uint64    `json:"seq"`
}

// Writer appends records to a zstd stream. It is safe for concurrent use.
type Writer struct {
	closer io.Closer
	enc    *zstd.Encoder
	w      *bufio.Writer
	now    func() time.Time
	seq    uint64
	mu     sync.Mutex
}

// NewWriter writes records to w. Closing the Writer does not close w.
func NewWriter(w io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "create encoder")
	}
	return &Writer{
		enc: enc,
		w:   bufio.NewWriterSize(enc, 128*1024),
		now: time.Now,
	}, nil
}

// Create creates or truncates the file at path and writes records to it.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "create directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "create file")
	}
	w, err := NewWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// Record appends one call. Every record is flushed through the encoder so a
// crashed process loses at most the current zstd block.
func (w *Writer) Record(call string, request, response []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New(errors.PhaseJournal, errors.KindIO).Detail("journal closed").Build()
	}

	w.seq++
	b, err := json.Marshal(Record{
		Seq:      w.seq,
		Time:     w.now().UTC(),
		Call:     call,
		Request:  request,
		Response: response,
	})
	if err != nil {
		return errors.Wrap(errors.PhaseJournal, errors.KindInvalidData, err, "marshal record")
	}
	if _, err := w.w.Write(b); err != nil {
		return errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "write record")
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "write record")
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "flush record")
	}
	return nil
}

// Seq returns the sequence number of the last record written.
func (w *Writer) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Close finishes the zstd stream and closes the file opened by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var errs []error
	if err := w.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.w = nil
	if len(errs) > 0 {
		return errors.Wrap(errors.PhaseJournal, errors.KindIO, errors.Join(errs...), "close journal")
	}
	return nil
}

// Reader iterates records.
type Reader struct {
	closer io.Closer
	dec    *zstd.Decoder
	sc     *bufio.Scanner
	line   int
}

// NewReader reads records from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "create decoder")
	}
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	return &Reader{dec: dec, sc: sc}, nil
}

// Open reads records from the file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "open file")
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return Record{}, errors.New(errors.PhaseJournal, errors.KindInvalidData).
				Cause(err).
				Detail("line %d", r.line).
				Build()
		}
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, errors.Wrap(errors.PhaseJournal, errors.KindIO, err, "read journal")
	}
	return Record{}, io.EOF
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close releases the decoder and closes the file opened by Open.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
