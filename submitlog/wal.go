// Package submitlog stands in for the write-ahead log the spec treats
// as an external storage regime: a monotonically versioned, CRC-checked
// append log that tmq.ScanLog replays and stream Source tasks consume
// as Submit{msg, ver} queue items.
package submitlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Entry is one recovered submit record: a write batch carried in the
// log, addressed by its version.
type Entry struct {
	Ver int64
	Msg []byte
}

// Log is an append-only submit-log writer. Record format:
// [crc32][ver int64 LE][msgLen uint32 LE][msg...], grounded on
// lsm.WAL's own record shape with `seq` renamed to `ver` to match the
// spec's Submit{msg, ver} vocabulary.
type Log struct {
	file *os.File
	mu   sync.Mutex
	path string
	log  *logrus.Entry
}

// Open creates or appends to a submit log at path.
func Open(path string, log *logrus.Entry) (*Log, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("submitlog: open: %w", err)
	}
	return &Log{file: f, path: path, log: log}, nil
}

// Append writes one submit record. Callers are responsible for ver
// being strictly greater than every previously appended version; the
// log itself does not enforce ordering (stream.Task's SetStreamInputBlock
// does, per spec section 4.3.4).
func (l *Log) Append(ver int64, msg []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := make([]byte, 4+8+4+len(msg))
	binary.LittleEndian.PutUint64(record[4:], uint64(ver))
	binary.LittleEndian.PutUint32(record[12:], uint32(len(msg)))
	copy(record[16:], msg)
	crc := crc32.ChecksumIEEE(record[4:])
	binary.LittleEndian.PutUint32(record[0:], crc)

	_, err := l.file.Write(record)
	return err
}

func (l *Log) Sync() error  { return l.file.Sync() }
func (l *Log) Close() error { return l.file.Close() }

// Reader replays a submit log sequentially from its start, handing back
// entries in append order. ScanLog drains one batch at a time via Next;
// tmq.ScanLog keeps a Reader open per subscription and resumes by
// skipping entries whose Ver is below the caller's saved offset.
type Reader struct {
	file *os.File
	log  *logrus.Entry
}

// NewReader opens a log for sequential, read-only replay.
func NewReader(path string, log *logrus.Entry) (*Reader, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("submitlog: open reader: %w", err)
	}
	return &Reader{file: f, log: log}, nil
}

// Next returns the next entry, or (nil, io.EOF) once the log is
// exhausted.
func (r *Reader) Next() (*Entry, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r.file, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("submitlog: read header: %w", err)
	}
	crc := binary.LittleEndian.Uint32(header[0:])
	ver := int64(binary.LittleEndian.Uint64(header[4:]))
	msgLen := binary.LittleEndian.Uint32(header[12:])

	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r.file, msg); err != nil {
		return nil, fmt.Errorf("submitlog: read payload: %w", err)
	}

	check := make([]byte, 12+len(msg))
	copy(check, header[4:])
	copy(check[12:], msg)
	if got := crc32.ChecksumIEEE(check); got != crc {
		r.log.WithFields(logrus.Fields{"ver": ver, "want_crc": crc, "got_crc": got}).
			Warn("submitlog: corrupt record, stopping replay")
		return nil, fmt.Errorf("submitlog: crc mismatch at ver %d", ver)
	}
	return &Entry{Ver: ver, Msg: msg}, nil
}

// SeekVer discards entries until it has consumed one with Ver >= ver,
// returning that entry (or io.EOF if the log ends first). Used to
// resume a tmq.ScanLog from a saved Log{ver} offset.
func (r *Reader) SeekVer(ver int64) (*Entry, error) {
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e.Ver >= ver {
			return e, nil
		}
	}
}

func (r *Reader) Close() error { return r.file.Close() }
