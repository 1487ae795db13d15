package outbox

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const headerSize = 21 // [type:1][seq:8][time:8][len:4]

type JournalConfig struct {
	Dir         string
	SegmentSize int64
}

// Journal is a segmented append-only event log. Append runs on the
// engine's write path while TruncateBefore runs on the broadcaster's
// GC tick, so the active segment is guarded by a mutex.
type Journal struct {
	mu       sync.Mutex
	dir      string
	segSize  int64
	current  *segment
	segIndex uint32
}

type segment struct {
	file   *os.File
	offset int64
}

// Position locates a record inside the journal.
type Position struct {
	Segment uint32
	Offset  int64
}

func OpenJournal(cfg JournalConfig) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 2 * 1024 * 1024
	}

	idx, err := latestSegmentIndex(cfg.Dir)
	if err != nil {
		return nil, err
	}
	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: idx,
	}, nil
}

// Append frames and writes a record, returning where it landed.
func (j *Journal) Append(r *Record) (Position, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	payloadLen := uint32(len(r.Data))

	buf := make([]byte, headerSize+payloadLen+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := crcOf(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)

	pos := Position{Segment: j.segIndex, Offset: j.current.offset}
	if err := j.current.append(buf); err != nil {
		return Position{}, err
	}

	if j.current.offset >= j.segSize {
		if err := j.rotate(); err != nil {
			return Position{}, err
		}
	}
	return pos, nil
}

// ReadAt fetches the record at a previously returned position.
func (j *Journal) ReadAt(pos Position) (*Record, error) {
	path := segmentPath(j.dir, pos.Segment)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, pos.Offset); err != nil {
		return nil, err
	}
	payloadLen := binary.BigEndian.Uint32(header[17:21])

	body := make([]byte, payloadLen+4)
	if _, err := f.ReadAt(body, pos.Offset+headerSize); err != nil {
		return nil, err
	}

	payload := body[:payloadLen]
	sum := binary.BigEndian.Uint32(body[payloadLen:])
	if !crcValid(append(header, payload...), sum) {
		return nil, fmt.Errorf("journal: crc mismatch at segment %d offset %d", pos.Segment, pos.Offset)
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// TruncateBefore deletes closed segments whose every record has
// sequence <= seq. The active segment is never removed, even when a
// rotation just emptied it.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(j.dir, "segment-*.log"))
	if err != nil {
		return err
	}
	currentPath := segmentPath(j.dir, j.segIndex)

	for _, path := range files {
		if path == currentPath {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.file.Sync()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.close()
}

func (j *Journal) rotate() error {
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	return nil
}

// ---- segments ----

func segmentPath(dir string, index uint32) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.log", index))
}

func openSegment(dir string, index uint32) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, offset: st.Size()}, nil
}

func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return err
	}
	s.offset += int64(n)
	return nil
}

func (s *segment) close() error {
	return s.file.Close()
}

func latestSegmentIndex(dir string) (uint32, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.log"))
	if err != nil {
		return 0, err
	}
	var max uint32
	for _, path := range files {
		var idx uint32
		if n, _ := fmt.Sscanf(filepath.Base(path), "segment-%06d.log", &idx); n == 1 && idx > max {
			max = idx
		}
	}
	return max, nil
}

// maxSeqInSegment scans a segment and returns the highest sequence it
// holds. Used only for truncation.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}

		seq := binary.BigEndian.Uint64(header[1:9])
		if seq > max {
			max = seq
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen+4), io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
