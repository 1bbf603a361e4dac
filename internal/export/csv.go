package export

import (
	"bufio"
	"encoding/csv"
	"os"

	"github.com/johndauphine/retail-etl/internal/transform"
)

type csvSink struct {
	f   *os.File
	bw  *bufio.Writer
	w   *csv.Writer
	rec []string
}

func newCSVSink(path string, fields []Field) (*csvSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	s := &csvSink{f: f, bw: bw, w: csv.NewWriter(bw), rec: make([]string, len(fields))}

	header := make([]string, len(fields))
	for i, fd := range fields {
		header[i] = fd.Name
	}
	if err := s.w.Write(header); err != nil {
		s.Abort()
		return nil, err
	}
	return s, nil
}

// WriteBatch appends the rows and flushes them to the file.
func (s *csvSink) WriteBatch(b *transform.Batch) error {
	for _, row := range b.Rows {
		for i, v := range row {
			s.rec[i] = transform.Format(v)
		}
		if err := s.w.Write(s.rec); err != nil {
			return err
		}
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *csvSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.bw.Flush(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

func (s *csvSink) Abort() {
	s.f.Close()
	os.Remove(s.f.Name())
}
