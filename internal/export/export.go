// Package export writes recorded measurements to disk.
//
// CSV files carry one "seq,interval_ns" row per measurement with no header
// row, so several runs can be appended to the same file and concatenated by
// plain tools. MessagePack files carry a Log document (header plus
// samples); appending produces a stream of documents.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/multierr"
)

// ErrUnknownFormat is returned for an unsupported export format name.
var ErrUnknownFormat = errors.New("export: unknown format")

// Format selects the on-disk encoding.
type Format string

const (
	CSV     Format = "csv"
	MsgPack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case CSV, MsgPack:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv or msgpack)", ErrUnknownFormat, s)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	if f == MsgPack {
		return "msgpack"
	}
	return "csv"
}

// Measurement is one numbered sample as seen by the data handler.
type Measurement struct {
	Seq      uint64        `msgpack:"seq"`
	Interval time.Duration `msgpack:"interval_ns"`
}

// Jitter is the deviation of the interval from the nominal period.
func (m Measurement) Jitter(period time.Duration) time.Duration {
	return m.Interval - period
}

// Header describes the run a Log belongs to.
type Header struct {
	RunID    string        `msgpack:"run_id"`
	Started  time.Time     `msgpack:"started"`
	Period   time.Duration `msgpack:"period_ns"`
	Overhead time.Duration `msgpack:"overhead_ns"`
	Dropped  uint64        `msgpack:"dropped"`
}

// Log is the MessagePack document.
type Log struct {
	Header  Header        `msgpack:"header"`
	Samples []Measurement `msgpack:"samples"`
}

// FileName returns the log file name for a run started at started,
// e.g. jitter_log_20261017_134501.csv.
func FileName(started time.Time, f Format) string {
	return started.Format("jitter_log_20060102_150405") + "." + f.Ext()
}

// WriteCSV writes one "seq,interval_ns" row per measurement.
func WriteCSV(w io.Writer, ms []Measurement) error {
	cw := csv.NewWriter(w)
	row := make([]string, 2)
	for _, m := range ms {
		row[0] = strconv.FormatUint(m.Seq, 10)
		row[1] = strconv.FormatInt(int64(m.Interval), 10)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row %d: %w", m.Seq, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV.
func ReadCSV(r io.Reader) ([]Measurement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("export: read csv: %w", err)
	}
	out := make([]Measurement, 0, len(records))
	for i, rec := range records {
		seq, err := strconv.ParseUint(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("export: csv line %d: %w", i+1, err)
		}
		ns, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("export: csv line %d: %w", i+1, err)
		}
		out = append(out, Measurement{Seq: seq, Interval: time.Duration(ns)})
	}
	return out, nil
}

// WriteMsgpack encodes one Log document.
func WriteMsgpack(w io.Writer, h Header, ms []Measurement) error {
	if err := msgpack.NewEncoder(w).Encode(&Log{Header: h, Samples: ms}); err != nil {
		return fmt.Errorf("export: encode msgpack: %w", err)
	}
	return nil
}

// ReadMsgpack decodes every Log document in r.
func ReadMsgpack(r io.Reader) ([]Log, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var logs []Log
	for {
		var l Log
		err := dec.Decode(&l)
		if errors.Is(err, io.EOF) {
			return logs, nil
		}
		if err != nil {
			return logs, fmt.Errorf("export: decode msgpack: %w", err)
		}
		logs = append(logs, l)
	}
}

// WriteFile appends ms to FileName(h.Started, f) in dir and returns the
// path written.
func WriteFile(dir string, f Format, h Header, ms []Measurement) (path string, err error) {
	path = filepath.Join(dir, FileName(h.Started, f))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return path, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	bw := bufio.NewWriter(file)
	switch f {
	case MsgPack:
		err = WriteMsgpack(bw, h, ms)
	default:
		err = WriteCSV(bw, ms)
	}
	return path, multierr.Append(err, bw.Flush())
}
