package replay

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket/pcapgo"
	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/canbus"
)

// Record is one captured frame with its original capture time.
type Record struct {
	Time  time.Time
	Frame can.Frame
}

// Reader iterates over the frames of a pcap capture file.
type Reader struct {
	f     *os.File
	pr    *pcapgo.Reader
	index int
}

// NewReader opens a capture file written by Writer (or by candump and
// friends, as long as the link type is SocketCAN).
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	pr, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if pr.LinkType() != LinkTypeSocketCAN {
		f.Close()
		return nil, fmt.Errorf("capture link type %d is not SocketCAN (%d)", pr.LinkType(), LinkTypeSocketCAN)
	}
	return &Reader{f: f, pr: pr}, nil
}

// Next returns the next record. It returns io.EOF at the end of the
// capture.
func (r *Reader) Next() (Record, error) {
	data, ci, err := r.pr.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture record %d: %w", r.index, err)
	}
	frame, err := canbus.UnmarshalFrame(data)
	if err != nil {
		return Record{}, fmt.Errorf("capture record %d: %w", r.index, err)
	}
	r.index++
	return Record{Time: ci.Timestamp, Frame: frame}, nil
}

// Count returns the number of records read so far.
func (r *Reader) Count() int {
	return r.index
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadAll loads an entire capture into memory. Convenience for tools
// and tests working with small files.
func ReadAll(path string) ([]Record, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
