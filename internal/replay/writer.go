package replay

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/canbus"
)

// LinkTypeSocketCAN is the pcap link type for SocketCAN captures
// (LINKTYPE_CAN_SOCKETCAN). gopacket's layers package has no name for
// it, so the registry value is declared here.
const LinkTypeSocketCAN = layers.LinkType(227)

// Records are fixed-size can_frame structs, so the snap length never
// needs to exceed one frame.
const captureSnapLen = canbus.WireFrameSize

// Writer records timestamped frames into a pcap capture file. Frames
// are stored in the 16-byte SocketCAN wire layout with nanosecond
// timestamps. Writer is not safe for concurrent use.
type Writer struct {
	f     *os.File
	pw    *pcapgo.Writer
	count int
}

// NewWriter creates path and writes the capture file header. The caller
// must Close the writer to flush the file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture file: %w", err)
	}
	pw := pcapgo.NewWriterNanos(f)
	if err := pw.WriteFileHeader(captureSnapLen, LinkTypeSocketCAN); err != nil {
		f.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Writer{f: f, pw: pw}, nil
}

// WriteFrame appends one frame with its capture timestamp.
func (w *Writer) WriteFrame(ts time.Time, frame can.Frame) error {
	data, err := canbus.MarshalFrame(frame)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := w.pw.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written so far.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes and closes the capture file.
func (w *Writer) Close() error {
	return w.f.Close()
}
