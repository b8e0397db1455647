package canbus

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.einride.tech/can"

	"github.com/banshee-data/canbridge/internal/monitoring"
)

// slcanBitrates maps a CAN bus bitrate to the adapter's S command code.
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// SLCANBus talks to a USB-serial CAN adapter speaking the Lawicel
// SLCAN ASCII protocol (CANable, CANtact and friends).
type SLCANBus struct {
	port    io.ReadWriteCloser
	rx      chan can.Frame
	done    chan struct{}
	closing sync.Once

	writeMu sync.Mutex

	mu       sync.Mutex
	skipped  uint64
	readErr  error
	readDone chan struct{}
}

// DialSLCAN opens the serial device, configures the adapter for the
// given bus bitrate, and opens the CAN channel.
func DialSLCAN(device string, bitrate int) (*SLCANBus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("canbus: no slcan code for bitrate %d", bitrate)
	}
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %s: %w", device, err)
	}
	b := newSLCANBus(port)
	// Close any half-open channel first, then set the bitrate and open.
	for _, cmd := range []string{"C", "S" + string(code), "O"} {
		if err := b.writeCommand(cmd); err != nil {
			port.Close()
			return nil, fmt.Errorf("canbus: slcan setup %q: %w", cmd, err)
		}
	}
	return b, nil
}

// newSLCANBus wraps an already-open port and starts the read loop. The
// caller is responsible for any adapter setup commands.
func newSLCANBus(port io.ReadWriteCloser) *SLCANBus {
	b := &SLCANBus{
		port:     port,
		rx:       make(chan can.Frame, 64),
		done:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

func (b *SLCANBus) writeCommand(cmd string) error {
	return b.write([]byte(cmd + "\r"))
}

func (b *SLCANBus) write(p []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	n, err := b.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("canbus: short write to slcan port (%d of %d bytes)", n, len(p))
	}
	return nil
}

// readLoop scans the port for CR-terminated records and queues the
// ones that parse as frames. Command acks, status reports and garbage
// are counted and skipped.
func (b *SLCANBus) readLoop() {
	defer close(b.readDone)
	scan := bufio.NewScanner(b.port)
	scan.Split(scanSLCANRecords)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		frame, err := decodeSLCAN(line)
		if err != nil {
			b.mu.Lock()
			b.skipped++
			b.mu.Unlock()
			continue
		}
		select {
		case b.rx <- frame:
		case <-b.done:
			return
		}
	}
	b.mu.Lock()
	b.readErr = scan.Err()
	b.mu.Unlock()
}

// Send transmits a frame through the adapter.
func (b *SLCANBus) Send(ctx context.Context, frame can.Frame) error {
	select {
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := ValidateFrame(frame); err != nil {
		return err
	}
	return b.write([]byte(encodeSLCAN(frame)))
}

// Receive blocks until the adapter delivers a frame.
func (b *SLCANBus) Receive(ctx context.Context) (can.Frame, error) {
	// Drain buffered frames before checking for shutdown so a close
	// does not eat frames that already arrived.
	select {
	case frame := <-b.rx:
		return frame, nil
	default:
	}
	select {
	case frame := <-b.rx:
		return frame, nil
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case <-b.done:
		return can.Frame{}, ErrBusClosed
	case <-b.readDone:
		// A deliberate Close also kills the read loop; report it as a
		// closure rather than surfacing the port teardown error.
		select {
		case <-b.done:
			return can.Frame{}, ErrBusClosed
		default:
		}
		b.mu.Lock()
		err := b.readErr
		b.mu.Unlock()
		if err != nil {
			return can.Frame{}, fmt.Errorf("canbus: slcan read: %w", err)
		}
		return can.Frame{}, ErrBusClosed
	}
}

// Skipped returns how many port records were discarded because they
// were not parseable frames.
func (b *SLCANBus) Skipped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Close shuts the CAN channel and releases the port.
func (b *SLCANBus) Close() error {
	var err error
	b.closing.Do(func() {
		// Best effort: tell the adapter to leave the bus.
		if werr := b.writeCommand("C"); werr != nil {
			monitoring.Logf("canbus: slcan close command: %v", werr)
		}
		close(b.done)
		err = b.port.Close()
	})
	return err
}

// scanSLCANRecords is a bufio.SplitFunc for CR-terminated slcan
// records. It also accepts LF so the loop copes with adapters that
// echo CRLF.
func scanSLCANRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	if atEOF {
		return 0, nil, nil
	}
	return 0, nil, nil
}

// encodeSLCAN renders a frame as an ASCII slcan record:
//
//	t<iii><l><dd...>   standard data frame
//	T<iiiiiiii><l><dd...>  extended data frame
//	r/R                remote frames, no payload
func encodeSLCAN(frame can.Frame) string {
	var sb strings.Builder
	switch {
	case frame.IsRemote && frame.IsExtended:
		sb.WriteByte('R')
	case frame.IsRemote:
		sb.WriteByte('r')
	case frame.IsExtended:
		sb.WriteByte('T')
	default:
		sb.WriteByte('t')
	}
	if frame.IsExtended {
		fmt.Fprintf(&sb, "%08X", frame.ID&0x1FFFFFFF)
	} else {
		fmt.Fprintf(&sb, "%03X", frame.ID&0x7FF)
	}
	sb.WriteByte('0' + frame.Length)
	if !frame.IsRemote {
		for i := uint8(0); i < frame.Length && i < 8; i++ {
			fmt.Fprintf(&sb, "%02X", frame.Data[i])
		}
	}
	sb.WriteByte('\r')
	return sb.String()
}

// decodeSLCAN parses one slcan record into a frame.
func decodeSLCAN(line string) (can.Frame, error) {
	if len(line) < 2 {
		return can.Frame{}, fmt.Errorf("canbus: slcan record too short: %q", line)
	}
	var frame can.Frame
	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
		frame.IsExtended = true
	case 'r':
		idLen = 3
		frame.IsRemote = true
	case 'R':
		idLen = 8
		frame.IsExtended = true
		frame.IsRemote = true
	default:
		return can.Frame{}, fmt.Errorf("canbus: not an slcan frame record: %q", line)
	}
	body := line[1:]
	if len(body) < idLen+1 {
		return can.Frame{}, fmt.Errorf("canbus: truncated slcan record: %q", line)
	}
	id, err := strconv.ParseUint(body[:idLen], 16, 32)
	if err != nil {
		return can.Frame{}, fmt.Errorf("canbus: bad slcan id in %q: %w", line, err)
	}
	frame.ID = uint32(id)

	dlc := body[idLen]
	if dlc < '0' || dlc > '8' {
		return can.Frame{}, fmt.Errorf("canbus: bad slcan dlc %q in %q", dlc, line)
	}
	frame.Length = dlc - '0'

	hexData := body[idLen+1:]
	if frame.IsRemote {
		if len(hexData) != 0 {
			return can.Frame{}, fmt.Errorf("canbus: remote slcan record carries data: %q", line)
		}
	} else {
		if len(hexData) != int(frame.Length)*2 {
			return can.Frame{}, fmt.Errorf("canbus: slcan payload length mismatch in %q", line)
		}
		for i := 0; i < int(frame.Length); i++ {
			v, err := strconv.ParseUint(hexData[2*i:2*i+2], 16, 8)
			if err != nil {
				return can.Frame{}, fmt.Errorf("canbus: bad slcan payload in %q: %w", line, err)
			}
			frame.Data[i] = byte(v)
		}
	}
	if err := ValidateFrame(frame); err != nil {
		return can.Frame{}, err
	}
	return frame, nil
}
