// Package rtpfile persists an Opus elementary stream as a sequence of RTP
// packets (RFC 3550, RFC 7587 payload format), each prefixed with a 16-bit
// big-endian length as in RFC 4571.
//
// The RTP timestamp carries the packet PTS on the 48 kHz Opus clock, so a
// stream written here and read back keeps its timing to within one clock
// tick regardless of the PCM sample rate that was encoded.
package rtpfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pion/rtp"

	"github.com/MrWong99/opusframe/pkg/audio"
)

const (
	// ClockRate is the RTP clock of Opus streams, independent of the input
	// sample rate.
	ClockRate = 48000

	// PayloadType is the dynamic payload type written to every packet.
	PayloadType = 111

	maxPacketLen = math.MaxUint16
)

// ErrTruncated is returned when a file ends in the middle of a packet.
var ErrTruncated = errors.New("rtpfile: truncated packet")

// ticks converts d to 48 kHz clock ticks.
func ticks(d time.Duration) int64 {
	return int64(d) * ClockRate / int64(time.Second)
}

// fromTicks converts 48 kHz clock ticks to a duration.
func fromTicks(t int64) time.Duration {
	return time.Duration(t * int64(time.Second) / ClockRate)
}

// Writer writes length-prefixed RTP packets.
type Writer struct {
	w       io.Writer
	ssrc    uint32
	seq     uint16
	clock   int64 // ticks of the next packet when no PTS is given
	started bool
	hdr     [2]byte
}

// NewWriter returns a writer that stamps every packet with ssrc.
func NewWriter(w io.Writer, ssrc uint32) *Writer {
	return &Writer{w: w, ssrc: ssrc}
}

// WritePacket writes one Opus payload. A known pts sets the RTP timestamp;
// otherwise the timestamp continues from the previous packet. d is the
// packet's playback duration and advances the running clock.
func (w *Writer) WritePacket(payload []byte, pts audio.PTS, d time.Duration) error {
	if pts.Valid {
		w.clock = ticks(pts.Value)
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         !w.started,
			PayloadType:    PayloadType,
			SequenceNumber: w.seq,
			Timestamp:      uint32(w.clock),
			SSRC:           w.ssrc,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtpfile: marshal packet %d: %w", w.seq, err)
	}
	if len(raw) > maxPacketLen {
		return fmt.Errorf("rtpfile: packet %d is %d bytes, limit %d", w.seq, len(raw), maxPacketLen)
	}
	binary.BigEndian.PutUint16(w.hdr[:], uint16(len(raw)))
	if _, err := w.w.Write(w.hdr[:]); err != nil {
		return fmt.Errorf("rtpfile: write: %w", err)
	}
	if _, err := w.w.Write(raw); err != nil {
		return fmt.Errorf("rtpfile: write: %w", err)
	}
	w.started = true
	w.seq++
	w.clock += ticks(d)
	return nil
}

// Reader reads packets written by [Writer].
type Reader struct {
	r       io.Reader
	hdr     [2]byte
	buf     []byte
	started bool
	lastTS  uint32
	ext     int64 // unwrapped timestamp of the last packet
	lastSeq uint16
}

// NewReader returns a reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 0, 1500)}
}

// ReadPacket returns the next payload and its PTS. It returns io.EOF at a
// clean end of input and [ErrTruncated] when input ends mid-packet. Timestamp
// wrap-around of the 32-bit RTP clock is unwrapped.
func (r *Reader) ReadPacket() (payload []byte, pts audio.PTS, err error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, audio.PTS{}, fmt.Errorf("%w: length prefix", ErrTruncated)
		}
		return nil, audio.PTS{}, err
	}
	n := int(binary.BigEndian.Uint16(r.hdr[:]))
	if cap(r.buf) < n {
		r.buf = make([]byte, n)
	}
	raw := r.buf[:n]
	if _, err := io.ReadFull(r.r, raw); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, audio.PTS{}, fmt.Errorf("%w: want %d bytes", ErrTruncated, n)
		}
		return nil, audio.PTS{}, fmt.Errorf("rtpfile: read: %w", err)
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return nil, audio.PTS{}, fmt.Errorf("rtpfile: unmarshal: %w", err)
	}

	if !r.started {
		r.ext = int64(pkt.Timestamp)
		r.started = true
	} else {
		r.ext += int64(int32(pkt.Timestamp - r.lastTS))
	}
	r.lastTS = pkt.Timestamp
	r.lastSeq = pkt.SequenceNumber

	// The payload aliases raw, which is reused on the next call.
	payload = make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	return payload, audio.At(fromTicks(r.ext)), nil
}

// LastSequence returns the RTP sequence number of the last packet read.
func (r *Reader) LastSequence() uint16 { return r.lastSeq }
