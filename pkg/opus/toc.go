// Package opus interprets Opus packet headers and defines the capability
// interface that native codec bindings implement.
//
// Header parsing follows RFC 6716 section 3.1. The first byte of every Opus
// packet is the table-of-contents (TOC) byte:
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	| config  |s| c |
//	+-+-+-+-+-+-+-+-+
//
// config selects the coding mode, audio bandwidth and frame duration from a
// fixed 32-entry table ([LookupConfig]), s is the stereo flag, and c is the
// frame packing code.
package opus

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMalformedPacket is returned when a packet is too short to carry the
	// header fields being parsed.
	ErrMalformedPacket = errors.New("opus: malformed packet")

	// ErrInvalidConfiguration is returned for configuration numbers outside 0..31.
	ErrInvalidConfiguration = errors.New("opus: invalid configuration")
)

// Mode is the coding mode of a configuration.
type Mode uint8

const (
	ModeSILK Mode = iota + 1
	ModeHybrid
	ModeCELT
)

// String returns a human-readable representation of the Mode.
func (m Mode) String() string {
	switch m {
	case ModeSILK:
		return "silk"
	case ModeHybrid:
		return "hybrid"
	case ModeCELT:
		return "celt"
	}
	return "invalid"
}

// Bandwidth is the audio bandwidth class of a configuration.
//
//	NB  4 kHz   (8 kHz effective sample rate)
//	MB  6 kHz   (12 kHz)
//	WB  8 kHz   (16 kHz)
//	SWB 12 kHz  (24 kHz)
//	FB  20 kHz  (48 kHz)
type Bandwidth uint8

const (
	Narrowband Bandwidth = iota + 1
	Mediumband
	Wideband
	SuperWideband
	Fullband
)

// String returns a human-readable representation of the Bandwidth.
func (b Bandwidth) String() string {
	switch b {
	case Narrowband:
		return "narrowband"
	case Mediumband:
		return "mediumband"
	case Wideband:
		return "wideband"
	case SuperWideband:
		return "superwideband"
	case Fullband:
		return "fullband"
	}
	return "invalid"
}

// SampleRate returns the effective sample rate for this bandwidth.
func (b Bandwidth) SampleRate() int {
	switch b {
	case Narrowband:
		return 8000
	case Mediumband:
		return 12000
	case Wideband:
		return 16000
	case SuperWideband:
		return 24000
	case Fullband:
		return 48000
	}
	return 0
}

// FramePacking is the "c" field of the TOC byte: how many frames the packet
// carries.
type FramePacking uint8

const (
	OneFrame FramePacking = iota
	TwoEqualFrames
	TwoDifferentFrames
	ArbitraryFrames
)

// String returns a human-readable representation of the FramePacking.
func (c FramePacking) String() string {
	switch c {
	case OneFrame:
		return "one frame"
	case TwoEqualFrames:
		return "two equal frames"
	case TwoDifferentFrames:
		return "two different frames"
	case ArbitraryFrames:
		return "arbitrary frames"
	}
	return "invalid"
}

// TOC holds the decoded fields of a TOC byte.
type TOC struct {
	Config       uint8 // 0..31
	Stereo       bool
	FramePacking FramePacking
}

// ParseTOC decodes the leading byte of packet. It fails with
// [ErrMalformedPacket] on an empty packet.
func ParseTOC(packet []byte) (TOC, error) {
	if len(packet) < 1 {
		return TOC{}, fmt.Errorf("%w: empty packet", ErrMalformedPacket)
	}
	return ParseTOCByte(packet[0]), nil
}

// ParseTOCByte decodes a single TOC byte.
func ParseTOCByte(b byte) TOC {
	return TOC{
		Config:       b >> 3,
		Stereo:       b&0b100 != 0,
		FramePacking: FramePacking(b & 0b11),
	}
}

// Byte re-encodes t into a TOC byte.
func (t TOC) Byte() byte {
	b := t.Config<<3 | byte(t.FramePacking&0b11)
	if t.Stereo {
		b |= 0b100
	}
	return b
}

// Channels returns 2 for stereo packets, 1 otherwise.
func (t TOC) Channels() int {
	if t.Stereo {
		return 2
	}
	return 1
}

// String returns a human-readable representation of the TOC.
func (t TOC) String() string {
	info, err := LookupConfig(int(t.Config))
	if err != nil {
		return fmt.Sprintf("opus_toc: config=%d (invalid)", t.Config)
	}
	return fmt.Sprintf("opus_toc: config=%d stereo=%v mode=%s bw=%s dur=%s packing=%s",
		t.Config, t.Stereo, info.Mode, info.Bandwidth, info.FrameDuration, t.FramePacking)
}

// ConfigInfo is one row of the RFC 6716 configuration table.
type ConfigInfo struct {
	Mode          Mode
	Bandwidth     Bandwidth
	FrameDuration time.Duration
}

const (
	d2500us = 2500 * time.Microsecond
	d5ms    = 5 * time.Millisecond
	d10ms   = 10 * time.Millisecond
	d20ms   = 20 * time.Millisecond
	d40ms   = 40 * time.Millisecond
	d60ms   = 60 * time.Millisecond
)

// configTable maps configuration numbers 0..31 to their mode, bandwidth and
// frame duration.
var configTable = [32]ConfigInfo{
	// SILK-only NB
	0: {ModeSILK, Narrowband, d10ms},
	1: {ModeSILK, Narrowband, d20ms},
	2: {ModeSILK, Narrowband, d40ms},
	3: {ModeSILK, Narrowband, d60ms},
	// SILK-only MB
	4: {ModeSILK, Mediumband, d10ms},
	5: {ModeSILK, Mediumband, d20ms},
	6: {ModeSILK, Mediumband, d40ms},
	7: {ModeSILK, Mediumband, d60ms},
	// SILK-only WB
	8:  {ModeSILK, Wideband, d10ms},
	9:  {ModeSILK, Wideband, d20ms},
	10: {ModeSILK, Wideband, d40ms},
	11: {ModeSILK, Wideband, d60ms},
	// Hybrid SWB
	12: {ModeHybrid, SuperWideband, d10ms},
	13: {ModeHybrid, SuperWideband, d20ms},
	// Hybrid FB
	14: {ModeHybrid, Fullband, d10ms},
	15: {ModeHybrid, Fullband, d20ms},
	// CELT-only NB
	16: {ModeCELT, Narrowband, d2500us},
	17: {ModeCELT, Narrowband, d5ms},
	18: {ModeCELT, Narrowband, d10ms},
	19: {ModeCELT, Narrowband, d20ms},
	// CELT-only WB
	20: {ModeCELT, Wideband, d2500us},
	21: {ModeCELT, Wideband, d5ms},
	22: {ModeCELT, Wideband, d10ms},
	23: {ModeCELT, Wideband, d20ms},
	// CELT-only SWB
	24: {ModeCELT, SuperWideband, d2500us},
	25: {ModeCELT, SuperWideband, d5ms},
	26: {ModeCELT, SuperWideband, d10ms},
	27: {ModeCELT, SuperWideband, d20ms},
	// CELT-only FB
	28: {ModeCELT, Fullband, d2500us},
	29: {ModeCELT, Fullband, d5ms},
	30: {ModeCELT, Fullband, d10ms},
	31: {ModeCELT, Fullband, d20ms},
}

// LookupConfig returns the table row for configuration number n.
func LookupConfig(n int) (ConfigInfo, error) {
	if n < 0 || n >= len(configTable) {
		return ConfigInfo{}, fmt.Errorf("%w: %d", ErrInvalidConfiguration, n)
	}
	return configTable[n], nil
}

// PacketInfo summarises an Opus packet header.
type PacketInfo struct {
	TOC
	ConfigInfo

	// Frames is the number of codec frames in the packet.
	Frames int

	// Duration is Frames * FrameDuration.
	Duration time.Duration
}

// Describe parses the header of packet, including the frame count byte of
// code 3 packets (RFC 6716 section 3.2.5).
func Describe(packet []byte) (PacketInfo, error) {
	toc, err := ParseTOC(packet)
	if err != nil {
		return PacketInfo{}, err
	}
	info, err := LookupConfig(int(toc.Config))
	if err != nil {
		return PacketInfo{}, err
	}

	var frames int
	switch toc.FramePacking {
	case OneFrame:
		frames = 1
	case TwoEqualFrames, TwoDifferentFrames:
		frames = 2
	case ArbitraryFrames:
		if len(packet) < 2 {
			return PacketInfo{}, fmt.Errorf("%w: code 3 packet without frame count byte", ErrMalformedPacket)
		}
		frames = int(packet[1] & 0b00111111)
	}

	return PacketInfo{
		TOC:        toc,
		ConfigInfo: info,
		Frames:     frames,
		Duration:   time.Duration(frames) * info.FrameDuration,
	}, nil
}

// PacketDuration returns the playback duration encoded in packet's header.
func PacketDuration(packet []byte) (time.Duration, error) {
	pi, err := Describe(packet)
	if err != nil {
		return 0, err
	}
	return pi.Duration, nil
}
