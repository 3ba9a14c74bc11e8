package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/opusframe/pkg/opus"
	"github.com/MrWong99/opusframe/pkg/rtpfile"
)

// inspect prints one line per packet of the RTP packet file at path: the
// timestamp, the TOC fields and the packet's playback duration.
func inspect(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer f.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tPTS\tBYTES\tCONFIG\tMODE\tBANDWIDTH\tCH\tFRAMES\tDURATION")

	var (
		r         = rtpfile.NewReader(bufio.NewReader(f))
		packets   int
		malformed int
		total     time.Duration
	)
	for {
		payload, pts, err := r.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tw.Flush()
			return fmt.Errorf("inspect: packet %d: %w", packets, err)
		}
		packets++

		info, err := opus.Describe(payload)
		if err != nil {
			malformed++
			fmt.Fprintf(tw, "%d\t%s\t%d\t-\t-\t-\t-\t-\t%v\n", r.LastSequence(), pts, len(payload), err)
			continue
		}
		total += info.Duration
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\t%s\t%d\t%d\t%s\n",
			r.LastSequence(), pts, len(payload),
			info.Config, info.Mode, info.Bandwidth, info.Channels(), info.Frames, info.Duration,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d packets, %d malformed, %s of audio\n", packets, malformed, total)
	return err
}
