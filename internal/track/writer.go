package track

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/abema/go-mp4"
	"github.com/google/renameio/v2"
)

const (
	mdatHeaderSize = 16
)

type writerSample struct {
	offset    uint64
	size      uint32
	dts       int64
	ptsOffset int32
	sync      bool
}

type writerTrack struct {
	format       *Format
	samples      []*writerSample
	lastTimeUs   int64
	lastDuration int64
}

// Writer writes samples into a MP4 file.
// Samples are appended to the media data box as they arrive and the index
// is written by Finalize. The file is staged next to the destination and
// moved in place only when finalized, therefore an interrupted write never
// leaves a partial file at Path.
type Writer struct {
	Path string

	f          *renameio.PendingFile
	mw         *mp4Writer
	tracks     []*writerTrack
	started    bool
	finalized  bool
	closed     bool
	mdatOffset uint64
	pos        uint64
}

// Initialize creates the destination directory and the staging file.
func (w *Writer) Initialize() error {
	dir := filepath.Dir(w.Path)

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}

	if fi, err2 := os.Stat(w.Path); err2 == nil && fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrDestinationUnwritable, w.Path)
	}

	w.f, err = renameio.NewPendingFile(w.Path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}

	w.mw = newMP4Writer(w.f)

	return nil
}

// Close releases resources. If the writer was not finalized, the staging file is removed.
// It can be called multiple times.
func (w *Writer) Close() {
	if w.closed {
		return
	}
	w.closed = true

	if w.f != nil {
		w.f.Cleanup() //nolint:errcheck
	}
}

// AddTrack adds a track. It must be called before Start.
// It returns the index of the track in the output.
func (w *Writer) AddTrack(format *Format) (int, error) {
	if w.started {
		return 0, ErrWriterStarted
	}

	if format.MediaType != MediaTypeVideo && format.MediaType != MediaTypeAudio {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, format.MediaType)
	}

	if len(format.SampleDescription) == 0 {
		return 0, ErrMissingSampleDescription
	}

	if format.TimeScale == 0 {
		return 0, fmt.Errorf("invalid time scale")
	}

	w.tracks = append(w.tracks, &writerTrack{
		format: format,
	})

	return len(w.tracks) - 1, nil
}

// Start writes the file header. Tracks cannot be added afterwards.
func (w *Writer) Start() error {
	if w.closed {
		return ErrWriterClosed
	}

	if w.started {
		return ErrWriterStarted
	}

	if len(w.tracks) == 0 {
		return fmt.Errorf("no tracks added")
	}

	w.started = true

	_, err := w.mw.writeBox(&mp4.Ftyp{ // <ftyp/>
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
		},
	})
	if err != nil {
		return err
	}

	w.mdatOffset, err = w.mw.offset()
	if err != nil {
		return err
	}

	// size is set to 1 in order to use the 64-bit size that is filled by Finalize
	var header [mdatHeaderSize]byte
	binary.BigEndian.PutUint32(header[0:], 1)
	copy(header[4:], "mdat")

	err = w.mw.writeRaw(header[:])
	if err != nil {
		return err
	}

	w.pos = w.mdatOffset + mdatHeaderSize

	return nil
}

// WriteSample appends a sample to a track.
// Timestamps of a track must be non-decreasing.
func (w *Writer) WriteSample(trackIndex int, s *Sample) error {
	if w.closed || w.finalized {
		return ErrWriterClosed
	}

	if !w.started {
		return ErrWriterNotStarted
	}

	if trackIndex < 0 || trackIndex >= len(w.tracks) {
		return fmt.Errorf("invalid track index: %d", trackIndex)
	}

	t := w.tracks[trackIndex]

	if s.TimeUs < t.lastTimeUs {
		return fmt.Errorf("%w: %d after %d", ErrNonMonotonic, s.TimeUs, t.lastTimeUs)
	}

	err := w.mw.writeRaw(s.Payload)
	if err != nil {
		return err
	}

	t.samples = append(t.samples, &writerSample{
		offset:    w.pos,
		size:      uint32(len(s.Payload)),
		dts:       usToTicks(s.TimeUs, t.format.TimeScale),
		ptsOffset: int32(usToTicks(s.CompositionOffsetUs, t.format.TimeScale)),
		sync:      s.IsSync(),
	})
	t.lastTimeUs = s.TimeUs
	t.lastDuration = usToTicks(s.DurationUs, t.format.TimeScale)
	w.pos += uint64(len(s.Payload))

	return nil
}

// BytesWritten returns the size of the file written so far.
func (w *Writer) BytesWritten() uint64 {
	return w.pos
}

// Finalize writes the index and moves the file to its destination.
func (w *Writer) Finalize() error {
	if w.closed || w.finalized {
		return ErrWriterClosed
	}

	if !w.started {
		return ErrWriterNotStarted
	}

	w.finalized = true

	mdatEnd := w.pos

	_, err := w.f.Seek(int64(w.mdatOffset)+8, io.SeekStart)
	if err != nil {
		return err
	}

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], mdatEnd-w.mdatOffset)

	_, err = w.f.Write(size[:])
	if err != nil {
		return err
	}

	_, err = w.f.Seek(int64(mdatEnd), io.SeekStart)
	if err != nil {
		return err
	}

	err = w.writeMoov()
	if err != nil {
		return err
	}

	w.pos, err = w.mw.offset()
	if err != nil {
		return err
	}

	return w.f.CloseAtomicallyReplace()
}
