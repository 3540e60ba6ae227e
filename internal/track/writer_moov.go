package track

import (
	"math"

	"github.com/abema/go-mp4"
)

const (
	movieTimeScale = 1000
)

var identityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

func (w *Writer) writeMoov() error {
	/*
		|moov|
		|    |mvhd|
		|    |trak|
		|    |trak|
		|    |....|
	*/

	_, err := w.mw.writeBoxStart(&mp4.Moov{}) // <moov>
	if err != nil {
		return err
	}

	movieDuration := uint64(0)
	for _, t := range w.tracks {
		d := t.movieDuration()
		if d > movieDuration {
			movieDuration = d
		}
	}

	mvhd := &mp4.Mvhd{ // <mvhd/>
		Timescale:   movieTimeScale,
		Rate:        65536,
		Volume:      256,
		Matrix:      identityMatrix,
		NextTrackID: uint32(len(w.tracks) + 1),
	}
	if movieDuration > math.MaxUint32 {
		mvhd.FullBox.Version = 1
		mvhd.DurationV1 = movieDuration
	} else {
		mvhd.DurationV0 = uint32(movieDuration)
	}

	_, err = w.mw.writeBox(mvhd)
	if err != nil {
		return err
	}

	for i, t := range w.tracks {
		err = t.marshal(w.mw, i+1)
		if err != nil {
			return err
		}
	}

	return w.mw.writeBoxEnd() // </moov>
}

func (t *writerTrack) durations() []uint32 {
	n := len(t.samples)
	durations := make([]uint32, n)

	for i := 0; i < n-1; i++ {
		durations[i] = uint32(t.samples[i+1].dts - t.samples[i].dts)
	}

	if n > 0 {
		switch {
		case t.lastDuration > 0:
			durations[n-1] = uint32(t.lastDuration)
		case n > 1:
			durations[n-1] = durations[n-2]
		}
	}

	return durations
}

func (t *writerTrack) mediaDuration() uint64 {
	var d uint64
	for _, v := range t.durations() {
		d += uint64(v)
	}
	return d
}

func (t *writerTrack) movieDuration() uint64 {
	return t.mediaDuration() * movieTimeScale / uint64(t.format.TimeScale)
}

func (t *writerTrack) isVideo() bool {
	return t.format.MediaType == MediaTypeVideo
}

func (t *writerTrack) marshal(w *mp4Writer, id int) error {
	/*
		|trak|
		|    |tkhd|
		|    |edts|
		|    |    |elst|
		|    |mdia|
		|    |    |mdhd|
		|    |    |hdlr|
		|    |    |minf|
		|    |    |    |vmhd| (video)
		|    |    |    |smhd| (audio)
		|    |    |    |dinf|
		|    |    |    |    |dref|
		|    |    |    |    |    |url|
		|    |    |    |stbl|
		|    |    |    |    |stsd| (copied from source)
		|    |    |    |    |stts|
		|    |    |    |    |stss|
		|    |    |    |    |ctts|
		|    |    |    |    |stsc|
		|    |    |    |    |stsz|
		|    |    |    |    |stco| or |co64|
	*/

	_, err := w.writeBoxStart(&mp4.Trak{}) // <trak>
	if err != nil {
		return err
	}

	mediaDuration := t.mediaDuration()
	movieDuration := t.movieDuration()

	tkhd := &mp4.Tkhd{ // <tkhd/>
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, 3},
		},
		TrackID: uint32(id),
		Matrix:  identityMatrix,
	}
	if movieDuration > math.MaxUint32 {
		tkhd.FullBox.Version = 1
		tkhd.DurationV1 = movieDuration
	} else {
		tkhd.DurationV0 = uint32(movieDuration)
	}
	if t.isVideo() {
		tkhd.Width = uint32(t.format.Width * 65536)
		tkhd.Height = uint32(t.format.Height * 65536)
	} else {
		tkhd.AlternateGroup = 1
		tkhd.Volume = 256
	}

	_, err = w.writeBox(tkhd)
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Edts{}) // <edts>
	if err != nil {
		return err
	}

	err = t.marshalELST(w, movieDuration) // <elst/>
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </edts>
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Mdia{}) // <mdia>
	if err != nil {
		return err
	}

	language := t.format.Language
	if language == ([3]byte{}) {
		language = [3]byte{'u', 'n', 'd'}
	}

	mdhd := &mp4.Mdhd{ // <mdhd/>
		Timescale: t.format.TimeScale,
		Language:  language,
	}
	if mediaDuration > math.MaxUint32 {
		mdhd.FullBox.Version = 1
		mdhd.DurationV1 = mediaDuration
	} else {
		mdhd.DurationV0 = uint32(mediaDuration)
	}

	_, err = w.writeBox(mdhd)
	if err != nil {
		return err
	}

	if t.isVideo() {
		_, err = w.writeBox(&mp4.Hdlr{ // <hdlr/>
			HandlerType: [4]byte{'v', 'i', 'd', 'e'},
			Name:        "VideoHandler",
		})
	} else {
		_, err = w.writeBox(&mp4.Hdlr{ // <hdlr/>
			HandlerType: [4]byte{'s', 'o', 'u', 'n'},
			Name:        "SoundHandler",
		})
	}
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Minf{}) // <minf>
	if err != nil {
		return err
	}

	if t.isVideo() {
		_, err = w.writeBox(&mp4.Vmhd{ // <vmhd/>
			FullBox: mp4.FullBox{
				Flags: [3]byte{0, 0, 1},
			},
		})
	} else {
		_, err = w.writeBox(&mp4.Smhd{}) // <smhd/>
	}
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Dinf{}) // <dinf>
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Dref{ // <dref>
		EntryCount: 1,
	})
	if err != nil {
		return err
	}

	_, err = w.writeBox(&mp4.Url{ // <url/>
		FullBox: mp4.FullBox{
			Flags: [3]byte{0, 0, 1},
		},
	})
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </dref>
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </dinf>
	if err != nil {
		return err
	}

	_, err = w.writeBoxStart(&mp4.Stbl{}) // <stbl>
	if err != nil {
		return err
	}

	err = w.writeRaw(t.format.SampleDescription) // <stsd/>
	if err != nil {
		return err
	}

	err = t.marshalSTTS(w) // <stts/>
	if err != nil {
		return err
	}

	err = t.marshalSTSS(w) // <stss/>
	if err != nil {
		return err
	}

	err = t.marshalCTTS(w) // <ctts/>
	if err != nil {
		return err
	}

	err = t.marshalSTSC(w) // <stsc/>
	if err != nil {
		return err
	}

	err = t.marshalSTSZ(w) // <stsz/>
	if err != nil {
		return err
	}

	err = t.marshalSTCO(w) // <stco/>
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </stbl>
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </minf>
	if err != nil {
		return err
	}

	err = w.writeBoxEnd() // </mdia>
	if err != nil {
		return err
	}

	return w.writeBoxEnd() // </trak>
}

func (t *writerTrack) marshalELST(w *mp4Writer, movieDuration uint64) error {
	mediaTime := int64(0)
	if len(t.samples) != 0 {
		mediaTime = int64(t.samples[0].ptsOffset)
	}

	elst := &mp4.Elst{
		EntryCount: 1,
		Entries: []mp4.ElstEntry{{
			MediaRateInteger:  1,
			MediaRateFraction: 0,
		}},
	}

	if movieDuration > math.MaxUint32 {
		elst.FullBox.Version = 1
		elst.Entries[0].SegmentDurationV1 = movieDuration
		elst.Entries[0].MediaTimeV1 = mediaTime
	} else {
		elst.Entries[0].SegmentDurationV0 = uint32(movieDuration)
		elst.Entries[0].MediaTimeV0 = int32(mediaTime)
	}

	_, err := w.writeBox(elst)
	return err
}

func (t *writerTrack) marshalSTTS(w *mp4Writer) error {
	var entries []mp4.SttsEntry

	for _, d := range t.durations() {
		if len(entries) != 0 && d == entries[len(entries)-1].SampleDelta {
			entries[len(entries)-1].SampleCount++
		} else {
			entries = append(entries, mp4.SttsEntry{
				SampleCount: 1,
				SampleDelta: d,
			})
		}
	}

	_, err := w.writeBox(&mp4.Stts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *writerTrack) allSamplesAreSync() bool {
	for _, sa := range t.samples {
		if !sa.sync {
			return false
		}
	}
	return true
}

func (t *writerTrack) marshalSTSS(w *mp4Writer) error {
	if t.allSamplesAreSync() {
		return nil
	}

	var sampleNumbers []uint32

	for i, sa := range t.samples {
		if sa.sync {
			sampleNumbers = append(sampleNumbers, uint32(i+1))
		}
	}

	_, err := w.writeBox(&mp4.Stss{
		EntryCount:   uint32(len(sampleNumbers)),
		SampleNumber: sampleNumbers,
	})
	return err
}

func (t *writerTrack) marshalCTTS(w *mp4Writer) error {
	hasOffsets := false
	hasNegative := false

	for _, sa := range t.samples {
		if sa.ptsOffset != 0 {
			hasOffsets = true
		}
		if sa.ptsOffset < 0 {
			hasNegative = true
		}
	}

	if !hasOffsets {
		return nil
	}

	var entries []mp4.CttsEntry

	for _, sa := range t.samples {
		if len(entries) != 0 && sa.ptsOffset == entries[len(entries)-1].SampleOffsetV1 {
			entries[len(entries)-1].SampleCount++
		} else {
			entries = append(entries, mp4.CttsEntry{
				SampleCount:    1,
				SampleOffsetV0: uint32(sa.ptsOffset),
				SampleOffsetV1: sa.ptsOffset,
			})
		}
	}

	ctts := &mp4.Ctts{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	}
	if hasNegative {
		ctts.FullBox.Version = 1
	}

	_, err := w.writeBox(ctts)
	return err
}

// chunks groups samples that are contiguous in the media data box.
func (t *writerTrack) chunks() ([]uint64, []uint32) {
	var offsets []uint64
	var counts []uint32
	var off uint64

	for i, sa := range t.samples {
		if i == 0 || sa.offset != off {
			offsets = append(offsets, sa.offset)
			counts = append(counts, 1)
		} else {
			counts[len(counts)-1]++
		}
		off = sa.offset + uint64(sa.size)
	}

	return offsets, counts
}

func (t *writerTrack) marshalSTSC(w *mp4Writer) error {
	_, counts := t.chunks()

	var entries []mp4.StscEntry

	for i, c := range counts {
		if len(entries) != 0 && c == entries[len(entries)-1].SamplesPerChunk {
			continue
		}

		entries = append(entries, mp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        c,
			SampleDescriptionIndex: 1,
		})
	}

	_, err := w.writeBox(&mp4.Stsc{
		EntryCount: uint32(len(entries)),
		Entries:    entries,
	})
	return err
}

func (t *writerTrack) marshalSTSZ(w *mp4Writer) error {
	sampleSizes := make([]uint32, len(t.samples))

	for i, sa := range t.samples {
		sampleSizes[i] = sa.size
	}

	_, err := w.writeBox(&mp4.Stsz{
		SampleSize:  0,
		SampleCount: uint32(len(sampleSizes)),
		EntrySize:   sampleSizes,
	})
	return err
}

func (t *writerTrack) marshalSTCO(w *mp4Writer) error {
	offsets, _ := t.chunks()

	large := false
	for _, off := range offsets {
		if off > math.MaxUint32 {
			large = true
			break
		}
	}

	if large {
		_, err := w.writeBox(&mp4.Co64{
			EntryCount:  uint32(len(offsets)),
			ChunkOffset: offsets,
		})
		return err
	}

	entries := make([]uint32, len(offsets))
	for i, off := range offsets {
		entries[i] = uint32(off)
	}

	_, err := w.writeBox(&mp4.Stco{
		EntryCount:  uint32(len(entries)),
		ChunkOffset: entries,
	})
	return err
}
