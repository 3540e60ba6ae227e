package track

import (
	"errors"
	"fmt"

	"github.com/abema/go-mp4"
)

// ISO 14496-12, 8.8.3.1 and 8.8.7.1
const (
	sampleFlagIsNonSyncSample = 1 << 16

	tfhdBaseDataOffsetPresent        = 0x000001
	tfhdDefaultSampleDurationPresent = 0x000008
	tfhdDefaultSampleSizePresent     = 0x000010
	tfhdDefaultSampleFlagsPresent    = 0x000020

	trunDataOffsetPresent                  = 0x000001
	trunFirstSampleFlagsPresent            = 0x000004
	trunSampleDurationPresent              = 0x000100
	trunSampleSizePresent                  = 0x000200
	trunSampleFlagsPresent                 = 0x000400
	trunSampleCompositionTimeOffsetPresent = 0x000800
)

type trackDefaults struct {
	duration uint32
	size     uint32
	flags    uint32
}

// trackBuilder collects the boxes of a trak and turns them into a sample table.
type trackBuilder struct {
	id         uint32
	handler    [4]byte
	hasHandler bool
	timeScale  uint32
	duration   uint64
	language   [3]byte

	sampleDescription []byte
	entry             sampleEntryInfo

	stts         *mp4.Stts
	stss         *mp4.Stss
	ctts         *mp4.Ctts
	stsc         *mp4.Stsc
	stsz         *mp4.Stsz
	chunkOffsets []uint64

	defaults trackDefaults
	nextDTS  int64
	samples  []sampleInfo
}

// fragmentState is the state of the traf being parsed.
type fragmentState struct {
	builder    *trackBuilder
	baseOffset uint64
	nextOffset uint64
	defaults   trackDefaults
}

func findBuilder(builders []*trackBuilder, id uint32) *trackBuilder {
	for _, b := range builders {
		if b.id == id {
			return b
		}
	}
	return nil
}

// boxes that are only meaningful inside a trak.
var trackBoxes = map[string]struct{}{
	"tkhd": {}, "mdhd": {}, "hdlr": {}, "stsd": {},
	"avc1": {}, "avc3": {}, "hvc1": {}, "hev1": {}, "av01": {}, "vp08": {}, "vp09": {}, "mp4v": {}, "encv": {},
	"mp4a": {}, "Opus": {}, "ac-3": {}, "ec-3": {}, "ipcm": {}, "fLaC": {}, "enca": {},
	"avcC": {}, "hvcC": {}, "esds": {},
	"stts": {}, "stss": {}, "ctts": {}, "stsc": {}, "stsz": {}, "stco": {}, "co64": {},
}

func insideTrak(path mp4.BoxPath) bool {
	for _, t := range path {
		if t == mp4.BoxTypeTrak() {
			return true
		}
	}
	return false
}

func (r *Reader) readRaw(bi *mp4.BoxInfo) ([]byte, error) {
	buf := make([]byte, bi.Size)
	_, err := r.f.ReadAt(buf, int64(bi.Offset))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) parse() error {
	var builders []*trackBuilder
	var cur *trackBuilder
	var frag *fragmentState
	moovFound := false
	moofOffset := uint64(0)
	movieTimeScale := uint32(0)
	movieDuration := uint64(0)

	_, err := mp4.ReadBoxStructure(r.f, func(h *mp4.ReadHandle) (interface{}, error) {
		typ := h.BoxInfo.Type.String()

		if _, ok := trackBoxes[typ]; ok && (cur == nil || !insideTrak(h.Path)) {
			return nil, fmt.Errorf("%w: %s box outside of trak", ErrFormatUnrecognized, typ)
		}

		switch typ {
		case "moov":
			moovFound = true
			return h.Expand()

		case "mvhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mvhd := box.(*mp4.Mvhd)
			movieTimeScale = mvhd.Timescale
			if mvhd.Version == 1 {
				movieDuration = mvhd.DurationV1
			} else {
				movieDuration = uint64(mvhd.DurationV0)
			}

		case "trak":
			cur = &trackBuilder{}
			builders = append(builders, cur)
			return h.Expand()

		case "mdia", "minf", "stbl", "mvex":
			return h.Expand()

		case "tkhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.id = box.(*mp4.Tkhd).TrackID

		case "mdhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			mdhd := box.(*mp4.Mdhd)
			cur.timeScale = mdhd.Timescale
			cur.language = mdhd.Language
			if mdhd.Version == 1 {
				cur.duration = mdhd.DurationV1
			} else {
				cur.duration = uint64(mdhd.DurationV0)
			}

		case "hdlr":
			// the media handler comes before any handler inside minf
			if !cur.hasHandler {
				box, _, err := h.ReadPayload()
				if err != nil {
					return nil, err
				}
				cur.handler = box.(*mp4.Hdlr).HandlerType
				cur.hasHandler = true
			}

		case "stsd":
			buf, err := r.readRaw(&h.BoxInfo)
			if err != nil {
				return nil, err
			}
			cur.sampleDescription = buf
			return h.Expand()

		case "avc1", "avc3", "hvc1", "hev1", "av01", "vp08", "vp09", "mp4v", "encv",
			"mp4a", "Opus", "ac-3", "ec-3", "ipcm", "fLaC", "enca":
			return cur.entry.readSampleEntry(h)

		case "avcC", "hvcC", "esds":
			return nil, cur.entry.readDecoderConfig(h)

		case "stts":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.stts = box.(*mp4.Stts)

		case "stss":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.stss = box.(*mp4.Stss)

		case "ctts":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.ctts = box.(*mp4.Ctts)

		case "stsc":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.stsc = box.(*mp4.Stsc)

		case "stsz":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.stsz = box.(*mp4.Stsz)

		case "stco":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			for _, v := range box.(*mp4.Stco).ChunkOffset {
				cur.chunkOffsets = append(cur.chunkOffsets, uint64(v))
			}

		case "co64":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			cur.chunkOffsets = append(cur.chunkOffsets, box.(*mp4.Co64).ChunkOffset...)

		case "trex":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			trex := box.(*mp4.Trex)

			b := findBuilder(builders, trex.TrackID)
			if b == nil {
				return nil, fmt.Errorf("invalid track ID: %v", trex.TrackID)
			}

			b.defaults = trackDefaults{
				duration: trex.DefaultSampleDuration,
				size:     trex.DefaultSampleSize,
				flags:    trex.DefaultSampleFlags,
			}

		case "moof":
			moofOffset = h.BoxInfo.Offset
			return h.Expand()

		case "traf":
			frag = nil
			return h.Expand()

		case "tfhd":
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfhd := box.(*mp4.Tfhd)

			b := findBuilder(builders, tfhd.TrackID)
			if b == nil {
				return nil, fmt.Errorf("invalid track ID: %v", tfhd.TrackID)
			}

			frag = &fragmentState{
				builder:    b,
				baseOffset: moofOffset,
				defaults:   b.defaults,
			}

			flags := tfhd.GetFlags()
			if flags&tfhdBaseDataOffsetPresent != 0 {
				frag.baseOffset = tfhd.BaseDataOffset
			}
			if flags&tfhdDefaultSampleDurationPresent != 0 {
				frag.defaults.duration = tfhd.DefaultSampleDuration
			}
			if flags&tfhdDefaultSampleSizePresent != 0 {
				frag.defaults.size = tfhd.DefaultSampleSize
			}
			if flags&tfhdDefaultSampleFlagsPresent != 0 {
				frag.defaults.flags = tfhd.DefaultSampleFlags
			}
			frag.nextOffset = frag.baseOffset

		case "tfdt":
			if frag == nil {
				return nil, fmt.Errorf("tfdt box found before tfhd")
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tfdt := box.(*mp4.Tfdt)

			if tfdt.Version == 1 {
				frag.builder.nextDTS = int64(tfdt.BaseMediaDecodeTimeV1)
			} else {
				frag.builder.nextDTS = int64(tfdt.BaseMediaDecodeTimeV0)
			}

		case "trun":
			if frag == nil {
				return nil, fmt.Errorf("trun box found before tfhd")
			}

			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			frag.appendRun(box.(*mp4.Trun))
		}

		return nil, nil
	})
	if err != nil {
		if !moovFound && !errors.Is(err, ErrFormatUnrecognized) {
			return fmt.Errorf("%w: %w", ErrFormatUnrecognized, err)
		}
		return err
	}

	if !moovFound {
		return fmt.Errorf("%w: moov box not found", ErrFormatUnrecognized)
	}

	if movieTimeScale != 0 {
		r.movieDurationUs = ticksToUs(int64(movieDuration), movieTimeScale)
	}

	for _, b := range builders {
		t, err := b.build(r.fileSize)
		if err != nil {
			return fmt.Errorf("%w: track %d: %w", ErrFormatUnrecognized, b.id, err)
		}
		r.tracks = append(r.tracks, t)
	}

	return nil
}

func (f *fragmentState) appendRun(trun *mp4.Trun) {
	flags := trun.GetFlags()

	if flags&trunDataOffsetPresent != 0 {
		f.nextOffset = uint64(int64(f.baseOffset) + int64(trun.DataOffset))
	}

	b := f.builder

	for i, e := range trun.Entries {
		duration := f.defaults.duration
		if flags&trunSampleDurationPresent != 0 {
			duration = e.SampleDuration
		}

		size := f.defaults.size
		if flags&trunSampleSizePresent != 0 {
			size = e.SampleSize
		}

		sampleFlags := f.defaults.flags
		switch {
		case flags&trunSampleFlagsPresent != 0:
			sampleFlags = e.SampleFlags

		case i == 0 && flags&trunFirstSampleFlagsPresent != 0:
			sampleFlags = trun.FirstSampleFlags
		}

		var ptsOffset int32
		if flags&trunSampleCompositionTimeOffsetPresent != 0 {
			if trun.Version == 0 {
				ptsOffset = int32(e.SampleCompositionTimeOffsetV0)
			} else {
				ptsOffset = e.SampleCompositionTimeOffsetV1
			}
		}

		b.samples = append(b.samples, sampleInfo{
			offset:    f.nextOffset,
			size:      size,
			dts:       b.nextDTS,
			duration:  duration,
			ptsOffset: ptsOffset,
			sync:      (sampleFlags & sampleFlagIsNonSyncSample) == 0,
		})

		f.nextOffset += uint64(size)
		b.nextDTS += int64(duration)
	}
}

// maximum number of samples allocated in advance.
// Tables are validated while being expanded, so larger tables grow on demand.
const maxSamplesPrealloc = 64 * 1024

func (b *trackBuilder) buildFromSampleTable(fileSize int64) error {
	if b.stsz == nil || b.stts == nil || b.stsc == nil {
		return fmt.Errorf("incomplete sample table")
	}

	count := int(b.stsz.SampleCount)
	if b.stsz.SampleSize == 0 && len(b.stsz.EntrySize) < count {
		return fmt.Errorf("stsz declares %d samples but contains %d sizes", count, len(b.stsz.EntrySize))
	}

	// every sample takes at least one byte of the file
	if b.stsz.SampleSize != 0 && uint64(count)*uint64(b.stsz.SampleSize) > uint64(fileSize) {
		return fmt.Errorf("stsz declares %d samples of %d bytes, more than the file size",
			count, b.stsz.SampleSize)
	}

	samples := make([]sampleInfo, 0, min(count, maxSamplesPrealloc))

	// sizes and offsets

	stscEntries := b.stsc.Entries
	entryPos := 0

	for chunk := 0; chunk < len(b.chunkOffsets) && len(samples) < count; chunk++ {
		for entryPos+1 < len(stscEntries) && int(stscEntries[entryPos+1].FirstChunk) <= chunk+1 {
			entryPos++
		}
		if len(stscEntries) == 0 {
			return fmt.Errorf("empty stsc box")
		}

		offset := b.chunkOffsets[chunk]

		for j := uint32(0); j < stscEntries[entryPos].SamplesPerChunk && len(samples) < count; j++ {
			size := b.stsz.SampleSize
			if size == 0 {
				size = b.stsz.EntrySize[len(samples)]
			}

			samples = append(samples, sampleInfo{
				offset: offset,
				size:   size,
				sync:   b.stss == nil,
			})
			offset += uint64(size)
		}
	}

	if len(samples) != count {
		return fmt.Errorf("chunk table covers %d samples out of %d", len(samples), count)
	}

	// decoding timestamps

	pos := 0
	dts := int64(0)

	for _, e := range b.stts.Entries {
		for j := uint32(0); j < e.SampleCount && pos < count; j++ {
			samples[pos].dts = dts
			samples[pos].duration = e.SampleDelta
			dts += int64(e.SampleDelta)
			pos++
		}
	}

	for ; pos < count; pos++ {
		samples[pos].dts = dts
	}

	// composition offsets

	if b.ctts != nil {
		pos = 0

		for _, e := range b.ctts.Entries {
			v := e.SampleOffsetV1
			if b.ctts.Version == 0 {
				v = int32(e.SampleOffsetV0)
			}

			for j := uint32(0); j < e.SampleCount && pos < count; j++ {
				samples[pos].ptsOffset = v
				pos++
			}
		}
	}

	// sync samples

	if b.stss != nil {
		for _, n := range b.stss.SampleNumber {
			if n >= 1 && int(n) <= count {
				samples[n-1].sync = true
			}
		}
	}

	b.samples = append(samples, b.samples...)
	return nil
}

func (b *trackBuilder) build(fileSize int64) (*readerTrack, error) {
	if b.timeScale == 0 {
		return nil, fmt.Errorf("invalid time scale")
	}

	// fragmented files have empty sample tables in moov
	if b.stsz != nil && b.stsz.SampleCount != 0 {
		err := b.buildFromSampleTable(fileSize)
		if err != nil {
			return nil, err
		}
	}

	durationUs := ticksToUs(int64(b.duration), b.timeScale)
	if durationUs == 0 && len(b.samples) != 0 {
		last := b.samples[len(b.samples)-1]
		durationUs = ticksToUs(last.dts+int64(last.duration), b.timeScale)
	}

	return &readerTrack{
		format: &Format{
			MediaType:         mediaTypeFromHandler(b.handler),
			Codec:             b.entry.codec,
			TimeScale:         b.timeScale,
			DurationUs:        durationUs,
			Language:          b.language,
			Width:             b.entry.width,
			Height:            b.entry.height,
			SampleRate:        b.entry.sampleRate,
			ChannelCount:      b.entry.channelCount,
			SampleDescription: b.sampleDescription,
		},
		samples: b.samples,
	}, nil
}
