package test

import (
	"os"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/pmp4"
)

// parameters of generated media.
const (
	VideoTimeScale     = 90000
	VideoFrameDuration = 3000 // 30 fps
	VideoGOPSize       = 30
	AudioTimeScale     = 48000
	AudioFrameDuration = 1024
)

// Media describes a synthetic file.
type Media struct {
	Duration   time.Duration
	Video      bool
	Audio      bool
	Fragmented bool
}

func (m Media) videoCount() int {
	return int(m.Duration * VideoTimeScale / time.Second / VideoFrameDuration)
}

func (m Media) audioCount() int {
	ticks := int(m.Duration * AudioTimeScale / time.Second)
	return (ticks + AudioFrameDuration - 1) / AudioFrameDuration
}

// VideoPayload returns the payload of the n-th video sample.
func VideoPayload(n int) []byte {
	typ := byte(0x41)
	if n%VideoGOPSize == 0 {
		typ = 0x65
	}
	return []byte{0x00, 0x00, 0x00, 0x03, typ, byte(n >> 8), byte(n)}
}

// AudioPayload returns the payload of the n-th audio sample.
func AudioPayload(n int) []byte {
	return []byte{0x21, 0x10, byte(n >> 8), byte(n)}
}

func (m Media) tracks() []*fmp4.InitTrack {
	var tracks []*fmp4.InitTrack

	if m.Video {
		tracks = append(tracks, &fmp4.InitTrack{
			ID:        len(tracks) + 1,
			TimeScale: VideoTimeScale,
			Codec:     FormatH264,
		})
	}

	if m.Audio {
		tracks = append(tracks, &fmp4.InitTrack{
			ID:        len(tracks) + 1,
			TimeScale: AudioTimeScale,
			Codec:     FormatMPEG4Audio,
		})
	}

	return tracks
}

func (m Media) marshalProgressive() ([]byte, error) {
	var p pmp4.Presentation

	for _, it := range m.tracks() {
		track := &pmp4.Track{
			ID:        it.ID,
			TimeScale: it.TimeScale,
			Codec:     it.Codec,
		}

		if _, ok := it.Codec.(*mp4.CodecH264); ok {
			for i := 0; i < m.videoCount(); i++ {
				pl := VideoPayload(i)
				track.Samples = append(track.Samples, &pmp4.Sample{
					Duration:        VideoFrameDuration,
					IsNonSyncSample: i%VideoGOPSize != 0,
					PayloadSize:     uint32(len(pl)),
					GetPayload: func() ([]byte, error) {
						return pl, nil
					},
				})
			}
		} else {
			for i := 0; i < m.audioCount(); i++ {
				pl := AudioPayload(i)
				track.Samples = append(track.Samples, &pmp4.Sample{
					Duration:    AudioFrameDuration,
					PayloadSize: uint32(len(pl)),
					GetPayload: func() ([]byte, error) {
						return pl, nil
					},
				})
			}
		}

		p.Tracks = append(p.Tracks, track)
	}

	var buf seekablebuffer.Buffer
	err := p.Marshal(&buf)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (m Media) marshalFragmented() ([]byte, error) {
	init := fmp4.Init{
		Tracks: m.tracks(),
	}

	var buf seekablebuffer.Buffer
	err := init.Marshal(&buf)
	if err != nil {
		return nil, err
	}

	videoCount := m.videoCount()
	audioCount := m.audioCount()
	seconds := int((m.Duration + time.Second - 1) / time.Second)

	var parts fmp4.Parts

	// one part per second
	for sec := 0; sec < seconds; sec++ {
		part := &fmp4.Part{
			SequenceNumber: uint32(sec),
		}

		for _, it := range init.Tracks {
			if _, ok := it.Codec.(*mp4.CodecH264); ok {
				lo := sec * VideoGOPSize
				hi := min((sec+1)*VideoGOPSize, videoCount)
				if lo >= hi {
					continue
				}

				pt := &fmp4.PartTrack{
					ID:       it.ID,
					BaseTime: uint64(lo * VideoFrameDuration),
				}
				for i := lo; i < hi; i++ {
					pt.Samples = append(pt.Samples, &fmp4.Sample{
						Duration:        VideoFrameDuration,
						IsNonSyncSample: i%VideoGOPSize != 0,
						Payload:         VideoPayload(i),
					})
				}
				part.Tracks = append(part.Tracks, pt)
			} else {
				lo := (sec*AudioTimeScale + AudioFrameDuration - 1) / AudioFrameDuration
				hi := min(((sec+1)*AudioTimeScale+AudioFrameDuration-1)/AudioFrameDuration, audioCount)
				if lo >= hi {
					continue
				}

				pt := &fmp4.PartTrack{
					ID:       it.ID,
					BaseTime: uint64(lo * AudioFrameDuration),
				}
				for i := lo; i < hi; i++ {
					pt.Samples = append(pt.Samples, &fmp4.Sample{
						Duration: AudioFrameDuration,
						Payload:  AudioPayload(i),
					})
				}
				part.Tracks = append(part.Tracks, pt)
			}
		}

		parts = append(parts, part)
	}

	var buf2 seekablebuffer.Buffer
	err = parts.Marshal(&buf2)
	if err != nil {
		return nil, err
	}

	return append(buf.Bytes(), buf2.Bytes()...), nil
}

// Marshal encodes the media.
func (m Media) Marshal() ([]byte, error) {
	if m.Fragmented {
		return m.marshalFragmented()
	}
	return m.marshalProgressive()
}

// WriteFile writes the media into a file.
func (m Media) WriteFile(path string) error {
	buf, err := m.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0o644)
}
