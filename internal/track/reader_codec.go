package track

import (
	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// sampleEntryInfo contains the parameters of the first sample entry of a track.
type sampleEntryInfo struct {
	codec        string
	width        int
	height       int
	sampleRate   int
	channelCount int
}

func (e *sampleEntryInfo) readSampleEntry(h *mp4.ReadHandle) ([]interface{}, error) {
	// only the first entry describes the track
	if e.codec != "" {
		return nil, nil
	}

	e.codec = h.BoxInfo.Type.String()

	box, _, err := h.ReadPayload()
	if err != nil {
		// entries unknown to the box parser are copied without inspection
		return nil, nil //nolint:nilerr
	}

	switch entry := box.(type) {
	case *mp4.VisualSampleEntry:
		e.width = int(entry.Width)
		e.height = int(entry.Height)

	case *mp4.AudioSampleEntry:
		e.channelCount = int(entry.ChannelCount)
		e.sampleRate = int(entry.SampleRate >> 16)
	}

	return h.Expand()
}

// readDecoderConfig fills parameters from the decoder configuration,
// that is more accurate than the sample entry.
func (e *sampleEntryInfo) readDecoderConfig(h *mp4.ReadHandle) error {
	box, _, err := h.ReadPayload()
	if err != nil {
		return nil //nolint:nilerr
	}

	switch conf := box.(type) {
	case *mp4.AVCDecoderConfiguration:
		if len(conf.SequenceParameterSets) == 0 {
			return nil
		}

		var sps h264.SPS
		err = sps.Unmarshal(conf.SequenceParameterSets[0].NALUnit)
		if err == nil {
			e.width = sps.Width()
			e.height = sps.Height()
		}

	case *mp4.HvcC:
		for _, arr := range conf.NaluArrays {
			if arr.NaluType == byte(h265.NALUType_SPS_NUT) && len(arr.Nalus) != 0 {
				var sps h265.SPS
				err = sps.Unmarshal(arr.Nalus[0].NALUnit)
				if err == nil {
					e.width = sps.Width()
					e.height = sps.Height()
				}
				break
			}
		}

	case *mp4.Esds:
		if e.codec != "mp4a" {
			return nil
		}

		for _, desc := range conf.Descriptors {
			if desc.Tag == mp4.DecSpecificInfoTag {
				var asc mpeg4audio.AudioSpecificConfig
				err = asc.Unmarshal(desc.Data)
				if err == nil {
					e.sampleRate = asc.SampleRate
					e.channelCount = asc.ChannelCount
				}
				break
			}
		}
	}

	return nil
}
