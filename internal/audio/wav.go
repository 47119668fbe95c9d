package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"mime"
	"strings"
)

const (
	ContentTypeWAV  = "audio/wav"
	ContentTypeWebM = "audio/webm"
	ContentTypeMPEG = "audio/mpeg"
	ContentTypePCM  = "audio/L16"
)

// Format describes raw PCM16LE capture settings.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, the usual input rate for speech backends.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

func (f Format) normalized() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultFormat.SampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultFormat.Channels
	}
	return f
}

// EncodeWAVPCM16LE wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, format Format) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, format Format) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	format = format.normalized()

	dataSize := uint32(len(pcm))
	byteRate := uint32(format.SampleRate * format.Channels * bitsPerSample / 8)
	blockAlign := uint16(format.Channels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	fields := []any{
		uint32(16),
		uint16(audioFormat),
		uint16(format.Channels),
		uint32(format.SampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
	}
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// Extension returns a file extension (with dot) for an audio content type.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case ContentTypeWAV, "audio/x-wav", "audio/wave":
		return ".wav"
	case ContentTypeWebM:
		return ".webm"
	case ContentTypeMPEG, "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case ContentTypePCM:
		return ".pcm"
	default:
		return ".bin"
	}
}

// Sniff guesses a content type from the leading bytes of an audio payload.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return ContentTypeWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return ContentTypeWebM
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "audio/ogg"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return ContentTypeMPEG
	case len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return ContentTypeMPEG
	default:
		return "application/octet-stream"
	}
}
