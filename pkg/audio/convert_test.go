package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/MrWong99/lingobridge/pkg/audio"
)

// pcm16 converts int16 samples to little-endian bytes.
func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// samples16 converts little-endian bytes back to int16 samples.
func samples16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func assertSamples(t *testing.T, got []byte, want ...int16) {
	t.Helper()
	s := samples16(got)
	if len(s) != len(want) {
		t.Fatalf("sample count: got %d (%v), want %d (%v)", len(s), s, len(want), want)
	}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, s[i], want[i])
		}
	}
}

func TestRemix16(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []byte
		src, dst int
		want     []int16
	}{
		{"stereo to mono averages", pcm16(100, 200, -100, -200), 2, 1, []int16{150, -150}},
		{"mono to stereo duplicates", pcm16(100, 200), 1, 2, []int16{100, 100, 200, 200}},
		{"stereo to mono clamps", pcm16(32767, 32767), 2, 1, []int16{32767}},
		{"quad to mono", pcm16(10, 20, 30, 40), 4, 1, []int16{25}},
		{"stereo to quad zero fills", pcm16(1, 2), 2, 4, []int16{1, 2, 0, 0}},
		{"same layout passthrough", pcm16(7, 8), 2, 2, []int16{7, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assertSamples(t, audio.Remix16(tt.in, tt.src, tt.dst), tt.want...)
		})
	}
}

func TestResample16_SameRate(t *testing.T) {
	t.Parallel()
	in := pcm16(1, 2, 3)
	out := audio.Resample16(in, 1, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("expected input to be returned unchanged")
	}
}

func TestResample16_Upsample(t *testing.T) {
	t.Parallel()
	// Doubling the rate interpolates a midpoint between neighbours.
	out := audio.Resample16(pcm16(0, 100), 1, 8000, 16000)
	assertSamples(t, out, 0, 50, 100, 100)
}

func TestResample16_Downsample(t *testing.T) {
	t.Parallel()
	out := audio.Resample16(pcm16(0, 10, 20, 30, 40, 50), 1, 48000, 16000)
	assertSamples(t, out, 0, 30)
}

func TestResample16_StereoKeepsChannelsApart(t *testing.T) {
	t.Parallel()
	out := audio.Resample16(pcm16(0, 1000, 100, 1000), 2, 8000, 16000)
	assertSamples(t, out, 0, 1000, 50, 1000, 100, 1000, 100, 1000)
}

func TestResample16_InvalidRates(t *testing.T) {
	t.Parallel()
	in := pcm16(1, 2)
	if got := audio.Resample16(in, 1, 0, 16000); len(got) != len(in) {
		t.Errorf("zero src rate: got %d bytes, want %d", len(got), len(in))
	}
	if got := audio.Resample16(in, 1, 16000, -1); len(got) != len(in) {
		t.Errorf("negative dst rate: got %d bytes, want %d", len(got), len(in))
	}
}

func TestConverter_Passthrough(t *testing.T) {
	t.Parallel()
	conv := audio.NewConverter(audio.Format{SampleRate: 16000, Channels: 1})
	in := audio.Frame{Data: pcm16(1, 2, 3), SampleRate: 16000, Channels: 1}
	out := conv.Convert(in)
	if &out.Data[0] != &in.Data[0] {
		t.Error("matching format should not copy")
	}
}

func TestConverter_DesktopMicToRecognizer(t *testing.T) {
	t.Parallel()
	conv := audio.NewConverter(audio.Format{SampleRate: 16000, Channels: 1})
	in := audio.Frame{
		Data:       pcm16(100, 300, 100, 300, 100, 300, 500, 700, 500, 700, 500, 700),
		SampleRate: 48000,
		Channels:   2,
		Timestamp:  20 * time.Millisecond,
	}
	out := conv.Convert(in)
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("format: got %dHz/%dch, want 16000Hz/1ch", out.SampleRate, out.Channels)
	}
	if out.Timestamp != in.Timestamp {
		t.Errorf("timestamp: got %v, want %v", out.Timestamp, in.Timestamp)
	}
	assertSamples(t, out.Data, 200, 600)
}

func TestConverter_ChunkedStreamKeepsPhase(t *testing.T) {
	t.Parallel()
	const (
		chunks = 10
		frames = 1024
		src    = 44100
		dst    = 16000
	)
	// A ramp stays a ramp under linear interpolation: output n must read
	// n*src/dst whatever the chunk boundaries.
	ramp := make([]int16, chunks*frames)
	for i := range ramp {
		ramp[i] = int16(i)
	}

	convert := func(size int) []int16 {
		conv := audio.NewConverter(audio.Format{SampleRate: dst, Channels: 1})
		var out []int16
		for i := 0; i < len(ramp); i += size {
			f := conv.Convert(audio.Frame{Data: pcm16(ramp[i : i+size]...), SampleRate: src, Channels: 1})
			out = append(out, samples16(f.Data)...)
		}
		return out
	}
	chunked, whole := convert(frames), convert(len(ramp))

	want := len(ramp) * dst / src
	if d := len(chunked) - want; d < -1 || d > 1 {
		t.Fatalf("output frames = %d, want %d (within 1)", len(chunked), want)
	}
	if len(chunked) != len(whole) {
		t.Fatalf("chunked produced %d frames, one buffer %d", len(chunked), len(whole))
	}
	for n, got := range chunked {
		if exp := int16(n * src / dst); got != exp || whole[n] != exp {
			t.Fatalf("frame %d: chunked %d, whole %d, want %d", n, got, whole[n], exp)
		}
	}
}

func TestConverter_DropsMisalignedFrame(t *testing.T) {
	t.Parallel()
	conv := audio.NewConverter(audio.Format{SampleRate: 16000, Channels: 1})
	out := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if out.Data != nil {
		t.Errorf("expected nil data for odd byte count, got %v", out.Data)
	}
	out = conv.Convert(audio.Frame{Data: pcm16(1, 2, 3), SampleRate: 48000, Channels: 2})
	if out.Data != nil {
		t.Errorf("expected nil data for partial stereo frame, got %v", out.Data)
	}
}

func TestConvertStream(t *testing.T) {
	t.Parallel()
	in := make(chan audio.Frame, 3)
	in <- audio.Frame{Data: pcm16(10, 20), SampleRate: 16000, Channels: 2}
	in <- audio.Frame{Data: []byte{1}, SampleRate: 16000, Channels: 2}
	in <- audio.Frame{Data: pcm16(30, 50), SampleRate: 16000, Channels: 2}
	close(in)

	var got [][]byte
	for f := range audio.ConvertStream(in, audio.Format{SampleRate: 16000, Channels: 1}) {
		got = append(got, f.Data)
	}
	if len(got) != 2 {
		t.Fatalf("frames: got %d, want 2", len(got))
	}
	assertSamples(t, got[0], 15)
	assertSamples(t, got[1], 40)
}

func TestFormat_BytesPerSecond(t *testing.T) {
	t.Parallel()
	if got := (audio.Format{SampleRate: 16000, Channels: 1}).BytesPerSecond(); got != 32000 {
		t.Errorf("got %d, want 32000", got)
	}
}
