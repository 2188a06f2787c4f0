package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Converter reformats captured frames into the layout a recognizer expects.
// It resamples first and remixes channels second, so that a 48 kHz stereo
// microphone feeding a 16 kHz mono recognizer only interpolates once per
// output frame. Resampling phase carries over from one frame to the next, so
// a stream converted chunk by chunk matches the stream converted in one go.
// Create one per stream; a Converter is not safe for concurrent use.
type Converter struct {
	Target Format

	rs           *resampler
	warnMismatch sync.Once
	warnCorrupt  sync.Once
}

// NewConverter returns a Converter producing target.
func NewConverter(target Format) *Converter {
	return &Converter{Target: target}
}

// Convert returns frame in the target format. Frames already in the target
// format are returned unchanged. Frames whose byte count is not a whole number
// of sample frames are dropped (Data == nil).
func (c *Converter) Convert(frame Frame) Frame {
	channels := max(frame.Channels, 1)
	if len(frame.Data)%(2*channels) != 0 {
		c.warnCorrupt.Do(func() {
			slog.Warn("audio: dropping misaligned PCM frame",
				"bytes", len(frame.Data),
				"format", formatString(frame.SampleRate, frame.Channels),
			)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == c.Target.SampleRate && channels == c.Target.Channels {
		return frame
	}

	c.warnMismatch.Do(func() {
		slog.Debug("audio: converting capture format",
			"from", formatString(frame.SampleRate, channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	if frame.SampleRate > 0 && c.Target.SampleRate > 0 && frame.SampleRate != c.Target.SampleRate {
		if c.rs == nil || !c.rs.matches(channels, frame.SampleRate, c.Target.SampleRate) {
			c.rs = newResampler(channels, frame.SampleRate, c.Target.SampleRate)
		}
		pcm = c.rs.push(frame.Data)
	}
	pcm = Remix16(pcm, channels, c.Target.Channels)

	return Frame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream converts every frame read from in and forwards it on the
// returned channel, which is closed when in is closed. Dropped frames are not
// forwarded.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := NewConverter(target)
		for frame := range in {
			f := conv.Convert(frame)
			if len(f.Data) == 0 {
				continue
			}
			out <- f
		}
	}()
	return out
}

// Remix16 converts interleaved s16le PCM from src to dst channels. Reducing to
// mono averages all source channels; expanding from mono duplicates the
// sample; any other combination keeps the first min(src, dst) channels and
// zero-fills the rest.
func Remix16(pcm []byte, src, dst int) []byte {
	if src <= 0 || dst <= 0 || src == dst {
		return pcm
	}
	frames := len(pcm) / (2 * src)
	out := make([]byte, frames*2*dst)
	for i := range frames {
		in := pcm[i*2*src : (i+1)*2*src]
		o := out[i*2*dst : (i+1)*2*dst]
		switch {
		case dst == 1:
			var sum int32
			for ch := range src {
				sum += int32(sample(in, ch))
			}
			putSample(o, 0, clamp16(sum/int32(src)))
		case src == 1:
			s := sample(in, 0)
			for ch := range dst {
				putSample(o, ch, s)
			}
		default:
			for ch := range min(src, dst) {
				putSample(o, ch, sample(in, ch))
			}
		}
	}
	return out
}

// Resample16 converts one buffer of interleaved s16le PCM with the given
// channel count from srcRate to dstRate using linear interpolation per
// channel. Frames past the last source frame repeat it. Invalid rates or
// equal rates return the input unchanged. Use a [Converter] for streams.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	if len(pcm) < 2*channels {
		return pcm
	}
	r := newResampler(channels, srcRate, dstRate)
	out := r.push(pcm)
	return append(out, r.flush()...)
}

// resampler interpolates a sequence of s16le chunks as one continuous signal.
// Output frame n sits at source position n*src/dst and is produced once the
// source frames on both sides of it have been pushed.
type resampler struct {
	channels int
	src, dst int64

	consumed int64  // source frames pushed so far
	emitted  int64  // output frames produced so far
	last     []byte // final source frame of the previous chunk
}

func newResampler(channels, srcRate, dstRate int) *resampler {
	return &resampler{channels: channels, src: int64(srcRate), dst: int64(dstRate)}
}

func (r *resampler) matches(channels, srcRate, dstRate int) bool {
	return r.channels == channels && r.src == int64(srcRate) && r.dst == int64(dstRate)
}

// push appends pcm to the signal and returns every output frame that can now
// be computed. Trailing bytes short of a whole frame are ignored.
func (r *resampler) push(pcm []byte) []byte {
	stride := 2 * r.channels
	n := int64(len(pcm) / stride)
	if n == 0 {
		return nil
	}
	end := r.consumed + n

	var out []byte
	for ; ; r.emitted++ {
		idx, rem := r.emitted*r.src/r.dst, r.emitted*r.src%r.dst
		if idx >= end || (rem != 0 && idx+1 >= end) {
			break
		}
		a, b := r.frameAt(pcm, idx), []byte(nil)
		if rem != 0 {
			b = r.frameAt(pcm, idx+1)
		}
		out = r.interpolate(out, a, b, float64(rem)/float64(r.dst))
	}

	r.last = append(r.last[:0], pcm[(n-1)*int64(stride):n*int64(stride)]...)
	r.consumed = end
	return out
}

// flush emits the frames that still wait for a successor, holding the last
// source frame. The resampler must not be pushed to afterwards.
func (r *resampler) flush() []byte {
	var out []byte
	for ; r.emitted*r.src < r.consumed*r.dst; r.emitted++ {
		out = append(out, r.last...)
	}
	return out
}

// frameAt returns source frame g, which is either in pcm or the saved last
// frame of the previous chunk.
func (r *resampler) frameAt(pcm []byte, g int64) []byte {
	if g < r.consumed {
		return r.last
	}
	stride := int64(2 * r.channels)
	i := (g - r.consumed) * stride
	return pcm[i : i+stride]
}

func (r *resampler) interpolate(out, a, b []byte, frac float64) []byte {
	for ch := range r.channels {
		s := float64(sample(a, ch))
		if b != nil {
			s = s*(1-frac) + float64(sample(b, ch))*frac
		}
		v := int16(s)
		out = append(out, byte(v), byte(v>>8))
	}
	return out
}

func sample(frame []byte, ch int) int16 {
	return int16(frame[ch*2]) | int16(frame[ch*2+1])<<8
}

func putSample(frame []byte, ch int, s int16) {
	frame[ch*2] = byte(s)
	frame[ch*2+1] = byte(s >> 8)
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// formatString renders a format for logs, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	switch channels {
	case 1:
		return fmt.Sprintf("%dHz mono", rate)
	case 2:
		return fmt.Sprintf("%dHz stereo", rate)
	default:
		return fmt.Sprintf("%dHz %dch", rate, channels)
	}
}
