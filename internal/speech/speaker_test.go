package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/pkg/audio"
	audiomock "github.com/MrWong99/lingobridge/pkg/audio/mock"
	ttsmock "github.com/MrWong99/lingobridge/pkg/provider/tts/mock"
)

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestSpeaker(t *testing.T, p *ttsmock.Provider, sink *audiomock.Sink, opts ...Option) *Speaker {
	t.Helper()
	book, err := NewVoiceBook(testVoices(), nil)
	if err != nil {
		t.Fatalf("NewVoiceBook: %v", err)
	}
	s := New(p, sink, book, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSpeaker_SpeaksWithLocaleVoice(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{{1, 2}, {3, 4}, {5, 6}},
		Format:           audio.Format{SampleRate: 24000, Channels: 1},
	}
	sink := &audiomock.Sink{}
	s := newTestSpeaker(t, p, sink)

	s.Speak("你好，世界", "zh-CN")
	s.Wait()

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("synth calls = %d, want 1", len(calls))
	}
	if calls[0].Voice.ID != "xiaoyi" || calls[0].Voice.Language != "zh-CN" {
		t.Errorf("voice = %+v", calls[0].Voice)
	}
	if len(calls[0].Text) != 1 || calls[0].Text[0] != "你好，世界" {
		t.Errorf("text = %v", calls[0].Text)
	}

	plays := sink.Calls()
	if len(plays) != 1 {
		t.Fatalf("play calls = %d, want 1", len(plays))
	}
	if plays[0].Format != (audio.Format{SampleRate: 24000, Channels: 1}) {
		t.Errorf("format = %+v", plays[0].Format)
	}
	if len(plays[0].Chunks) != 3 || plays[0].Cancelled {
		t.Errorf("play = %+v", plays[0])
	}
	if s.Speaking() {
		t.Error("Speaking() should be false after the utterance ended")
	}
}

func TestSpeaker_BlankTextIsIgnored(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	s := newTestSpeaker(t, p, &audiomock.Sink{})
	s.Speak("  \n", "en-US")
	s.Wait()
	if len(p.Calls()) != 0 {
		t.Error("blank text must not be synthesized")
	}
}

func TestSpeaker_NewUtterancePreemptsCurrent(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}
	sink := &audiomock.Sink{Hold: true}
	s := newTestSpeaker(t, p, sink)

	s.Speak("first", "en-US")
	waitFor(t, "first playback", func() bool { return len(sink.Calls()) == 1 })

	s.Speak("second", "de-DE")
	waitFor(t, "second playback", func() bool { return len(sink.Calls()) == 2 })

	plays := sink.Calls()
	if !plays[0].Cancelled {
		t.Error("first utterance was not cut off")
	}
	if plays[1].Cancelled {
		t.Error("second utterance should still be playing")
	}
	if !s.Speaking() {
		t.Error("Speaking() should be true while the second utterance holds the slot")
	}

	s.Cancel()
	s.Wait()
	if !sink.Calls()[1].Cancelled {
		t.Error("Cancel did not stop the second utterance")
	}
	if s.Speaking() {
		t.Error("Speaking() should be false after Cancel")
	}
}

func TestSpeaker_FailuresAreSwallowedAndCounted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		p      *ttsmock.Provider
		sink   *audiomock.Sink
		locale string
		plays  int
	}{
		{"synthesis error", &ttsmock.Provider{SynthesizeErr: errors.New("quota")}, &audiomock.Sink{}, "en-US", 0},
		{"no voice", &ttsmock.Provider{}, &audiomock.Sink{}, "fr-FR", 0},
		{"playback error", &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}, &audiomock.Sink{PlayErr: errors.New("ffplay exited")}, "en-US", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader := sdkmetric.NewManualReader()
			mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
			m, err := observe.NewMetrics(mp)
			if err != nil {
				t.Fatalf("NewMetrics: %v", err)
			}

			s := newTestSpeaker(t, tt.p, tt.sink, WithMetrics(m), WithProviderName("elevenlabs"))
			s.Speak("hello", tt.locale)
			s.Wait()

			if got := len(tt.sink.Calls()); got != tt.plays {
				t.Errorf("play calls = %d, want %d", got, tt.plays)
			}

			var rm metricdata.ResourceMetrics
			if err := reader.Collect(context.Background(), &rm); err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if !hasMetric(rm, "lingobridge.provider.errors") {
				t.Error("provider error was not counted")
			}
		})
	}
}

func hasMetric(rm metricdata.ResourceMetrics, name string) bool {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}

func TestSpeaker_CloseStopsPlaybackAndIgnoresLaterSpeech(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}
	sink := &audiomock.Sink{Hold: true}
	book, _ := NewVoiceBook(testVoices(), nil)
	s := New(p, sink, book)

	s.Speak("goodbye", "en-US")
	waitFor(t, "playback", func() bool { return len(sink.Calls()) == 1 })

	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	if !sink.Calls()[0].Cancelled {
		t.Error("Close did not cut playback")
	}

	s.Speak("after close", "en-US")
	s.Wait()
	if len(p.Calls()) != 1 {
		t.Errorf("synth calls = %d, want 1", len(p.Calls()))
	}
}

func TestSpeaker_CancelWhenIdle(t *testing.T) {
	t.Parallel()
	s := newTestSpeaker(t, &ttsmock.Provider{}, &audiomock.Sink{})
	s.Cancel()
	if s.Speaking() {
		t.Error("idle speaker reports speaking")
	}
}
