package resampler

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
)

func sine(rate, samples int) []byte {
	out := make([]byte, samples*2)
	for i := range samples {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestPassthrough(t *testing.T) {
	src := sine(16000, 1600)
	r, err := New(bytes.NewReader(src), Format{SampleRate: 16000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("len=%d, want %d", len(got), len(src))
	}
}

func TestDownmix(t *testing.T) {
	stereo := []byte{}
	for _, s := range []int16{100, 300, -200, -400} {
		stereo = binary.LittleEndian.AppendUint16(stereo, uint16(s))
	}
	r, err := New(bytes.NewReader(stereo), Format{SampleRate: 16000, Stereo: true}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(r)
	if len(got) != 4 {
		t.Fatalf("got=% x", got)
	}
	if a, b := int16(binary.LittleEndian.Uint16(got)), int16(binary.LittleEndian.Uint16(got[2:])); a != 200 || b != -300 {
		t.Errorf("got=%d,%d", a, b)
	}
}

func TestResampleLength(t *testing.T) {
	// one second at 48k should come out near one second at 16k
	r, err := New(bytes.NewReader(sine(48000, 48000)), Format{SampleRate: 48000}, Format{SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	samples := len(got) / 2
	if samples < 12000 || samples > 17000 {
		t.Errorf("samples=%d", samples)
	}
}

func TestClosed(t *testing.T) {
	r, _ := New(bytes.NewReader(sine(16000, 160)), Format{SampleRate: 16000}, Format{SampleRate: 16000})
	r.Close()
	if _, err := r.Read(make([]byte, 8)); err == nil {
		t.Error("read after close")
	}
}
