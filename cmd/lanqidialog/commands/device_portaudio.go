//go:build portaudio

package commands

import (
	"errors"
	"time"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/portaudio"
)

func openDevices(in, out pcm.Format) (*devices, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	mic, err := portaudio.OpenMicrophone(in, capture.DefaultFrameDuration)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	speaker, err := portaudio.OpenSpeaker(out, 40*time.Millisecond)
	if err != nil {
		mic.Close()
		portaudio.Terminate()
		return nil, err
	}
	return &devices{
		Source: mic,
		Sink:   speaker,
		close: func() error {
			return errors.Join(mic.Close(), speaker.Close(), portaudio.Terminate())
		},
	}, nil
}
