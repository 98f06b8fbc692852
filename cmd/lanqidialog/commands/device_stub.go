//go:build !portaudio

package commands

import (
	"errors"

	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
)

func openDevices(in, out pcm.Format) (*devices, error) {
	return nil, errors.New("sound card support is not built in, rebuild with -tags portaudio or use --audio")
}
