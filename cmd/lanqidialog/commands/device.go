package commands

import (
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/capture"
	"github.com/AuRevior-ai/LanqiDoctor-ICAN-sub002/pkg/audio/pcm"
)

// devices is the sound card pair used by dialog --device.
type devices struct {
	Source capture.Source
	Sink   pcm.Writer
	close  func() error
}

func (d *devices) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}
