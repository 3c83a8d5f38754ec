package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes an available playback device.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

func (d DeviceInfo) String() string {
	defaultMarker := ""
	if d.IsDefault {
		defaultMarker = " [DEFAULT]"
	}
	return fmt.Sprintf("%s: %s%s", d.ID, d.Name, defaultMarker)
}

// ListPlaybackDevices enumerates the playback devices the audio driver
// reports.
func ListPlaybackDevices() ([]DeviceInfo, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
	}()

	infos, err := malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        fmt.Sprintf("playback-%d", i),
			Name:      info.Name(),
			IsDefault: info.IsDefault > 0,
		})
	}
	return devices, nil
}

// HasPlaybackDevice reports whether any playback device is available.
func HasPlaybackDevice() bool {
	devices, err := ListPlaybackDevices()
	return err == nil && len(devices) > 0
}
