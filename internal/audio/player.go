package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// Player renders queued sample blocks through the default playback device.
// The audio driver pulls frames via the data callback; underruns produce
// silence instead of stale data.
type Player struct {
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	buf        *FrameBuffer
	sampleRate int
}

// NewPlayer opens a mono float32 playback device at the given sample rate.
func NewPlayer(sampleRate, blockSize int) (*Player, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	p := &Player{
		malgoCtx:   malgoCtx,
		buf:        NewFrameBuffer(),
		sampleRate: sampleRate,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(blockSize)

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSamples, pInputSamples []byte, frameCount uint32) {
			frames := make([]float32, frameCount)
			p.buf.Fill(frames)
			for i, s := range frames {
				binary.LittleEndian.PutUint32(pOutputSamples[i*4:], math.Float32bits(s))
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	p.device = device

	return p, nil
}

// Start begins pulling frames from the buffer.
func (p *Player) Start() error {
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// Enqueue adds a block of samples to the playback queue.
func (p *Player) Enqueue(block []float32) {
	p.buf.Push(block)
}

// Buffered returns the number of samples not yet handed to the device.
func (p *Player) Buffered() int {
	return p.buf.Buffered()
}

// SampleRate returns the rate the device was opened with.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Stop halts the device without discarding queued samples.
func (p *Player) Stop() error {
	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return nil
}

// Close releases the device and the audio context.
func (p *Player) Close() error {
	if p.device != nil {
		p.device.Uninit()
		p.device = nil
	}
	if p.malgoCtx != nil {
		_ = p.malgoCtx.Uninit()
		p.malgoCtx.Free()
		p.malgoCtx = nil
	}
	return nil
}
