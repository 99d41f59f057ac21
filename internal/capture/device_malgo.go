//go:build cgo

package capture

import (
	"errors"
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
)

// malgoDevice 基于 miniaudio 的麦克风采集设备
type malgoDevice struct {
	format Format
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
}

// NewSystemDevice 打开默认输入设备的上下文
func NewSystemDevice(format Format) (Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[malgo] %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &malgoDevice{format: format, ctx: ctx}, nil
}

// Start 初始化并启动采集流
func (d *malgoDevice) Start(onChunk ChunkHandler) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(d.format.Channels)
	cfg.SampleRate = uint32(d.format.SampleRate)
	if d.format.FramesPerBuffer > 0 {
		cfg.PeriodSizeInFrames = uint32(d.format.FramesPerBuffer)
	}
	cfg.Alsa.NoMMap = 1

	onData := func(_, input []byte, _ uint32) {
		if len(input) == 0 {
			return
		}
		onChunk(bytesToSamples(input))
	}

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	d.dev = dev
	return nil
}

// Close 停止采集流并释放上下文
func (d *malgoDevice) Close() error {
	var errs []error
	if d.dev != nil {
		if err := d.dev.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop capture device: %w", err))
		}
		d.dev.Uninit()
		d.dev = nil
	}
	if d.ctx != nil {
		if err := d.ctx.Uninit(); err != nil {
			errs = append(errs, fmt.Errorf("uninit audio context: %w", err))
		}
		d.ctx.Free()
		d.ctx = nil
	}
	return errors.Join(errs...)
}
