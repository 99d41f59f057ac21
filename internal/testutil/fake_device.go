package testutil

import (
	"sync"
	"time"

	"VoiceGuardBackend/internal/capture"
)

// FakeDevice 脚本化的采集设备，测试中通过 Emit 模拟设备回调
type FakeDevice struct {
	Format capture.Format

	mu         sync.Mutex
	onChunk    capture.ChunkHandler
	started    bool
	closed     bool
	startErr   error
	closeErr   error
	closeDelay time.Duration
}

// Start 记录回调
func (d *FakeDevice) Start(onChunk capture.ChunkHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.onChunk = onChunk
	d.started = true
	return nil
}

// Close 标记关闭，可配置延迟和错误
func (d *FakeDevice) Close() error {
	d.mu.Lock()
	delay, err := d.closeDelay, d.closeErr
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return err
}

// Emit 模拟一次设备回调。关闭之后仍然会调用回调，用于模拟迟到的音频块
func (d *FakeDevice) Emit(samples []int16) {
	d.mu.Lock()
	handler := d.onChunk
	d.mu.Unlock()

	if handler != nil {
		handler(samples)
	}
}

// Started 是否已启动
func (d *FakeDevice) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Closed 是否已关闭
func (d *FakeDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// FakeDevices 设备工厂，记录每次会话创建的设备
type FakeDevices struct {
	OpenErr    error
	StartErr   error
	CloseErr   error
	CloseDelay time.Duration

	mu      sync.Mutex
	devices []*FakeDevice
}

// Factory 实现 capture.DeviceFactory
func (f *FakeDevices) Factory(format capture.Format) (capture.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	dev := &FakeDevice{
		Format:     format,
		startErr:   f.StartErr,
		closeErr:   f.CloseErr,
		closeDelay: f.CloseDelay,
	}
	f.devices = append(f.devices, dev)
	return dev, nil
}

// Last 最近创建的设备
func (f *FakeDevices) Last() *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.devices) == 0 {
		return nil
	}
	return f.devices[len(f.devices)-1]
}

// Count 已创建的设备数量
func (f *FakeDevices) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

// SyntheticChunk 生成可辨认的测试样本：base, base+1, ...
func SyntheticChunk(base int16, size int) []int16 {
	chunk := make([]int16, size)
	for i := range chunk {
		chunk[i] = base + int16(i)
	}
	return chunk
}
