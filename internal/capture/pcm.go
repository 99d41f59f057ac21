package capture

import "encoding/binary"

// bytesToSamples 将 S16LE 字节流转换为 int16 样本，末尾不足一个样本的字节被丢弃
func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
