package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmBitDepth    = 16
	wavFormatPCM   = 1
	wavFileMode    = 0o644
	wavDirFileMode = 0o755
)

// EncodeWAV 将 16 位样本编码为 PCM WAV 写入 w
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, pcmBitDepth, channels, wavFormatPCM)

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: pcmBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// WriteWAVFile 先写临时文件再重命名，失败时不会留下半截文件
func WriteWAVFile(path string, samples []int16, sampleRate, channels int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, wavDirFileMode); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".capture-*.wav.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := EncodeWAV(tmp, samples, sampleRate, channels); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrStorage, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorage, tmpName, err)
	}
	if err := os.Chmod(tmpName, wavFileMode); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrStorage, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename to %s: %w", ErrStorage, path, err)
	}
	return nil
}

// ReadWAVFile 读取 16 位 PCM WAV 文件的全部样本
func ReadWAVFile(path string) ([]int16, *audio.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, errors.New("not a valid wav file")
	}
	if dec.BitDepth != pcmBitDepth {
		return nil, nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	format := dec.Format()
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("decode pcm: %w", err)
	}
	if buf == nil {
		return nil, nil, errors.New("wav file has no pcm data")
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, format, nil
}
