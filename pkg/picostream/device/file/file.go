package file

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/norasector/picostream/pkg/picostream/device"
)

const playbackHandle = device.Handle(1)

// FileDevice plays back a capture of little-endian int16 samples. Each poll moves up to readSize samples into the
// registered ring buffer.
type FileDevice struct {
	readFile *os.File
	readSize int
	raw      []byte

	handle    device.Handle
	channel   device.Channel
	ring      []int16
	streaming bool
	writeIdx  int
	interval  device.SampleInterval
}

func NewFileDevice(file string, readSize int) (*FileDevice, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	return &FileDevice{
		readFile: f,
		readSize: readSize,
	}, nil
}

func (f *FileDevice) checkHandle(op string, h device.Handle) error {
	if f.handle == 0 || h != f.handle {
		return device.Check(op, device.StatusInvalidHandle)
	}
	return nil
}

func (f *FileDevice) OpenUnit() (device.Handle, error) {
	if f.readFile == nil {
		return 0, device.Check("OpenUnit", device.StatusNotFound)
	}
	if f.handle != 0 {
		return 0, device.Check("OpenUnit", device.StatusMaxUnitsOpened)
	}
	f.handle = playbackHandle
	return f.handle, nil
}

func (f *FileDevice) SetChannel(h device.Handle, settings device.ChannelSettings) error {
	if err := f.checkHandle("SetChannel", h); err != nil {
		return err
	}
	if settings.Channel != device.ChannelA {
		return device.Check("SetChannel", device.StatusInvalidChannel)
	}
	return nil
}

func (f *FileDevice) SetSigGenBuiltIn(h device.Handle, settings device.SigGenSettings) error {
	if err := f.checkHandle("SetSigGenBuiltIn", h); err != nil {
		return err
	}
	return device.Check("SetSigGenBuiltIn", device.StatusNoSignalGenerator)
}

func (f *FileDevice) SetDataBuffer(h device.Handle, channel device.Channel, buf []int16) error {
	if err := f.checkHandle("SetDataBuffer", h); err != nil {
		return err
	}
	if channel != device.ChannelA {
		return device.Check("SetDataBuffer", device.StatusInvalidChannel)
	}
	if len(buf) == 0 {
		return device.Check("SetDataBuffer", device.StatusInvalidParameter)
	}
	f.channel = channel
	f.ring = buf
	return nil
}

func (f *FileDevice) RunStreaming(h device.Handle, settings device.StreamingSettings) (device.SampleInterval, error) {
	if err := f.checkHandle("RunStreaming", h); err != nil {
		return device.SampleInterval{}, err
	}
	if f.ring == nil || f.readSize <= 0 {
		return device.SampleInterval{}, device.Check("RunStreaming", device.StatusInvalidParameter)
	}
	readSize := f.readSize
	if readSize > len(f.ring) {
		readSize = len(f.ring)
	}
	f.raw = make([]byte, readSize*2)
	f.interval = settings.Interval
	f.writeIdx = 0
	f.streaming = true
	return f.interval, nil
}

func (f *FileDevice) GetStreamingLatestValues(h device.Handle, ready device.StreamingReady, param interface{}) error {
	const op = "GetStreamingLatestValues"
	if err := f.checkHandle(op, h); err != nil {
		return err
	}
	if !f.streaming {
		return device.Check(op, device.StatusNotStreaming)
	}
	if ready == nil {
		return device.Check(op, device.StatusInvalidParameter)
	}

	n, err := io.ReadFull(f.readFile, f.raw)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		// end of capture, nothing more will land
	case err != nil:
		return device.Check(op, device.StatusStreamingFailed)
	}

	samples := n / 2
	for done := 0; done < samples; {
		block := samples - done
		if room := len(f.ring) - f.writeIdx; block > room {
			block = room
		}
		for i := 0; i < block; i++ {
			off := (done + i) * 2
			f.ring[f.writeIdx+i] = int16(binary.LittleEndian.Uint16(f.raw[off : off+2]))
		}
		ready(device.Notification{
			Handle:      f.handle,
			NoOfSamples: uint32(block),
			StartIndex:  uint32(f.writeIdx),
			Param:       param,
		})
		f.writeIdx = (f.writeIdx + block) % len(f.ring)
		done += block
	}

	return nil
}

func (f *FileDevice) Stop(h device.Handle) error {
	if err := f.checkHandle("Stop", h); err != nil {
		return err
	}
	f.streaming = false
	return nil
}

func (f *FileDevice) CloseUnit(h device.Handle) error {
	if err := f.checkHandle("CloseUnit", h); err != nil {
		return err
	}
	f.handle = 0
	f.streaming = false
	err := f.readFile.Close()
	f.readFile = nil
	return err
}

// WriteCapture stores samples in the format FileDevice plays back.
func WriteCapture(w io.Writer, samples []int16) error {
	return binary.Write(w, binary.LittleEndian, samples)
}
