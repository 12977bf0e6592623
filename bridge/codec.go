package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Packed struct sizes on the wire.
const (
	PollFDSize    = 8
	TimevalSize   = 16
	ITimerValSize = 2 * TimevalSize
	RUsageSize    = 2 * TimevalSize
	CPUSetSize    = cpuSetWords * 8
)

func marshalPacked(v any, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func unmarshalPacked(v any, data []byte, size int) error {
	if len(data) != size {
		return fmt.Errorf("invalid %T encoding: got %d bytes, want %d", v, len(data), size)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, v)
}

// MarshalBinary encodes the pollfd as 8 packed little-endian bytes.
func (p PollFD) MarshalBinary() ([]byte, error) { return marshalPacked(&p, PollFDSize) }

// UnmarshalBinary decodes a packed pollfd.
func (p *PollFD) UnmarshalBinary(data []byte) error { return unmarshalPacked(p, data, PollFDSize) }

// MarshalBinary encodes the timeval as 16 packed little-endian bytes.
func (tv Timeval) MarshalBinary() ([]byte, error) { return marshalPacked(&tv, TimevalSize) }

// UnmarshalBinary decodes a packed timeval.
func (tv *Timeval) UnmarshalBinary(data []byte) error { return unmarshalPacked(tv, data, TimevalSize) }

// MarshalBinary encodes the itimerval as 32 packed little-endian bytes.
func (it ITimerVal) MarshalBinary() ([]byte, error) { return marshalPacked(&it, ITimerValSize) }

// UnmarshalBinary decodes a packed itimerval.
func (it *ITimerVal) UnmarshalBinary(data []byte) error {
	return unmarshalPacked(it, data, ITimerValSize)
}

// MarshalBinary encodes the rusage as 32 packed little-endian bytes.
func (ru RUsage) MarshalBinary() ([]byte, error) { return marshalPacked(&ru, RUsageSize) }

// UnmarshalBinary decodes a packed rusage.
func (ru *RUsage) UnmarshalBinary(data []byte) error { return unmarshalPacked(ru, data, RUsageSize) }

// MarshalBinary encodes the CPU set as its packed word array.
func (cs CPUSet) MarshalBinary() ([]byte, error) { return marshalPacked(&cs, CPUSetSize) }

// UnmarshalBinary decodes a packed CPU set.
func (cs *CPUSet) UnmarshalBinary(data []byte) error { return unmarshalPacked(cs, data, CPUSetSize) }
