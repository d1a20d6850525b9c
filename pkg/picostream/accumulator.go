package picostream

// Accumulator is the linear result buffer. Its write cursor only moves forward and never passes capacity.
type Accumulator struct {
	data     []int16
	writePos int
}

func NewAccumulator(capacity int) *Accumulator {
	return &Accumulator{data: make([]int16, capacity)}
}

// Append copies src after the samples already captured, truncated to the remaining capacity, and returns the number
// of samples copied.
func (a *Accumulator) Append(src []int16) int {
	n := copy(a.data[a.writePos:], src)
	a.writePos += n
	return n
}

func (a *Accumulator) Len() int {
	return a.writePos
}

func (a *Accumulator) Cap() int {
	return len(a.data)
}

func (a *Accumulator) Full() bool {
	return a.writePos >= len(a.data)
}

// Samples returns the captured samples. The slice aliases the accumulator.
func (a *Accumulator) Samples() []int16 {
	return a.data[:a.writePos]
}
