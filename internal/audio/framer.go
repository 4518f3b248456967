package audio

// Framer regroups a sample stream into fixed-size frames.
type Framer struct {
	size    int
	pending []float32
}

func NewFramer(size int) *Framer {
	return &Framer{size: size, pending: make([]float32, 0, size)}
}

// Push appends samples and returns every complete frame now available.
func (f *Framer) Push(samples []float32) [][]float32 {
	f.pending = append(f.pending, samples...)
	var frames [][]float32
	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[:f.size])
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}
	return frames
}

// Flush returns the partial frame left over, if any.
func (f *Framer) Flush() []float32 {
	if len(f.pending) == 0 {
		return nil
	}
	out := append([]float32(nil), f.pending...)
	f.pending = f.pending[:0]
	return out
}
