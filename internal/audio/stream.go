package audio

import (
	"context"
	"errors"
)

// ErrEmptyStream is returned when a chunk stream closes without any audio.
var ErrEmptyStream = errors.New("audio stream carried no data")

// Collect drains a chunk stream into one buffer.
func Collect(ctx context.Context, chunks <-chan []byte) ([]byte, error) {
	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if len(buf) == 0 {
					return nil, ErrEmptyStream
				}
				return buf, nil
			}
			buf = append(buf, chunk...)
		}
	}
}
