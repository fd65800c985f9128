package video

import (
	"fmt"

	"gocv.io/x/gocv"
)

// EncodeJPEG compresses frame for the dashboard stream
func EncodeJPEG(frame gocv.Mat, quality int) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("encode jpeg: empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close frees
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
