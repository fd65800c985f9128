package tracking

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorBox       = color.RGBA{B: 255, A: 255}
	colorCentroid  = color.RGBA{R: 255, G: 255, A: 255}
	colorState     = color.RGBA{R: 255, A: 255}
	colorThreshold = color.RGBA{G: 255, A: 255}
	colorInfo      = color.RGBA{G: 255, B: 255, A: 255}
)

// annotate draws the annotations enabled in cfg.DrawFlags onto frame
func annotate(frame *gocv.Mat, cfg Config, frameNumber uint64, status Status, entities []EntityInfo) {
	flags := cfg.DrawFlags

	for _, e := range entities {
		if flags.Has(DrawBoundingBoxes) {
			gocv.RectangleWithParams(frame, e.Box, colorBox, 1, gocv.LineAA, 0)
		}
		if flags.Has(DrawCentroids) {
			gocv.CircleWithParams(frame, e.Centroid, 2, colorCentroid, -1, gocv.LineAA, 0)
		}
		if flags.Has(ShowStates) {
			text := e.State.String()
			size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.5, 1)
			pos := e.Centroid.Add(image.Pt(-size.X/2, size.Y+5))
			gocv.PutTextWithParams(frame, text, pos, gocv.FontHersheyDuplex, 0.5, colorState, 1, gocv.LineAA, false)
		}
	}

	if flags.Has(DrawThresholds) {
		p1, p2 := cfg.Boundary().Line(image.Pt(frame.Cols(), frame.Rows()))
		gocv.Line(frame, p1, p2, colorThreshold, 1)
	}

	if info := infoText(flags, frameNumber, status); info != "" {
		size := gocv.GetTextSize(info, gocv.FontHersheySimplex, 0.5, 1)
		gocv.PutTextWithParams(frame, info, image.Pt(0, size.Y), gocv.FontHersheySimplex, 0.5, colorInfo, 1, gocv.LineAA, false)
	}
}

// infoText builds the frame header, e.g. "Frame: 12 (Tracking)"
func infoText(flags DrawFlags, frameNumber uint64, status Status) string {
	var text string
	if flags.Has(ShowFrameNumber) {
		text = fmt.Sprintf("Frame: %d", frameNumber)
	}
	if flags.Has(ShowFrameStatus) {
		if text != "" {
			text += " "
		}
		text += fmt.Sprintf("(%s)", status)
	}
	return text
}
