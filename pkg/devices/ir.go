package devices

// IrPoint is a beacon centroid in image pixels.
type IrPoint [2]float64

func (p IrPoint) U() float64 { return p[0] }
func (p IrPoint) V() float64 { return p[1] }

// IrTrackers is one IR camera frame. Field names follow the camera
// publisher, including its spelling of the otsu flag.
type IrTrackers struct {
	FrameTime             float64   `json:"frame_time"`
	PointCount            int       `json:"point_count"`
	Height                int       `json:"height"`
	Width                 int       `json:"width"`
	Channels              int       `json:"channels"`
	UsingOtsuThresholding bool      `json:"useing_otsu_thresholding"`
	BinarizationThreshold int       `json:"binarization_threshold"`
	Points                []IrPoint `json:"points"`
}

// Valid reports whether the frame has a usable image size and a point count
// matching its point list.
func (f IrTrackers) Valid() bool {
	return f.Width > 0 && f.Height > 0 && f.PointCount == len(f.Points)
}

// Normalised returns the points scaled into [0, 1] image coordinates.
func (f IrTrackers) Normalised() []IrPoint {
	out := make([]IrPoint, 0, len(f.Points))
	for _, p := range f.Points {
		out = append(out, IrPoint{p[0] / float64(f.Width), p[1] / float64(f.Height)})
	}
	return out
}
