// Package imagesrc turns caller-provided pixels into the normalised
// representation consumed by detection and recognition models.
package imagesrc

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// BlackValue is the normalised intensity of a black pixel. Padding and
// out-of-bounds samples use it.
const BlackValue float32 = -0.5

// NormalizedImage holds pixels in CHW order with values in [-0.5, 0.5].
type NormalizedImage struct {
	Data     []float32
	Channels int
	Width    int
	Height   int
}

// MalformedInputError reports pixel data that does not match the declared dimensions.
type MalformedInputError struct {
	Width, Height int
	Length        int
	Reason        string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed image input (%dx%d, %d values): %s", e.Width, e.Height, e.Length, e.Reason)
}

// Order is the memory layout of a float tensor handed to FromTensor.
type Order int

const (
	// CHW stores each channel plane contiguously.
	CHW Order = iota
	// HWC interleaves channels per pixel.
	HWC
)

func normalize(v uint8) float32 { return float32(v)/255 - 0.5 }

// FromImage converts any image.Image. Grayscale images keep a single
// channel, everything else becomes RGB. Alpha is ignored.
func FromImage(img image.Image) *NormalizedImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch g := img.(type) {
	case *image.Gray:
		out := &NormalizedImage{Data: make([]float32, w*h), Channels: 1, Width: w, Height: h}
		for y := range h {
			off := g.PixOffset(b.Min.X, b.Min.Y+y)
			row := g.Pix[off : off+w]
			for x, v := range row {
				out.Data[y*w+x] = normalize(v)
			}
		}
		return out
	}

	nrgba := imaging.Clone(img)
	plane := w * h
	out := &NormalizedImage{Data: make([]float32, 3*plane), Channels: 3, Width: w, Height: h}
	for y := range h {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
		for x := range w {
			i := y*w + x
			out.Data[i] = normalize(row[4*x])
			out.Data[plane+i] = normalize(row[4*x+1])
			out.Data[2*plane+i] = normalize(row[4*x+2])
		}
	}
	return out
}

// FromBytes converts interleaved 8-bit pixels. The channel count (1, 3 or 4)
// is inferred from the data length; a fourth channel is treated as alpha
// and dropped.
func FromBytes(data []byte, width, height int) (*NormalizedImage, error) {
	if width <= 0 || height <= 0 {
		return nil, &MalformedInputError{Width: width, Height: height, Length: len(data), Reason: "dimensions must be positive"}
	}
	plane := width * height
	if len(data)%plane != 0 {
		return nil, &MalformedInputError{Width: width, Height: height, Length: len(data), Reason: "length is not a multiple of width*height"}
	}
	in := len(data) / plane
	if in != 1 && in != 3 && in != 4 {
		return nil, &MalformedInputError{Width: width, Height: height, Length: len(data), Reason: fmt.Sprintf("unsupported channel count %d", in)}
	}

	channels := min(in, 3)
	out := &NormalizedImage{Data: make([]float32, channels*plane), Channels: channels, Width: width, Height: height}
	for i := range plane {
		for c := range channels {
			out.Data[c*plane+i] = normalize(data[i*in+c])
		}
	}
	return out, nil
}

// FromTensor converts float pixels in [0, 1]. shape is (C, H, W) for CHW
// or (H, W, C) for HWC. A fourth channel is dropped.
func FromTensor(data []float32, shape [3]int, order Order) (*NormalizedImage, error) {
	c, h, w := shape[0], shape[1], shape[2]
	if order == HWC {
		h, w, c = shape[0], shape[1], shape[2]
	}
	if c <= 0 || h <= 0 || w <= 0 || len(data) != c*h*w {
		return nil, &MalformedInputError{Width: w, Height: h, Length: len(data), Reason: fmt.Sprintf("shape %v does not match data", shape)}
	}
	if c != 1 && c != 3 && c != 4 {
		return nil, &MalformedInputError{Width: w, Height: h, Length: len(data), Reason: fmt.Sprintf("unsupported channel count %d", c)}
	}

	channels := min(c, 3)
	plane := w * h
	out := &NormalizedImage{Data: make([]float32, channels*plane), Channels: channels, Width: w, Height: h}
	for ch := range channels {
		for i := range plane {
			var v float32
			if order == HWC {
				v = data[i*c+ch]
			} else {
				v = data[ch*plane+i]
			}
			out.Data[ch*plane+i] = v - 0.5
		}
	}
	return out, nil
}

// Gray returns a single-channel version using ITU-R 601 luma weights.
// A single-channel image is returned as is.
func (m *NormalizedImage) Gray() *NormalizedImage {
	if m.Channels == 1 {
		return m
	}
	plane := m.Width * m.Height
	out := &NormalizedImage{Data: make([]float32, plane), Channels: 1, Width: m.Width, Height: m.Height}
	r, g, b := m.Data[:plane], m.Data[plane:2*plane], m.Data[2*plane:3*plane]
	for i := range plane {
		out.Data[i] = 0.299*r[i] + 0.587*g[i] + 0.114*b[i]
	}
	return out
}

// At returns the value of channel c at (x, y), or BlackValue outside the image.
func (m *NormalizedImage) At(c, x, y int) float32 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height || c < 0 || c >= m.Channels {
		return BlackValue
	}
	return m.Data[c*m.Width*m.Height+y*m.Width+x]
}

// ToImage renders the image back to 8-bit pixels.
func (m *NormalizedImage) ToImage() image.Image {
	plane := m.Width * m.Height
	if m.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
		for i := range plane {
			g.Pix[i] = denormalize(m.Data[i])
		}
		return g
	}
	out := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i := range plane {
		out.Pix[4*i] = denormalize(m.Data[i])
		out.Pix[4*i+1] = denormalize(m.Data[plane+i])
		out.Pix[4*i+2] = denormalize(m.Data[2*plane+i])
		out.Pix[4*i+3] = 255
	}
	return out
}

// Resize scales the image to w x h with a linear filter.
func (m *NormalizedImage) Resize(w, h int) *NormalizedImage {
	if w == m.Width && h == m.Height {
		return m
	}
	resized := imaging.Resize(m.ToImage(), w, h, imaging.Linear)
	out := FromImage(resized)
	if m.Channels == 1 {
		return out.Gray()
	}
	return out
}

func denormalize(v float32) uint8 {
	c := (v + 0.5) * 255
	if c <= 0 {
		return 0
	}
	if c >= 255 {
		return 255
	}
	return uint8(c + 0.5)
}
