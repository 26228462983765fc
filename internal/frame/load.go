package frame

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// Load decodes an image file (JPEG, PNG, TIFF or BMP) into a grayscale Mat.
func Load(path string) (gocv.Mat, error) {
	file, err := os.Open(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode image: %w", err)
	}
	return ToGrayMat(img)
}

// ToGrayMat converts any image to a single channel 8-bit Mat.
func ToGrayMat(img image.Image) (gocv.Mat, error) {
	gray, ok := img.(*image.Gray)
	if !ok || gray.Bounds().Min != (image.Point{}) {
		b := img.Bounds()
		gray = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	}
	mat, err := gocv.ImageGrayToMatGray(gray)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image: %w", err)
	}
	return mat, nil
}

// EncodeJPEG encodes a Mat as JPEG.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
