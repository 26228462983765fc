// Command dialtest locates and reads every dial in one meter image.
package main

import (
	"flag"
	"fmt"
	"os"

	"meter-reader/internal/calibration"
	"meter-reader/internal/config"
	"meter-reader/internal/dial"
	"meter-reader/internal/frame"
	"meter-reader/internal/meter"
	"meter-reader/internal/needle"
)

func main() {
	imagePath := flag.String("image", "", "Path to meter image (JPEG, PNG, TIFF or BMP)")
	rectify := flag.Bool("rectify", false, "Warp the image with the default panel corners first")
	calPath := flag.String("calibration", "", "Use this saved calibration instead of locating the dials")
	annotate := flag.String("annotate", "", "Write the image with the dials outlined to this JPEG")
	threshold := flag.Float64("threshold", needle.DefaultParams().Threshold, "Needle darkness threshold")
	slices := flag.Int("slices", needle.DefaultParams().Slices, "Angular sectors per revolution")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: dialtest -image <path> [-rectify] [-calibration settings.json] [-annotate out.jpg]")
		os.Exit(1)
	}

	mat, err := frame.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	defer func() { mat.Close() }()

	if *rectify {
		warped := frame.NewRectifier(config.Default().Corners).Apply(mat)
		mat.Close()
		mat = warped
	}
	fmt.Printf("Loaded image: %dx%d pixels\n", mat.Cols(), mat.Rows())

	params := dial.DefaultParams().WithFrameHeight(mat.Rows())
	fmt.Printf("\nLocator parameters:\n")
	fmt.Printf("  Radius: %d-%d px, min distance %.0f px\n",
		params.MinRadiusPixels, params.MaxRadiusPixels, params.MinDistPixels)
	fmt.Printf("  Hough: dp=%.1f param1=%.0f param2=%.0f\n",
		params.HoughDP, params.HoughParam1, params.HoughParam2)

	var set dial.CalibrationSet
	if *calPath != "" {
		set, err = calibration.NewStore(*calPath).Load()
	} else {
		set, err = dial.Calibrate(mat, dial.DefaultParams())
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration: %v\n", err)
		if len(set) == 0 {
			os.Exit(1)
		}
	}

	if *annotate != "" {
		img := dial.Annotate(mat, set)
		buf, err := frame.EncodeJPEG(img)
		img.Close()
		if err == nil {
			err = os.WriteFile(*annotate, buf, 0o644)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write annotation: %v\n", err)
		}
	}

	np := needle.DefaultParams()
	np.Threshold = *threshold
	np.Slices = *slices

	fmt.Printf("\nFound %d dials:\n", len(set))
	fmt.Printf("%-8s %8s %8s %8s %10s %10s\n", "Dial", "X", "Y", "Radius", "Angle", "Position")

	top, bottom := set.Rows()
	rows := append(append([]dial.Dial{}, top...), bottom...)
	for i, d := range rows {
		crop, err := dial.Crop(mat, d)
		if err != nil {
			fmt.Printf("%-8d %8d %8d %8d %10s\n", i, d.Center.X, d.Center.Y, d.Radius, err)
			continue
		}
		angle, err := needle.ReadAngle(crop, np)
		crop.Close()
		if err != nil {
			fmt.Printf("%-8d %8d %8d %8d %10s\n", i, d.Center.X, d.Center.Y, d.Radius, err)
			continue
		}
		fmt.Printf("%-8d %8d %8d %8d %10.1f %10.2f\n",
			i, d.Center.X, d.Center.Y, d.Radius, angle, needle.AngleToPosition(angle))
	}

	if len(set) != dial.ExpectedDials {
		return
	}
	var raw [dial.DecadeDials]float64
	for i := range raw {
		crop, err := set.CropIndex(mat, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Dial %d: %v\n", i, err)
			os.Exit(1)
		}
		raw[i], err = needle.ReadPosition(crop, np)
		crop.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Dial %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("\nRegister: %.1f ccf\n", meter.Compose(raw))
}
