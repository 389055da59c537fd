package cmd

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/image/draw"
)

// backgroundAspect is the shape the imagery pipeline requests (1792x1024).
// Sources that deviate from it usually mean a hand-edited or foreign file
// slipped into the backgrounds directory.
const backgroundAspect = 1792.0 / 1024.0

var imageThumbCmd = &cobra.Command{
	Use:   "thumb",
	Short: "Generate review thumbnails for saved backgrounds",
	Long:  "Downscale saved slide backgrounds (png/jpeg) into small review thumbnails, flagging sources that do not match the shape backgrounds are generated at.",
	RunE:  runImageThumb,
}

func init() {
	imageCmd.AddCommand(imageThumbCmd)

	imageThumbCmd.Flags().String("in-dir", "", "Input directory containing saved backgrounds")
	imageThumbCmd.Flags().String("out-dir", "", "Output directory for thumbnails (defaults to in-dir)")
	imageThumbCmd.Flags().Int("max-size", 256, "Max thumbnail dimension (64-1024)")
	imageThumbCmd.Flags().String("format", "jpeg", "Thumbnail format: jpeg or png")
	imageThumbCmd.Flags().Int("jpeg-quality", 80, "JPEG quality (1-100)")
	imageThumbCmd.Flags().String("suffix", "thumbnail", "Filename suffix (e.g. 'thumbnail' -> name.thumbnail.jpg)")
}

func runImageThumb(cmd *cobra.Command, _ []string) error {
	inDir, _ := cmd.Flags().GetString("in-dir")
	outDir, _ := cmd.Flags().GetString("out-dir")
	maxSize, _ := cmd.Flags().GetInt("max-size")
	format, _ := cmd.Flags().GetString("format")
	jpegQuality, _ := cmd.Flags().GetInt("jpeg-quality")
	suffix, _ := cmd.Flags().GetString("suffix")

	inDir = strings.TrimSpace(inDir)
	outDir = strings.TrimSpace(outDir)
	format = strings.ToLower(strings.TrimSpace(format))
	suffix = strings.TrimSpace(suffix)

	if inDir == "" {
		return errors.New("--in-dir is required")
	}
	if outDir == "" {
		outDir = inDir
	}
	if maxSize < 64 || maxSize > 1024 {
		return errors.New("--max-size must be between 64 and 1024")
	}
	if suffix == "" {
		suffix = "thumbnail"
	}

	absIn, err := filepath.Abs(inDir)
	if err != nil {
		absIn = inDir
	}
	absOut, err := ensureOutDir(outDir)
	if err != nil {
		return err
	}
	if err := verifyDirWritable(absOut); err != nil {
		return err
	}

	entries, err := os.ReadDir(absIn)
	if err != nil {
		return err
	}

	written := 0
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isSourceImage(name) {
			continue
		}
		if isThumbnailArtifact(name, suffix) {
			skipped++
			continue
		}

		inPath := filepath.Join(absIn, name)
		outPath := thumbnailPath(absOut, name, suffix, format)
		dims, err := writeThumbnail(inPath, outPath, maxSize, format, jpegQuality)
		if err != nil {
			return fmt.Errorf("thumbnail %s: %w", name, err)
		}
		if aspectDeviates(dims) {
			fmt.Printf("Warning: %s is %dx%d, not the shape backgrounds are generated at\n", name, dims.X, dims.Y)
		}
		written++
	}

	fmt.Printf("Wrote %d thumbnails to %s (%d existing thumbnails skipped)\n", written, absOut, skipped)
	return nil
}

func isSourceImage(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".png") ||
		strings.HasSuffix(lower, ".jpg") ||
		strings.HasSuffix(lower, ".jpeg")
}

// isThumbnailArtifact reports whether name already carries the thumbnail
// suffix, so reruns over the same directory do not thumbnail thumbnails.
func isThumbnailArtifact(name, suffix string) bool {
	marker := "." + strings.ToLower(suffix) + "."
	return strings.Contains(strings.ToLower(name), marker)
}

func aspectDeviates(size image.Point) bool {
	if size.X <= 0 || size.Y <= 0 {
		return false
	}
	ratio := float64(size.X) / float64(size.Y)
	return math.Abs(ratio-backgroundAspect) > 0.05
}

func thumbnailPath(outDir, filename, suffix, format string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := "jpg"
	if format == "png" {
		ext = "png"
	}
	return filepath.Join(outDir, fmt.Sprintf("%s.%s.%s", base, suffix, ext))
}

// writeThumbnail downscales the image at inPath into outPath and returns the
// source dimensions so callers can sanity-check them.
func writeThumbnail(inPath, outPath string, maxSize int, format string, jpegQuality int) (image.Point, error) {
	inFile, err := os.Open(inPath)
	if err != nil {
		return image.Point{}, err
	}
	defer inFile.Close() // nolint:errcheck

	srcImg, _, err := image.Decode(inFile)
	if err != nil {
		return image.Point{}, err
	}

	bounds := srcImg.Bounds()
	size := image.Pt(bounds.Dx(), bounds.Dy())
	if size.X <= 0 || size.Y <= 0 {
		return size, errors.New("invalid image dimensions")
	}

	scale := float64(maxSize) / float64(max(size.X, size.Y))
	if scale > 1 {
		scale = 1
	}
	newW := int(float64(size.X) * scale)
	newH := int(float64(size.Y) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), srcImg, bounds, draw.Over, nil)

	outFile, err := os.Create(outPath)
	if err != nil {
		return size, err
	}
	defer outFile.Close() // nolint:errcheck

	return size, encodeImage(outFile, dst, format, jpegQuality)
}

func encodeImage(w io.Writer, img image.Image, format string, jpegQuality int) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpeg", "jpg", "":
		q := jpegQuality
		if q < 1 {
			q = 1
		}
		if q > 100 {
			q = 100
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func verifyDirWritable(dir string) error {
	probe := filepath.Join(dir, ".slidesmith-write-test")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("output directory not writable: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = os.Remove(probe)
	return nil
}
