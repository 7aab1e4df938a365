package caching

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	_ "image/png"

	color_extractor "github.com/marekm4/color-extractor"
	"golang.org/x/image/draw"

	"github.com/pinesap/lectern/channel"
	"github.com/pinesap/lectern/db"
	"github.com/pinesap/lectern/models"
	"github.com/pinesap/lectern/storage"
)

const thumbWidth = 300

// Covers pulls an item's artwork into local storage: the raw image, a
// small thumbnail for listings, and the dominant colours for the UI.
type Covers struct {
	remote channel.Channel
	store  db.Store
	layout *storage.Layout
}

func NewCovers(remote channel.Channel, store db.Store, layout *storage.Layout) *Covers {
	return &Covers{
		remote: remote,
		store:  store,
		layout: layout,
	}
}

// FetchCover is idempotent: when the raw cover already exists on disk
// nothing is fetched again.
func (c *Covers) FetchCover(ctx context.Context, itemID string) error {
	rawPath := c.layout.CoverPath(itemID, storage.CoverRaw)
	if _, err := os.Stat(rawPath); err == nil {
		return nil
	}

	body, err := c.remote.FetchBookCover(ctx, itemID)
	if err != nil {
		return err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(rawPath, raw, 0o644); err != nil {
		return err
	}

	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		// An undecodable cover is still a cover; keep the raw bytes and
		// skip the derived artifacts.
		return nil
	}

	if err := c.writeThumb(itemID, decoded); err != nil {
		return err
	}

	colours := models.Colours{}
	for _, extracted := range color_extractor.ExtractColors(decoded) {
		colours = append(colours, colourToHexString(extracted))
	}
	return c.store.SetDominantColours(itemID, colours)
}

func (c *Covers) writeThumb(itemID string, source image.Image) error {
	bounds := source.Bounds()
	if bounds.Dx() == 0 {
		return nil
	}
	height := bounds.Dy() * thumbWidth / bounds.Dx()
	thumb := image.NewRGBA(image.Rect(0, 0, thumbWidth, height))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), source, bounds, draw.Over, nil)

	out, err := os.Create(c.layout.CoverPath(itemID, storage.CoverThumb))
	if err != nil {
		return err
	}
	defer out.Close()
	return jpeg.Encode(out, thumb, &jpeg.Options{Quality: 85})
}

func colourToHexString(c color.Color) string {
	r, g, b, a := c.RGBA()
	rgba := color.RGBA{uint8(r), uint8(g), uint8(b), uint8(a)}
	return fmt.Sprintf("#%.2x%.2x%.2x", rgba.R, rgba.G, rgba.B)
}
