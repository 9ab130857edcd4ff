package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/drummonds/pdfview/viewer"
)

// pageLayers is the JSON written next to each page raster.
type pageLayers struct {
	ID          string                `json:"id"`
	Page        int                   `json:"page"`
	Display     viewer.Dimensions     `json:"display"`
	Text        []viewer.TextFragment `json:"text,omitempty"`
	Annotations []viewer.Widget       `json:"annotations,omitempty"`
}

// writePage writes <id>.png and <id>.json into dir and returns their paths.
// Pages without pixels only get the JSON.
func writePage(dir string, surfaces *viewer.PageSurfaces) ([]string, error) {
	var files []string
	if img := surfaces.Raster.Image(); img != nil {
		png := filepath.Join(dir, surfaces.ID+".png")
		if err := imaging.Save(img, png); err != nil {
			return files, err
		}
		files = append(files, png)
	}

	layers := pageLayers{
		ID:          surfaces.ID,
		Page:        surfaces.Page,
		Display:     surfaces.Raster.DisplaySize(),
		Text:        surfaces.Text.Fragments(),
		Annotations: surfaces.Annotations.Widgets(),
	}
	data, err := json.MarshalIndent(layers, "", "  ")
	if err != nil {
		return files, err
	}
	out := filepath.Join(dir, surfaces.ID+".json")
	if err := os.WriteFile(out, data, 0644); err != nil {
		return files, err
	}
	return append(files, out), nil
}
