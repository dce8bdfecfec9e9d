package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
)

// Dataset file names, kept stable because downstream training scripts key on
// them.
const (
	GeneratedFile = "generated_car_damage_data.json"
	ManualFile    = "manual_car_damage_data.json"
	ArchiveName   = "car_damage_data.zip"
)

// Entry is one dataset row in the exported JSON files.
type Entry struct {
	Image   string `json:"image"`
	Caption string `json:"caption"`
}

// Entries splits reviewed captions into the generated and manual datasets.
// Every review contributes a generated entry; a manual entry exists only
// when the operator actually wrote a manual caption.
func Entries(captions []*models.Caption) (generated, manual []Entry) {
	generated = make([]Entry, 0, len(captions))
	manual = make([]Entry, 0)
	for _, c := range captions {
		generated = append(generated, Entry{Image: c.ImagePath, Caption: c.GeneratedCaption})
		if c.HasManual() {
			manual = append(manual, Entry{Image: c.ImagePath, Caption: c.ManualCaption})
		}
	}
	return generated, manual
}

// Archive writes a ZIP containing both dataset JSON files to w.
func Archive(w io.Writer, captions []*models.Caption) error {
	generated, manual := Entries(captions)

	zw := zip.NewWriter(w)
	if err := writeJSONFile(zw, GeneratedFile, generated); err != nil {
		return err
	}
	if err := writeJSONFile(zw, ManualFile, manual); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

func writeJSONFile(zw *zip.Writer, name string, v any) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s in archive: %w", name, err)
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
