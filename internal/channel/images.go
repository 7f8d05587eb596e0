package channel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var imageMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// NextImage picks the next image from dir in filename order, resuming
// after the file named in the marker and wrapping around at the end. The
// chosen filename is written back to the marker before returning. An
// absent directory or one without images yields nil without error.
func NextImage(dir, markerPath string) (*ImageAttachment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read image dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := imageMimes[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	next := names[0]
	if last, err := os.ReadFile(markerPath); err == nil {
		lastName := strings.TrimSpace(string(last))
		for i, n := range names {
			if n == lastName {
				next = names[(i+1)%len(names)]
				break
			}
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, next))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", next, err)
	}
	if err := os.WriteFile(markerPath, []byte(next), 0644); err != nil {
		return nil, fmt.Errorf("write image marker: %w", err)
	}
	return &ImageAttachment{
		Data: data,
		Mime: imageMimes[strings.ToLower(filepath.Ext(next))],
		Alt:  "Daily poem illustration",
	}, nil
}
