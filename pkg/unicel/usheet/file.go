package usheet

import (
	"fmt"
	"os"

	"github.com/jacksodj/unicel-sub000/pkg/unicel"
)

// Save writes a workbook to path as an indented .usheet document.
func Save(wb *unicel.Workbook, path string) error {
	data, err := Encode(wb, true)
	if err != nil {
		return fmt.Errorf("encode workbook: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads a .usheet document from path.
func Load(path string, opts ...unicel.Option) (*unicel.Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	wb, err := Decode(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return wb, nil
}
