package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

type styleKind int

const (
	kindCell styleKind = iota
	kindWrap
	kindHeader
	kindTitle
	kindWaku
)

const (
	borderThin   = 1
	borderMedium = 2
)

// styleKey describes one cell format. Edge flags select a medium border
// on that side, thin otherwise.
type styleKey struct {
	kind                     styleKind
	top, bottom, left, right bool
	bg, font                 string
}

// styleCache creates each distinct format once per workbook.
type styleCache struct {
	file *excelize.File
	ids  map[styleKey]int
}

func newStyleCache(f *excelize.File) *styleCache {
	return &styleCache{file: f, ids: make(map[styleKey]int)}
}

func (c *styleCache) get(key styleKey) (int, error) {
	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	id, err := c.file.NewStyle(buildStyle(key))
	if err != nil {
		return 0, fmt.Errorf("create style: %w", err)
	}
	c.ids[key] = id
	return id, nil
}

func (c *styleCache) size() int {
	return len(c.ids)
}

func edge(side string, medium bool) excelize.Border {
	style := borderThin
	if medium {
		style = borderMedium
	}
	return excelize.Border{Type: side, Color: "#000000", Style: style}
}

func fill(color string) excelize.Fill {
	return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
}

func buildStyle(key styleKey) *excelize.Style {
	s := &excelize.Style{
		Border: []excelize.Border{
			edge("top", key.top),
			edge("bottom", key.bottom),
			edge("left", key.left),
			edge("right", key.right),
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
			WrapText:   key.kind == kindWrap,
		},
		Font: &excelize.Font{Size: 12},
	}

	switch key.kind {
	case kindHeader:
		s.Font = &excelize.Font{Bold: true, Size: 14}
		s.Fill = fill("#eeeeee")
	case kindTitle:
		s.Font = &excelize.Font{Bold: true, Size: 14}
		s.Fill = fill("#fffbe6")
	case kindWaku:
		bg := key.bg
		if bg == "" {
			bg = "#ffffff"
		}
		s.Fill = fill(bg)
		if key.font != "" {
			s.Font = &excelize.Font{Size: 12, Color: key.font}
		}
	}
	return s
}
