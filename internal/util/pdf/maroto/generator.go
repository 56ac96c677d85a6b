package maroto

import (
	"fmt"

	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"
)

// Table is a titled grid of text cells.
type Table struct {
	Title    string
	Subtitle string
	Header   []string
	Rows     [][]string
}

// GenerateTablePDF renders the table on A4 landscape pages.
func GenerateTablePDF(t Table) ([]byte, error) {
	m := pdf.NewMaroto(consts.Landscape, consts.A4)
	m.SetBorder(false)

	titleHeight := 10.0
	subtitleHeight := 8.0

	if t.Title != "" {
		m.Row(titleHeight, func() {
			m.Col(12, func() {
				m.Text(t.Title, props.Text{Size: 14, Style: consts.Bold, Align: consts.Left})
			})
		})
	}
	if t.Subtitle != "" {
		m.Row(subtitleHeight, func() {
			m.Col(12, func() {
				m.Text(t.Subtitle, props.Text{Size: 9, Align: consts.Left})
			})
		})
	}

	if len(t.Rows) > 0 {
		m.TableList(t.Header, t.Rows)
	}

	buf, err := m.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to generate output: %w", err)
	}

	return buf.Bytes(), nil
}
