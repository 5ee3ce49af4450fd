package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/pkg/ml/datasets"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
)

// newPlainTable creates a table with alternating row styles. The alignments are given per column,
// and the last one is used for any extra columns.
func newPlainTable(alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

// summaryTable lists the number of images per class of the training (and evaluation) datasets.
func summaryTable(dataDir string, trainDS, evalDS *datasets.DirectoryDataset) string {
	table := newPlainTable(lipgloss.Left, lipgloss.Right)
	headers := []string{"Class", trainDS.Name()}
	if evalDS != nil {
		headers = append(headers, evalDS.Name())
	}
	table.Headers(headers...)
	for ii, className := range trainDS.ClassNames() {
		row := []string{className, humanize.Comma(int64(trainDS.ClassCounts()[ii]))}
		if evalDS != nil {
			row = append(row, humanize.Comma(int64(evalDS.ClassCounts()[ii])))
		}
		table.Row(row...)
	}
	row := []string{"Total", humanize.Comma(int64(trainDS.NumExamples()))}
	if evalDS != nil {
		row = append(row, humanize.Comma(int64(evalDS.NumExamples())))
	}
	table.Row(row...)
	title := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Images in %q", dataDir))
	return lipgloss.JoinVertical(lipgloss.Left, title, table.Render())
}

// throughputTable formats the throughput reports.
func throughputTable(reports []throughputReport) string {
	table := newPlainTable(lipgloss.Left, lipgloss.Center, lipgloss.Right)
	table.Headers("Dataset", "Batch shape", "# batches", "# images", "Bytes", "Elapsed", "Images/s")
	for _, report := range reports {
		var perSecond float64
		if report.elapsed > 0 {
			perSecond = float64(report.numExamples) / report.elapsed.Seconds()
		}
		table.Row(
			report.name,
			report.batchShape,
			humanize.Comma(int64(report.numBatches)),
			humanize.Comma(int64(report.numExamples)),
			humanize.Bytes(uint64(report.numBytes)),
			report.elapsed.Round(time.Millisecond).String(),
			humanize.CommafWithDigits(perSecond, 1),
		)
	}
	return table.Render()
}
