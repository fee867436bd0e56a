package common

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	runStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Status renders a run, stage or availability status with its color
func Status(s string) string {
	switch s {
	case "succeeded", "completed", "available", "OK":
		return okStyle.Render(s)
	case "failed", "unavailable", "FAILED":
		return failStyle.Render(s)
	case "running", "NEEDS_CHANGES":
		return runStyle.Render(s)
	default:
		return s
	}
}

// Dim renders secondary text
func Dim(s string) string {
	return dimStyle.Render(s)
}

// RenderTable writes rows under headers as a bordered table
func RenderTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}
