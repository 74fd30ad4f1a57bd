package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/shelfcache/pkg/books"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - links
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Styles
// =============================================================================

var (
	StyleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	StyleLink    = lipgloss.NewStyle().Foreground(colorBlue).Underline(true)
	StyleDim     = lipgloss.NewStyle().Foreground(colorDim)
	StyleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	StyleNumber  = lipgloss.NewStyle().Foreground(colorCyan)
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)
	styleKey         = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleHeader      = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleCell        = lipgloss.NewStyle().Padding(0, 1)

	stateStyles = map[tiered.State]lipgloss.Style{
		tiered.StateFresh:   lipgloss.NewStyle().Foreground(colorGreen),
		tiered.StateStale:   lipgloss.NewStyle().Foreground(colorYellow),
		tiered.StatePending: lipgloss.NewStyle().Foreground(colorGray),
	}
)

// headerRow is the row index lipgloss tables pass to StyleFunc for headers.
const headerRow = -1

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
)

// =============================================================================
// Status Output
// =============================================================================

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+fmt.Sprintf(format, args...))
}

func printKeyValue(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintln(w, styleKey.Render(key)+" "+StyleValue.Render(value))
}

// printState prints the cache state and age line under a result.
func printState[T any](w io.Writer, r tiered.Result[T]) {
	line := stateStyles[r.State].Render(string(r.State))
	if !r.FetchedAt.IsZero() {
		line += StyleDim.Render(" · fetched " + r.FetchedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, "  "+line)
}

// =============================================================================
// Results
// =============================================================================

// printBooks renders the trending list as a table.
func printBooks(w io.Writer, list []books.Book) {
	rows := make([][]string, 0, len(list))
	for i, b := range list {
		year := ""
		if b.ReleaseYear > 0 {
			year = strconv.Itoa(b.ReleaseYear)
		}
		rating := ""
		if b.Rating > 0 {
			rating = strconv.FormatFloat(b.Rating, 'f', 2, 64)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			b.Title,
			strings.Join(b.Authors, ", "),
			year,
			rating,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(StyleDim).
		Headers("#", "TITLE", "AUTHORS", "YEAR", "RATING").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == headerRow:
				return styleHeader
			case col == 0 || col == 4:
				return styleCell.Foreground(colorCyan)
			default:
				return styleCell
			}
		})
	fmt.Fprintln(w, t.Render())
}

func printAuthor(w io.Writer, a books.Author) {
	fmt.Fprintln(w, StyleTitle.Render(a.Name))
	printKeyValue(w, "Key", a.Key)
	life := a.BirthDate
	if a.DeathDate != "" {
		life += " – " + a.DeathDate
	}
	printKeyValue(w, "Lived", life)
	printKeyValue(w, "Top work", a.TopWork)
	if a.WorkCount > 0 {
		printKeyValue(w, "Works", StyleNumber.Render(strconv.Itoa(a.WorkCount)))
	}
	if a.PhotoURL != "" {
		printKeyValue(w, "Photo", StyleLink.Render(a.PhotoURL))
	}
	if a.Bio != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, lipgloss.NewStyle().Width(80).Render(a.Bio))
	}
}
