package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/kalambet/prowler/internal/postcode"
	"github.com/kalambet/prowler/internal/preferences"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const notAvailable = "N/A"

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(w io.Writer, label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(w, "  %s %s\n", l, val)
}

// accent returns the heading colour for theme.
func accent(theme string) string {
	if theme == preferences.Light {
		return colorBlue
	}
	return colorCyan
}

func badge(label string) string {
	color := colorGreen
	switch label {
	case "Terminated":
		color = colorYellow
	case "Error":
		color = colorRed
	}
	return colorize(color+colorBold, "["+label+"]")
}

// renderResult writes the Status, Geography, Administrative, Codes and
// Boundary cards for r.
func renderResult(w io.Writer, r postcode.LookupResult, theme string) {
	heading := func(title string) {
		fmt.Fprintf(w, "\n%s\n", colorize(accent(theme)+colorBold, title))
	}

	heading("Status")
	pc := notAvailable
	if r.ASF != nil {
		pc = r.ASF.Postcode
	}
	fmt.Fprintf(w, "  %s %s\n", colorize(colorBold, pc), badge(r.StatusLabel()))
	if !r.Found() {
		printStatus(w, "Error", "%s", orNA(r.FailureMessage()))
		return
	}
	printStatus(w, "Area", "%s", orNA(r.ASF.AreaName))
	printStatus(w, "Effective", "%s to %s", orNA(r.ASF.EffectiveFrom), orNA(r.ASF.EffectiveTo))
	printStatus(w, "Source", "%s", orNA(r.ASF.SourceName))
	if r.APISource != "" {
		printStatus(w, "API source", "%s", r.APISource)
	}

	geo := r.APIData
	if geo == nil {
		return
	}

	heading("Geography")
	printStatus(w, "Country", "%s", orNA(geo.Country))
	printStatus(w, "Region", "%s", orNA(geo.Region))
	printStatus(w, "Coordinates", "%s", geo.Coordinates())
	printStatus(w, "Terminated", "%s", geo.TerminationDate())
	printStatus(w, "Eastings", "%s", intOrNA(geo.Eastings))
	printStatus(w, "Northings", "%s", intOrNA(geo.Northings))
	printStatus(w, "Incode", "%s", orNA(geo.Incode))
	printStatus(w, "Outcode", "%s", orNA(geo.Outcode))

	heading("Administrative")
	printStatus(w, "District", "%s", orNA(geo.AdminDistrict))
	printStatus(w, "Ward", "%s", orNA(geo.AdminWard))
	printStatus(w, "Constituency", "%s", orNA(geo.ParliamentaryConstituency))
	if geo.ParliamentaryConstituency2024 != "" {
		printStatus(w, "Constituency (2024)", "%s", geo.ParliamentaryConstituency2024)
	}
	printStatus(w, "Parish", "%s", orNA(geo.Parish))
	printStatus(w, "County", "%s", strPtrOrNA(geo.AdminCounty))
	printStatus(w, "County division", "%s", strPtrOrNA(geo.CED))
	printStatus(w, "NHS authority", "%s", orNA(geo.NHSHA))
	printStatus(w, "CCG", "%s", orNA(geo.CCG))
	printStatus(w, "Police force", "%s", orNA(geo.PFA))
	printStatus(w, "European region", "%s", orNA(geo.EuropeanElectoralRegion))

	if len(geo.Codes) > 0 {
		heading("Codes")
		names := make([]string, 0, len(geo.Codes))
		for name := range geo.Codes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			code := geo.Codes[name]
			if link, ok := postcode.ONSLink(code); ok {
				printStatus(w, name, "%s (%s)", code, link)
			} else {
				printStatus(w, name, "%s", code)
			}
		}
	}

	heading("Boundary")
	if fc := geo.DistrictBoundary; fc != nil {
		printStatus(w, "Features", "%d", len(fc.Features))
		printStatus(w, "Points", "%d", fc.PointCount())
	} else {
		printStatus(w, "Features", "%s", notAvailable)
	}
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func strPtrOrNA(s *string) string {
	if s == nil {
		return notAvailable
	}
	return orNA(*s)
}

func intOrNA(n *int) string {
	if n == nil {
		return notAvailable
	}
	return strconv.Itoa(*n)
}
