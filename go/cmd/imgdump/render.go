package imgdump

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lunixbochs/fvbommel-util/sortorder"
	"github.com/olekukonko/tablewriter"

	"github.com/lunixbochs/objimage/go/models"
)

type dumpOptions struct {
	tables []string
	sort   string
	json   bool
	color  bool
}

func (o *dumpOptions) want(table string) bool {
	for _, t := range o.tables {
		if t == table {
			return true
		}
	}
	return false
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

func buildTable(w io.Writer, header []string, rows [][]string, color bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	if color {
		colors := make([]tablewriter.Colors, len(header))
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor}
		}
		table.SetHeaderColor(colors...)
	}
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
}

func sortSymbols(syms []models.Symbol, order string) {
	switch order {
	case "name":
		sort.SliceStable(syms, func(i, j int) bool { return sortorder.NaturalLess(syms[i].Name, syms[j].Name) })
	default:
		sort.SliceStable(syms, func(i, j int) bool { return syms[i].Addr < syms[j].Addr })
	}
}

func sortSections(secs []models.Section, order string) {
	switch order {
	case "name":
		sort.SliceStable(secs, func(i, j int) bool { return sortorder.NaturalLess(secs[i].Name, secs[j].Name) })
	default:
		sort.SliceStable(secs, func(i, j int) bool { return secs[i].Addr < secs[j].Addr })
	}
}

// renderText writes a header line followed by the requested tables.
func renderText(w io.Writer, path string, img *models.Image, o *dumpOptions) {
	fmt.Fprintf(w, "%s: %s %s entry=%#x\n", path, img.Format(), img.Arch(), img.Entry())
	if o.want("segments") {
		var rows [][]string
		for _, s := range img.Segments() {
			rows = append(rows, []string{s.Name, hex(s.Offset), hex(s.Addr), hex(s.Size), s.Prot()})
		}
		fmt.Fprintf(w, "\nSegments (%d)\n", len(rows))
		buildTable(w, []string{"name", "offset", "addr", "size", "prot"}, rows, o.color)
	}
	if o.want("sections") {
		secs := img.Sections()
		sortSections(secs, o.sort)
		var rows [][]string
		for _, s := range secs {
			rows = append(rows, []string{s.Name, hex(s.Addr), hex(s.Size)})
		}
		fmt.Fprintf(w, "\nSections (%d)\n", len(rows))
		buildTable(w, []string{"name", "addr", "size"}, rows, o.color)
	}
	if o.want("symbols") {
		syms := img.Symbols()
		sortSymbols(syms, o.sort)
		var rows [][]string
		for _, s := range syms {
			rows = append(rows, []string{s.Name, s.Kind.String(), hex(s.Addr), hex(s.Size)})
		}
		fmt.Fprintf(w, "\nSymbols (%d)\n", len(rows))
		buildTable(w, []string{"name", "kind", "addr", "size"}, rows, o.color)
	}
	fmt.Fprintln(w, strings.Repeat("=", 40))
}

type jsonImage struct {
	Path     string           `json:"path"`
	Format   models.Format    `json:"format"`
	Arch     models.Arch      `json:"arch"`
	Entry    uint64           `json:"entry"`
	Segments []models.Segment `json:"segments,omitempty"`
	Sections []models.Section `json:"sections,omitempty"`
	Symbols  []models.Symbol  `json:"symbols,omitempty"`
}

func toJSON(path string, img *models.Image, o *dumpOptions) *jsonImage {
	out := &jsonImage{Path: path, Format: img.Format(), Arch: img.Arch(), Entry: img.Entry()}
	if o.want("segments") {
		out.Segments = img.Segments()
	}
	if o.want("sections") {
		out.Sections = img.Sections()
		sortSections(out.Sections, o.sort)
	}
	if o.want("symbols") {
		out.Symbols = img.Symbols()
		sortSymbols(out.Symbols, o.sort)
	}
	return out
}

func renderJSON(w io.Writer, images []*jsonImage) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(images)
}
