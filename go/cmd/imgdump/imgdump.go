package imgdump

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lunixbochs/objimage/go/cmd"
	"github.com/lunixbochs/objimage/go/loader"
	"github.com/lunixbochs/objimage/go/logging"
	"github.com/lunixbochs/objimage/go/models"
)

type flags struct {
	segments, symbols, sections bool
	json                        bool
	sort                        string
	jobs                        int
	lookup                      []string
	addrs                       []string
}

type result struct {
	path string
	img  *models.Image
	err  error
}

func newCommand(out io.Writer) *cobra.Command {
	f := &flags{}
	c := &cobra.Command{
		Use:     "imgdump [flags] FILE...",
		Short:   "Dump the segments, symbols and sections of object files",
		Example: "imgdump --symbols --sort name bins/x86_64.linux.elf",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return run(c, f, args, out)
		},
	}
	addFlags(c.Flags(), f)
	return c
}

func addFlags(fs *pflag.FlagSet, f *flags) {
	fs.BoolVar(&f.segments, "segments", false, "print loaded segments")
	fs.BoolVar(&f.symbols, "symbols", false, "print symbols")
	fs.BoolVar(&f.sections, "sections", false, "print section table")
	fs.BoolVar(&f.json, "json", false, "print JSON instead of tables")
	fs.StringVar(&f.sort, "sort", "", "symbol and section order: addr or name")
	fs.IntVarP(&f.jobs, "jobs", "j", 0, "files to parse in parallel")
	fs.StringSliceVar(&f.lookup, "lookup", nil, "look up symbols by name")
	fs.StringSliceVar(&f.addrs, "addr", nil, "symbolicate addresses")
}

func init() {
	cmd.Register(newCommand(os.Stdout))
}

// options merges flags over the loaded config.
// tables lists the tables picked by flag, in render order.
func (f *flags) tables() []string {
	var out []string
	for _, t := range []struct {
		name string
		on   bool
	}{{"segments", f.segments}, {"symbols", f.symbols}, {"sections", f.sections}} {
		if t.on {
			out = append(out, t.name)
		}
	}
	return out
}

func options(c *cobra.Command, f *flags, out io.Writer) (*dumpOptions, int, error) {
	conf := *cmd.Config()
	if c.Flags().Changed("sort") {
		conf.Sort = f.sort
	}
	if c.Flags().Changed("jobs") {
		conf.Jobs = f.jobs
	}
	if c.Flags().Changed("json") {
		conf.JSON = f.json
	}
	if tables := f.tables(); len(tables) > 0 {
		conf.Sections = tables
	}
	if err := conf.Validate(); err != nil {
		return nil, 0, err
	}
	o := &dumpOptions{tables: conf.Sections, sort: conf.Sort, json: conf.JSON}
	switch conf.Color {
	case "always":
		o.color = true
	case "auto":
		if file, ok := out.(*os.File); ok {
			o.color = isatty.IsTerminal(file.Fd())
		}
	}
	return o, conf.Jobs, nil
}

func parseFile(path string) (*models.Image, error) {
	data, err := cmd.ReadInput(path)
	if err != nil {
		return nil, err
	}
	logging.Debugf("%s: read %d bytes", path, len(data))
	img, err := loader.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	logging.Infof("%s: %s %s, %d segments, %d symbols", path, img.Format(), img.Arch(), len(img.Segments()), len(img.Symbols()))
	return img, nil
}

func run(c *cobra.Command, f *flags, paths []string, out io.Writer) error {
	o, jobs, err := options(c, f, out)
	if err != nil {
		return err
	}
	addrs := make([]uint64, 0, len(f.addrs))
	for _, s := range f.addrs {
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return errors.Wrapf(err, "bad address %q", s)
		}
		addrs = append(addrs, v)
	}

	results := parseAll(paths, jobs)
	// errors are gathered serially so they stay in argument order
	var merr *multierror.Error
	var images []*jsonImage
	for _, r := range results {
		if r.err != nil {
			logging.Errorf("%v", r.err)
			merr = multierror.Append(merr, r.err)
			continue
		}
		if o.json {
			images = append(images, toJSON(r.path, r.img, o))
			continue
		}
		renderText(out, r.path, r.img, o)
		query(out, r.img, f.lookup, addrs)
	}
	if o.json {
		if err := renderJSON(out, images); err != nil {
			return errors.Wrap(err, "failed to encode json")
		}
	}
	return merr.ErrorOrNil()
}

// parseAll parses up to jobs files at once. One bad file does not stop the others.
func parseAll(paths []string, jobs int) []*result {
	results := make([]*result, len(paths))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			img, err := parseFile(path)
			results[i] = &result{path: path, img: img, err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// query answers --lookup and --addr against one image.
func query(w io.Writer, img *models.Image, names []string, addrs []uint64) {
	for _, name := range names {
		if sym, ok := img.SymbolLookup(name); ok {
			fmt.Fprintf(w, "%s = %#x (%s, size %#x)\n", name, sym.Addr, sym.Kind, sym.Size)
			continue
		}
		fmt.Fprintf(w, "%s: not found", name)
		if hints := suggest(img, name); len(hints) > 0 {
			fmt.Fprintf(w, ", did you mean %v?", hints)
		}
		fmt.Fprintln(w)
	}
	for _, addr := range addrs {
		if sym, dist, ok := img.Symbolicate(addr); ok {
			fmt.Fprintf(w, "%#x = %s+%#x\n", addr, sym.Name, dist)
		} else {
			fmt.Fprintf(w, "%#x: no symbol\n", addr)
		}
	}
}

const maxSuggestions = 3

func suggest(img *models.Image, name string) []string {
	syms := img.Symbols()
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	ranks := fuzzy.RankFindFold(name, names)
	sort.Sort(ranks)
	var ret []string
	seen := make(map[string]bool)
	for _, r := range ranks {
		if len(ret) == maxSuggestions {
			break
		}
		if !seen[r.Target] {
			seen[r.Target] = true
			ret = append(ret, r.Target)
		}
	}
	return ret
}
