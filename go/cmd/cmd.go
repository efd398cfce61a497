package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lunixbochs/objimage/go/logging"
	"github.com/lunixbochs/objimage/go/models"
)

// snappy framing format stream identifier
var snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError prints an error, and a stacktrace if available.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error: %s\n", err)
	st, ok := err.(stackTracer)
	if !ok {
		return
	}
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range st.StackTrace() {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	// calculate column widths
	widths := make([]int, 2)
	for _, f := range frames {
		for i, s := range f[:2] {
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if widths[i] > 0 {
				pad := strings.Repeat(" ", widths[i]-len(f[i]))
				fmt.Fprintf(w, "%s%s | ", f[i], pad)
			}
		}
		fmt.Fprintf(w, "%s()\n", f[2])
	}
}

// ReadInput reads a whole object file, unwrapping snappy framing if present.
// A path of "-" reads stdin.
func ReadInput(path string) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open input")
		}
		defer f.Close()
		r = f
	}
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(snappyMagic)); bytes.Equal(head, snappyMagic) {
		logging.Debugf("%s: decoding snappy stream", path)
		r = snappy.NewReader(br)
	} else {
		r = br
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return data, nil
}

var (
	root       *cobra.Command
	configPath string
	verbosity  int
	colorMode  string
	config     *models.Config
)

func init() {
	root = &cobra.Command{
		Use:           "objimage",
		Short:         "Inspect ELF, Mach-O and PE object files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default: imgdump.yaml in the user config dir)")
	flags.CountVarP(&verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	flags.StringVar(&colorMode, "color", "", "colorize output: auto, always or never")
}

func setup(cmd *cobra.Command) error {
	c, err := models.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("color") {
		c.Color = colorMode
	}
	c.Verbose += verbosity
	if err := c.Validate(); err != nil {
		return err
	}
	logging.SetLevel(c.Verbose)
	switch c.Color {
	case "always":
		logging.SetColor(true)
	case "never":
		logging.SetColor(false)
	}
	config = c
	return nil
}

// Config returns the loaded configuration. Only valid inside a command's Run.
func Config() *models.Config {
	if config == nil {
		return models.DefaultConfig()
	}
	return config
}

// Register adds a subcommand to the launcher.
func Register(c *cobra.Command) {
	root.AddCommand(c)
}

func Main() {
	if err := root.Execute(); err != nil {
		if logging.Level() >= logging.LevelDebug {
			PrintError(os.Stderr, err)
		} else {
			logging.Errorf("%v", err)
		}
		os.Exit(1)
	}
}
