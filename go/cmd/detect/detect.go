package detect

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lunixbochs/objimage/go/cmd"
	"github.com/lunixbochs/objimage/go/loader"
	"github.com/lunixbochs/objimage/go/models"
)

func detectFile(path string) (models.Format, error) {
	data, err := cmd.ReadInput(path)
	if err != nil {
		return models.FormatUnknown, err
	}
	return loader.Detect(data)
}

func newCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "detect FILE...",
		Short: "Print the container format of each file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				format, err := detectFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %s (%v)\n", path, format, err)
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", path, format)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d files not recognized", failed, len(args))
			}
			return nil
		},
	}
}

func init() {
	cmd.Register(newCommand(os.Stdout))
}
