package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crystal-viewer/internal/formats"
	"github.com/ziadkadry99/crystal-viewer/internal/progress"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
)

var (
	resolveURL       string
	resolveFormat    string
	resolveSupercell string
	resolveOutput    string
	resolveQuiet     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [query]",
	Short: "Resolve a structure once and print it",
	Long: `Resolves a structure exactly like the viewer does and prints it.

The structure can be given as a viewer query string, e.g.
  crystalviewer resolve '?structure-url=https://example.org/NaCl.cif&structure-format=cif'
or with flags. Flags override values from the query.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest(args)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("nothing to resolve: both a structure URL and a format are required")
		}
		if resolveOutput != "summary" && !formats.IsSupported(resolveOutput) {
			return fmt.Errorf("unsupported output %q", resolveOutput)
		}

		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		r := a.Resolver
		if !resolveQuiet {
			rep := progress.NewReporter(os.Stderr, "Downloading "+path.Base(req.StructureURL))
			defer rep.Finish()
			r = r.WithBodyHook(rep.Wrap)
		}

		res, err := r.ResolveRequest(cmd.Context(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resolveOutput == "summary" {
			_, err = fmt.Fprint(out, res.Structure.Summary())
			return err
		}
		data, err := formats.Write(resolveOutput, res.Structure)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	},
}

// buildRequest merges the optional query argument with the flags. It returns
// nil when the URL or format is still missing.
func buildRequest(args []string) (*resolver.Request, error) {
	values := url.Values{}
	if len(args) == 1 {
		// Undecodable pairs are skipped, as in the viewer.
		values, _ = url.ParseQuery(strings.TrimPrefix(args[0], "?"))
	}

	if resolveURL != "" {
		values.Set(resolver.ParamStructureURL, resolveURL)
	}
	if resolveFormat != "" {
		values.Set(resolver.ParamStructureFormat, resolveFormat)
	}
	if resolveSupercell != "" {
		values.Set(resolver.ParamSupercell, resolveSupercell)
	}
	return resolver.FromValues(values)
}

func init() {
	resolveCmd.Flags().StringVar(&resolveURL, "url", "", "URL of the structure file")
	resolveCmd.Flags().StringVar(&resolveFormat, "format", "", "format of the structure file (cif, poscar, json, yaml, xsf)")
	resolveCmd.Flags().StringVar(&resolveSupercell, "supercell", "", "supercell scaling x,y,z")
	resolveCmd.Flags().StringVarP(&resolveOutput, "output", "o", "summary", "output: summary, json, yaml, cif, poscar, xsf")
	resolveCmd.Flags().BoolVarP(&resolveQuiet, "quiet", "q", false, "hide the download progress bar")
	rootCmd.AddCommand(resolveCmd)
}
