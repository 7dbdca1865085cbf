/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/blacktop/mxsym/internal/colors"
	"github.com/blacktop/mxsym/internal/config"
	"github.com/blacktop/mxsym/pkg/xcode"
	perrors "github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(rootsCmd)

	rootsCmd.Flags().String("os-version", "", "Only list folders for this OS version, best match first")
	rootsCmd.Flags().String("device-model", "", "Device model used to rank folders (e.g. iPhone15,2)")
	rootsCmd.Flags().BoolP("all", "a", false, "With --os-version, also list the folders that do not match")
	viper.BindPFlag("roots.os-version", rootsCmd.Flags().Lookup("os-version"))
	viper.BindPFlag("roots.device-model", rootsCmd.Flags().Lookup("device-model"))
	viper.BindPFlag("roots.all", rootsCmd.Flags().Lookup("all"))
}

// rootsCmd represents the roots command
var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "List device support folders searched for system symbols",
	Example: heredoc.Doc(`
		# List every device support folder
		❯ mxsym roots

		# Show the folders a report from an iPhone15,2 on 17.1 would use, in search order
		❯ mxsym roots --os-version 17.1 --device-model iPhone15,2
	`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		conf, err := config.LoadConfig()
		if err != nil {
			return err
		}

		folders, err := xcode.ListDeviceSupport(conf.DeviceSupport)
		if err != nil {
			return perrors.Wrapf(err, "failed to list device support folders in %s", conf.DeviceSupport)
		}

		if osVersion := viper.GetString("roots.os-version"); osVersion != "" {
			folders = xcode.SelectRoots(folders, xcode.Query{
				OSVersion:   osVersion,
				DeviceModel: viper.GetString("roots.device-model"),
				All:         viper.GetBool("roots.all"),
			})
		}

		if len(folders) == 0 {
			log.Warnf("No device support folders found in %s", conf.DeviceSupport)
			return nil
		}

		header := colors.Bold().SprintFunc()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", header("MODEL"), header("VERSION"), header("BUILD"), header("SYMBOLS"))
		for _, ds := range folders {
			ver := "?"
			if ds.Version != nil {
				ver = ds.Version.Original()
			}
			model := ds.Model
			if model == "" {
				model = "-"
			}
			build := ds.Build
			if build == "" {
				build = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", model, ver, build, ds.SymbolsPath())
		}
		return w.Flush()
	},
}
