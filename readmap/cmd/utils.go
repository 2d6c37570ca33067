// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"

	"github.com/shenwei356/ReadMap/readmap/asearch"
	"github.com/spf13/cobra"
)

var utilsCmd = &cobra.Command{
	Use:   "utils",
	Short: "Some utilities",
	Long: `Some utilities

`,
}

var stateGraphCmd = &cobra.Command{
	Use:   "state-graph",
	Short: "Export the state graph of a mapping mode in DOT format",
	Long: `Export the state graph of a mapping mode in DOT format

Example:
  readmap utils state-graph -M match | dot -Tpng > match.png

`,
	Run: func(cmd *cobra.Command, args []string) {
		v := getFlagString(cmd, "mode")
		mode, ok := asearch.ParseMappingMode(v)
		if !ok {
			checkError(fmt.Errorf("invalid value of flag --mode: %s", v))
		}

		dot, err := asearch.StateGraph(mode)
		checkError(err)
		fmt.Print(dot)
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Print search parameters in TOML format",
	Long: `Print search parameters in TOML format

The output can be edited and used in "readmap map -c".

`,
	Run: func(cmd *cobra.Command, args []string) {
		params := asearch.NewParameters()
		if file := expandPath(getFlagString(cmd, "config")); file != "" {
			var err error
			params, err = asearch.LoadParameters(file)
			checkError(err)
		}
		checkError(params.WriteTOML(os.Stdout))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information

`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("readmap v%s\n", VERSION)
	},
}

func init() {
	RootCmd.AddCommand(utilsCmd)
	RootCmd.AddCommand(versionCmd)

	utilsCmd.AddCommand(stateGraphCmd)
	stateGraphCmd.Flags().StringP("mode", "M", "fast",
		formatFlagUsage(`Mapping mode: fast, match, complete.`))

	utilsCmd.AddCommand(paramsCmd)
	paramsCmd.Flags().StringP("config", "c", "",
		formatFlagUsage(`TOML file of search parameters, values missing in the file keep the defaults.`))
}
