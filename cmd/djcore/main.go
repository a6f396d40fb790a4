// CLI for driving the tempo/key engine from a recorded file and for
// hosting the monitor server, generalizing the teacher's analyze/serve
// cobra CLI.
package main

import (
	"fmt"
	"os"

	"github.com/nzoschke/djcore/cmd/djcore/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "djcore",
	Short: "Real-time tempo and key detection engine",
}

var listenCmd = &cobra.Command{
	Use:   "listen <file>",
	Short: "Feed a recorded audio file through the engine as if it were a live mic callback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bpmModel, _ := cmd.Flags().GetString("bpm-model")
		keyModel, _ := cmd.Flags().GetString("key-model")
		chunkMillis, _ := cmd.Flags().GetInt("chunk-ms")
		return cli.Listen(args[0], bpmModel, keyModel, chunkMillis)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the monitor HTTP/SSE server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		bpmModel, _ := cmd.Flags().GetString("bpm-model")
		keyModel, _ := cmd.Flags().GetString("key-model")
		return cli.Serve(addr, bpmModel, keyModel)
	},
}

func init() {
	listenCmd.Flags().String("bpm-model", "", "path to the beat/downbeat ONNX model")
	listenCmd.Flags().String("key-model", "", "path to the key classifier ONNX model")
	listenCmd.Flags().Int("chunk-ms", 100, "simulated mic callback chunk size in milliseconds")

	serveCmd.Flags().String("addr", ":8080", "listen address for the monitor server")
	serveCmd.Flags().String("bpm-model", "", "path to the beat/downbeat ONNX model")
	serveCmd.Flags().String("key-model", "", "path to the key classifier ONNX model")

	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
