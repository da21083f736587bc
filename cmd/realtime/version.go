package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Thejuampi/realtime-client-go/realtime"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(realtime.Version)
				return
			}

			fmt.Printf("  Version:    %s\n", realtime.Version)
			fmt.Printf("  Protocol:   %s\n", realtime.ProtocolVersion)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Built:      %s\n", date)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
