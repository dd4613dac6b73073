package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/smazurov/framegrab/internal/devices"
	"github.com/smazurov/framegrab/internal/logging"
	"github.com/smazurov/framegrab/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// CreateListCmd creates the list-devices command.
func CreateListCmd() *cobra.Command {
	var showFormats bool

	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List V4L2 capture devices",
		Long:  `Scans /dev/video* and lists every device that supports memory-mapped video capture.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			found, err := devices.Scan()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error scanning devices: %v\n", err)
				os.Exit(1)
			}

			if len(found) == 0 {
				fmt.Println("No V4L2 capture devices found.")
				return
			}

			fmt.Printf("Found %d V4L2 capture devices:\n", len(found))
			for i, dev := range found {
				fmt.Printf("%d. Device Path: %s\n", i+1, dev.DevicePath)
				fmt.Printf("   Device Name: %s\n", dev.DeviceName)
				fmt.Printf("   Device ID: %s\n", dev.DeviceId)
				if showFormats {
					names := make([]string, 0, len(dev.Formats))
					for _, pix := range dev.Formats {
						names = append(names, v4l2.FourCC(pix))
					}
					fmt.Printf("   Formats: %s\n", strings.Join(names, ", "))
				}
				fmt.Println()
			}
		},
	}

	cmd.Flags().BoolVarP(&showFormats, "formats", "f", false, "Show supported pixel formats per device")

	return cmd
}
