package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mallhive/concierge/internal/config"
	"github.com/mallhive/concierge/internal/emotion"
	"github.com/mallhive/concierge/internal/led"
)

var ledText string

var ledCmd = &cobra.Command{
	Use:   "led",
	Short: "Poke the kiosk LED device service",
	Long: `Check and exercise the LED light ring during kiosk installs.

'led status' asks the device service whether the ring is present.
'led animate <emotion>' plays one animation; with no argument it cycles
through every emotion the persona can emit.
'led doa' returns the ring to direction-of-arrival idle mode.`,
}

func ledClient() (*led.Client, error) {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if !cfg.LED.Enabled() {
		return nil, fmt.Errorf("no LED service configured, set led.url (CONCIERGE_LED_URL)")
	}

	return led.New(cfg.LED.URL, cfg.LED.Timeout(), logger), nil
}

var ledStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show LED device service status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := ledClient()
		if err != nil {
			return err
		}

		st, err := client.DeviceStatus(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status:        %s\n", st.Status)
		fmt.Fprintf(out, "message:       %s\n", st.Message)
		fmt.Fprintf(out, "usb_available: %v\n", st.USBAvailable)
		fmt.Fprintf(out, "device_found:  %v\n", st.DeviceFound)
		if st.Ready() {
			fmt.Fprintln(out, "\nLight ring is ready.")
		} else {
			fmt.Fprintln(out, "\nLight ring is NOT ready.")
		}
		return nil
	},
}

var ledAnimateCmd = &cobra.Command{
	Use:   "animate [emotion]",
	Short: "Play one emotion animation, or cycle through all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ledClient()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		if len(args) == 1 {
			label := emotion.Label(args[0])
			if !label.Valid() {
				return fmt.Errorf("unknown emotion %q, valid: %v", args[0], emotion.Persona())
			}
			fmt.Fprintf(out, "animating %s (#%06x)\n", label, label.Color())
			return client.Animate(cmd.Context(), label, ledText)
		}

		for _, label := range emotion.Persona() {
			fmt.Fprintf(out, "animating %s (#%06x)\n", label, label.Color())
			if err := client.Animate(cmd.Context(), label, ledText); err != nil {
				return err
			}
			time.Sleep(1200 * time.Millisecond)
		}
		return nil
	},
}

var ledDOACmd = &cobra.Command{
	Use:   "doa",
	Short: "Return the ring to direction-of-arrival idle mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := ledClient()
		if err != nil {
			return err
		}
		if err := client.ReturnToDOA(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Ring back in DOA mode.")
		return nil
	},
}

func init() {
	ledAnimateCmd.Flags().StringVar(&ledText, "text", "", "text to log alongside the animation")
	ledCmd.AddCommand(ledStatusCmd)
	ledCmd.AddCommand(ledAnimateCmd)
	ledCmd.AddCommand(ledDOACmd)
	rootCmd.AddCommand(ledCmd)
}
