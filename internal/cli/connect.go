package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/events"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Discover the device, authorize the application and open a session",
		Long: `Runs the whole connection sequence: device discovery, application
authorization (first run asks the owner to grant access on the device's
front panel), track polling, login and session opening. The credential
is persisted, so subsequent runs connect without a new grant.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			// Render the connection indicator while the machine runs.
			statusCh := a.bus.Subscribe(events.EventStatus)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range statusCh {
					status, ok := ev.(*events.StatusEvent)
					if !ok {
						continue
					}
					fmt.Printf("[%d/%d] %-7s %s\n", status.Step, status.LastStep, status.Severity, status.Message)
				}
			}()

			err = a.sessions.Connect(cmd.Context())
			a.bus.Close()
			<-done
			if err != nil {
				return err
			}

			fmt.Printf("State: %s\n", a.sessions.State())
			return nil
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Print the device downloader application URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Println(a.cfg.Device.DiscoveryURL + "/#Fbx.os.app.downloader.app")
			return nil
		},
	}
}
