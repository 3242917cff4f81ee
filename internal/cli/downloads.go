package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hardcoding/fbxgrab/internal/download"
	"github.com/hardcoding/fbxgrab/internal/events"
)

func newDownloadsCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "downloads",
		Short: "List the device download queue",
		Long: `Lists the device download queue. With --watch, keeps polling and
prints the ETA badge the way the toolbar button shows it, speeding up as
downloads near completion and backing off when the queue is idle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if err := a.sessions.Connect(ctx); err != nil {
				return err
			}

			tasks, err := a.dispatcher.List(ctx)
			if err != nil {
				return err
			}
			printTasks(tasks)

			if !watch {
				return nil
			}

			badgeCh := a.bus.Subscribe(events.EventBadge)
			go func() {
				for ev := range badgeCh {
					badge, ok := ev.(*events.BadgeEvent)
					if !ok {
						continue
					}
					if badge.Text == "" {
						fmt.Printf("badge: (idle), next poll in %s\n", badge.Interval)
					} else {
						fmt.Printf("badge: %s, next poll in %s\n", badge.Text, badge.Interval)
					}
				}
			}()

			poller := download.NewBadgePoller(a.dispatcher, a.bus, a.logger)
			return poller.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling and print the ETA badge")

	return cmd
}

func printTasks(tasks []download.Task) {
	if len(tasks) == 0 {
		fmt.Println("No downloads.")
		return
	}
	for _, task := range tasks {
		if task.Status == download.StatusDownloading {
			fmt.Printf("%8d  %-12s  eta %-6s  %s\n", task.ID, task.Status, download.BadgeText(task.ETA), task.Name)
		} else {
			fmt.Printf("%8d  %-12s  %s\n", task.ID, task.Status, task.Name)
		}
	}
}
