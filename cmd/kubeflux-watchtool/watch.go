package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/hashmap-kz/kubeflux"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	var resyncFailureMax int

	cmd := &cobra.Command{
		Use:   "watch <kind>",
		Short: "Tail ADDED/MODIFIED/DELETED events for a kind until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.newClient()
			if err != nil {
				return err
			}

			chain := client.K8s(args[0])
			if g.namespace != "" {
				chain = chain.InNamespace(g.namespace)
			}
			for k, v := range g.labels {
				chain = chain.WithLabel(k, v)
			}

			opts := kubeflux.WatchOptions{}
			if resyncFailureMax >= 0 {
				opts.ResyncFailureMax = &resyncFailureMax
			}

			watcher, err := chain.Watch(cmd.Context(), func(obj *kubeflux.Object, phase string) error {
				fmt.Fprintf(os.Stdout, "%-10s %s/%s\n", phase, obj.Namespace(), obj.Name())
				return nil
			}, opts)
			if err != nil {
				return err
			}
			defer watcher.Close()

			go func() {
				for ev := range watcher.Events() {
					klog.V(2).Infof("kubeflux-watchtool: %s %v", ev.Name, ev.Payload)
				}
			}()

			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().IntVar(&resyncFailureMax, "resync-failure-max", -1, "give up after this many consecutive reconnect failures (-1 means unbounded)")
	return cmd
}
