package main

import (
	"os"

	"github.com/aquasecurity/table"
	"github.com/spf13/cobra"

	"github.com/hashmap-kz/kubeflux"
)

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind>",
		Short: "List objects of a kind, e.g. Pod, Deployment, ConfigMap.",
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

			list, err := chain.List(cmd.Context())
			if err != nil {
				return err
			}
			printObjectTable(list.Items)
			return nil
		},
	}
}

func printObjectTable(items []*kubeflux.Object) {
	t := table.New(os.Stdout)
	t.SetHeaders("NAMESPACE", "NAME", "KIND", "RESOURCE VERSION")
	for _, obj := range items {
		t.AddRow(obj.Namespace(), obj.Name(), obj.Kind(), obj.ResourceVersion())
	}
	t.Render()
}
