package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/hashmap-kz/kubeflux"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	kubeconfig string
	namespace  string
	labels     map[string]string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.kubeconfig, "kubeconfig", clientcmd.RecommendedHomeFile, "path to kubeconfig")
	fs.StringVarP(&g.namespace, "namespace", "n", "", "namespace (empty lists across all namespaces)")
	fs.StringToStringVarP(&g.labels, "selector", "l", nil, "label selector, key=value pairs")
}

func (g *globalFlags) newClient() (*kubeflux.Client, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", g.kubeconfig)
	if err != nil {
		return nil, err
	}
	return kubeflux.NewForConfig(cfg, kubeflux.ClientOptions{})
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kubeflux-watchtool",
		Short:         "List or tail Kubernetes objects through the kubeflux fluent client.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	g := &globalFlags{}
	g.register(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newGetCmd(g))
	rootCmd.AddCommand(newWatchCmd(g))
	return rootCmd
}
