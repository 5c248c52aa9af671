// Command kubeflux-watchtool is a small diagnostic CLI built on top of the
// kubeflux client: it lists or tails a single kind the same way the
// library's fluent chains do, printing a table to stdout.
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		klog.Errorf("kubeflux-watchtool: %v", err)
		os.Exit(1)
	}
}
