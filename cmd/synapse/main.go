// Command synapse builds a stack of layers from a YAML model file, samples
// variational noise (synchronized across in-process replicas), runs every
// layer once on a random input and prints a summary.
//
// Usage:
//
//	synapse [flags] model.yaml
//	synapse -list
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/born-ml/synapse/internal/nn"
)

var (
	flagList     = flag.Bool("list", false, "List the registered layer types and exit.")
	flagReplicas = flag.Int("replicas", 0, "Overrides the number of replicas of the model file. "+
		"With more than one replica, noise samples are broadcast from rank 0.")
	flagEval = flag.Bool("eval", false, "Run in evaluation mode: noise and dropout are disabled.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagList {
		for _, name := range nn.LayerNames() {
			fmt.Println(name)
		}
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one model file. See 'synapse -help'.")
		os.Exit(1)
	}

	model := must.M1(loadModel(args[0]))
	if *flagReplicas > 0 {
		model.Replicas = *flagReplicas
	}
	if *flagEval {
		model.Eval = true
	}

	report, err := run(context.Background(), model)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
	fmt.Println(report.Render())
}
