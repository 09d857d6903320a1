// Command mxl-inspect lists and dumps flows in an MXL domain directory, for
// debugging a running producer/consumer pair without writing code against
// the library.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/moleksy/mxl/pkg/mxl"
)

func main() {
	var (
		domain = flag.String("domain", "", "MXL domain directory (required)")
		id     = flag.String("flow", "", "flow id to dump; if empty, lists every flow in the domain")
	)
	flag.Parse()

	if *domain == "" {
		fmt.Fprintln(os.Stderr, "mxl-inspect: -domain is required")
		flag.Usage()
		os.Exit(2)
	}

	m, err := mxl.NewManager(*domain)
	if err != nil {
		log.Fatalf("mxl-inspect: open domain %s: %v", *domain, err)
	}
	defer m.Close()

	ctx := context.Background()

	if *id == "" {
		listFlows(ctx, m)
		return
	}
	dumpFlow(ctx, m, *id)
}

func listFlows(ctx context.Context, m *mxl.Manager) {
	ids, err := m.ListFlows(ctx)
	if err != nil {
		log.Fatalf("mxl-inspect: list flows: %v", err)
	}
	if len(ids) == 0 {
		fmt.Println("no flows")
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func dumpFlow(ctx context.Context, m *mxl.Manager, idStr string) {
	id, err := mxl.ParseFlowId(idStr)
	if err != nil {
		log.Fatalf("mxl-inspect: parse flow id %q: %v", idStr, err)
	}

	f, err := m.OpenFlow(ctx, id, mxl.OpenReadOnly)
	if err != nil {
		log.Fatalf("mxl-inspect: open flow %s: %v", id, err)
	}
	defer f.Close()

	fmt.Printf("id:   %s\n", f.Id())
	fmt.Printf("kind: %s\n", f.Kind())
}
