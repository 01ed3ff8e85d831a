// Command ddspipe-tool loads a configuration document, starts discovery
// on every declared participant without creating any bridge, and prints
// each discovered topic as it appears until interrupted. It exists for
// operators who want to see what a configuration would forward before
// running the full proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ddspipe/ddspipe/internal/config"
	discoveryimpl "github.com/ddspipe/ddspipe/internal/discovery"
	"github.com/ddspipe/ddspipe/internal/logging"
	"github.com/ddspipe/ddspipe/internal/participant"
	participantsimpl "github.com/ddspipe/ddspipe/internal/participants"
	discoverypkg "github.com/ddspipe/ddspipe/pkg/discovery"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	participantpkg "github.com/ddspipe/ddspipe/pkg/participant"
)

const (
	exitSuccess         = 0
	exitInvalidArgs      = 2
	exitMissingArg       = 3
	exitExecutionFailure = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr *os.File) int {
	flags := pflag.NewFlagSet("ddspipe-tool", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration document")
	logVerbosity := flags.Int("log-verbosity", int(logging.VerbosityInfo), "0=error 1=warn 2=info 3=debug")

	if err := flags.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return exitSuccess
		}
		fmt.Fprintln(stderr, err)
		return exitInvalidArgs
	}

	if *configPath == "" {
		fmt.Fprintln(stderr, "missing required -c/--config")
		return exitMissingArg
	}

	log := logging.New(stderr, logging.Verbosity(*logVerbosity), "")

	doc, err := config.LoadFile(*configPath)
	if err != nil {
		log.Errorf("loading configuration: %v", err)
		return exitExecutionFailure
	}

	pdb := participantsimpl.New()
	discoveryDB := discoveryimpl.New()
	factory := participant.NewFactory(log)

	for _, spec := range doc.Participants {
		p, err := factory.Create(ddstypes.ParticipantId(spec.Name), spec.Kind, spec.Options)
		if err != nil {
			log.Errorf("creating participant %q: %v", spec.Name, err)
			return exitExecutionFailure
		}
		if err := pdb.Add(p); err != nil {
			log.Errorf("registering participant %q: %v", spec.Name, err)
			return exitExecutionFailure
		}
		wireDiscoveryPrinter(p, discoveryDB, stdout)
	}
	defer func() {
		for _, id := range pdb.Ids() {
			_ = pdb.Remove(id)
		}
	}()

	fmt.Fprintf(stdout, "watching %d participant(s) for discovered topics; press Ctrl+C to stop\n", len(pdb.Ids()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	<-ctx.Done()

	fmt.Fprintln(stdout, "known topics at exit:")
	for _, topic := range discoveryDB.Topics() {
		fmt.Fprintf(stdout, "  %s\n", topic)
	}

	return exitSuccess
}

// wireDiscoveryPrinter records every discovered endpoint in discoveryDB
// and prints the topic the first time it is observed.
func wireDiscoveryPrinter(p participantpkg.Participant, discoveryDB *discoveryimpl.Database, stdout *os.File) {
	seen := make(map[ddstypes.TopicId]bool)
	p.SetDiscoveryListener(func(ev participantpkg.DiscoveryEvent) {
		if ev.Removed {
			discoveryDB.Forget(ev.EndpointGuid)
			return
		}
		if !seen[ev.Topic] {
			seen[ev.Topic] = true
			fmt.Fprintf(stdout, "discovered topic %s via participant %s\n", ev.Topic, ev.Participant)
		}
		discoveryDB.Observe(discoverypkg.Endpoint{
			Guid:        ev.EndpointGuid,
			Participant: ev.Participant,
			Topic:       ev.Topic,
			Direction:   ev.Direction,
			Qos:         ev.Qos,
			IsVirtual:   ev.IsVirtual,
		})
	})
}
