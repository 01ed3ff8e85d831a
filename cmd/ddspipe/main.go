// Command ddspipe is the proxy's single executable: a positional
// master|slave role followed by the flags spec.md §6 names. It loads a
// configuration document, starts the orchestrator, and reloads it on
// either a file change or a timer until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ddspipe/ddspipe/internal/config"
	"github.com/ddspipe/ddspipe/internal/ddspipe"
	discoveryimpl "github.com/ddspipe/ddspipe/internal/discovery"
	"github.com/ddspipe/ddspipe/internal/logging"
	"github.com/ddspipe/ddspipe/internal/participant"
	participantsimpl "github.com/ddspipe/ddspipe/internal/participants"
	payloadpoolimpl "github.com/ddspipe/ddspipe/internal/payloadpool"
	"github.com/ddspipe/ddspipe/internal/reload"
	"github.com/ddspipe/ddspipe/internal/rolecoordinator"
	slotpoolimpl "github.com/ddspipe/ddspipe/internal/slotpool"
	configpkg "github.com/ddspipe/ddspipe/pkg/config"
	discoverypkg "github.com/ddspipe/ddspipe/pkg/discovery"
	ddspipepkg "github.com/ddspipe/ddspipe/pkg/ddspipe"
	"github.com/ddspipe/ddspipe/pkg/ddstypes"
	participantpkg "github.com/ddspipe/ddspipe/pkg/participant"
)

// Exit codes per spec.md §6.
const (
	exitSuccess         = 0
	exitGeneric         = 1
	exitInvalidArgs      = 2
	exitMissingArg       = 3
	exitExecutionFailure = 4
)

const (
	appName    = "ddspipe"
	appVersion = "0.1.0"

	defaultReloadTimeMs = 5000
	defaultTimeoutMs    = 1000
	defaultKeepaliveMs  = 1000
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run implements the executable's whole lifecycle and returns the
// process exit code; split out from main so main_test.go can drive it
// without calling os.Exit.
func run(argv []string, stdout, stderr *os.File) int {
	flags := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flags.SetOutput(stderr)

	configPath := flags.StringP("config", "c", "", "path to the YAML configuration document")
	reloadTimeMs := flags.IntP("reload-time", "r", defaultReloadTimeMs, "periodic reload interval in milliseconds (0 disables the timer trigger)")
	timeoutMs := flags.IntP("timeout", "t", defaultTimeoutMs, "per-operation timeout in milliseconds")
	logFilter := flags.String("log-filter", "", "glob over component names; unset means log everything")
	logVerbosity := flags.Int("log-verbosity", int(logging.VerbosityInfo), "0=error 1=warn 2=info 3=debug")
	showVersion := flags.BoolP("version", "v", false, "print version and exit")

	if err := flags.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return exitSuccess
		}
		fmt.Fprintln(stderr, err)
		return exitInvalidArgs
	}

	if *showVersion {
		fmt.Fprintf(stdout, "%s %s\n", appName, appVersion)
		return exitSuccess
	}

	positional := flags.Args()
	if len(positional) < 1 {
		fmt.Fprintln(stderr, "usage: ddspipe <master|slave> [keepalive_interval_ms] -c <file>")
		return exitMissingArg
	}
	role := positional[0]
	if role != "master" && role != "slave" {
		fmt.Fprintf(stderr, "unrecognized role %q: expected \"master\" or \"slave\"\n", role)
		return exitInvalidArgs
	}

	keepaliveMs := defaultKeepaliveMs
	if len(positional) >= 2 {
		ms, err := strconv.Atoi(positional[1])
		if err != nil || ms <= 0 {
			fmt.Fprintf(stderr, "invalid keepalive_interval_ms %q\n", positional[1])
			return exitInvalidArgs
		}
		keepaliveMs = ms
	}

	if *configPath == "" {
		fmt.Fprintln(stderr, "missing required -c/--config")
		return exitMissingArg
	}

	log := logging.New(stderr, logging.Verbosity(*logVerbosity), *logFilter)

	doc, err := config.LoadFile(*configPath)
	if err != nil {
		log.Errorf("loading configuration: %v", err)
		return exitExecutionFailure
	}

	proxy, err := newProxy(doc, log)
	if err != nil {
		log.Errorf("constructing proxy: %v", err)
		return exitExecutionFailure
	}
	defer proxy.close()

	coordinator, err := newCoordinator(role, keepaliveMs, log)
	if err != nil {
		log.Errorf("starting role coordinator: %v", err)
		return exitExecutionFailure
	}
	defer coordinator.Close()

	if err := proxy.pipe.Enable(); err != nil {
		log.Errorf("enabling proxy: %v", err)
		return exitExecutionFailure
	}

	reloadPeriod := time.Duration(*reloadTimeMs) * time.Millisecond
	if cfgPeriod := doc.ReloadInterval(); cfgPeriod > 0 {
		reloadPeriod = cfgPeriod
	}
	trigger := reload.New(*configPath, reloadPeriod, func() { proxy.reload(*configPath, log) }, log)
	if err := trigger.Start(); err != nil {
		log.Errorf("starting reload trigger: %v", err)
		return exitExecutionFailure
	}
	defer trigger.Stop()

	log.Infof("%s started as %s, watching %s (timeout=%dms)", appName, role, *configPath, *timeoutMs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForShutdown(ctx, cancel, log)
	<-ctx.Done()

	log.Infof("shutting down")
	proxy.pipe.Disable()

	return exitSuccess
}

// waitForShutdown arranges for cancel to run once SIGINT or SIGTERM is
// received, per spec.md §6's graceful-shutdown contract.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, log logging.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Infof("received signal %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
}

// proxy bundles the collaborators main owns directly: the orchestrator,
// the databases it was built from, and the participants it provisioned
// at startup (spec.md §6: reload never adds or removes participants).
type proxy struct {
	pdb         *participantsimpl.Database
	discoveryDB *discoveryimpl.Database
	pool        *payloadpoolimpl.Pool
	slots       *slotpoolimpl.Pool
	pipe        *ddspipe.Pipe
}

func newProxy(doc configpkg.Document, log logging.Logger) (*proxy, error) {
	pdb := participantsimpl.New()
	discoveryDB := discoveryimpl.New()
	pool := payloadpoolimpl.New(0)

	nThreads := numberOfThreads(doc)
	slots := slotpoolimpl.New(nThreads, log.Slog())

	factory := participant.NewFactory(log)
	for _, spec := range doc.Participants {
		p, err := factory.Create(ddstypes.ParticipantId(spec.Name), spec.Kind, spec.Options)
		if err != nil {
			return nil, err
		}
		if err := pdb.Add(p); err != nil {
			return nil, err
		}
		wireParticipantDiscovery(p, discoveryDB)
	}

	pipe := ddspipe.New(pdb, discoveryDB, pool, slots, rpcServicesFrom(doc), log.Slog())

	builtins := make([]ddstypes.TopicId, 0, len(doc.BuiltinTopics))
	for _, t := range doc.BuiltinTopics {
		builtins = append(builtins, ddstypes.TopicId{Name: t.Name, Type: t.Type, Kind: ddstypes.KindData})
	}
	pipe.EnsureBuiltinTopics(builtins)

	slots.Enable()

	if result := pipe.ReloadConfiguration(ddspipepkg.Configuration{AllowTopics: doc.AllowTopics, BlockTopics: doc.BlockTopics}); result == ddspipepkg.Error {
		return nil, fmt.Errorf("applying initial allow/block policy failed")
	}

	return &proxy{pdb: pdb, discoveryDB: discoveryDB, pool: pool, slots: slots, pipe: pipe}, nil
}

// reload re-reads path and pushes its allow/block policy into the
// running pipe; participant provisioning never changes on reload.
func (p *proxy) reload(path string, log logging.Logger) {
	doc, err := config.LoadFile(path)
	if err != nil {
		log.Warnf("reload: %v", err)
		return
	}
	result := p.pipe.ReloadConfiguration(ddspipepkg.Configuration{AllowTopics: doc.AllowTopics, BlockTopics: doc.BlockTopics})
	log.Infof("reload: %s", result)
}

func (p *proxy) close() {
	p.slots.Disable()
	for _, id := range p.pdb.Ids() {
		_ = p.pdb.Remove(id)
	}
}

// wireParticipantDiscovery forwards every participant.DiscoveryEvent p
// reports into discoveryDB, translating Added/QosChanged into Observe
// and Removed into Forget.
func wireParticipantDiscovery(p participantpkg.Participant, discoveryDB *discoveryimpl.Database) {
	p.SetDiscoveryListener(func(ev participantpkg.DiscoveryEvent) {
		if ev.Removed {
			discoveryDB.Forget(ev.EndpointGuid)
			return
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

func numberOfThreads(doc configpkg.Document) int {
	if raw, ok := doc.AdvancedOptions["number_of_threads"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

// rpcServicesFrom derives the RPC service declarations DdsPipe needs at
// construction time from builtin_topics (spec.md §6 has no "services"
// key): a builtin topic named "<name>_Request" sets service <name>'s
// request type and one named "<name>_Reply" sets its reply type.
func rpcServicesFrom(doc configpkg.Document) []ddstypes.RpcTopic {
	byName := make(map[string]*ddstypes.RpcTopic)
	for _, t := range doc.BuiltinTopics {
		name, isRequest := stripRequestSuffix(t.Name)
		if isRequest {
			svc := byName[name]
			if svc == nil {
				svc = &ddstypes.RpcTopic{ServiceName: name}
				byName[name] = svc
			}
			svc.RequestType = t.Type
			continue
		}
		name, isReply := stripReplySuffix(t.Name)
		if isReply {
			svc := byName[name]
			if svc == nil {
				svc = &ddstypes.RpcTopic{ServiceName: name}
				byName[name] = svc
			}
			svc.ReplyType = t.Type
		}
	}
	out := make([]ddstypes.RpcTopic, 0, len(byName))
	for _, svc := range byName {
		out = append(out, *svc)
	}
	return out
}

func stripRequestSuffix(name string) (string, bool) {
	const suffix = "_Request"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)], true
	}
	return name, false
}

func stripReplySuffix(name string) (string, bool) {
	const suffix = "_Reply"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)], true
	}
	return name, false
}

func newCoordinator(role string, keepaliveMs int, log logging.Logger) (*rolecoordinator.Coordinator, error) {
	interval := time.Duration(keepaliveMs) * time.Millisecond
	switch role {
	case "master":
		return rolecoordinator.NewMaster(":7700", "255.255.255.255:7700", interval, log)
	default:
		return rolecoordinator.NewSlave(":7700", log)
	}
}
