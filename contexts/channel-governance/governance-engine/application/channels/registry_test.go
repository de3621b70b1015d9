package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"votebot/contexts/channel-governance/governance-engine/adapters/memory"
	"votebot/contexts/channel-governance/governance-engine/application/commands"
	domainerrors "votebot/contexts/channel-governance/governance-engine/domain/errors"
	"votebot/contexts/channel-governance/governance-engine/ports"
)

type nullTransport struct {
	mu         sync.Mutex
	broadcasts map[string][]string
}

func (n *nullTransport) ResolveIdentity(_ context.Context, nick string) (string, bool, error) {
	return nick, true, nil
}

func (n *nullTransport) IsTransportAdmin(_ context.Context, nick string) (bool, error) {
	return nick == "root", nil
}

func (n *nullTransport) NotifyUser(context.Context, string, string) {}

func (n *nullTransport) Broadcast(_ context.Context, channel string, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.broadcasts == nil {
		n.broadcasts = map[string][]string{}
	}
	n.broadcasts[channel] = append(n.broadcasts[channel], text)
}

type failingFactory struct{}

func (failingFactory) OpenChannel(context.Context, string) (ports.ChannelStore, error) {
	return nil, errors.New("no storage")
}

func TestRegistryOpensConfiguredChannels(t *testing.T) {
	stores := memory.NewFactory()
	registry := NewRegistry(Dependencies{Stores: stores, Transport: &nullTransport{}}, []Settings{
		{Name: "#ops", Prefix: "?", ConfirmationTimeout: 5 * time.Second},
		{Name: "#Governance"},
	})
	defer registry.Close()

	if err := registry.OpenConfigured(context.Background()); err != nil {
		t.Fatalf("open configured: %v", err)
	}
	engines := registry.Engines()
	if len(engines) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(engines))
	}
	if engines[0].Channel() != "#Governance" || engines[0].Prefix() != commands.DefaultPrefix {
		t.Fatalf("unexpected first engine: %s %s", engines[0].Channel(), engines[0].Prefix())
	}
	if engines[1].Channel() != "#ops" || engines[1].Prefix() != "?" {
		t.Fatalf("unexpected second engine: %s %s", engines[1].Channel(), engines[1].Prefix())
	}

	engine, ok := registry.Lookup("#GOVERNANCE")
	if !ok || engine != engines[0] {
		t.Fatalf("expected case-insensitive lookup")
	}
}

func TestRegistryIsolatesChannels(t *testing.T) {
	stores := memory.NewFactory()
	transport := &nullTransport{}
	registry := NewRegistry(Dependencies{Stores: stores, Transport: transport}, nil)
	defer registry.Close()
	ctx := context.Background()

	for _, text := range []string{"!useradd root ADMIN", "!vcall first"} {
		if err := registry.Dispatch(ctx, "#a", commands.Message{Nick: "root", Text: text}); err != nil {
			t.Fatalf("dispatch %q: %v", text, err)
		}
		engine, _ := registry.Lookup("#a")
		engine.Wait()
	}
	if err := registry.Dispatch(ctx, "#b", commands.Message{Nick: "root", Text: "!vcall second"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	engine, _ := registry.Lookup("#b")
	engine.Wait()

	storeA, _ := stores.Store("#a")
	storeB, _ := stores.Store("#b")
	pollsA, _ := storeA.ListPolls(ctx, ports.PollFilter{})
	pollsB, _ := storeB.ListPolls(ctx, ports.PollFilter{})
	if len(pollsA) != 1 {
		t.Fatalf("expected one poll in #a, got %d", len(pollsA))
	}
	if len(pollsB) != 0 {
		t.Fatalf("expected root to be unprivileged in #b, got %d polls", len(pollsB))
	}
}

func TestRegistryCloseClosesStores(t *testing.T) {
	stores := memory.NewFactory()
	registry := NewRegistry(Dependencies{Stores: stores, Transport: &nullTransport{}}, nil)
	if _, err := registry.Engine(context.Background(), "#a"); err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := registry.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	store, _ := stores.Store("#a")
	if !store.Closed() {
		t.Fatalf("expected store closed")
	}
	if _, err := registry.Engine(context.Background(), "#a"); !errors.Is(err, domainerrors.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
}

func TestRegistryReportsOpenFailures(t *testing.T) {
	registry := NewRegistry(Dependencies{Stores: failingFactory{}, Transport: &nullTransport{}}, nil)
	if _, err := registry.Engine(context.Background(), "#a"); err == nil {
		t.Fatalf("expected open failure")
	}
	if _, ok := registry.Lookup("#a"); ok {
		t.Fatalf("failed channel must not be registered")
	}
	if _, err := registry.Engine(context.Background(), "  "); !errors.Is(err, domainerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for blank channel, got %v", err)
	}
}

type gatedFactory struct {
	inner   *memory.Factory
	gated   string
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	opens map[string]int
}

func newGatedFactory(gated string) *gatedFactory {
	return &gatedFactory{
		inner:   memory.NewFactory(),
		gated:   gated,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		opens:   map[string]int{},
	}
}

func (f *gatedFactory) OpenChannel(ctx context.Context, channel string) (ports.ChannelStore, error) {
	f.mu.Lock()
	f.opens[channel]++
	f.mu.Unlock()
	if channel == f.gated {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.release
	}
	return f.inner.OpenChannel(ctx, channel)
}

func (f *gatedFactory) openCount(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[channel]
}

func TestRegistrySlowOpenDoesNotBlockOtherChannels(t *testing.T) {
	factory := newGatedFactory("#slow")
	registry := NewRegistry(Dependencies{Stores: factory, Transport: &nullTransport{}}, nil)
	defer registry.Close()
	ctx := context.Background()

	const callers = 3
	results := make(chan *commands.Engine, callers)
	for i := 0; i < callers; i++ {
		go func() {
			engine, err := registry.Engine(ctx, "#slow")
			if err != nil {
				t.Errorf("open slow channel: %v", err)
			}
			results <- engine
		}()
	}
	select {
	case <-factory.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("slow open never started")
	}

	fast := make(chan error, 1)
	go func() {
		_, err := registry.Engine(ctx, "#fast")
		fast <- err
	}()
	select {
	case err := <-fast:
		if err != nil {
			t.Fatalf("open fast channel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fast channel blocked behind slow open")
	}

	close(factory.release)
	var first *commands.Engine
	for i := 0; i < callers; i++ {
		engine := <-results
		if first == nil {
			first = engine
		}
		if engine == nil || engine != first {
			t.Fatalf("expected every caller to share one engine")
		}
	}
	if got := factory.openCount("#slow"); got != 1 {
		t.Fatalf("expected one open of #slow, got %d", got)
	}
}

func TestRegistryCloseDuringOpenDiscardsEngine(t *testing.T) {
	factory := newGatedFactory("#slow")
	registry := NewRegistry(Dependencies{Stores: factory, Transport: &nullTransport{}}, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := registry.Engine(ctx, "#slow")
		done <- err
	}()
	<-factory.started
	if err := registry.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(factory.release)

	if err := <-done; !errors.Is(err, domainerrors.ErrChannelClosed) {
		t.Fatalf("expected ErrChannelClosed, got %v", err)
	}
	store, ok := factory.inner.Store("#slow")
	if !ok || !store.Closed() {
		t.Fatalf("expected the late store to be closed")
	}
}
