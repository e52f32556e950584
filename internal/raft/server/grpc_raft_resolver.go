package server

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc/resolver"

	"raftcore/internal/raft"
)

const raftScheme = "raft"

// directory maps peer ids to dial addresses. Resolvers watching an id are told whenever its address is set.
type directory struct {
	mu      sync.Mutex
	addrs   map[raft.PeerID]Address
	watches map[raft.PeerID][]*watch
}

type watch struct {
	notify func()
}

var peerDirectory = newDirectory()

func newDirectory() *directory {
	return &directory{
		addrs:   make(map[raft.PeerID]Address),
		watches: make(map[raft.PeerID][]*watch),
	}
}

func (d *directory) set(id raft.PeerID, addr Address) {
	d.mu.Lock()
	d.addrs[id] = addr
	watches := slices.Clone(d.watches[id])
	d.mu.Unlock()

	// Outside mu: a notified resolver calls back into lookup
	for _, w := range watches {
		w.notify()
	}
}

func (d *directory) lookup(id raft.PeerID) (Address, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.addrs[id]
	return addr, ok && addr != ""
}

// watch calls notify on every change of id's address until the returned cancel func runs
func (d *directory) watch(id raft.PeerID, notify func()) (cancel func()) {
	w := &watch{notify: notify}
	d.mu.Lock()
	d.watches[id] = append(d.watches[id], w)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			left := slices.DeleteFunc(d.watches[id], func(other *watch) bool { return other == w })
			if len(left) == 0 {
				delete(d.watches, id)
			} else {
				d.watches[id] = left
			}
		})
	}
}

// RegisterResolverPeer sets the address that "raft:///<id>" targets resolve to
func RegisterResolverPeer(id raft.PeerID, addr Address) {
	peerDirectory.set(id, addr)
}

// resolverTarget is the gRPC target of a peer, resolved through the directory
func resolverTarget(id raft.PeerID) string {
	return fmt.Sprintf("%s:///%d", raftScheme, id)
}

// parsePeerTarget accepts "raft:///7" as well as "raft://cluster/7"
func parsePeerTarget(target resolver.Target) (raft.PeerID, error) {
	endpoint := strings.Trim(target.Endpoint(), "/")
	if endpoint == "" {
		return raft.InvalidID, fmt.Errorf("raft resolver: empty target endpoint in %q", target.URL.String())
	}
	n, err := strconv.ParseUint(endpoint, 10, 64)
	if err != nil {
		return raft.InvalidID, fmt.Errorf("raft resolver: invalid peer id %q: %w", endpoint, err)
	}
	return raft.PeerID(n), nil
}

type peerBuilder struct {
	dir *directory
}

func (peerBuilder) Scheme() string { return raftScheme }

func (b peerBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	id, err := parsePeerTarget(target)
	if err != nil {
		return nil, err
	}

	r := &peerResolver{id: id, dir: b.dir, cc: cc}
	r.cancel = b.dir.watch(id, r.resolve)
	r.resolve()
	return r, nil
}

type peerResolver struct {
	id     raft.PeerID
	dir    *directory
	cc     resolver.ClientConn
	cancel func()
}

// resolve hands the peer's current address to gRPC. An unknown peer is reported as an error, so the channel backs
// off and asks again through ResolveNow.
func (r *peerResolver) resolve() {
	addr, ok := r.dir.lookup(r.id)
	if !ok {
		r.cc.ReportError(fmt.Errorf("raft resolver: no address for peer %d", r.id))
		return
	}
	_ = r.cc.UpdateState(resolver.State{Addresses: []resolver.Address{{Addr: string(addr)}}})
}

func (r *peerResolver) ResolveNow(resolver.ResolveNowOptions) { r.resolve() }

func (r *peerResolver) Close() { r.cancel() }

func init() {
	resolver.Register(peerBuilder{dir: peerDirectory})
}
