package sync

import (
	"context"
	"path/filepath"
	"sort"
	gosync "sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/identity"
	"github.com/iudanet/confsync/internal/client/storage/boltdb"
	"github.com/iudanet/confsync/internal/codec"
	"github.com/iudanet/confsync/internal/configstore"
	"github.com/iudanet/confsync/internal/merge"
	"github.com/iudanet/confsync/internal/models"
)

type storedMessage struct {
	hash      string
	payload   []byte
	id        int64
	namespace models.Namespace
}

// fakeSwarm хранит сообщения в памяти, как узел swarm.
type fakeSwarm struct {
	sendErr     error
	fetchErr    error
	block       chan struct{}
	messages    map[string][]storedMessage
	batches     []*Batch
	nextID      int64
	failDeletes bool
	mu          gosync.Mutex
}

func newFakeSwarm() *fakeSwarm {
	return &fakeSwarm{messages: make(map[string][]storedMessage)}
}

func (f *fakeSwarm) SendBatch(_ context.Context, dest Destination, batch *Batch) (*BatchResult, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, batch)
	if f.sendErr != nil {
		return nil, f.sendErr
	}

	res := &BatchResult{}
	for _, st := range batch.Stores {
		hash := codec.MessageHash(st.Payload)
		f.nextID++
		f.messages[dest.PubKey] = append(f.messages[dest.PubKey], storedMessage{
			id:        f.nextID,
			namespace: st.Namespace,
			hash:      hash,
			payload:   st.Payload,
		})
		res.Stores = append(res.Stores, StoreResult{Hash: hash})
	}

	if !f.failDeletes {
		remove := make(map[string]struct{}, len(batch.Delete))
		for _, h := range batch.Delete {
			remove[h] = struct{}{}
		}
		kept := f.messages[dest.PubKey][:0]
		for _, m := range f.messages[dest.PubKey] {
			if _, ok := remove[m.hash]; !ok {
				kept = append(kept, m)
			}
		}
		f.messages[dest.PubKey] = kept
		res.Deleted = append(res.Deleted, batch.Delete...)
	}
	return res, nil
}

func (f *fakeSwarm) Fetch(_ context.Context, dest Destination, ns models.Namespace, since int64) (*FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	res := &FetchResult{Cursor: since}
	for _, m := range f.messages[dest.PubKey] {
		if m.namespace != ns || m.id <= since {
			continue
		}
		res.Messages = append(res.Messages, merge.RemoteMessage{Hash: m.hash, Payload: m.payload})
		res.Cursor = m.id
	}
	return res, nil
}

func (f *fakeSwarm) inject(dest string, ns models.Namespace, payload []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	hash := codec.MessageHash(payload)
	f.nextID++
	f.messages[dest] = append(f.messages[dest], storedMessage{id: f.nextID, namespace: ns, hash: hash, payload: payload})
	return hash
}

func (f *fakeSwarm) hashes(dest string, ns models.Namespace) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, m := range f.messages[dest] {
		if m.namespace == ns {
			out = append(out, m.hash)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeSwarm) set(fn func(f *fakeSwarm)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type recordingListener struct {
	merged    []merge.Event
	confirmed []merge.Event
	mu        gosync.Mutex
}

func (l *recordingListener) OnMergeCompleted(_ context.Context, event merge.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.merged = append(l.merged, event)
}

func (l *recordingListener) OnPushConfirmed(_ context.Context, event merge.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.confirmed = append(l.confirmed, event)
}

// device - одно устройство учетной записи.
type device struct {
	rec      *Reconciler
	registry *configstore.Registry
	store    *boltdb.Storage
	id       *identity.Identity
	listener *recordingListener
}

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	seed := make([]byte, 32)
	seed[0] = 42
	id, err := identity.FromSeed(seed)
	require.NoError(t, err)
	return id
}

func newDevice(t *testing.T, swarm Transport) *device {
	t.Helper()

	id := testIdentity(t)
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"), boltdb.WithDumpKey(id.DumpKey()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	logger := zap.NewNop()
	listener := &recordingListener{}
	registry := configstore.NewRegistry(id.PublicKey(), logger)

	return &device{
		id:       id,
		store:    store,
		registry: registry,
		listener: listener,
		rec: NewReconciler(Deps{
			Registry:  registry,
			Keyring:   id,
			Transport: swarm,
			Engine:    merge.NewEngine(logger, listener),
			Dumps:     store,
			Metadata:  store,
			Logger:    logger,
		}),
	}
}

func (d *device) setName(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, d.registry.UserProfile().SetName(name))
}
