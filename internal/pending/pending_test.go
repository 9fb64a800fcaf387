package pending

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scan-bot/internal/models"
	"github.com/xaenox/scan-bot/internal/storage"
)

func sampleFile(name string) models.PendingFile {
	return models.PendingFile{
		Data:      []byte("%PDF-1.7 ..."),
		Prompt:    "invoices",
		Filename:  name,
		MimeType:  "application/pdf",
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Take(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, 1, sampleFile("a.pdf")))
	require.NoError(t, s.Put(ctx, 2, sampleFile("other.pdf")))

	got, ok, err := s.Take(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleFile("a.pdf"), got)

	_, ok, err = s.Take(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "a pending file is consumed exactly once")

	require.NoError(t, s.Put(ctx, 2, sampleFile("replacement.pdf")))
	got, ok, err = s.Take(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "replacement.pdf", got.Filename)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(20 * time.Millisecond)

	require.NoError(t, s.Put(ctx, 1, sampleFile("a.pdf")))
	time.Sleep(40 * time.Millisecond)

	_, ok, err := s.Take(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStore(t *testing.T) {
	exerciseStore(t, NewKVStore(storage.NewMemoryStorage(), time.Minute))
}

// slowStorage widens the window between a replica reading and removing a key
type slowStorage struct {
	storage.Storage
	delay time.Duration
}

func (s slowStorage) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Storage.Get(ctx, key)
}

func (s slowStorage) GetDel(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.Storage.GetDel(ctx, key)
}

func TestKVStoreReplicasTakeOnce(t *testing.T) {
	ctx := context.Background()
	shared := slowStorage{Storage: storage.NewMemoryStorage(), delay: 20 * time.Millisecond}
	replicas := []*KVStore{NewKVStore(shared, time.Minute), NewKVStore(shared, time.Minute)}

	require.NoError(t, replicas[0].Put(ctx, 1, sampleFile("a.pdf")))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		taken int
	)
	for _, replica := range replicas {
		wg.Add(1)
		go func(r *KVStore) {
			defer wg.Done()
			_, ok, err := r.Take(ctx, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				taken++
				mu.Unlock()
			}
		}(replica)
	}
	wg.Wait()

	assert.Equal(t, 1, taken, "only one replica may consume the pending file")
}
