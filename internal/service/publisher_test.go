package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tunecache/internal/domain"
	"github.com/tejashwikalptaru/tunecache/internal/logger"
	"github.com/tejashwikalptaru/tunecache/internal/ports"
	"github.com/tejashwikalptaru/tunecache/internal/testutil"
)

// publisherJob has no timestamp so equal snapshots compare equal.
var publisherJob = domain.CacheJob{ID: "a", SourceURL: "https://media.example.com/a.mp3", DesiredFilename: "a", Format: domain.FormatMP3}

func snapshotWithProgress(n int64) domain.CacheSnapshot {
	return domain.CacheSnapshot{
		Status:   domain.StatusDownloading,
		Job:      publisherJob,
		Progress: domain.DownloadProgress{BytesTransferred: n, TotalBytes: 100},
	}
}

func TestStatusPublisher_Conflates(t *testing.T) {
	p := NewStatusPublisher(logger.NewTestLogger(t))
	defer p.Close()

	sub := p.Subscribe()
	defer sub.Close()

	p.Publish(snapshotWithProgress(10))
	p.Publish(snapshotWithProgress(20))
	p.Publish(snapshotWithProgress(30))

	got := <-sub.C()
	assert.Equal(t, int64(30), got.Progress.BytesTransferred)

	select {
	case extra := <-sub.C():
		t.Fatalf("expected a single conflated snapshot, got another: %+v", extra)
	default:
	}
}

func TestStatusPublisher_DropsDuplicates(t *testing.T) {
	p := NewStatusPublisher(logger.NewTestLogger(t))
	defer p.Close()

	sub := p.Subscribe()
	defer sub.Close()

	p.Publish(snapshotWithProgress(10))
	<-sub.C()

	p.Publish(snapshotWithProgress(10))
	select {
	case <-sub.C():
		t.Fatal("duplicate snapshot was delivered")
	default:
	}
}

func TestStatusPublisher_SubscribeIsPrimed(t *testing.T) {
	p := NewStatusPublisher(logger.NewTestLogger(t))
	defer p.Close()

	p.Publish(snapshotWithProgress(42))

	sub := p.Subscribe()
	defer sub.Close()

	select {
	case got := <-sub.C():
		assert.Equal(t, int64(42), got.Progress.BytesTransferred)
	default:
		t.Fatal("new subscription did not get the latest snapshot")
	}
	assert.Equal(t, int64(42), p.Latest().Progress.BytesTransferred)
}

func TestStatusPublisher_SubscriptionClose(t *testing.T) {
	p := NewStatusPublisher(logger.NewTestLogger(t))
	defer p.Close()

	sub := p.Subscribe()
	assert.Equal(t, 1, p.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, p.SubscriberCount())

	_, open := <-sub.C()
	assert.False(t, open)
}

func TestStatusPublisher_AttachSeesLatest(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	p := NewStatusPublisher(logger.NewTestLogger(t))

	var mu sync.Mutex
	var last domain.CacheSnapshot
	p.Attach(ports.StatusRendererFunc(func(s domain.CacheSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s
	}))

	for i := range 100 {
		p.Publish(snapshotWithProgress(int64(i + 1)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Progress.BytesTransferred == 100
	}, time.Second, 5*time.Millisecond)

	p.Close()
}

func TestStatusPublisher_RendererPanicIsRecovered(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	p := NewStatusPublisher(logger.NewTestLogger(t))

	var calls atomic.Int32
	p.Attach(ports.StatusRendererFunc(func(s domain.CacheSnapshot) {
		calls.Add(1)
		if s.Progress.BytesTransferred == 1 {
			panic("renderer bug")
		}
	}))

	p.Publish(snapshotWithProgress(1))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	p.Publish(snapshotWithProgress(2))
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond,
		"renderer keeps running after a panic")

	p.Close()
}

func TestStatusPublisher_Close(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	p := NewStatusPublisher(logger.NewTestLogger(t))
	sub := p.Subscribe()
	p.Attach(ports.StatusRendererFunc(func(domain.CacheSnapshot) {}))

	p.Close()
	p.Close()

	_, open := <-sub.C()
	assert.False(t, open)

	late := p.Subscribe()
	_, open = <-late.C()
	assert.False(t, open, "subscriptions after Close are already closed")

	// Publishing after Close is ignored
	p.Publish(snapshotWithProgress(5))
	assert.Equal(t, 0, p.SubscriberCount())
}
