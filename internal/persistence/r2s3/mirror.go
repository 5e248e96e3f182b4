package r2s3

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"voxelcascade.ai/internal/persistence/snapshot"
)

const uploadTimeout = 2 * time.Minute

// Putter is the upload half of Client.
type Putter interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type MirrorConfig struct {
	Prefix        string
	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long Enqueue blocks on a full queue before
	// dropping the snapshot.
	EnqueueWait time.Duration
	Attempts    int
	// Backoff is multiplied by attempt squared between retries.
	Backoff time.Duration
	Log     logrus.FieldLogger
}

// Mirror uploads every enqueued snapshot as an immutable object keyed by
// region and tick, so the bucket keeps the save history.
type Mirror struct {
	client Putter
	cfg    MirrorConfig
	log    logrus.FieldLogger

	jobs chan snapshot.RegionV1
	wg   sync.WaitGroup

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	uploadSuccessTotal  atomic.Uint64
	uploadFailTotal     atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewMirror(client Putter, cfg MirrorConfig) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Mirror{
		client: client,
		cfg:    cfg,
		log:    log.WithField("component", "snapshot_mirror"),
		jobs:   make(chan snapshot.RegionV1, cfg.QueueCapacity),
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for snap := range m.jobs {
				m.uploadOne(snap)
			}
		}()
	}
	return m
}

// ObjectKey is where a snapshot lands: <prefix>/<region>/<tick>.snap.zst.
func (m *Mirror) ObjectKey(regionID string, tick int64) string {
	return path.Join(m.cfg.Prefix, regionID, fmt.Sprintf("%012d.snap.zst", tick))
}

// Enqueue queues snap for upload. It never blocks longer than EnqueueWait.
func (m *Mirror) Enqueue(snap snapshot.RegionV1) {
	if m == nil || m.client == nil {
		return
	}
	m.enqueuedTotal.Add(1)

	select {
	case m.jobs <- snap:
		return
	default:
	}

	m.queueSaturatedTotal.Add(1)
	timer := time.NewTimer(m.cfg.EnqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- snap:
	case <-timer.C:
		dropped := m.droppedTotal.Add(1)
		m.log.WithFields(logrus.Fields{
			"region":        snap.Header.RegionID,
			"tick":          snap.Header.Tick,
			"dropped_total": dropped,
		}).Warn("mirror queue saturated, snapshot dropped")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		UploadSuccessTotal:  m.uploadSuccessTotal.Load(),
		UploadFailTotal:     m.uploadFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) uploadOne(snap snapshot.RegionV1) {
	key := m.ObjectKey(snap.Header.RegionID, snap.Header.Tick)
	log := m.log.WithField("key", key)

	body, err := snapshot.Marshal(snap)
	if err != nil {
		m.uploadFailTotal.Add(1)
		log.WithError(err).Error("encode snapshot for mirror")
		return
	}
	if err := m.uploadWithRetry(key, body); err != nil {
		m.uploadFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		log.WithError(err).Error("mirror upload failed")
		return
	}
	m.uploadSuccessTotal.Add(1)
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
	log.WithField("bytes", len(body)).Debug("snapshot mirrored")
}

func (m *Mirror) uploadWithRetry(key string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		err := m.client.PutObject(ctx, key, body)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < m.cfg.Attempts {
			time.Sleep(time.Duration(attempt*attempt) * m.cfg.Backoff)
		}
	}
	return lastErr
}
