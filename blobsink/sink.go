// Package blobsink writes a continuous sample stream out to a block-composed
// object in a backing object store.
//
// The stream arrives in arbitrarily sized chunks. The sink buffers them into
// fixed-size blocks, stages each completed block under a fresh block ID, and
// commits the ordered block list as the final object when the session is
// finalized. Uploads happen inline with data arrival: there is no internal
// worker, so staging latency is paid inside ProcessChunk.
package blobsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/gofrs/uuid"

	"github.com/radiokit/go-sinkutils/blobsink/compression"
	"github.com/radiokit/go-sinkutils/blobsink/network"
)

// ErrFinalized is returned when the session was already finalized.
var ErrFinalized = errors.New("sink session is finalized")

// ErrSessionInvalid is returned when initialization failed on an earlier call.
var ErrSessionInvalid = errors.New("sink session is invalid: initialization failed")

// ErrContainerNotFound is returned when the destination container does not exist.
var ErrContainerNotFound = errors.New("destination container does not exist")

type sessionState int

const (
	stateUninitialized sessionState = iota
	stateActive
	stateInvalid
	stateFinalized
)

// Sink accumulates a sample stream into fixed-size blocks and uploads them to
// a backing block store. Safe for use by a producer and a separate shutdown
// caller: all operations are serialized on an internal mutex.
type Sink struct {
	config Config
	store  network.BlockStore
	logger log.Logger
	codec  *compression.Codec
	stats  *Stats

	mu     sync.Mutex
	buf    *stagingBuffer
	queue  *blockQueue
	ledger blockLedger
	state  sessionState
}

// New creates a sink session writing to the given block store. Defaults are
// applied to unset config fields.
func New(config Config, store network.BlockStore, logger log.Logger) (*Sink, error) {
	config, err := createConfig(config)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("block store must not be nil")
	}

	var codec *compression.Codec
	if config.CompressBlocks {
		codec, err = compression.NewCodec(config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("create block codec: %w", err)
		}
	}

	return &Sink{
		config: config,
		store:  store,
		logger: logger,
		codec:  codec,
		stats:  NewStats(),
		buf:    newStagingBuffer(config.blockSizeBytes()),
		queue:  newBlockQueue(config.QueueDepth),
	}, nil
}

// Stats returns the session's staging statistics.
func (s *Sink) Stats() *Stats {
	return s.stats
}

// ProcessChunk buffers up items for upload to the block store and returns the
// number of whole items consumed. Bytes that don't fit (a trailing partial
// item, or a full staging buffer that couldn't be handed off because the
// upload queue is at capacity) are not consumed and must be redelivered by
// the caller.
//
// The first call initializes the session: the destination container is
// validated and the object is created empty, so creation errors surface here
// rather than at commit time. If initialization fails the session becomes
// invalid and buffered data is discarded at Finalize.
func (s *Sink) ProcessChunk(ctx context.Context, chunk []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateFinalized:
		return 0, ErrFinalized
	case stateInvalid:
		return 0, ErrSessionInvalid
	case stateUninitialized:
		if err := s.initialize(ctx); err != nil {
			s.state = stateInvalid
			return 0, err
		}
		s.state = stateActive
	}

	consumed := 0
	remaining := chunk
	for {
		copied := s.buf.write(remaining, s.config.ItemSizeBytes)
		consumed += copied
		remaining = remaining[copied:]

		if !s.buf.isFull() {
			// Chunk exhausted, or only a partial trailing item is left.
			break
		}

		if !s.queue.tryEnqueue(s.buf.bytes()) {
			s.logger.Debugf("The upload queue is full, will try to requeue in the next call")
			break
		}
		// Fresh memory for the staging buffer so the queued block can never
		// be overwritten by subsequent accumulation.
		s.buf = newStagingBuffer(s.config.blockSizeBytes())
	}

	if err := s.drain(ctx); err != nil {
		return consumed / s.config.ItemSizeBytes, fmt.Errorf("drain upload queue: %w", err)
	}

	return consumed / s.config.ItemSizeBytes, nil
}

// Finalize uploads the remaining buffered items, commits the ordered block
// list and releases the backing store client. It must be called exactly once;
// afterwards the session is terminal. If the session never initialized
// successfully, the flush and commit are skipped and buffered data is
// discarded rather than committed against a nonexistent object.
func (s *Sink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateFinalized:
		return ErrFinalized
	case stateUninitialized, stateInvalid:
		s.state = stateFinalized
		s.store.Close()
		return nil
	}

	s.state = stateFinalized
	defer s.store.Close()

	s.logger.Infof("Uploading the remaining items in the buffer and shutting down")

	if s.buf.filled > 0 {
		// Last chance to persist trailing data: make room if the queue is
		// still full, then hand over the partial block.
		if s.queue.isFull() {
			if err := s.drain(ctx); err != nil {
				return fmt.Errorf("drain upload queue: %w", err)
			}
		}
		if ok := s.queue.tryEnqueue(s.buf.bytes()); !ok {
			return fmt.Errorf("enqueue trailing block: queue full after drain")
		}
	}

	if err := s.drain(ctx); err != nil {
		return fmt.Errorf("drain upload queue: %w", err)
	}

	blockIDs := s.ledger.blockIDs()
	s.logger.Debugf("Committing %d block IDs", len(blockIDs))
	if err := s.store.CommitObject(ctx, blockIDs); err != nil {
		s.logger.Errorf("Failed to commit the block list: %s", err)
		return fmt.Errorf("commit object: %w", err)
	}

	s.logger.Donef("Committed %d blocks, %s staged in %s",
		len(blockIDs),
		units.HumanSizeWithPrecision(float64(s.stats.StagedBytes()), 3),
		s.stats.TotalDuration().Round(time.Millisecond))
	return nil
}

func (s *Sink) initialize(ctx context.Context) error {
	ok, err := s.store.ValidateContainer(ctx)
	if err != nil {
		return fmt.Errorf("validate container: %w", err)
	}
	if !ok {
		return ErrContainerNotFound
	}

	// Create the object up front so creation errors are caught on the first
	// call instead of at final commit.
	if err := s.store.CreateObject(ctx); err != nil {
		return fmt.Errorf("create object: %w", err)
	}

	s.logger.Debugf("Session initialized, block size: %s",
		units.HumanSizeWithPrecision(float64(s.config.blockSizeBytes()), 3))
	return nil
}

// drain pulls all blocks out of the upload queue and stages each one, oldest
// first. The ledger only advances on success: a block whose staging failed is
// put back at the queue front so no data is lost and order is preserved.
func (s *Sink) drain(ctx context.Context) error {
	for {
		block, ok := s.queue.dequeue()
		if !ok {
			return nil
		}

		blockID, err := s.stageBlock(ctx, block)
		if err != nil {
			s.queue.requeueFront(block)
			return err
		}
		s.ledger.append(blockID)
	}
}

// stageBlock uploads one block under a freshly generated block ID and returns
// that ID.
func (s *Sink) stageBlock(ctx context.Context, block []byte) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate block ID: %w", err)
	}
	blockID := id.String()

	data := block
	if s.codec != nil {
		data = s.codec.Compress(data)
	}

	s.logger.Debugf("Beginning upload of %s", units.HumanSizeWithPrecision(float64(len(data)), 3))
	start := time.Now()
	if err := s.store.StageBlock(ctx, blockID, data); err != nil {
		return "", fmt.Errorf("stage block %s: %w", blockID, err)
	}
	s.stats.Update(int64(len(data)), time.Since(start))
	s.logger.Debugf("Upload complete")

	return blockID, nil
}
