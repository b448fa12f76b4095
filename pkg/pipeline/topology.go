package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/neurascale/neural-engine/pkg/sample"
)

// StreamClient is the subset of redis.UniversalClient the Source needs
// to consume from the same topics pkg/ingestion.Publisher writes to,
// narrowed the same way pkg/ingestion.StreamClient is.
type StreamClient interface {
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
}

// RedisSource consumes encoded chunks from a single data-type topic via
// a Redis Streams consumer group, so multiple pipeline workers can share
// one topic without double-processing an entry (spec.md §4.6's logical
// Source, concretely implemented against the wire format
// pkg/ingestion.Publisher writes: XAdd with device_id/session_id/
// partition/payload fields on routing.TopicFor(prefix, data_type)).
type RedisSource struct {
	Client   StreamClient
	Codec    *sample.Codec
	Logger   logr.Logger
	Topic    string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

// NewRedisSource builds a RedisSource with spec.md's default read-batch
// shape; Block/Count are overridable for tests.
func NewRedisSource(client StreamClient, codec *sample.Codec, logger logr.Logger, topic, group, consumer string) *RedisSource {
	return &RedisSource{
		Client:   client,
		Codec:    codec,
		Logger:   logger,
		Topic:    topic,
		Group:    group,
		Consumer: consumer,
		Block:    5 * time.Second,
		Count:    100,
	}
}

// EnsureGroup creates the consumer group at the stream's current tail if
// it does not already exist, mirroring the MKSTREAM idiom so the group
// can be created before any producer has written to the topic.
func (s *RedisSource) EnsureGroup(ctx context.Context) error {
	err := s.Client.XGroupCreateMkStream(ctx, s.Topic, s.Group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("pipeline: ensure consumer group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	// redis replies with "BUSYGROUP Consumer Group name already exists"
	// rather than a typed error; string-match is the idiomatic check the
	// go-redis ecosystem uses for this reply.
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Fetch reads up to Count pending chunks from the topic, decodes them,
// and acknowledges each successfully-decoded entry. A decode failure is
// logged and the entry is still acknowledged, since a permanently
// malformed entry would otherwise block the consumer group forever
// (spec.md's anomaly/dead-letter handling lives at the publish side;
// by the time a chunk reaches this Source it has already passed the
// ingestion service's validation).
func (s *RedisSource) Fetch(ctx context.Context) ([]*sample.Chunk, error) {
	res, err := s.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.Group,
		Consumer: s.Consumer,
		Streams:  []string{s.Topic, ">"},
		Count:    s.Count,
		Block:    s.Block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("pipeline: read group: %w", err)
	}

	var chunks []*sample.Chunk
	for _, stream := range res {
		for _, msg := range stream.Messages {
			payload, _ := msg.Values["payload"].(string)
			chunk, decErr := s.Codec.Decode([]byte(payload))
			if decErr != nil {
				s.Logger.Error(decErr, "pipeline: dropping undecodable stream entry", "id", msg.ID, "topic", s.Topic)
			} else {
				chunks = append(chunks, chunk)
			}
			if ackErr := s.Client.XAck(ctx, s.Topic, s.Group, msg.ID).Err(); ackErr != nil {
				s.Logger.Error(ackErr, "pipeline: ack failed", "id", msg.ID, "topic", s.Topic)
			}
		}
	}
	return chunks, nil
}

// WindowConfig carries the per-data-type window sizes and coherence band
// a Topology applies when it builds a new session's Windower and
// computes connectivity (spec.md §4.6/§4.7).
type WindowConfig struct {
	Sizes         map[sample.DataType]time.Duration
	CoherenceLoHz float64
	CoherenceHiHz float64
}

// Topology is the pipeline's logical wiring (spec.md §4.6: "Source ->
// keyed-by-session_id tumbling windows -> per-window feature computation
// -> idempotent Sink"): one Windower per session, fed by Fetch, draining
// closed windows into computed Frames and handing them to Sink.
type Topology struct {
	Source StreamSource
	Sink   Sink
	Config WindowConfig
	Logger logr.Logger

	sessions map[string]*Windower
}

// StreamSource is the interface Topology drives; RedisSource is the
// concrete production implementation.
type StreamSource interface {
	Fetch(ctx context.Context) ([]*sample.Chunk, error)
}

// defaultCoherenceLoHz/defaultCoherenceHiHz bound the alpha band
// (8-12 Hz, spec.md §4.7's StandardBands), used when a Topology is
// built without an explicit coherence band.
const (
	defaultCoherenceLoHz = 8.0
	defaultCoherenceHiHz = 12.0
)

// NewTopology builds a Topology. Config.Sizes may be nil (every session
// uses DefaultWindowSize); Config.CoherenceLoHz/HiHz default to the
// alpha band when left zero.
func NewTopology(source StreamSource, sink Sink, config WindowConfig, logger logr.Logger) *Topology {
	if config.CoherenceHiHz <= config.CoherenceLoHz {
		config.CoherenceLoHz = defaultCoherenceLoHz
		config.CoherenceHiHz = defaultCoherenceHiHz
	}
	return &Topology{
		Source:   source,
		Sink:     sink,
		Config:   config,
		Logger:   logger,
		sessions: make(map[string]*Windower),
	}
}

// windowerFor returns the session's Windower, creating one on first
// sight of the session keyed by its declared data_type.
func (t *Topology) windowerFor(chunk *sample.Chunk) *Windower {
	win, ok := t.sessions[chunk.SessionID]
	if ok {
		return win
	}
	w := WindowSizeFor(chunk.DataType, t.Config.Sizes)
	win = NewWindower(chunk.SessionID, chunk.DataType, w, time.Duration(LatenessMultiplier)*w)
	t.sessions[chunk.SessionID] = win
	return win
}

// RunOnce fetches one batch from Source, routes every chunk into its
// session's Windower, computes a Frame for each window that closes as a
// result, and emits it to Sink in ascending window_start_ns order per
// session (spec.md §5's per-session ordering guarantee). Late chunks are
// counted on their Windower and otherwise dropped, since this pipeline
// has no replay-into-the-past mechanism of its own (out-of-band replay
// is pkg/ingestion.Service's job, spec.md §4.5).
func (t *Topology) RunOnce(ctx context.Context) (emitted int, err error) {
	chunks, err := t.Source.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	for _, chunk := range chunks {
		win := t.windowerFor(chunk)
		closed, late := win.Append(chunk)
		if late != nil {
			t.Logger.Info("pipeline: late arrival routed to side output",
				"session_id", chunk.SessionID, "window_start_ns", late.WindowStartNs)
		}
		for _, acc := range closed {
			frame := ComputeFrame(acc, t.Config.CoherenceLoHz, t.Config.CoherenceHiHz)
			if putErr := t.Sink.Put(ctx, frame); putErr != nil {
				return emitted, fmt.Errorf("pipeline: emit frame for session %s window %d: %w", frame.SessionID, frame.WindowStartNs, putErr)
			}
			emitted++
		}
	}
	return emitted, nil
}

// Run calls RunOnce in a loop until ctx is cancelled, the concrete
// long-running shape a production worker drives (one Topology per
// session shard, spec.md §5).
func (t *Topology) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := t.RunOnce(ctx); err != nil {
			t.Logger.Error(err, "pipeline: run iteration failed")
		}
	}
}
