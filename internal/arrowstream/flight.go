package arrowstream

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-warble/internal/logger"
	"github.com/23skdu/longbow-warble/internal/metrics"
)

// Publisher ships encoded code batches to a Flight endpoint so downstream
// consumers (storage, decoding fleets) receive them without re-serializing.
type Publisher interface {
	Publish(ctx context.Context, batch *CodeBatch) error
	Close() error
}

// FlightPublisher is the Arrow Flight DoPut implementation of Publisher.
// One publisher per destination; safe for sequential use by one session.
type FlightPublisher struct {
	addr   string
	stages int
	dim    int

	client flight.Client
	log    *logger.Logger
}

// NewFlightPublisher prepares a publisher for the given endpoint. Connect
// must be called before Publish.
func NewFlightPublisher(addr string, stages, dim int) *FlightPublisher {
	return &FlightPublisher{
		addr:   addr,
		stages: stages,
		dim:    dim,
		log:    logger.Log.With("flight"),
	}
}

// Connect dials the Flight endpoint.
func (p *FlightPublisher) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddleware(p.addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("flight dial %s: %w", p.addr, err)
	}
	p.client = client
	p.log.Info("connected", "addr", p.addr)
	return nil
}

// Publish sends one batch via DoPut under the path ["codes", stream_id].
func (p *FlightPublisher) Publish(ctx context.Context, batch *CodeBatch) error {
	if p.client == nil {
		return fmt.Errorf("flight publisher not connected")
	}

	rec, err := BuildRecord(memory.DefaultAllocator, batch, p.stages, p.dim)
	if err != nil {
		metrics.RecordFlightPublish(0, true)
		return err
	}
	defer rec.Release()

	stream, err := p.client.DoPut(ctx)
	if err != nil {
		metrics.RecordFlightPublish(0, true)
		return fmt.Errorf("flight doput: %w", err)
	}

	wr := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	wr.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"codes", batch.StreamID},
	})
	if err := wr.Write(rec); err != nil {
		wr.Close()
		metrics.RecordFlightPublish(0, true)
		return fmt.Errorf("flight write: %w", err)
	}
	if err := wr.Close(); err != nil {
		metrics.RecordFlightPublish(0, true)
		return fmt.Errorf("flight close: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		metrics.RecordFlightPublish(0, true)
		return fmt.Errorf("flight close send: %w", err)
	}

	metrics.RecordFlightPublish(batch.Rows(), false)
	p.log.Debug("batch published", "rows", batch.Rows(), "stream_id", batch.StreamID)
	return nil
}

// Close tears down the connection.
func (p *FlightPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// MemPublisher collects batches in memory. Used by tests and by the demo
// driver when no Flight endpoint is configured.
type MemPublisher struct {
	Batches []*CodeBatch
}

func (p *MemPublisher) Publish(ctx context.Context, batch *CodeBatch) error {
	p.Batches = append(p.Batches, batch)
	metrics.RecordFlightPublish(batch.Rows(), false)
	return nil
}

func (p *MemPublisher) Close() error {
	return nil
}
