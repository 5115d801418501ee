package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	cfg "github.com/feichai0017/pdfshift/config"
	"github.com/feichai0017/pdfshift/internal/agent"
	"github.com/feichai0017/pdfshift/internal/agent/render"
	"github.com/feichai0017/pdfshift/internal/compress"
	"github.com/feichai0017/pdfshift/pkg/logger"
	"github.com/feichai0017/pdfshift/pkg/queue"
	"github.com/feichai0017/pdfshift/pkg/storage/memory"
)

type fakeQueue struct {
	mu         sync.Mutex
	statuses   map[string]queue.TaskStatus
	enqueued   []*queue.Task
	cancelled  []string
	enqueueErr error
	saves      int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{statuses: make(map[string]queue.TaskStatus)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, task *queue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(ctx context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	return &s, nil
}

func (q *fakeQueue) CancelTask(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) SaveStatus(ctx context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[status.TaskID] = *status
	q.saves++
	return nil
}

func (q *fakeQueue) DeleteStatus(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.statuses, taskID)
	return nil
}

func (q *fakeQueue) status(taskID string) (queue.TaskStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.statuses[taskID]
	return s, ok
}

// stripBackend "strips" by dropping the first half of the document, so
// every request with target >= len/2 finishes on the metadata path.
type stripBackend struct {
	parseErr error
}

type halfContainer struct{ data []byte }

func (c *halfContainer) StripMetadata() error       { return nil }
func (c *halfContainer) Serialize() ([]byte, error) { return c.data[len(c.data)/2:], nil }

func (b *stripBackend) Parse(data []byte) (compress.Container, error) {
	if b.parseErr != nil {
		return nil, b.parseErr
	}
	return &halfContainer{data: data}, nil
}

func (b *stripBackend) NewAssembler() compress.Assembler { return nil }

type noEngine struct{}

func (noEngine) Get(ctx context.Context) (render.Renderer, error) {
	return nil, errors.New("no rendering in tests")
}

type fixture struct {
	svc     *CompressionService
	queue   *fakeQueue
	store   *memory.MemoryStorage
	backend *stripBackend
	log     *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	backend := &stripBackend{}
	factory, err := agent.NewProcessorFactory(cfg.Default().Compression, log,
		agent.WithBackend(backend),
		agent.WithEngine(noEngine{}),
	)
	require.NoError(t, err)

	sc := DefaultServiceConfig()
	sc.EnforceTargetLimits = false

	f := &fixture{
		queue:   newFakeQueue(),
		store:   memory.New(),
		backend: backend,
		log:     log,
	}
	f.svc = NewService(factory, f.queue, f.store, nil, log, sc)
	return f
}

func fakePDF(size int) []byte {
	head := []byte("%PDF-1.4\n")
	return append(head, bytes.Repeat([]byte{' '}, size-len(head))...)
}
