package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	mu       sync.Mutex
	subjects []string
	to       [][]string
	err      error
}

func (p *recordingProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *recordingProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.to = append(p.to, to)
	return p.err
}

func TestDispatcherSendsAfterRequestEnds(t *testing.T) {
	provider := &recordingProvider{}
	d := NewDispatcher(Params{Log: zap.NewNop(), Email: provider})

	ctx, cancel := context.WithCancel(context.Background())
	d.EnrollmentCompleted(ctx, EnrollmentNotice{
		Email:         "rahim@example.com",
		CourseTitle:   "Go Basics",
		TransactionID: "TXN-1",
	})
	cancel()
	d.Wait()

	require.Len(t, provider.subjects, 1)
	assert.Equal(t, "You're enrolled in Go Basics", provider.subjects[0])
	assert.Equal(t, []string{"rahim@example.com"}, provider.to[0])
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	provider := &recordingProvider{err: errors.New("smtp down")}
	d := NewDispatcher(Params{Log: zap.NewNop(), Email: provider})

	d.EnrollmentCompleted(context.Background(), EnrollmentNotice{Email: "a@b.c", CourseTitle: "X"})
	d.Wait()

	assert.Len(t, provider.subjects, 1)
}

func TestDispatcherSkipsMissingEmail(t *testing.T) {
	provider := &recordingProvider{}
	d := NewDispatcher(Params{Log: zap.NewNop(), Email: provider})

	d.EnrollmentCompleted(context.Background(), EnrollmentNotice{Email: " "})
	d.Wait()

	assert.Empty(t, provider.subjects)
}
