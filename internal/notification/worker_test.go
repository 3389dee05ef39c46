package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
	"github.com/procurex/requisition-engine/internal/notification"
)

type sentEmail struct {
	to      string
	subject string
	body    string
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *mockEmailSender) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func (m *mockEmailSender) deliveries() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

var _ = Describe("DeliveryWorker", func() {
	var (
		repo   *mockNotificationRepository
		users  *mockUserDirectory
		sender *mockEmailSender
		worker *notification.DeliveryWorker
		ctx    context.Context
		cancel context.CancelFunc
	)

	enqueue := func(notificationID int64, attempts int) *notificationDatamodel.DeliveryJob {
		job := &notificationDatamodel.DeliveryJob{
			ID:             notificationID * 100,
			NotificationID: notificationID,
			Channel:        notificationDatamodel.ChannelEmail,
			Status:         notificationDatamodel.DeliveryStatusPending,
			Attempts:       attempts,
		}
		repo.dueJobs = append(repo.dueJobs, job)
		return job
	}

	runOnce := func() {
		// PollInterval is far beyond the test, so Run drains exactly once
		done := make(chan struct{})
		go func() {
			defer close(done)
			worker.Run(ctx)
		}()
		time.Sleep(50 * time.Millisecond)
		cancel()
		Eventually(done).Should(BeClosed())
	}

	BeforeEach(func() {
		repo = newMockNotificationRepository()
		users = &mockUserDirectory{
			names:  map[int64]string{},
			emails: map[int64]string{10: "dewi@acme.test"},
		}
		sender = &mockEmailSender{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		worker = notification.NewDeliveryWorker(repo, users, sender, logger, notification.DeliveryWorkerConfig{
			MaxWorkers:   2,
			BatchSize:    10,
			MaxRetries:   3,
			PollInterval: time.Hour,
		})
		ctx, cancel = context.WithCancel(context.Background())

		Expect(repo.Create(&notificationDatamodel.Notification{
			OrgID:         1,
			UserID:        10,
			RequisitionID: 42,
			ToStatus:      "approved",
			Message:       "Rizky approved requisition REQ-26-00042",
		})).To(Succeed())
	})

	AfterEach(func() {
		cancel()
	})

	It("sends the email and marks the job sent", func() {
		job := enqueue(1, 0)

		runOnce()

		delivered := sender.deliveries()
		Expect(delivered).To(HaveLen(1))
		Expect(delivered[0].to).To(Equal("dewi@acme.test"))
		Expect(delivered[0].subject).To(ContainSubstring("approved"))
		Expect(delivered[0].body).To(ContainSubstring("REQ-26-00042"))
		Expect(repo.sentJobs).To(ContainElement(job.ID))
		Expect(repo.failedJobs).To(BeEmpty())
	})

	It("records the failure reason and increments the attempt count", func() {
		sender.err = errors.New("smtp relay unavailable")
		job := enqueue(1, 1)

		runOnce()

		Expect(repo.sentJobs).To(BeEmpty())
		Expect(repo.failedJobs[job.ID]).To(ContainSubstring("smtp relay unavailable"))
		Expect(repo.attempts[job.ID]).To(Equal(2))
	})

	It("fails a job whose recipient has no email address", func() {
		Expect(repo.Create(&notificationDatamodel.Notification{
			OrgID:  1,
			UserID: 99,
		})).To(Succeed())
		job := enqueue(2, 0)

		runOnce()

		Expect(sender.deliveries()).To(BeEmpty())
		Expect(repo.failedJobs[job.ID]).To(ContainSubstring("no email address"))
	})

	It("fails a job whose notification row is gone", func() {
		job := enqueue(77, 0)

		runOnce()

		Expect(sender.deliveries()).To(BeEmpty())
		Expect(repo.failedJobs[job.ID]).To(ContainSubstring("notification lookup failed"))
	})
})
