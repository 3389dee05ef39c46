package notification_test

import (
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/procurex/requisition-engine/internal"
	notificationDatamodel "github.com/procurex/requisition-engine/internal/core/datamodel/notification"
	"github.com/procurex/requisition-engine/internal/notification"
)

var _ = Describe("NotificationService", func() {
	var (
		repo    *mockNotificationRepository
		service *notification.Service
	)

	BeforeEach(func() {
		repo = newMockNotificationRepository()
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = notification.NewService(repo, logger)
	})

	Describe("MarkRead", func() {
		It("marks the caller's own notification read once", func() {
			row := &notificationDatamodel.Notification{UserID: 10, Message: "hello"}
			Expect(repo.Create(row)).To(Succeed())

			marked, err := service.MarkRead(10, row.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(marked.IsRead).To(BeTrue())
			Expect(marked.ReadAt).ToNot(BeNil())
		})

		It("hides another user's notification", func() {
			row := &notificationDatamodel.Notification{UserID: 10}
			Expect(repo.Create(row)).To(Succeed())

			_, err := service.MarkRead(99, row.ID)
			Expect(errors.Is(err, internal.ErrResourceNotFound)).To(BeTrue())
		})

		It("reports a missing notification with the same error", func() {
			_, err := service.MarkRead(10, 404)
			Expect(errors.Is(err, internal.ErrResourceNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("refuses deleting another user's notification", func() {
			row := &notificationDatamodel.Notification{UserID: 10}
			Expect(repo.Create(row)).To(Succeed())

			err := service.Delete(99, row.ID)
			Expect(errors.Is(err, internal.ErrResourceNotFound)).To(BeTrue())
		})
	})
})
