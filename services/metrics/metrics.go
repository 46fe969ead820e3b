// Package metrics holds the prometheus collectors of the API process.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of emails handed to the provider",
		},
		[]string{"provider", "result"},
	)

	CampaignBatches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_batch_size",
			Help:    "Number of recipients per campaign batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)
)

// ObserveRequest records one served request.
func ObserveRequest(method, route string, status int, took time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// ObserveBatch fits campaign.OnBatch.
func ObserveBatch(size int) {
	CampaignBatches.Observe(float64(size))
}

type instrumentedEmail struct {
	core.EmailService
	logger core.Logger
}

// InstrumentEmail counts the deliveries of svc in EmailsSent.
func InstrumentEmail(svc core.EmailService, logger core.Logger) core.EmailService {
	return &instrumentedEmail{EmailService: svc, logger: logger}
}

func (svc *instrumentedEmail) Send(ctx context.Context, msg *core.EmailMessage) error {
	err := svc.EmailService.Send(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	EmailsSent.WithLabelValues(svc.Name(), result).Inc()
	return err
}

func (svc *instrumentedEmail) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.Send(context.Background(), msg); err != nil {
				svc.logger.Error(fmt.Sprintf("%s: sending email %q: %v", svc.Name(), msg.Subject, err), err)
			}
		}()
	}
}
