package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis keys
	queueKey = "notify_queue"
	retryKey = "notify_retry"

	DefaultMaxRetries = 3
	popTimeout        = 2 * time.Second
	retryInterval     = 30 * time.Second
	baseBackoff       = 1 * time.Minute
)

// Notification is one queued email delivery attempt.
type Notification struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
}

// SendFunc delivers one notification. mail.SendMail satisfies it.
type SendFunc func(to, subject, body string) error

// Queue is a redis-backed best-effort notification queue. Deliveries that
// fail are parked in a retry set with exponential backoff and re-enqueued
// by a background ticker; a notification that exhausts its retries is
// dropped with an error log. Nothing here ever propagates back into the
// payment path.
type Queue struct {
	client  *redis.Client
	send    SendFunc
	workers int

	retryTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewQueue creates a notification queue with the given worker count.
func NewQueue(client *redis.Client, send SendFunc, workers int) *Queue {
	if workers <= 0 {
		workers = 2
	}
	return &Queue{
		client:  client,
		send:    send,
		workers: workers,
	}
}

// Start launches the delivery workers and the retry re-enqueuer.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.stopCh = make(chan struct{})
	q.running = true

	log.Infof("[Notify] starting %d delivery workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	q.retryTicker = time.NewTicker(retryInterval)
	q.wg.Add(1)
	go q.retryWorker()
}

// Stop signals workers to finish and waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	q.retryTicker.Stop()
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[Notify] all workers stopped")
}

// Enqueue queues a notification for delivery.
func (q *Queue) Enqueue(n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = DefaultMaxRetries
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.LPush(context.Background(), queueKey, data).Err()
}

// PaymentConfirmed implements the dispatcher's ConfirmationNotifier by
// queueing the confirmation email.
func (q *Queue) PaymentConfirmed(email, externalOrderID, planName string, endDate time.Time) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2>Payment Confirmed</h2>
			<p>Your payment for order <strong>%s</strong> was successful.</p>
			<p>The <strong>%s</strong> plan is active until <strong>%s</strong>.</p>
			<p>Best regards,<br>Enutrac Team</p>
		</div>`,
		externalOrderID, planName, endDate.Format("2006-01-02"))

	return q.Enqueue(Notification{
		To:      email,
		Subject: fmt.Sprintf("Payment confirmation - order %s", externalOrderID),
		Body:    body,
	})
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		res, err := q.client.BRPop(ctx, popTimeout, queueKey).Result()
		if err != nil {
			if err != redis.Nil {
				log.Errorf("[Notify] worker %d pop error: %v", id, err)
				time.Sleep(popTimeout)
			}
			continue
		}
		// BRPop returns [key, value]
		if len(res) != 2 {
			continue
		}

		var n Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			log.Errorf("[Notify] worker %d dropping undecodable notification: %v", id, err)
			continue
		}
		q.deliver(&n)
	}
}

func (q *Queue) deliver(n *Notification) {
	err := q.send(n.To, n.Subject, n.Body)
	if err == nil {
		log.Infof("[Notify] delivered %s to %s", n.ID, n.To)
		return
	}

	n.RetryCount++
	if n.RetryCount > n.MaxRetries {
		log.Errorf("[Notify] giving up on %s after %d attempts: %v", n.ID, n.RetryCount, err)
		return
	}

	backoff := baseBackoff * time.Duration(1<<(n.RetryCount-1))
	nextAttempt := time.Now().Add(backoff)
	data, marshalErr := json.Marshal(n)
	if marshalErr != nil {
		log.Errorf("[Notify] dropping %s, marshal failed: %v", n.ID, marshalErr)
		return
	}
	zErr := q.client.ZAdd(context.Background(), retryKey, redis.Z{
		Score:  float64(nextAttempt.Unix()),
		Member: data,
	}).Err()
	if zErr != nil {
		log.Errorf("[Notify] could not park %s for retry: %v", n.ID, zErr)
		return
	}
	log.Warnf("[Notify] delivery of %s failed (attempt %d/%d), retrying in %s: %v",
		n.ID, n.RetryCount, n.MaxRetries, backoff, err)
}

// retryWorker moves parked notifications whose backoff has elapsed back
// onto the delivery queue.
func (q *Queue) retryWorker() {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		case <-q.retryTicker.C:
			due, err := q.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
				Min: "-inf",
				Max: fmt.Sprintf("%d", time.Now().Unix()),
			}).Result()
			if err != nil {
				log.Errorf("[Notify] retry scan error: %v", err)
				continue
			}
			for _, member := range due {
				if err := q.client.LPush(ctx, queueKey, member).Err(); err != nil {
					log.Errorf("[Notify] retry re-enqueue error: %v", err)
					continue
				}
				q.client.ZRem(ctx, retryKey, member)
			}
		}
	}
}
