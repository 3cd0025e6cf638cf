// Package events publishes deposit and withdrawal notifications for
// downstream consumers. Subjects follow <prefix>.pool.<id>.<kind>.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"shadowpool/internal/config"
	"shadowpool/internal/metrics"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// DepositNotice is the payload of a deposit notification.
type DepositNotice struct {
	PoolID     string    `json:"pool_id"`
	Commitment string    `json:"commitment"`
	LeafIndex  uint32    `json:"leaf_index"`
	Root       string    `json:"root"`
	Timestamp  time.Time `json:"timestamp"`
}

// WithdrawNotice is the payload of a withdrawal notification.
type WithdrawNotice struct {
	PoolID        string    `json:"pool_id"`
	NullifierHash string    `json:"nullifier_hash"`
	Recipient     string    `json:"recipient"`
	Amount        uint64    `json:"amount"`
	Fee           uint64    `json:"fee"`
	Timestamp     time.Time `json:"timestamp"`
}

// NATSPublisher publishes notices over a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the configured NATS server. Publish failures
// after connect are logged and dropped; notifications are best effort and
// never gate the pool flows.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(time.Duration(cfg.Timeout)*time.Second),
		nats.ReconnectWait(time.Duration(cfg.ReconnectWait)*time.Second),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (p *NATSPublisher) PublishDeposit(notice DepositNotice) {
	subject := fmt.Sprintf("%s.pool.%s.deposit", p.prefix, notice.PoolID)
	p.publish(subject, notice)
}

func (p *NATSPublisher) PublishWithdraw(notice WithdrawNotice) {
	subject := fmt.Sprintf("%s.pool.%s.withdraw", p.prefix, notice.PoolID)
	p.publish(subject, notice)
}

func (p *NATSPublisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("subject", subject).Error("Failed to marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		log.WithError(err).WithField("subject", subject).Error("Failed to publish event")
	}
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
