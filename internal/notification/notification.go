// Пакет notification — события об изменениях в хранилище кейсов.
//
// События публикуются в NATS JetStream в subjects:
//   - {prefix}.imported — кейс импортирован
//   - {prefix}.deleted — кейс удалён (reason: user | expired | all)
//
// Если NATS не настроен (CS_NATS_URL пуст), используется Noop.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventType — тип события.
type EventType string

const (
	EventImported EventType = "imported"
	EventDeleted  EventType = "deleted"
)

// Reason — причина удаления кейса.
type Reason string

const (
	ReasonUser    Reason = "user"
	ReasonExpired Reason = "expired"
	ReasonAll     Reason = "all"
)

// Event — сообщение о кейсе.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	CaseID    uuid.UUID `json:"caseId"`
	Name      string    `json:"name,omitempty"`
	Format    string    `json:"format,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Imported создаёт событие импорта.
func Imported(caseID uuid.UUID, name, format string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventImported,
		CaseID:    caseID,
		Name:      name,
		Format:    format,
		Timestamp: time.Now().UTC(),
	}
}

// Deleted создаёт событие удаления.
func Deleted(caseID uuid.UUID, reason Reason) Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventDeleted,
		CaseID:    caseID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher публикует события.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

var publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cs_events_published_total",
	Help: "Количество опубликованных событий по типу и результату",
}, []string{"type", "result"})

// Subject возвращает subject для события.
func Subject(prefix string, t EventType) string {
	return prefix + "." + string(t)
}

// jsPublisher — часть jetstream.JetStream, нужная для публикации.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSPublisher — публикация событий в JetStream.
type NATSPublisher struct {
	conn   *nats.Conn
	js     jsPublisher
	prefix string
	logger *slog.Logger
}

// NATSConfig — параметры подключения к NATS.
type NATSConfig struct {
	URL           string
	Stream        string
	SubjectPrefix string
	ClientName    string
}

// NewNATSPublisher подключается к NATS и создаёт (или обновляет) stream
// с subjects {prefix}.>.
func NewNATSPublisher(ctx context.Context, cfg NATSConfig, logger *slog.Logger) (*NATSPublisher, error) {
	logger = logger.With(slog.String("component", "notification"))

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS: соединение потеряно", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS: соединение восстановлено", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("подключение к JetStream: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("создание stream %s: %w", cfg.Stream, err)
	}

	logger.Info("Публикация событий в NATS включена",
		slog.String("stream", cfg.Stream),
		slog.String("prefix", cfg.SubjectPrefix),
	)

	return &NATSPublisher{
		conn:   conn,
		js:     js,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

// Publish отправляет событие. ID события служит идентификатором
// сообщения для дедупликации в JetStream.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	subject := Subject(p.prefix, e.Type)
	if _, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(e.ID.String())); err != nil {
		publishedTotal.WithLabelValues(string(e.Type), "error").Inc()
		return fmt.Errorf("публикация в %s: %w", subject, err)
	}
	publishedTotal.WithLabelValues(string(e.Type), "ok").Inc()

	p.logger.Debug("Событие опубликовано",
		slog.String("subject", subject),
		slog.String("case_id", e.CaseID.String()),
	)
	return nil
}

// Close дожидается отправки буферов и закрывает соединение.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Noop — публикатор, который ничего не отправляет.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
